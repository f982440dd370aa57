package models

// Status values reported by the camera service in each substatus.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusSuccess  = "success"
)

// StatusReply is the body returned by /camera/on, /camera/off and /camera/capture.
// Both halves of the stereo pair report independently.
type StatusReply struct {
	Master *SubStatus `json:"master"`
	Slave  *SubStatus `json:"slave"`
}

type SubStatus struct {
	Status string `json:"status"`
}

// Both reports whether master and slave agree on the wanted status.
// A missing half never matches.
func (r *StatusReply) Both(want string) bool {
	if r == nil || r.Master == nil || r.Slave == nil {
		return false
	}
	return r.Master.Status == want && r.Slave.Status == want
}
