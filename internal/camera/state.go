package camera

import (
	"errors"
	"fmt"

	"argus-master/internal/client"
)

// State is where a camera unit sits in its lifecycle as far as we know.
type State int

const (
	StateOffline State = iota // initial probe failed; sticky until the fleet is reloaded
	StateInactive
	StateActive
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OperationKind names the asynchronous operations a device can have in flight.
type OperationKind int

const (
	OpActivate OperationKind = iota + 1
	OpCapture
)

func (k OperationKind) String() string {
	switch k {
	case OpActivate:
		return "activate"
	case OpCapture:
		return "capture"
	default:
		return fmt.Sprintf("operation(%d)", int(k))
	}
}

type pendingOperation struct {
	kind   OperationKind
	future *client.Future
}

// Requests a device refuses to send.
var (
	ErrOffline       = errors.New("camera is offline")
	ErrNotActive     = errors.New("camera not active")
	ErrAlreadyActive = errors.New("camera already active")
	ErrBusy          = errors.New("camera has an operation in flight")
)

// FailureKind classifies a failed Outcome.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureConnectionFailed FailureKind = "connection_failed"
	FailureTimeout          FailureKind = "timeout"
	FailureRequestError     FailureKind = "request_error"
	FailureHTTPError        FailureKind = "http_error"
	FailureProtocolError    FailureKind = "protocol_error"
	FailureRejected         FailureKind = "rejected"
)

// Outcome is the result of every device operation. Operations never
// return errors; a failure is Success=false with a Message saying why.
type Outcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Failure FailureKind    `json:"failure,omitempty"`
	Info    map[string]any `json:"info,omitempty"`
}

func succeeded(info map[string]any) Outcome {
	return Outcome{Success: true, Info: info}
}

func failed(kind FailureKind, format string, args ...any) Outcome {
	return Outcome{Failure: kind, Message: fmt.Sprintf(format, args...)}
}

// StartOutcome converts the error from StartActivate or StartCapture into
// the Outcome the operation would have had. A camera that is already
// active counts as a successful activation.
func StartOutcome(err error) Outcome {
	if errors.Is(err, ErrAlreadyActive) {
		return Outcome{Success: true, Message: "already active"}
	}
	return failed(FailureRejected, "%v", err)
}

func transportOutcome(err error) Outcome {
	kind, ok := client.KindOf(err)
	if !ok {
		return failed(FailureRequestError, "%v", err)
	}
	switch kind {
	case client.KindConnectionFailed:
		return failed(FailureConnectionFailed, "could not access camera: %v", err)
	case client.KindTimeout:
		return failed(FailureTimeout, "timeout: %v", err)
	default:
		return failed(FailureRequestError, "error accessing camera: %v", err)
	}
}
