package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RegistrationResponse represents the body of GET /registration
type RegistrationResponse struct {
	Cameras []CameraDescriptor `json:"cameras"`
}

// CameraDescriptor is the registry's identity record for one camera unit.
type CameraDescriptor struct {
	Hostname     string    `json:"hostname"`
	Address      string    `json:"ip"` // JSON key is "ip" on the registration service
	RegisteredAt Timestamp `json:"registered"`
}

// Timestamp accepts the formats camera units have been seen registering with:
// RFC 3339, "2006-01-02 15:04:05" and unix seconds.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] != '"' {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s", data)
		}
		t.Time = time.Unix(0, int64(secs*float64(time.Second))).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// String renders the timestamp for tables; unknown times render as "-".
func (t Timestamp) String() string {
	if t.IsZero() {
		return "-"
	}
	return t.Time.Format(time.RFC3339)
}
