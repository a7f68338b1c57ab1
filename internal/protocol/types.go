package protocol

import (
	"encoding/json"
	"time"
)

// Version is the only frame protocol version the bridge speaks.
const Version = 1

// Frame is the dispatch envelope sent to the device backend.
type Frame struct {
	Protocol int            `json:"protocol"`
	ID       string         `json:"id"`
	Event    string         `json:"event"`
	Payload  map[string]any `json:"payload,omitempty"`
	Wait     bool           `json:"wait"` // backend replies only when true
	SentAt   time.Time      `json:"sent_at"`
}

// Reply is the backend's answer to a waiting Frame.
type Reply struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // ok | error
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Value decodes Result into a plain Go value. A missing result decodes to nil.
func (r *Reply) Value() (any, error) {
	if len(r.Result) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(r.Result, &v); err != nil {
		return nil, err
	}
	return v, nil
}
