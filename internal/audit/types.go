package audit

import (
	"encoding/json"
	"time"
)

// Entry is one row of the dispatch log.
type Entry struct {
	ID            string          `json:"id"`
	Entry         string          `json:"entry"`
	Event         string          `json:"event"`
	Wait          bool            `json:"wait"`
	Status        string          `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	PayloadDigest string          `json:"payload_digest,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DurationMS    int64           `json:"duration_ms"`
}
