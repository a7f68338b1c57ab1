package events

import (
	"github.com/mattjoyce/blockbridge/internal/bridge"
)

// Dispatch is the data of every dispatch.* event.
type Dispatch struct {
	RequestID  string `json:"request_id"`
	Entry      string `json:"entry"`
	Event      string `json:"event"`
	Wait       bool   `json:"wait"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

var statusTypes = map[bridge.Status]string{
	bridge.StatusSent:       TypeDispatchSent,
	bridge.StatusDropped:    TypeDispatchDropped,
	bridge.StatusDeclined:   TypeDispatchDeclined,
	bridge.StatusSuppressed: TypeDispatchSuppressed,
	bridge.StatusFault:      TypeDispatchFault,
}

// Observe implements bridge.Observer.
func (h *Hub) Observe(o bridge.Outcome) {
	typ, ok := statusTypes[o.Status]
	if !ok {
		return
	}

	d := Dispatch{
		RequestID:  o.RequestID,
		Entry:      string(o.Entry),
		Event:      o.Event,
		Wait:       o.Wait,
		Result:     o.Result,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	h.Publish(typ, d)
}

var _ bridge.Observer = (*Hub)(nil)
