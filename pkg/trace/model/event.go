package model

type EventType string

const (
	EventTypeTraceCreated EventType = "trace-created"
	EventTypeSpanCreated  EventType = "span-created"
	EventTypeSpanUpdated  EventType = "span-updated"
)

// Event is an immutable lifecycle fact applied to a trace's event log.
// Position is the sequence position assigned at apply time, not arrival time,
// so replaying the same prefix always yields the same graph.
type Event struct {
	ID       string     `json:"id"`
	Type     EventType  `json:"type"`
	Position int        `json:"position"`
	Trace    *Trace     `json:"trace,omitempty"`   // trace-created only
	Span     *Span      `json:"span,omitempty"`    // span-created only
	SpanID   string     `json:"span_id,omitempty"` // span-updated only
	Delta    *SpanDelta `json:"delta,omitempty"`   // span-updated only
}
