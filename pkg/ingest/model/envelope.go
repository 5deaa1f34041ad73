package model

import (
	traceModel "github.com/agentlens/agentlens/pkg/trace/model"
)

const (
	TypeTraceCreated = "trace-created"
	TypeSpanCreated  = "span-created"
	TypeSpanUpdated  = "span-updated"
	TypeResync       = "resync"
)

// Envelope is the opaque payload shape the transport delivers. EventID is
// optional; when absent a deterministic identity is derived from the payload
// so duplicate delivery stays a no-op either way.
type Envelope struct {
	EventID string                `json:"event_id,omitempty"`
	Type    string                `json:"type"`
	Trace   *traceModel.Trace     `json:"trace,omitempty"`
	Span    *traceModel.Span      `json:"span,omitempty"`
	SpanID  string                `json:"span_id,omitempty"`
	Delta   *traceModel.SpanDelta `json:"delta,omitempty"`
	TraceID string                `json:"trace_id,omitempty"` // resync, or hint for early updates
	Events  []Envelope            `json:"events,omitempty"`   // resync payload
}
