package model

import "time"

type Span struct {
	SpanID       string     `json:"span_id"`
	TraceID      string     `json:"trace_id"`
	ParentSpanID string     `json:"parent_span_id,omitempty"`
	Name         string     `json:"name"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	CostUSD      float64    `json:"cost_usd"`
	Tokens       int        `json:"tokens"`
	Status       string     `json:"status"` // e.g. running, completed, error
}

// SpanDelta carries the mutable fields of a span-updated event.
// Nil fields are left untouched when the delta is applied.
type SpanDelta struct {
	EndTime *time.Time `json:"end_time,omitempty"`
	Status  *string    `json:"status,omitempty"`
	CostUSD *float64   `json:"cost_usd,omitempty"`
	Tokens  *int       `json:"tokens,omitempty"`
}

// Apply overwrites the span's mutable fields with the delta's non-nil values.
func (d *SpanDelta) Apply(span *Span) {
	if d.EndTime != nil {
		span.EndTime = d.EndTime
	}
	if d.Status != nil {
		span.Status = *d.Status
	}
	if d.CostUSD != nil {
		span.CostUSD = *d.CostUSD
	}
	if d.Tokens != nil {
		span.Tokens = *d.Tokens
	}
}
