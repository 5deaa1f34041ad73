package model

// TraceUpdate is the change notification published after an event is
// applied, so live views know to re-resolve the trace.
type TraceUpdate struct {
	TraceID    string `json:"trace_id"`
	TotalSteps int    `json:"total_steps"`
	SpanCount  int    `json:"span_count"`
}

const TraceUpdatedTopic = "trace_updated"
