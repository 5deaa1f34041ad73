package model

import "time"

type Trace struct {
	TraceID      string            `json:"trace_id"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	DurationMs   *int64            `json:"duration_ms,omitempty"`
	SpanCount    int               `json:"span_count"`
	TotalCostUSD float64           `json:"total_cost_usd"`
	TotalTokens  int               `json:"total_tokens"`
	Tags         map[string]string `json:"tags"`
}
