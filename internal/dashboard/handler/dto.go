package handler

import (
	"time"

	"github.com/agentlens/agentlens/pkg/trace/model"
)

// TraceDTO represents a trace's live aggregate summary
// @swagger:model TraceDTO
type TraceDTO struct {
	TraceID      string            `json:"trace_id"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	DurationMs   *int64            `json:"duration_ms,omitempty"`
	SpanCount    int               `json:"span_count"`
	TotalCostUSD float64           `json:"total_cost_usd"`
	TotalTokens  int               `json:"total_tokens"`
	Tags         map[string]string `json:"tags"`
}

// TraceListResponseDTO represents the response to a trace list request
// @swagger:model TraceListResponseDTO
type TraceListResponseDTO struct {
	// The known traces, most recent first
	Traces []TraceDTO `json:"traces"`
}

// SpanDTO represents a node of the resolved graph
// @swagger:model SpanDTO
type SpanDTO struct {
	SpanID       string     `json:"span_id"`
	TraceID      string     `json:"trace_id"`
	ParentSpanID string     `json:"parent_span_id,omitempty"`
	Name         string     `json:"name"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	CostUSD      float64    `json:"cost_usd"`
	Tokens       int        `json:"tokens"`
	Status       string     `json:"status"`
}

// EdgeDTO represents a parent to child link in the resolved graph
// @swagger:model EdgeDTO
type EdgeDTO struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
}

// GraphResponseDTO represents the graph resolved at a time travel index
// @swagger:model GraphResponseDTO
type GraphResponseDTO struct {
	Nodes []SpanDTO `json:"nodes"`
	Edges []EdgeDTO `json:"edges"`
}

// BoundsResponseDTO represents the scrubbing bounds of a trace
// @swagger:model BoundsResponseDTO
type BoundsResponseDTO struct {
	// The number of span creation steps available for time travel
	TotalSteps int `json:"total_steps"`
}

// TagUpdateRequestDTO represents a tag edit for a trace
// @swagger:model TagUpdateRequestDTO
type TagUpdateRequestDTO struct {
	// The replacement tag mapping
	Tags map[string]string `json:"tags" validate:"required"`
}

// ErrorMessage represents an error response
// @swagger:model ErrorMessage
type ErrorMessage struct {
	Message string `json:"message"`
}

func toTraceDTO(trace model.Trace) TraceDTO {
	return TraceDTO{
		TraceID:      trace.TraceID,
		StartTime:    trace.StartTime,
		EndTime:      trace.EndTime,
		DurationMs:   trace.DurationMs,
		SpanCount:    trace.SpanCount,
		TotalCostUSD: trace.TotalCostUSD,
		TotalTokens:  trace.TotalTokens,
		Tags:         trace.Tags,
	}
}

func toGraphResponseDTO(graph model.GraphData) GraphResponseDTO {
	nodes := make([]SpanDTO, len(graph.Nodes))
	for i, node := range graph.Nodes {
		nodes[i] = SpanDTO{
			SpanID:       node.SpanID,
			TraceID:      node.TraceID,
			ParentSpanID: node.ParentSpanID,
			Name:         node.Name,
			StartTime:    node.StartTime,
			EndTime:      node.EndTime,
			CostUSD:      node.CostUSD,
			Tokens:       node.Tokens,
			Status:       node.Status,
		}
	}
	edges := make([]EdgeDTO, len(graph.Edges))
	for i, edge := range graph.Edges {
		edges[i] = EdgeDTO{ParentID: edge.ParentID, ChildID: edge.ChildID}
	}
	return GraphResponseDTO{Nodes: nodes, Edges: edges}
}
