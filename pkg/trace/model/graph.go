package model

type Edge struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
}

// GraphData is the derived view of a trace: nodes in sequence-position order,
// edges from parent span to child span. It is rebuilt or incrementally
// patched from the event log and never mutated by readers.
type GraphData struct {
	Nodes []Span `json:"nodes"`
	Edges []Edge `json:"edges"`
}
