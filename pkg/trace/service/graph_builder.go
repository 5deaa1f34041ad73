package service

import (
	"sync"

	"github.com/agentlens/agentlens/pkg/trace/model"
)

// buildState accumulates a graph over an ordered event sequence. nodeIndex
// maps span ids to positions in nodes; edges whose parent has not arrived yet
// are parked in pendingEdges, keyed by the awaited parent id, and attached
// when the parent node is added, so delivery order of parent and child does
// not change the resulting graph.
type buildState struct {
	nodes        []model.Span
	nodeIndex    map[string]int
	edges        []model.Edge
	pendingEdges map[string][]string
	applied      int
	version      int
}

func newBuildState() *buildState {
	return &buildState{
		nodeIndex:    make(map[string]int),
		pendingEdges: make(map[string][]string),
	}
}

func (bs *buildState) apply(event model.Event) {
	switch event.Type {
	case model.EventTypeTraceCreated:
		// graphs are already scoped to a trace, nothing to add

	case model.EventTypeSpanCreated:
		if event.Span == nil {
			break
		}
		span := *event.Span
		if _, ok := bs.nodeIndex[span.SpanID]; ok {
			break
		}
		bs.nodeIndex[span.SpanID] = len(bs.nodes)
		bs.nodes = append(bs.nodes, span)

		if span.ParentSpanID != "" {
			if _, ok := bs.nodeIndex[span.ParentSpanID]; ok {
				bs.edges = append(bs.edges, model.Edge{ParentID: span.ParentSpanID, ChildID: span.SpanID})
			} else {
				bs.pendingEdges[span.ParentSpanID] = append(bs.pendingEdges[span.ParentSpanID], span.SpanID)
			}
		}
		if children, ok := bs.pendingEdges[span.SpanID]; ok {
			for _, childID := range children {
				bs.edges = append(bs.edges, model.Edge{ParentID: span.SpanID, ChildID: childID})
			}
			delete(bs.pendingEdges, span.SpanID)
		}

	case model.EventTypeSpanUpdated:
		// an update for a span outside the prefix is simply dropped; that is
		// what lets a frozen prefix show spans as they were at that step
		if i, ok := bs.nodeIndex[event.SpanID]; ok && event.Delta != nil {
			event.Delta.Apply(&bs.nodes[i])
		}
	}
	bs.applied++
}

func (bs *buildState) snapshot() model.GraphData {
	nodes := make([]model.Span, len(bs.nodes))
	copy(nodes, bs.nodes)
	edges := make([]model.Edge, len(bs.edges))
	copy(edges, bs.edges)
	return model.GraphData{Nodes: nodes, Edges: edges}
}

// GraphBuilder derives GraphData from event sequences. Build is a pure
// function of the ordered events; LiveGraph keeps a per-trace incremental
// build so that appending one event costs O(1) instead of a rescan.
type GraphBuilder struct {
	mu   sync.Mutex
	live map[string]*buildState
}

func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		live: make(map[string]*buildState),
	}
}

// Build processes the events in order and returns the derived graph. Two
// calls over the same sequence yield identical GraphData.
func (gb *GraphBuilder) Build(events []model.Event) model.GraphData {
	bs := newBuildState()
	for _, event := range events {
		bs.apply(event)
	}
	return bs.snapshot()
}

// LiveGraph returns the graph for the full current log of a trace, applying
// only the events beyond the cached build. The version is the log version the
// events were read from; a cached build tagged with a different version was
// derived from a log that has since been swapped out, so it is discarded and
// the graph rebuilt from scratch. This holds even when the replacement log is
// at least as long as the cached build, where length alone cannot tell the
// two apart.
func (gb *GraphBuilder) LiveGraph(traceID string, version int, events []model.Event) model.GraphData {
	gb.mu.Lock()
	defer gb.mu.Unlock()

	bs, ok := gb.live[traceID]
	if !ok || bs.version != version || bs.applied > len(events) {
		bs = newBuildState()
		bs.version = version
		gb.live[traceID] = bs
	}
	for _, event := range events[bs.applied:] {
		bs.apply(event)
	}
	return bs.snapshot()
}

// Invalidate drops the cached live build for a trace. The next read rebuilds
// it from the log.
func (gb *GraphBuilder) Invalidate(traceID string) {
	gb.mu.Lock()
	defer gb.mu.Unlock()
	delete(gb.live, traceID)
}
