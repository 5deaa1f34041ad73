package service

import (
	"testing"

	"github.com/agentlens/agentlens/pkg/trace/model"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGraphBuilder_Build(t *testing.T) {
	t.Run("Builds nodes in sequence order with parent child edges", func(t *testing.T) {
		gb := NewGraphBuilder()
		graph := gb.Build([]model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "s1", ""),
			spanCreatedEvent("t1", "s2", "s1"),
			spanCreatedEvent("t1", "s3", "s1"),
		})
		assert.Equal(t, 3, len(graph.Nodes))
		assert.Equal(t, "s1", graph.Nodes[0].SpanID)
		assert.Equal(t, []model.Edge{
			{ParentID: "s1", ChildID: "s2"},
			{ParentID: "s1", ChildID: "s3"},
		}, graph.Edges)
	})

	t.Run("Is deterministic across repeated builds of the same prefix", func(t *testing.T) {
		gb := NewGraphBuilder()
		events := []model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "s1", ""),
			spanCreatedEvent("t1", "s2", "s1"),
			spanUpdatedEvent("s2", completedDelta()),
		}
		first := gb.Build(events)
		second := gb.Build(events)
		assert.Equal(t, first, second)
	})

	t.Run("Defers the edge when the child arrives before its parent", func(t *testing.T) {
		gb := NewGraphBuilder()
		childFirst := gb.Build([]model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "s2", "s1"),
			spanCreatedEvent("t1", "s1", ""),
		})
		assert.Equal(t, 2, len(childFirst.Nodes))
		assert.Equal(t, []model.Edge{{ParentID: "s1", ChildID: "s2"}}, childFirst.Edges)

		parentFirst := gb.Build([]model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "s1", ""),
			spanCreatedEvent("t1", "s2", "s1"),
		})
		assert.ElementsMatch(t, parentFirst.Edges, childFirst.Edges)
		assert.ElementsMatch(t, nodeIDs(parentFirst), nodeIDs(childFirst))
	})

	t.Run("Applies updates to the node in place", func(t *testing.T) {
		gb := NewGraphBuilder()
		graph := gb.Build([]model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "s1", ""),
			spanUpdatedEvent("s1", completedDelta()),
		})
		assert.Equal(t, 1, len(graph.Nodes))
		assert.Equal(t, "completed", graph.Nodes[0].Status)
		assert.NotNil(t, graph.Nodes[0].EndTime)
	})

	t.Run("Drops updates for spans outside the prefix", func(t *testing.T) {
		gb := NewGraphBuilder()
		graph := gb.Build([]model.Event{
			traceCreatedEvent("t1"),
			spanUpdatedEvent("s9", completedDelta()),
		})
		assert.Equal(t, 0, len(graph.Nodes))
		assert.Equal(t, 0, len(graph.Edges))
	})

	t.Run("Ignores a duplicate span creation", func(t *testing.T) {
		gb := NewGraphBuilder()
		graph := gb.Build([]model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "s1", ""),
			spanCreatedEvent("t1", "s1", ""),
		})
		assert.Equal(t, 1, len(graph.Nodes))
	})
}

func TestGraphBuilder_LiveGraph(t *testing.T) {
	t.Run("Matches a full rebuild after incremental appends", func(t *testing.T) {
		el := NewEventLog(zap.NewNop())
		gb := NewGraphBuilder()

		el.Append("t1", traceCreatedEvent("t1"))
		el.Append("t1", spanCreatedEvent("t1", "s1", ""))
		events, version, _ := el.LiveView("t1")
		first := gb.LiveGraph("t1", version, events)
		assert.Equal(t, 1, len(first.Nodes))

		el.Append("t1", spanCreatedEvent("t1", "s2", "s1"))
		el.Append("t1", spanUpdatedEvent("s2", completedDelta()))
		events, version, _ = el.LiveView("t1")
		incremental := gb.LiveGraph("t1", version, events)

		fresh := NewGraphBuilder().Build(events)
		assert.Equal(t, fresh, incremental)
	})

	t.Run("Earlier snapshots are not mutated by later events", func(t *testing.T) {
		el := NewEventLog(zap.NewNop())
		gb := NewGraphBuilder()

		el.Append("t1", traceCreatedEvent("t1"))
		el.Append("t1", spanCreatedEvent("t1", "s1", ""))
		events, version, _ := el.LiveView("t1")
		before := gb.LiveGraph("t1", version, events)

		el.Append("t1", spanUpdatedEvent("s1", completedDelta()))
		events, version, _ = el.LiveView("t1")
		gb.LiveGraph("t1", version, events)

		assert.Equal(t, "running", before.Nodes[0].Status)
	})

	t.Run("Rebuilds from scratch after invalidation", func(t *testing.T) {
		el := NewEventLog(zap.NewNop())
		gb := NewGraphBuilder()

		el.Append("t1", traceCreatedEvent("t1"))
		el.Append("t1", spanCreatedEvent("t1", "s1", ""))
		events, version, _ := el.LiveView("t1")
		gb.LiveGraph("t1", version, events)

		el.Replace("t1", []model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "r1", ""),
		})
		gb.Invalidate("t1")

		events, version, _ = el.LiveView("t1")
		graph := gb.LiveGraph("t1", version, events)
		assert.Equal(t, 1, len(graph.Nodes))
		assert.Equal(t, "r1", graph.Nodes[0].SpanID)
	})

	t.Run("Discards a cached build whose log was replaced by a longer one", func(t *testing.T) {
		el := NewEventLog(zap.NewNop())
		gb := NewGraphBuilder()

		el.Append("t1", traceCreatedEvent("t1"))
		el.Append("t1", spanCreatedEvent("t1", "s1", ""))
		el.Append("t1", spanCreatedEvent("t1", "s2", "s1"))
		events, version, _ := el.LiveView("t1")
		gb.LiveGraph("t1", version, events)

		el.Replace("t1", []model.Event{
			traceCreatedEvent("t1"),
			spanCreatedEvent("t1", "r1", ""),
			spanCreatedEvent("t1", "r2", "r1"),
			spanCreatedEvent("t1", "r3", "r2"),
			spanCreatedEvent("t1", "r4", "r3"),
		})

		// no invalidation in between: the version mismatch alone must keep
		// the old log's spans out of the rebuilt graph
		events, version, _ = el.LiveView("t1")
		graph := gb.LiveGraph("t1", version, events)
		assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, nodeIDs(graph))
	})
}

func nodeIDs(graph model.GraphData) []string {
	ids := make([]string, len(graph.Nodes))
	for i, node := range graph.Nodes {
		ids[i] = node.SpanID
	}
	return ids
}
