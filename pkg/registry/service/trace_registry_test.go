package service

import (
	"testing"
	"time"

	"github.com/agentlens/agentlens/pkg/trace/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var registryBaseTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestTraceRegistry_OnTraceCreated(t *testing.T) {
	t.Run("Inserts a trace with zeroed aggregates", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime, SpanCount: 99})

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, 0, trace.SpanCount)
		assert.Equal(t, float64(0), trace.TotalCostUSD)
		assert.Equal(t, 0, trace.TotalTokens)
		assert.Nil(t, trace.EndTime)
	})

	t.Run("Lists new traces most recent first", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.OnTraceCreated(model.Trace{TraceID: "t2", StartTime: registryBaseTime.Add(time.Second)})

		traces := tr.List()
		assert.Equal(t, 2, len(traces))
		assert.Equal(t, "t2", traces[0].TraceID)
		assert.Equal(t, "t1", traces[1].TraceID)
	})

	t.Run("Leaves an already known trace untouched", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.OnSpanCreated(registrySpan("t1", "s1", 0.5, 100))
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, 1, trace.SpanCount)
	})
}

func TestTraceRegistry_Aggregates(t *testing.T) {
	t.Run("Accumulates span count cost and tokens", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.OnSpanCreated(registrySpan("t1", "s1", 0.25, 120))
		tr.OnSpanCreated(registrySpan("t1", "s2", 0.75, 80))

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, 2, trace.SpanCount)
		assert.Equal(t, 1.0, trace.TotalCostUSD)
		assert.Equal(t, 200, trace.TotalTokens)
	})

	t.Run("Applies updates as diffs not additions", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.OnSpanCreated(registrySpan("t1", "s1", 0.25, 120))

		cost := 0.5
		tokens := 150
		tr.OnSpanUpdated("s1", model.SpanDelta{CostUSD: &cost, Tokens: &tokens})

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, 1, trace.SpanCount)
		assert.Equal(t, 0.5, trace.TotalCostUSD)
		assert.Equal(t, 150, trace.TotalTokens)
	})

	t.Run("Tracks the latest span end time and derives duration", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.OnSpanCreated(registrySpan("t1", "s1", 0, 0))

		earlier := registryBaseTime.Add(2 * time.Second)
		later := registryBaseTime.Add(8 * time.Second)
		tr.OnSpanUpdated("s1", model.SpanDelta{EndTime: &later})
		tr.OnSpanUpdated("s1", model.SpanDelta{EndTime: &earlier})

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, later, *trace.EndTime)
		assert.Equal(t, int64(8000), *trace.DurationMs)
	})

	t.Run("Reports a running elapsed duration for open traces", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: time.Now().Add(-time.Second)})

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.NotNil(t, trace.DurationMs)
		assert.Greater(t, *trace.DurationMs, int64(0))
	})

	t.Run("Ignores events for unknown traces and spans", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnSpanCreated(registrySpan("missing", "s1", 1, 1))
		status := "completed"
		tr.OnSpanUpdated("ghost", model.SpanDelta{Status: &status})
		assert.Equal(t, 0, len(tr.List()))
	})
}

func TestTraceRegistry_UpdateTraceTags(t *testing.T) {
	t.Run("Replaces the tag mapping immediately", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime, Tags: map[string]string{"env": "dev"}})

		err := tr.UpdateTraceTags("t1", map[string]string{"env": "prod", "team": "agents"})
		assert.Nil(t, err)

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, map[string]string{"env": "prod", "team": "agents"}, trace.Tags)
	})

	t.Run("Returns an error for an unknown trace", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		err := tr.UpdateTraceTags("missing", map[string]string{})
		assert.Equal(t, ErrTraceNotFound, err)
	})
}

func TestTraceRegistry_Rebuild(t *testing.T) {
	t.Run("Recomputes aggregates from a replayed sequence", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.OnSpanCreated(registrySpan("t1", "s1", 0.5, 100))
		tr.OnSpanCreated(registrySpan("t1", "s2", 0.5, 100))

		span := registrySpan("t1", "r1", 0.25, 40)
		tr.Rebuild("t1", []model.Event{
			{Type: model.EventTypeTraceCreated, Trace: &model.Trace{TraceID: "t1", StartTime: registryBaseTime}},
			{Type: model.EventTypeSpanCreated, Span: &span},
		})

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, 1, trace.SpanCount)
		assert.Equal(t, 0.25, trace.TotalCostUSD)
		assert.Equal(t, 40, trace.TotalTokens)
	})

	t.Run("Preserves tags across the rebuild", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.UpdateTraceTags("t1", map[string]string{"env": "prod"})

		tr.Rebuild("t1", []model.Event{
			{Type: model.EventTypeTraceCreated, Trace: &model.Trace{TraceID: "t1", StartTime: registryBaseTime}},
		})

		trace, err := tr.Get("t1")
		assert.Nil(t, err)
		assert.Equal(t, "prod", trace.Tags["env"])
	})

	t.Run("Concurrent readers never observe a missing or half-replayed trace", func(t *testing.T) {
		tr := NewTraceRegistry(zap.NewNop())
		tr.OnTraceCreated(model.Trace{TraceID: "t1", StartTime: registryBaseTime})
		tr.OnSpanCreated(registrySpan("t1", "s1", 1.0, 100))
		tr.OnSpanCreated(registrySpan("t1", "s2", 1.0, 100))

		span := registrySpan("t1", "r1", 5.0, 500)
		replacement := []model.Event{
			{Type: model.EventTypeTraceCreated, Trace: &model.Trace{TraceID: "t1", StartTime: registryBaseTime}},
			{Type: model.EventTypeSpanCreated, Span: &span},
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 200; i++ {
				tr.Rebuild("t1", replacement)
			}
		}()

		for rebuilding := true; rebuilding; {
			select {
			case <-done:
				rebuilding = false
			default:
			}
			trace, err := tr.Get("t1")
			require.Nil(t, err)
			switch trace.SpanCount {
			case 2:
				assert.Equal(t, 2.0, trace.TotalCostUSD)
			case 1:
				assert.Equal(t, 5.0, trace.TotalCostUSD)
			default:
				t.Fatalf("observed a half-replayed trace with %d spans", trace.SpanCount)
			}
		}
	})
}

func registrySpan(traceID string, spanID string, costUSD float64, tokens int) model.Span {
	return model.Span{
		SpanID:    spanID,
		TraceID:   traceID,
		Name:      "step " + spanID,
		StartTime: registryBaseTime,
		CostUSD:   costUSD,
		Tokens:    tokens,
		Status:    "running",
	}
}
