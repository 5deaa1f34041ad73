package service

import (
	"errors"
	"sync"
	"time"

	"github.com/agentlens/agentlens/pkg/trace/model"
	"go.uber.org/zap"
)

var ErrTraceNotFound = errors.New("trace not found in the registry")

// spanContribution remembers what a span currently adds to its trace's
// aggregates, so an update can be applied as a diff instead of a rescan.
type spanContribution struct {
	traceID string
	costUSD float64
	tokens  int
	endTime *time.Time
}

// TraceRegistry maintains the set of known traces and their live aggregate
// summary, independent of any single trace's detailed graph. New traces are
// listed most recent first. The registry is only ever driven by already
// deduplicated events, so its aggregates stay idempotent-safe under
// duplicate delivery.
type TraceRegistry struct {
	mu     sync.RWMutex
	traces map[string]*model.Trace
	order  []string // trace ids, most recent first
	spans  map[string]spanContribution
	logger *zap.Logger
}

func NewTraceRegistry(logger *zap.Logger) *TraceRegistry {
	return &TraceRegistry{
		traces: make(map[string]*model.Trace),
		spans:  make(map[string]spanContribution),
		logger: logger,
	}
}

// OnTraceCreated inserts a new trace with zeroed aggregates. An already
// known trace is left untouched.
func (tr *TraceRegistry) OnTraceCreated(trace model.Trace) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.traces[trace.TraceID]; ok {
		return
	}
	tr.traces[trace.TraceID] = freshTrace(trace)
	tr.order = append([]string{trace.TraceID}, tr.order...)
}

func (tr *TraceRegistry) OnSpanCreated(span model.Span) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	trace, ok := tr.traces[span.TraceID]
	if !ok {
		tr.logger.Warn("Span created for a trace missing from the registry",
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID),
		)
		return
	}
	tr.spans[span.SpanID] = addSpan(trace, span)
}

func (tr *TraceRegistry) OnSpanUpdated(spanID string, delta model.SpanDelta) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	contribution, ok := tr.spans[spanID]
	if !ok {
		tr.logger.Warn("Span update for a span missing from the registry", zap.String("span_id", spanID))
		return
	}
	trace := tr.traces[contribution.traceID]
	tr.spans[spanID] = applyDelta(trace, contribution, delta)
}

// UpdateTraceTags optimistically replaces the trace's tag mapping. The
// registry does not roll back on an asynchronous backend failure; the caller
// reverts or re-fetches.
func (tr *TraceRegistry) UpdateTraceTags(traceID string, tags map[string]string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	trace, ok := tr.traces[traceID]
	if !ok {
		return ErrTraceNotFound
	}
	if tags == nil {
		tags = make(map[string]string)
	}
	trace.Tags = tags
	return nil
}

// Rebuild recomputes the trace's aggregates from a replayed event sequence,
// used after a full resync replaced the trace's log. The replay happens off
// to the side and the result is swapped in under one lock acquisition, so a
// concurrent reader sees either the old aggregates or the new ones, never a
// missing or half-replayed trace. Tags survive the rebuild; they are an
// edit-path concern, not a derived aggregate. A trace that was already listed
// keeps its list position.
func (tr *TraceRegistry) Rebuild(traceID string, events []model.Event) {
	rebuilt, contributions := replayEvents(events)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	existing, known := tr.traces[traceID]
	for spanID, contribution := range tr.spans {
		if contribution.traceID == traceID {
			delete(tr.spans, spanID)
		}
	}
	if rebuilt == nil {
		delete(tr.traces, traceID)
		if known {
			tr.removeFromOrder(traceID)
		}
		return
	}
	for spanID, contribution := range contributions {
		tr.spans[spanID] = contribution
	}
	if known && existing.Tags != nil {
		rebuilt.Tags = existing.Tags
	}
	tr.traces[traceID] = rebuilt
	if !known {
		tr.order = append([]string{traceID}, tr.order...)
	}
}

// replayEvents folds an event sequence into a fresh trace and its span
// contributions without touching shared state. Spans preceding the
// trace-created are skipped, mirroring how the live path never admits them.
func replayEvents(events []model.Event) (*model.Trace, map[string]spanContribution) {
	var trace *model.Trace
	contributions := make(map[string]spanContribution)
	for _, event := range events {
		switch event.Type {
		case model.EventTypeTraceCreated:
			if event.Trace != nil && trace == nil {
				trace = freshTrace(*event.Trace)
			}
		case model.EventTypeSpanCreated:
			if event.Span == nil || trace == nil {
				continue
			}
			if _, ok := contributions[event.Span.SpanID]; ok {
				continue
			}
			contributions[event.Span.SpanID] = addSpan(trace, *event.Span)
		case model.EventTypeSpanUpdated:
			contribution, ok := contributions[event.SpanID]
			if !ok || event.Delta == nil {
				continue
			}
			contributions[event.SpanID] = applyDelta(trace, contribution, *event.Delta)
		}
	}
	return trace, contributions
}

// List returns a snapshot of all known traces, most recent first. Open
// traces report their running elapsed duration.
func (tr *TraceRegistry) List() []model.Trace {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	traces := make([]model.Trace, 0, len(tr.order))
	for _, traceID := range tr.order {
		traces = append(traces, tr.snapshotLocked(tr.traces[traceID]))
	}
	return traces
}

func (tr *TraceRegistry) Get(traceID string) (model.Trace, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	trace, ok := tr.traces[traceID]
	if !ok {
		return model.Trace{}, ErrTraceNotFound
	}
	return tr.snapshotLocked(trace), nil
}

func (tr *TraceRegistry) snapshotLocked(trace *model.Trace) model.Trace {
	snapshot := *trace
	snapshot.Tags = make(map[string]string, len(trace.Tags))
	for k, v := range trace.Tags {
		snapshot.Tags[k] = v
	}
	if snapshot.DurationMs == nil {
		elapsed := time.Since(snapshot.StartTime).Milliseconds()
		snapshot.DurationMs = &elapsed
	}
	return snapshot
}

func freshTrace(trace model.Trace) *model.Trace {
	inserted := trace
	inserted.SpanCount = 0
	inserted.TotalCostUSD = 0
	inserted.TotalTokens = 0
	inserted.EndTime = nil
	inserted.DurationMs = nil
	if inserted.Tags == nil {
		inserted.Tags = make(map[string]string)
	}
	return &inserted
}

func addSpan(trace *model.Trace, span model.Span) spanContribution {
	trace.SpanCount++
	trace.TotalCostUSD += span.CostUSD
	trace.TotalTokens += span.Tokens
	extendEndTime(trace, span.EndTime)
	return spanContribution{
		traceID: span.TraceID,
		costUSD: span.CostUSD,
		tokens:  span.Tokens,
		endTime: span.EndTime,
	}
}

func applyDelta(trace *model.Trace, contribution spanContribution, delta model.SpanDelta) spanContribution {
	if delta.CostUSD != nil {
		trace.TotalCostUSD += *delta.CostUSD - contribution.costUSD
		contribution.costUSD = *delta.CostUSD
	}
	if delta.Tokens != nil {
		trace.TotalTokens += *delta.Tokens - contribution.tokens
		contribution.tokens = *delta.Tokens
	}
	if delta.EndTime != nil {
		contribution.endTime = delta.EndTime
		extendEndTime(trace, delta.EndTime)
	}
	return contribution
}

func extendEndTime(trace *model.Trace, endTime *time.Time) {
	if endTime == nil {
		return
	}
	if trace.EndTime == nil || endTime.After(*trace.EndTime) {
		end := *endTime
		trace.EndTime = &end
		duration := end.Sub(trace.StartTime).Milliseconds()
		trace.DurationMs = &duration
	}
}

func (tr *TraceRegistry) removeFromOrder(traceID string) {
	for i, id := range tr.order {
		if id == traceID {
			tr.order = append(tr.order[:i], tr.order[i+1:]...)
			return
		}
	}
}
