package service

import (
	"errors"
	"sync"

	"github.com/agentlens/agentlens/pkg/trace/model"
	"go.uber.org/zap"
)

var (
	ErrUnknownTrace  = errors.New("event references a trace with no event log")
	ErrTraceNotFound = errors.New("trace not found in the event log")
)

type traceLog struct {
	events []model.Event
	// positions of span-created events, in order. The time travel step unit
	// is nodes added, so these are the step boundaries.
	creations []int
	// bumped by Replace. Derived state tagged with an older version was built
	// from a log that no longer exists and must be rebuilt, not extended.
	version int
}

// EventLog holds, per trace, the append-only ordered sequence of applied
// lifecycle events. Sequence positions are assigned at apply time and are
// contiguous integers starting at 0 for each trace.
type EventLog struct {
	mu     sync.RWMutex
	logs   map[string]*traceLog
	logger *zap.Logger
}

func NewEventLog(logger *zap.Logger) *EventLog {
	return &EventLog{
		logs:   make(map[string]*traceLog),
		logger: logger,
	}
}

// Append assigns the event the next sequence position for the trace, appends
// it and returns the position. A trace-created event opens the trace's log;
// any other event for an unopened trace is rejected with ErrUnknownTrace.
func (el *EventLog) Append(traceID string, event model.Event) (int, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	tl, ok := el.logs[traceID]
	if !ok {
		if event.Type != model.EventTypeTraceCreated {
			return 0, ErrUnknownTrace
		}
		tl = &traceLog{}
		el.logs[traceID] = tl
	}

	event.Position = len(tl.events)
	if event.Type == model.EventTypeSpanCreated {
		tl.creations = append(tl.creations, event.Position)
	}
	tl.events = append(tl.events, event)
	return event.Position, nil
}

// Slice returns the prefix of the trace's log up to and including
// uptoInclusive; nil returns the full log. The returned slice is a view over
// the backing array, not a copy, so obtaining it is O(1).
func (el *EventLog) Slice(traceID string, uptoInclusive *int) ([]model.Event, error) {
	el.mu.RLock()
	defer el.mu.RUnlock()

	tl, ok := el.logs[traceID]
	if !ok {
		return nil, ErrTraceNotFound
	}
	if uptoInclusive == nil {
		return tl.events, nil
	}
	upto := *uptoInclusive
	if upto < 0 {
		upto = 0
	}
	if upto >= len(tl.events) {
		return tl.events, nil
	}
	return tl.events[:upto+1], nil
}

// Replace atomically swaps the trace's entire log, reassigning contiguous
// positions from 0. Used for transport-level full resyncs; a reconnect alone
// never clears a log.
func (el *EventLog) Replace(traceID string, events []model.Event) {
	tl := &traceLog{events: make([]model.Event, len(events))}
	for i, event := range events {
		event.Position = i
		if event.Type == model.EventTypeSpanCreated {
			tl.creations = append(tl.creations, i)
		}
		tl.events[i] = event
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	if old, ok := el.logs[traceID]; ok {
		tl.version = old.version + 1
	}
	el.logs[traceID] = tl
	el.logger.Info("Replaced trace event log",
		zap.String("trace_id", traceID),
		zap.Int("events", len(tl.events)),
		zap.Int("version", tl.version),
	)
}

func (el *EventLog) Exists(traceID string) bool {
	el.mu.RLock()
	defer el.mu.RUnlock()
	_, ok := el.logs[traceID]
	return ok
}

func (el *EventLog) Length(traceID string) int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if tl, ok := el.logs[traceID]; ok {
		return len(tl.events)
	}
	return 0
}

// TotalSteps returns the number of span-created events applied to the trace,
// which is the node count of the live graph.
func (el *EventLog) TotalSteps(traceID string) (int, error) {
	el.mu.RLock()
	defer el.mu.RUnlock()
	tl, ok := el.logs[traceID]
	if !ok {
		return 0, ErrTraceNotFound
	}
	return len(tl.creations), nil
}

// LiveView returns the full current log together with its version in one
// consistent read, so a caller extending a cached derivation can tell whether
// the log it extends is still the log it derived from.
func (el *EventLog) LiveView(traceID string) ([]model.Event, int, error) {
	el.mu.RLock()
	defer el.mu.RUnlock()
	tl, ok := el.logs[traceID]
	if !ok {
		return nil, 0, ErrTraceNotFound
	}
	return tl.events, tl.version, nil
}

// StepSlice returns, in one consistent read, the log prefix for a closed step
// together with the version of the log it was cut from. Every event before
// the next span creation belongs to the step, so trailing updates stay with
// the span they mutate. The open last step has no sealed prefix yet and
// reports ErrStepOutOfRange, as does any step beyond the applied creations;
// both resolve live instead.
func (el *EventLog) StepSlice(traceID string, step int) ([]model.Event, int, error) {
	el.mu.RLock()
	defer el.mu.RUnlock()
	tl, ok := el.logs[traceID]
	if !ok {
		return nil, 0, ErrTraceNotFound
	}
	if step < 0 || step+1 >= len(tl.creations) {
		return nil, 0, ErrStepOutOfRange
	}
	return tl.events[:tl.creations[step+1]], tl.version, nil
}

var ErrStepOutOfRange = errors.New("step index outside the trace's applied span creations")
