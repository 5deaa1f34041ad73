package service

import (
	"errors"
	"fmt"

	"github.com/agentlens/agentlens/pkg/cache"
	"github.com/agentlens/agentlens/pkg/trace/model"
	"go.uber.org/zap"
)

// TimeTravelService translates a time travel index into the graph to present.
// A nil index means live: the graph always reflects the latest applied event.
// An integer index freezes the rendered graph at a prefix of span creations
// while the log keeps growing underneath.
//
// All operations are read-only; scrubbing concurrent with live ingestion is
// safe because resolution only reads log prefixes, and every prefix carries
// the log version it was cut from so a mid-read resync cannot mix the old
// log's spans with the new log's.
type TimeTravelService struct {
	eventLog  *EventLog
	builder   *GraphBuilder
	snapshots cache.SnapshotCache
	logger    *zap.Logger
}

func NewTimeTravelService(
	eventLog *EventLog,
	builder *GraphBuilder,
	snapshots cache.SnapshotCache,
	logger *zap.Logger,
) *TimeTravelService {
	return &TimeTravelService{
		eventLog:  eventLog,
		builder:   builder,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Resolve returns the graph for the trace as of the given step index. The
// step unit is nodes added: span updates never advance it. A nil index, or an
// index at or beyond the last applied step, resolves to the live graph.
func (tts *TimeTravelService) Resolve(traceID string, index *int) (model.GraphData, error) {
	if index == nil {
		return tts.liveGraph(traceID)
	}
	step := *index
	if step < 0 {
		step = 0
	}

	events, version, err := tts.eventLog.StepSlice(traceID, step)
	if errors.Is(err, ErrStepOutOfRange) {
		return tts.liveGraph(traceID)
	}
	if err != nil {
		return model.GraphData{}, err
	}

	key := snapshotKey(traceID, version, step)
	if snapshot, err := tts.snapshots.Get(key); err == nil {
		return snapshot, nil
	}
	snapshot := tts.builder.Build(events)

	// only closed steps reach this point: the step before the next span
	// creation can no longer gain trailing updates, so its snapshot is
	// immutable for this log version
	if err := tts.snapshots.Put(key, snapshot); err != nil {
		tts.logger.Warn("Failed to cache graph snapshot", zap.String("trace_id", traceID), zap.Error(err))
	}
	return snapshot, nil
}

// Bounds returns the number of steps available for scrubbing, i.e. the node
// count of the live graph.
func (tts *TimeTravelService) Bounds(traceID string) (int, error) {
	return tts.eventLog.TotalSteps(traceID)
}

// Invalidate drops the cached live build for a trace after a full resync.
// Frozen snapshots need no explicit retirement: their cache keys carry the
// log version, which the resync already advanced.
func (tts *TimeTravelService) Invalidate(traceID string) {
	tts.builder.Invalidate(traceID)
}

func (tts *TimeTravelService) liveGraph(traceID string) (model.GraphData, error) {
	events, version, err := tts.eventLog.LiveView(traceID)
	if err != nil {
		return model.GraphData{}, err
	}
	return tts.builder.LiveGraph(traceID, version, events), nil
}

func snapshotKey(traceID string, version int, step int) string {
	return fmt.Sprintf("%s:%d:%d", traceID, version, step)
}
