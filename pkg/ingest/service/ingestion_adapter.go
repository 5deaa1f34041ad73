package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/agentlens/agentlens/pkg/event_bus"
	ingestModel "github.com/agentlens/agentlens/pkg/ingest/model"
	registryService "github.com/agentlens/agentlens/pkg/registry/service"
	traceModel "github.com/agentlens/agentlens/pkg/trace/model"
	traceService "github.com/agentlens/agentlens/pkg/trace/service"
	"go.uber.org/zap"
)

var (
	ErrMalformedEvent = errors.New("event is missing required fields")
	ErrUnknownTrace   = errors.New("event references an unknown trace")
)

const defaultPendingSpanLimit = 256

// IngestionAdapter is the single entry point through which externally
// delivered events reach the event log and the trace registry. It absorbs
// duplicate delivery, buffers spans that arrive before their trace-created,
// and keeps per-event failures local: one bad event never halts ingestion
// for the same or other traces.
type IngestionAdapter struct {
	eventLog *traceService.EventLog
	registry *registryService.TraceRegistry
	resolver *traceService.TimeTravelService
	bus      event_bus.DashboardEventBus[any, ingestModel.TraceUpdate]
	logger   *zap.Logger

	mu           sync.Mutex
	seen         map[string]map[string]struct{} // trace id -> applied event identities
	spanOwner    map[string]string              // span id -> trace id
	pending      map[string][]ingestModel.Envelope
	pendingLimit int
}

func NewIngestionAdapter(
	eventLog *traceService.EventLog,
	registry *registryService.TraceRegistry,
	resolver *traceService.TimeTravelService,
	bus event_bus.DashboardEventBus[any, ingestModel.TraceUpdate],
	pendingSpanLimit int,
	logger *zap.Logger,
) *IngestionAdapter {
	if pendingSpanLimit <= 0 {
		pendingSpanLimit = defaultPendingSpanLimit
	}
	return &IngestionAdapter{
		eventLog:     eventLog,
		registry:     registry,
		resolver:     resolver,
		bus:          bus,
		logger:       logger,
		seen:         make(map[string]map[string]struct{}),
		spanOwner:    make(map[string]string),
		pending:      make(map[string][]ingestModel.Envelope),
		pendingLimit: pendingSpanLimit,
	}
}

// Start drains the inbound queue on a single goroutine until the context is
// cancelled or the channel closes, preserving arrival order as the canonical
// application order. Apply errors are surfaced in the log, never fatal.
func (ia *IngestionAdapter) Start(ctx context.Context, envelopes <-chan ingestModel.Envelope) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case envelope, ok := <-envelopes:
				if !ok {
					return
				}
				if err := ia.Apply(envelope); err != nil {
					ia.logger.Warn("Dropped inbound event", zap.String("type", envelope.Type), zap.Error(err))
				}
			}
		}
	}()
}

// Apply validates and applies one envelope. Duplicates are silently
// absorbed. Spans for a not-yet-known trace are buffered until the matching
// trace-created arrives; past the buffering limit they are dropped and
// surfaced as an unknown trace condition.
func (ia *IngestionAdapter) Apply(envelope ingestModel.Envelope) error {
	switch envelope.Type {
	case ingestModel.TypeTraceCreated:
		if envelope.Trace == nil || envelope.Trace.TraceID == "" {
			return fmt.Errorf("%w: trace-created without trace payload", ErrMalformedEvent)
		}
		return ia.applyTraceCreated(envelope)
	case ingestModel.TypeSpanCreated:
		if envelope.Span == nil || envelope.Span.SpanID == "" || envelope.Span.TraceID == "" {
			return fmt.Errorf("%w: span-created without span identity", ErrMalformedEvent)
		}
		return ia.applySpanCreated(envelope)
	case ingestModel.TypeSpanUpdated:
		if envelope.SpanID == "" || envelope.Delta == nil {
			return fmt.Errorf("%w: span-updated without span id or delta", ErrMalformedEvent)
		}
		return ia.applySpanUpdated(envelope)
	case ingestModel.TypeResync:
		if envelope.TraceID == "" {
			return fmt.Errorf("%w: resync without trace id", ErrMalformedEvent)
		}
		return ia.applyResync(envelope)
	default:
		return fmt.Errorf("%w: unrecognized event type %q", ErrMalformedEvent, envelope.Type)
	}
}

func (ia *IngestionAdapter) applyTraceCreated(envelope ingestModel.Envelope) error {
	traceID := envelope.Trace.TraceID
	identity := envelopeIdentity(envelope)

	ia.mu.Lock()
	if ia.isSeenLocked(traceID, identity) {
		ia.mu.Unlock()
		return nil
	}
	event := traceModel.Event{
		ID:    identity,
		Type:  traceModel.EventTypeTraceCreated,
		Trace: envelope.Trace,
	}
	if _, err := ia.eventLog.Append(traceID, event); err != nil {
		ia.mu.Unlock()
		return err
	}
	ia.registry.OnTraceCreated(*envelope.Trace)
	ia.markSeenLocked(traceID, identity)
	buffered := ia.pending[traceID]
	delete(ia.pending, traceID)
	ia.mu.Unlock()

	// flush spans that arrived ahead of their trace, in original relative order
	for _, held := range buffered {
		if err := ia.Apply(held); err != nil {
			ia.logger.Warn("Failed to flush buffered event",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		}
	}
	ia.publishUpdate(traceID)
	return nil
}

func (ia *IngestionAdapter) applySpanCreated(envelope ingestModel.Envelope) error {
	span := envelope.Span
	traceID := span.TraceID
	identity := envelopeIdentity(envelope)

	ia.mu.Lock()
	if ia.isSeenLocked(traceID, identity) {
		ia.mu.Unlock()
		return nil
	}
	if !ia.eventLog.Exists(traceID) {
		err := ia.bufferLocked(traceID, envelope)
		ia.mu.Unlock()
		return err
	}
	event := traceModel.Event{
		ID:   identity,
		Type: traceModel.EventTypeSpanCreated,
		Span: span,
	}
	if _, err := ia.eventLog.Append(traceID, event); err != nil {
		ia.mu.Unlock()
		return err
	}
	ia.registry.OnSpanCreated(*span)
	ia.spanOwner[span.SpanID] = traceID
	ia.markSeenLocked(traceID, identity)
	ia.mu.Unlock()

	ia.publishUpdate(traceID)
	return nil
}

func (ia *IngestionAdapter) applySpanUpdated(envelope ingestModel.Envelope) error {
	identity := envelopeIdentity(envelope)

	ia.mu.Lock()
	traceID, known := ia.spanOwner[envelope.SpanID]
	if !known {
		// the span may itself be waiting behind its trace-created; keep the
		// update in the same buffer so relative order survives the flush
		if envelope.TraceID != "" && !ia.eventLog.Exists(envelope.TraceID) {
			err := ia.bufferLocked(envelope.TraceID, envelope)
			ia.mu.Unlock()
			return err
		}
		ia.mu.Unlock()
		ia.logger.Warn("Update for a span that was never created",
			zap.String("span_id", envelope.SpanID),
		)
		return fmt.Errorf("%w: update for unknown span %s", ErrUnknownTrace, envelope.SpanID)
	}
	if ia.isSeenLocked(traceID, identity) {
		ia.mu.Unlock()
		return nil
	}
	event := traceModel.Event{
		ID:     identity,
		Type:   traceModel.EventTypeSpanUpdated,
		SpanID: envelope.SpanID,
		Delta:  envelope.Delta,
	}
	if _, err := ia.eventLog.Append(traceID, event); err != nil {
		ia.mu.Unlock()
		return err
	}
	ia.registry.OnSpanUpdated(envelope.SpanID, *envelope.Delta)
	ia.markSeenLocked(traceID, identity)
	ia.mu.Unlock()

	ia.publishUpdate(traceID)
	return nil
}

// applyResync replaces the trace's log entirely, an atomic swap triggered by
// an explicit transport signal. Derived state (registry aggregates, graph
// caches, dedup identities) is rebuilt from the replacement sequence.
func (ia *IngestionAdapter) applyResync(envelope ingestModel.Envelope) error {
	traceID := envelope.TraceID
	events := make([]traceModel.Event, 0, len(envelope.Events))
	identities := make(map[string]struct{}, len(envelope.Events))
	owners := make([]string, 0, len(envelope.Events))
	for _, inner := range envelope.Events {
		event, err := toEvent(inner)
		if err != nil {
			ia.logger.Warn("Skipping malformed event in resync payload",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
			continue
		}
		events = append(events, event)
		identities[event.ID] = struct{}{}
		if event.Type == traceModel.EventTypeSpanCreated {
			owners = append(owners, event.Span.SpanID)
		}
	}

	ia.mu.Lock()
	ia.eventLog.Replace(traceID, events)
	for spanID, owner := range ia.spanOwner {
		if owner == traceID {
			delete(ia.spanOwner, spanID)
		}
	}
	for _, spanID := range owners {
		ia.spanOwner[spanID] = traceID
	}
	ia.seen[traceID] = identities
	delete(ia.pending, traceID)
	ia.mu.Unlock()

	ia.registry.Rebuild(traceID, events)
	ia.resolver.Invalidate(traceID)
	ia.publishUpdate(traceID)
	return nil
}

func (ia *IngestionAdapter) bufferLocked(traceID string, envelope ingestModel.Envelope) error {
	if len(ia.pending[traceID]) >= ia.pendingLimit {
		ia.logger.Warn("Buffer limit exceeded for spans awaiting their trace",
			zap.String("trace_id", traceID),
			zap.Int("limit", ia.pendingLimit),
		)
		return fmt.Errorf("%w: buffer limit exceeded for trace %s", ErrUnknownTrace, traceID)
	}
	ia.pending[traceID] = append(ia.pending[traceID], envelope)
	return nil
}

func (ia *IngestionAdapter) isSeenLocked(traceID string, identity string) bool {
	identities, ok := ia.seen[traceID]
	if !ok {
		return false
	}
	_, dup := identities[identity]
	return dup
}

func (ia *IngestionAdapter) markSeenLocked(traceID string, identity string) {
	identities, ok := ia.seen[traceID]
	if !ok {
		identities = make(map[string]struct{})
		ia.seen[traceID] = identities
	}
	identities[identity] = struct{}{}
}

func (ia *IngestionAdapter) publishUpdate(traceID string) {
	totalSteps, err := ia.eventLog.TotalSteps(traceID)
	if err != nil {
		return
	}
	trace, err := ia.registry.Get(traceID)
	if err != nil {
		return
	}
	err = ia.bus.Publish(ingestModel.TraceUpdatedTopic, ingestModel.TraceUpdate{
		TraceID:    traceID,
		TotalSteps: totalSteps,
		SpanCount:  trace.SpanCount,
	})
	if err != nil {
		ia.logger.Error("Failed to publish trace update", zap.String("trace_id", traceID), zap.Error(err))
	}
}

// envelopeIdentity derives the identity duplicates are detected by: the
// transport's event id when present, otherwise a deterministic key from the
// event type and its subject.
func envelopeIdentity(envelope ingestModel.Envelope) string {
	if envelope.EventID != "" {
		return envelope.EventID
	}
	switch envelope.Type {
	case ingestModel.TypeTraceCreated:
		return "trace-created:" + envelope.Trace.TraceID
	case ingestModel.TypeSpanCreated:
		return "span-created:" + envelope.Span.SpanID
	case ingestModel.TypeSpanUpdated:
		fingerprint, _ := json.Marshal(envelope.Delta)
		return "span-updated:" + envelope.SpanID + ":" + string(fingerprint)
	}
	return envelope.Type
}

func toEvent(envelope ingestModel.Envelope) (traceModel.Event, error) {
	identity := envelopeIdentity(envelope)
	switch envelope.Type {
	case ingestModel.TypeTraceCreated:
		if envelope.Trace == nil || envelope.Trace.TraceID == "" {
			return traceModel.Event{}, fmt.Errorf("%w: trace-created without trace payload", ErrMalformedEvent)
		}
		return traceModel.Event{ID: identity, Type: traceModel.EventTypeTraceCreated, Trace: envelope.Trace}, nil
	case ingestModel.TypeSpanCreated:
		if envelope.Span == nil || envelope.Span.SpanID == "" {
			return traceModel.Event{}, fmt.Errorf("%w: span-created without span identity", ErrMalformedEvent)
		}
		return traceModel.Event{ID: identity, Type: traceModel.EventTypeSpanCreated, Span: envelope.Span}, nil
	case ingestModel.TypeSpanUpdated:
		if envelope.SpanID == "" || envelope.Delta == nil {
			return traceModel.Event{}, fmt.Errorf("%w: span-updated without span id or delta", ErrMalformedEvent)
		}
		return traceModel.Event{
			ID:     identity,
			Type:   traceModel.EventTypeSpanUpdated,
			SpanID: envelope.SpanID,
			Delta:  envelope.Delta,
		}, nil
	}
	return traceModel.Event{}, fmt.Errorf("%w: unrecognized event type %q", ErrMalformedEvent, envelope.Type)
}
