package server

import (
	"context"
	"encoding/hex"
	"time"

	ingestModel "github.com/agentlens/agentlens/pkg/ingest/model"
	traceModel "github.com/agentlens/agentlens/pkg/trace/model"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.opentelemetry.io/proto/otlp/trace/v1"
	"go.uber.org/zap"
)

const (
	tokensAttribute = "gen_ai.usage.total_tokens"
	costAttribute   = "gen_ai.usage.cost"
)

// TraceServiceServerImpl bridges OTLP trace exports onto the ingestion
// queue. Spans are converted to span-created envelopes; a trace-created
// envelope is synthesized per trace id seen in the batch, and the adapter's
// dedup makes the repeats across batches a no-op.
type TraceServiceServerImpl struct {
	protoTrace.UnimplementedTraceServiceServer
	logger *zap.Logger
	sink   chan<- ingestModel.Envelope
}

func NewTraceServiceServerImpl(
	logger *zap.Logger,
	sink chan<- ingestModel.Envelope,
) TraceServiceServerImpl {
	logger.Info("Creating new TraceServiceServerImpl")
	return TraceServiceServerImpl{
		logger: logger,
		sink:   sink,
	}
}

func (tss TraceServiceServerImpl) Export(
	ctx context.Context,
	req *protoTrace.ExportTraceServiceRequest,
) (*protoTrace.ExportTraceServiceResponse, error) {
	for _, resourceSpan := range req.ResourceSpans {
		serviceName := getServiceName(resourceSpan)
		if serviceName == "Never Assigned" {
			tss.logger.Warn("Service name not found in resource span")
		}

		typedSpans := getTypedSpans(resourceSpan)
		// group because spans underneath the same resource span may not have
		// the same trace id
		groupedSpans := groupTypedSpansByTraceID(typedSpans)
		for traceID, spans := range groupedSpans {
			tss.sink <- ingestModel.Envelope{
				Type: ingestModel.TypeTraceCreated,
				Trace: &traceModel.Trace{
					TraceID:   traceID,
					StartTime: earliestStartTime(spans),
					Tags:      map[string]string{"service.name": serviceName},
				},
			}
			for i := range spans {
				tss.sink <- ingestModel.Envelope{
					Type: ingestModel.TypeSpanCreated,
					Span: &spans[i],
				}
			}
		}
	}

	return &protoTrace.ExportTraceServiceResponse{}, nil
}

func getServiceName(resourceSpan *v1.ResourceSpans) string {
	var serviceName = "Never Assigned"
	for _, attr := range resourceSpan.Resource.Attributes {
		if attr.Key == "service.name" {
			serviceName = attr.Value.GetStringValue()
		}
	}
	return serviceName
}

func getTypedSpans(resourceSpan *v1.ResourceSpans) []traceModel.Span {
	var typedSpans []traceModel.Span
	for _, libSpan := range resourceSpan.ScopeSpans {
		for _, span := range libSpan.Spans {
			typedSpans = append(typedSpans, getTypedSpan(span))
		}
	}
	return typedSpans
}

func getTypedSpan(span *v1.Span) traceModel.Span {
	startTime := time.Unix(0, int64(span.StartTimeUnixNano))
	endTime := time.Unix(0, int64(span.EndTimeUnixNano))
	spanID := hex.EncodeToString(span.SpanId)
	parentSpanID := hex.EncodeToString(span.ParentSpanId)
	traceID := hex.EncodeToString(span.TraceId)

	var tokens int
	var costUSD float64
	for _, attribute := range span.Attributes {
		switch attribute.Key {
		case tokensAttribute:
			tokens = int(attribute.Value.GetIntValue())
		case costAttribute:
			costUSD = attribute.Value.GetDoubleValue()
		}
	}

	return traceModel.Span{
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		TraceID:      traceID,
		Name:         span.Name,
		StartTime:    startTime,
		EndTime:      &endTime,
		CostUSD:      costUSD,
		Tokens:       tokens,
		Status:       getStatus(span),
	}
}

func getStatus(span *v1.Span) string {
	if span.Status != nil && span.Status.Code == v1.Status_STATUS_CODE_ERROR {
		return "error"
	}
	return "completed"
}

func earliestStartTime(spans []traceModel.Span) time.Time {
	earliest := spans[0].StartTime
	for _, span := range spans[1:] {
		if span.StartTime.Before(earliest) {
			earliest = span.StartTime
		}
	}
	return earliest
}

func groupTypedSpansByTraceID(spans []traceModel.Span) map[string][]traceModel.Span {
	groupedSpans := make(map[string][]traceModel.Span)
	for _, span := range spans {
		groupedSpans[span.TraceID] = append(groupedSpans[span.TraceID], span)
	}
	return groupedSpans
}
