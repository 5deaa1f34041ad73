package main

import (
	"context"
	"net"
	"net/http"

	"github.com/agentlens/agentlens/internal/config"
	"github.com/agentlens/agentlens/internal/dashboard/router"
	traceServer "github.com/agentlens/agentlens/internal/otel_server/trace/server"
	"github.com/agentlens/agentlens/internal/transport/ws"
	"github.com/agentlens/agentlens/pkg/cache"
	"github.com/agentlens/agentlens/pkg/event_bus"
	ingestModel "github.com/agentlens/agentlens/pkg/ingest/model"
	ingestService "github.com/agentlens/agentlens/pkg/ingest/service"
	registryService "github.com/agentlens/agentlens/pkg/registry/service"
	traceService "github.com/agentlens/agentlens/pkg/trace/service"
	"github.com/asaskevich/EventBus"
	"github.com/dgraph-io/ristretto"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

// @title AgentLens API
// @version 1.0
// @description Live dashboard backend for inspecting execution traces of multi-step agent workloads.

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.SnapshotCacheCost * 10,
		MaxCost:     cfg.SnapshotCacheCost,
		BufferItems: 64,
	})
	if err != nil {
		logger.Fatal("Failed to create snapshot cache", zap.Error(err))
	}

	eventLog := traceService.NewEventLog(logger)
	builder := traceService.NewGraphBuilder()
	snapshots := cache.NewSnapshotCacheImpl(ristrettoCache)
	timeTravelService := traceService.NewTimeTravelService(eventLog, builder, snapshots, logger)
	registry := registryService.NewTraceRegistry(logger)

	eventBus := EventBus.New()
	publishBus := event_bus.NewDashboardEventBus[any, ingestModel.TraceUpdate](eventBus, logger)
	subscribeBus := event_bus.NewDashboardEventBus[ingestModel.TraceUpdate, any](eventBus, logger)

	adapter := ingestService.NewIngestionAdapter(
		eventLog,
		registry,
		timeTravelService,
		publishBus,
		cfg.PendingSpanLimit,
		logger,
	)

	ctx := context.Background()
	envelopes := make(chan ingestModel.Envelope, cfg.IngestQueueSize)
	adapter.Start(ctx, envelopes)

	liveHandler, err := ws.NewLiveHandler(subscribeBus, logger)
	if err != nil {
		logger.Fatal("Failed to subscribe live handler", zap.Error(err))
	}
	defer liveHandler.Close()
	ingestHandler := ws.NewIngestHandler(envelopes, logger)

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen for OpenTelemetry traces", zap.Error(err))
	}
	srv := grpc.NewServer()
	traceServiceServer := traceServer.NewTraceServiceServerImpl(logger, envelopes)
	protoTrace.RegisterTraceServiceServer(srv, traceServiceServer)

	go func() {
		logger.Info("gRPC service started, listening for OpenTelemetry traces...", zap.String("addr", cfg.GRPCAddr))
		if err := srv.Serve(listener); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	r := router.CreateRouter(ctx, timeTravelService, registry, ingestHandler, liveHandler, logger)
	logger.Info("Starting dashboard server", zap.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		logger.Fatal("Failed to serve HTTP", zap.Error(err))
	}
}
