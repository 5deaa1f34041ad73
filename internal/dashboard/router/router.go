package router

import (
	"context"
	"net/http"

	"github.com/agentlens/agentlens/internal/dashboard/handler"
	registryService "github.com/agentlens/agentlens/pkg/registry/service"
	traceService "github.com/agentlens/agentlens/pkg/trace/service"
	"go.uber.org/zap"
)
import "github.com/gorilla/mux"

// CreateRouter wires the read-only query surface and the websocket
// endpoints. The only mutation paths exposed are the tag edit endpoint and
// the ingest websocket; everything else reads snapshots.
func CreateRouter(
	ctx context.Context,
	timeTravelService *traceService.TimeTravelService,
	registry *registryService.TraceRegistry,
	ingestHandler http.Handler,
	liveHandler http.Handler,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(
		"/traces", handler.TraceListHandler(
			ctx,
			registry,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/traces/{trace_id}/graph", handler.GraphHandler(
			ctx,
			timeTravelService,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/traces/{trace_id}/bounds", handler.BoundsHandler(
			ctx,
			timeTravelService,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/traces/{trace_id}/tags", handler.TagsHandler(
			ctx,
			registry,
			logger,
		),
	).Methods("PUT")

	r.Handle("/ws/ingest", ingestHandler)
	r.Handle("/ws/live", liveHandler)

	return r
}
