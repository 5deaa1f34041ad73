package handler

import (
	"context"
	"encoding/json"
	"net/http"

	registryService "github.com/agentlens/agentlens/pkg/registry/service"
	"go.uber.org/zap"
)

// TraceListHandler creates a handler for listing known traces with their
// live aggregate summaries.
// @Summary List known traces, most recent first.
// @Tags dashboard
// @Produce json
// @Success 200 {object} TraceListResponseDTO "The known traces"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /traces [get]
func TraceListHandler(
	ctx context.Context,
	registry *registryService.TraceRegistry,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traces := registry.List()
		dtos := make([]TraceDTO, len(traces))
		for i, trace := range traces {
			dtos[i] = toTraceDTO(trace)
		}

		err := json.NewEncoder(w).Encode(TraceListResponseDTO{Traces: dtos})
		if err != nil {
			logger.Error("Error encountered when encoding response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
	}
}
