package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	registryService "github.com/agentlens/agentlens/pkg/registry/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TagsHandler creates a handler for the optimistic tag edit path. The new
// mapping is applied immediately; on an asynchronous backend failure the
// caller reverts or re-fetches, the registry never rolls back on its own.
// @Summary Replace the tag mapping of a trace.
// @Tags dashboard
// @Accept json
// @Produce json
// @Param trace_id path string true "The ID of the trace"
// @Param tags body TagUpdateRequestDTO true "The replacement tag mapping"
// @Success 200 {object} TraceDTO "The updated trace"
// @Failure 400 {object} ErrorMessage "Invalid request payload"
// @Failure 404 {object} ErrorMessage "Trace not found"
// @Router /traces/{trace_id}/tags [put]
func TagsHandler(
	ctx context.Context,
	registry *registryService.TraceRegistry,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["trace_id"]

		var req TagUpdateRequestDTO
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}

		defer func(Body io.ReadCloser) {
			err := Body.Close()
			if err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}(r.Body)

		if req.Tags == nil {
			HttpError(w, "Missing tags mapping", http.StatusBadRequest, logger)
			return
		}

		err = registry.UpdateTraceTags(traceID, req.Tags)
		if err != nil {
			if errors.Is(err, registryService.ErrTraceNotFound) {
				HttpError(w, "Trace not found", http.StatusNotFound, logger)
				return
			}
			logger.Error("Error encountered when updating trace tags", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		trace, err := registry.Get(traceID)
		if err != nil {
			HttpError(w, "Trace not found", http.StatusNotFound, logger)
			return
		}
		err = json.NewEncoder(w).Encode(toTraceDTO(trace))
		if err != nil {
			logger.Error("Error encountered when encoding response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
	}
}
