package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	traceService "github.com/agentlens/agentlens/pkg/trace/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// GraphHandler creates a handler for resolving a trace's graph at a time
// travel index.
// @Summary Get the graph of a trace as of a time travel index.
// @Tags dashboard
// @Produce json
// @Param trace_id path string true "The ID of the trace"
// @Param index query int false "The time travel step index; omitted means live"
// @Success 200 {object} GraphResponseDTO "The resolved graph"
// @Failure 404 {object} ErrorMessage "Trace not found"
// @Failure 500 {object} ErrorMessage "Internal server error"
// @Router /traces/{trace_id}/graph [get]
func GraphHandler(
	ctx context.Context,
	tts *traceService.TimeTravelService,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["trace_id"]

		var index *int
		if rawIndex := r.URL.Query().Get("index"); rawIndex != "" {
			parsed, err := strconv.Atoi(rawIndex)
			if err != nil {
				logger.Error("Error encountered when parsing time travel index", zap.Error(err))
				HttpError(w, "Invalid time travel index", http.StatusBadRequest, logger)
				return
			}
			index = &parsed
		}

		graph, err := tts.Resolve(traceID, index)
		if err != nil {
			if errors.Is(err, traceService.ErrTraceNotFound) {
				HttpError(w, "Trace not found", http.StatusNotFound, logger)
				return
			}
			logger.Error("Error encountered when resolving graph", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		err = json.NewEncoder(w).Encode(toGraphResponseDTO(graph))
		if err != nil {
			logger.Error("Error encountered when encoding response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
	}
}

// BoundsHandler creates a handler for getting a trace's time travel bounds.
// @Summary Get the number of scrubbing steps available for a trace.
// @Tags dashboard
// @Produce json
// @Param trace_id path string true "The ID of the trace"
// @Success 200 {object} BoundsResponseDTO "The time travel bounds"
// @Failure 404 {object} ErrorMessage "Trace not found"
// @Router /traces/{trace_id}/bounds [get]
func BoundsHandler(
	ctx context.Context,
	tts *traceService.TimeTravelService,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["trace_id"]

		totalSteps, err := tts.Bounds(traceID)
		if err != nil {
			if errors.Is(err, traceService.ErrTraceNotFound) {
				HttpError(w, "Trace not found", http.StatusNotFound, logger)
				return
			}
			logger.Error("Error encountered when getting time travel bounds", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		err = json.NewEncoder(w).Encode(BoundsResponseDTO{TotalSteps: totalSteps})
		if err != nil {
			logger.Error("Error encountered when encoding response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
	}
}
