package ws

import (
	"encoding/json"
	"net/http"

	ingestModel "github.com/agentlens/agentlens/pkg/ingest/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the dashboard frontend is served from another origin
	},
}

// IngestHandler accepts persistent inbound connections delivering event
// envelopes as JSON frames and forwards them onto the ingestion queue.
// A malformed frame is logged and skipped, never fatal to the connection;
// a reconnect simply resumes ingestion against the existing logs.
type IngestHandler struct {
	sink   chan<- ingestModel.Envelope
	logger *zap.Logger
}

func NewIngestHandler(sink chan<- ingestModel.Envelope, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		sink:   sink,
		logger: logger,
	}
}

func (ih *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ih.logger.Error("Failed to upgrade ingest connection", zap.Error(err))
		return
	}
	defer func() {
		err := conn.Close()
		if err != nil {
			ih.logger.Error("Error encountered when closing ingest connection", zap.Error(err))
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ih.logger.Warn("Ingest connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		var envelope ingestModel.Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			ih.logger.Warn("Skipping malformed ingest frame", zap.Error(err))
			continue
		}
		ih.sink <- envelope
	}
}
