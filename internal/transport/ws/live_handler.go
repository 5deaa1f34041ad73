package ws

import (
	"net/http"
	"sync"

	"github.com/agentlens/agentlens/pkg/event_bus"
	ingestModel "github.com/agentlens/agentlens/pkg/ingest/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// LiveHandler relays trace update notifications from the event bus to every
// connected dashboard, so live views know to re-resolve. Clients are only
// ever sent notifications; all reads of the graph itself go through the
// query endpoints.
type LiveHandler struct {
	mu           sync.Mutex
	clients      map[string]*websocket.Conn
	subscription event_bus.Subscription
	logger       *zap.Logger
}

func NewLiveHandler(
	bus event_bus.DashboardEventBus[ingestModel.TraceUpdate, any],
	logger *zap.Logger,
) (*LiveHandler, error) {
	lh := &LiveHandler{
		clients: make(map[string]*websocket.Conn),
		logger:  logger,
	}
	subscription, err := bus.Subscribe(ingestModel.TraceUpdatedTopic, lh.broadcast, false)
	if err != nil {
		return nil, err
	}
	lh.subscription = subscription
	return lh, nil
}

func (lh *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lh.logger.Error("Failed to upgrade live connection", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	lh.mu.Lock()
	lh.clients[clientID] = conn
	lh.mu.Unlock()
	lh.logger.Info("Live client connected", zap.String("client_id", clientID))

	// drain control frames; the first read error means the client is gone
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	lh.drop(clientID)
}

func (lh *LiveHandler) broadcast(update ingestModel.TraceUpdate) error {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	for clientID, conn := range lh.clients {
		if err := conn.WriteJSON(update); err != nil {
			lh.logger.Warn("Failed to notify live client, dropping it",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			conn.Close()
			delete(lh.clients, clientID)
		}
	}
	return nil
}

// Close detaches the handler from the bus and disconnects every client.
func (lh *LiveHandler) Close() error {
	err := lh.subscription.Unsubscribe()
	lh.mu.Lock()
	defer lh.mu.Unlock()
	for clientID, conn := range lh.clients {
		conn.Close()
		delete(lh.clients, clientID)
	}
	return err
}

func (lh *LiveHandler) drop(clientID string) {
	lh.mu.Lock()
	defer lh.mu.Unlock()
	if conn, ok := lh.clients[clientID]; ok {
		conn.Close()
		delete(lh.clients, clientID)
	}
	lh.logger.Info("Live client disconnected", zap.String("client_id", clientID))
}
