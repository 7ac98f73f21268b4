package memory

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/application/metric"
)

// WebsocketConnectionRepository хранит клиентов потока присутствия
type WebsocketConnectionRepository interface {
	Add(uuid.UUID, *websocket.Conn)
	Remove(uuid.UUID)

	Write(uuid.UUID, any) error
	Broadcast(any)
	Count() int
}

type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type wsConnectionRepository struct {
	// wsConns хранит map[client_id]*ws.conn
	wsConns map[uuid.UUID]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[uuid.UUID]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(clientID uuid.UUID, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wsConns[clientID] = &safeWS{conn: conn}

	metric.IncrementWSActiveConnections()
}

func (w *wsConnectionRepository) Remove(clientID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.wsConns[clientID]; exists {
		delete(w.wsConns, clientID)

		metric.DecrementWSActiveConnections()
	}
}

func (w *wsConnectionRepository) Write(clientID uuid.UUID, payload any) error {
	safews, ok := w.getSafeWS(clientID)
	if !ok {
		return nil
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	return safews.conn.WriteJSON(payload)
}

func (w *wsConnectionRepository) Broadcast(payload any) {
	w.mu.RLock()
	clientIDs := make([]uuid.UUID, 0, len(w.wsConns))
	for clientID := range w.wsConns {
		clientIDs = append(clientIDs, clientID)
	}
	w.mu.RUnlock()

	for _, clientID := range clientIDs {
		if err := w.Write(clientID, payload); err != nil {
			slog.Error(
				"write to websocket",
				slog.Any(constant.Error, err),
				slog.String("client_id", clientID.String()),
			)
		}
	}
}

func (w *wsConnectionRepository) getSafeWS(clientID uuid.UUID) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conn, ok := w.wsConns[clientID]
	return conn, ok
}

func (w *wsConnectionRepository) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.wsConns)
}
