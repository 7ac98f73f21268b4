package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/roomspeak-mesh/internal/application/config"
	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/memory"
	"github.com/qrave1/roomspeak-mesh/internal/usecase"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// WebSocketHandler - поток присутствия: каждое изменение списка участников уходит всем клиентам
type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	presenceUsecase usecase.PresenceUsecase

	wsConnRepo memory.WebsocketConnectionRepository
}

func NewWebSocketHandler(
	cfg *config.Config,
	presenceUsecase usecase.PresenceUsecase,
	wsConnRepo memory.WebsocketConnectionRepository,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				// API управления слушает только локальных клиентов
				origin := r.Header.Get("Origin")
				return origin == "" || origin == "http://"+r.Host
			},
		},
		presenceUsecase: presenceUsecase,
		wsConnRepo:      wsConnRepo,
	}
}

// Run рассылает снимки присутствия подключенным клиентам до отмены ctx
func (h *WebSocketHandler) Run(ctx context.Context) {
	updates, unsubscribe := h.presenceUsecase.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case roster := <-updates:
			h.wsConnRepo.Broadcast(roster)
		}
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}
	defer ws.Close()

	clientID := uuid.New()

	h.wsConnRepo.Add(clientID, ws)
	defer h.wsConnRepo.Remove(clientID)

	if err = h.wsConnRepo.Write(clientID, h.presenceUsecase.Roster()); err != nil {
		slog.Error("write initial roster", slog.Any(constant.Error, err))
		return nil
	}

	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					slog.Error("ping failed", slog.Any(constant.Error, err))
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// входящие сообщения не ожидаются, чтение нужно для pong и закрытия
	for {
		if _, _, err = ws.ReadMessage(); err != nil {
			h.handleWebsocketError(clientID, err)

			return nil
		}
	}
}

func (h *WebSocketHandler) handleWebsocketError(clientID uuid.UUID, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("presence client disconnected", slog.String("client_id", clientID.String()))
		default:
			slog.Error("websocket close error", slog.Int("code", closeErr.Code))
		}

		return
	}

	slog.Error(
		"websocket read",
		slog.Any(constant.Error, err),
		slog.String("client_id", clientID.String()),
	)
}
