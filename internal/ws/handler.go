package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/hearth-home/hearth/internal/event"
	"go.uber.org/zap"
)

// Handler provides the WebSocket endpoint streaming hub notifications.
type Handler struct {
	hub    *Hub
	bus    *event.Bus
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to all hub
// notifications.
func NewHandler(bus *event.Bus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		bus:    bus,
		logger: logger,
	}
	h.subscribe()
	return h
}

// RegisterRoutes registers the WebSocket route on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/notifications", h.handleStream)
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int { return h.hub.ClientCount() }

// handleStream upgrades the connection to WebSocket and streams every hub
// notification until the client disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)

	// Run read and write pumps. When either exits, clean up.
	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until client disconnects.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribe forwards every bus notification to the connected clients.
func (h *Handler) subscribe() {
	if h.bus == nil {
		return
	}
	h.bus.SubscribeAll(func(_ context.Context, n event.Notification) {
		h.hub.Broadcast(Message{
			Type:      n.Topic,
			Timestamp: n.Timestamp,
			Data:      n.Payload,
		})
	})
	h.logger.Info("subscribed to hub notifications for WebSocket broadcasting")
}
