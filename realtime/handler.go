package realtime

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"rodina-chat/contract"
	"rodina-chat/observability"
	"rodina-chat/services"
)

// IdentityResolver supplies the already-authenticated identity for a new
// connection. Authentication happens upstream; the handler only consumes
// its result.
type IdentityResolver func(r *http.Request) (string, error)

// QueryIdentityResolver reads the identity from the "user" query
// parameter. Development convenience, to be swapped for the gateway
// resolver in production.
func QueryIdentityResolver(r *http.Request) (string, error) {
	id := r.URL.Query().Get("user")
	if id == "" {
		return "", fmt.Errorf("missing user parameter")
	}
	return id, nil
}

// SessionFactory builds the session owning a freshly accepted connection.
type SessionFactory func(userID string, sink contract.Sink) services.ISession

type Handler struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	resolver   IdentityResolver
	newSession SessionFactory
	bufferSize int
	monitor    *observability.Monitor
}

func NewHandler(log *slog.Logger, resolver IdentityResolver, newSession SessionFactory, bufferSize int, monitor *observability.Monitor) *Handler {
	return &Handler{
		log:        log,
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		resolver:   resolver,
		newSession: newSession,
		bufferSize: bufferSize,
		monitor:    monitor,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolver(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user", userID, "error", err)
		return
	}

	conn := NewConnection(h.log, userID, ws, h.bufferSize, h.monitor)
	conn.Start()
	session := h.newSession(userID, conn)
	h.monitor.ConnectionOpened()

	defer func() {
		session.Disconnect()
		conn.Close(websocket.CloseNormalClosure, "session closed")
		h.monitor.ConnectionClosed()
	}()

	ctx := r.Context()
	if err := session.Connect(ctx); err != nil {
		h.log.Error("Connect sequence aborted", "user", userID, "error", err)
		return
	}
	h.log.Info("Session opened", "user", userID, "connection", conn.ID)

	// Frames are read and handled one at a time: two frames from the same
	// connection never race on the conversation row. A disconnect observed
	// here lets the in-flight frame finish before teardown runs.
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Socket closed abruptly", "user", userID, "error", err)
			}
			return
		}
		// Binary frames carry the same JSON payload and are decoded as text.
		h.monitor.FrameReceived()
		if err := session.HandleFrame(ctx, data); err != nil {
			h.monitor.FrameRejected()
			h.log.Error("Frame handling failed", "user", userID, "error", err)
		}
	}
}
