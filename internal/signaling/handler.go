package signaling

import (
	"context"
	"encoding/json"
	"net/http"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections to WebSocket and routes envelope
// messages onto the hub.
type Handler struct {
	hub *Hub
	log zerolog.Logger
}

func NewHandler(hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

// ServeHTTP upgrades the connection, registers the client, and starts the
// read/write pumps. The optional ?role=provider query marks provider-facing
// connections for queue broadcasts.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	role := r.URL.Query().Get("role")
	if role != RoleProvider {
		role = RolePatient
	}

	client := NewClient(&gorillaConnAdapter{ws}, role)
	h.hub.Register(client)

	h.log.Info().Str("client_id", client.ID).Str("role", role).Msg("websocket connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
}

// readPump reads envelopes from the connection and dispatches them. The
// request context dies with the upgrade, so durable updates triggered by
// events run against the background context.
func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	ctx := context.Background()

	defer func() {
		h.hub.OnDisconnect(ctx, client)
		ws.Close()
		h.log.Info().Str("client_id", client.ID).Msg("websocket disconnected")
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue // Ignore malformed messages.
		}

		h.dispatch(ctx, client, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, env Envelope) {
	switch env.Type {
	case EventJoinWaitingRoom:
		h.hub.JoinWaitingRoom(client, env.ConsultationID, env.TriageData)
	case EventProviderReady:
		h.hub.ProviderReady(client, env.ProviderID)
	case EventStartCall:
		h.hub.StartCall(ctx, client, env.ConsultationID, env.CallerType)
	case EventAcceptCall:
		h.hub.AcceptCall(ctx, client, env.CallID)
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCICECandidate:
		h.hub.Relay(client, env.Type, env.CallID, env.Payload)
	case EventEndCall:
		h.hub.EndCall(ctx, client, env.CallID)
	default:
		h.log.Debug().Str("event", env.Type).Str("client_id", client.ID).
			Msg("unknown signaling event")
	}
}

// writePump writes messages from the Send channel to the connection.
func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
