// Package signaling bridges real-time connections between patients and
// providers: it keeps the in-memory waiting room, brokers call setup, and
// relays WebRTC offer/answer/ICE payloads between the two call parties.
package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type callStatus string

const (
	callConnecting callStatus = "connecting"
	callActive     callStatus = "active"
)

// Client represents a single real-time connection. closed is guarded by the
// hub mutex; once set, Send is closed and must not be written to again.
type Client struct {
	ID       string
	Role     string
	Send     chan []byte
	conn     Conn
	provider bool
	closed   bool
}

// waitingEntry holds a patient waiting for a provider to initiate a call.
// It exists only between join_waiting_room and start_call (or disconnect).
type waitingEntry struct {
	client     *Client
	triageData json.RawMessage
	joinedAt   time.Time
}

// activeCall links the two parties of a call attempt. Created on start_call
// in connecting state, promoted to active on accept_call, destroyed on
// end_call or either party's disconnect.
type activeCall struct {
	id             string
	consultationID string
	patient        *Client
	provider       *Client
	status         callStatus
}

// ConsultationUpdater couples the ephemeral call state to the durable
// consultation record: an accepted call implies in_progress, an ended call
// implies completed. Updates are best-effort; the hub logs failures and
// moves on.
type ConsultationUpdater interface {
	MarkInProgress(ctx context.Context, consultationID uuid.UUID) error
	MarkCompleted(ctx context.Context, consultationID uuid.UUID) error
}

// NopUpdater ignores durable transitions. Used in tests.
type NopUpdater struct{}

func (NopUpdater) MarkInProgress(context.Context, uuid.UUID) error { return nil }
func (NopUpdater) MarkCompleted(context.Context, uuid.UUID) error  { return nil }

// Hub owns all signaling state. Every operation takes the single mutex, so
// concurrent start_call and disconnect for the same consultation cannot
// race. The hub never blocks on I/O while holding the lock: notifications go
// through buffered per-client channels and durable updates run after the
// lock is released.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	waiting map[string]*waitingEntry // consultation id -> entry
	calls   map[string]*activeCall   // call id -> call

	consults ConsultationUpdater
	log      zerolog.Logger
}

func NewHub(consults ConsultationUpdater, log zerolog.Logger) *Hub {
	if consults == nil {
		consults = NopUpdater{}
	}
	return &Hub{
		clients:  make(map[*Client]struct{}),
		waiting:  make(map[string]*waitingEntry),
		calls:    make(map[string]*activeCall),
		consults: consults,
		log:      log,
	}
}

// NewClient builds a client around a connection. Role marks provider-facing
// listeners for queue broadcasts.
func NewClient(conn Conn, role string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Role:     role,
		Send:     make(chan []byte, 256),
		conn:     conn,
		provider: role == RoleProvider,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// JoinWaitingRoom registers a waiting-room entry for the consultation. A
// second join for the same id overwrites the first (last writer wins). The
// joining connection is acknowledged and providers are told the queue
// changed. The consultation id is trusted as-is: validation happened at the
// REST layer when the consultation was created.
func (h *Hub) JoinWaitingRoom(c *Client, consultationID string, triageData json.RawMessage) {
	if consultationID == "" {
		return
	}

	h.mu.Lock()
	h.waiting[consultationID] = &waitingEntry{
		client:     c,
		triageData: triageData,
		joinedAt:   time.Now(),
	}
	providers := h.providerClientsLocked()
	h.mu.Unlock()

	h.send(c, Envelope{Type: EventWaitingRoomJoined, ConsultationID: consultationID})
	h.sendAll(providers, Envelope{Type: EventQueueUpdated, ConsultationID: consultationID})

	h.log.Info().Str("consultation_id", consultationID).Str("client_id", c.ID).
		Msg("patient joined waiting room")
}

// ProviderReady marks the connection as provider-facing and announces the
// provider to everyone. It does not touch waiting-room or call state.
func (h *Hub) ProviderReady(c *Client, providerID string) {
	h.mu.Lock()
	c.provider = true
	all := make([]*Client, 0, len(h.clients))
	for cl := range h.clients {
		all = append(all, cl)
	}
	h.mu.Unlock()

	h.sendAll(all, Envelope{Type: EventProviderOnline, ProviderID: providerID})
}

// StartCall lets a provider claim a waiting patient. Unknown consultation
// ids and non-provider initiators are silent no-ops: the transport has no
// error channel for this class, so the miss is only logged. On success the
// waiting entry is atomically replaced by a connecting call and the patient
// is notified of the incoming call.
func (h *Hub) StartCall(ctx context.Context, c *Client, consultationID, callerType string) {
	if callerType != RoleProvider {
		h.log.Debug().Str("caller_type", callerType).Msg("start_call from non-provider ignored")
		return
	}

	h.mu.Lock()
	entry, ok := h.waiting[consultationID]
	if !ok {
		h.mu.Unlock()
		h.log.Debug().Str("consultation_id", consultationID).
			Msg("start_call for consultation with no waiting entry")
		return
	}

	call := &activeCall{
		id:             uuid.NewString(),
		consultationID: consultationID,
		patient:        entry.client,
		provider:       c,
		status:         callConnecting,
	}
	delete(h.waiting, consultationID)
	h.calls[call.id] = call
	patient := entry.client
	h.mu.Unlock()

	h.send(patient, Envelope{
		Type:           EventIncomingCall,
		CallID:         call.id,
		ConsultationID: consultationID,
		From:           RoleProvider,
	})

	h.log.Info().Str("consultation_id", consultationID).Str("call_id", call.id).
		Msg("call started")
}

// AcceptCall promotes a connecting call to active, notifies both parties,
// and marks the durable consultation in_progress. Unknown call ids are
// dropped.
func (h *Hub) AcceptCall(ctx context.Context, c *Client, callID string) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok {
		h.mu.Unlock()
		h.log.Debug().Str("call_id", callID).Msg("accept_call for unknown call")
		return
	}
	call.status = callActive
	patient, provider := call.patient, call.provider
	consultationID := call.consultationID
	h.mu.Unlock()

	accepted := Envelope{Type: EventCallAccepted, CallID: callID}
	h.send(patient, accepted)
	h.send(provider, accepted)

	h.markInProgress(ctx, consultationID)
}

// Relay forwards a WebRTC payload verbatim to whichever call participant is
// not the sender. Unknown call ids, and senders that are not a participant,
// are dropped.
func (h *Hub) Relay(c *Client, eventType, callID string, payload json.RawMessage) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok {
		h.mu.Unlock()
		h.log.Debug().Str("call_id", callID).Str("event", eventType).
			Msg("relay for unknown call")
		return
	}

	var target *Client
	switch c {
	case call.patient:
		target = call.provider
	case call.provider:
		target = call.patient
	}
	h.mu.Unlock()

	if target == nil {
		h.log.Debug().Str("call_id", callID).Str("event", eventType).
			Msg("relay from connection outside the call")
		return
	}

	h.send(target, Envelope{Type: eventType, CallID: callID, Payload: payload})
}

// EndCall notifies both parties, removes the call, and completes the durable
// consultation. Unknown call ids are a no-op.
func (h *Hub) EndCall(ctx context.Context, c *Client, callID string) {
	h.mu.Lock()
	call, ok := h.calls[callID]
	if !ok {
		h.mu.Unlock()
		h.log.Debug().Str("call_id", callID).Msg("end_call for unknown call")
		return
	}
	delete(h.calls, callID)
	patient, provider := call.patient, call.provider
	consultationID := call.consultationID
	h.mu.Unlock()

	ended := Envelope{Type: EventCallEnded, CallID: callID}
	h.send(patient, ended)
	h.send(provider, ended)

	h.markCompleted(ctx, consultationID)

	h.log.Info().Str("call_id", callID).Str("consultation_id", consultationID).
		Msg("call ended")
}

// OnDisconnect purges every call referencing the connection, telling the
// surviving peer the reason, and drops any waiting-room entries the
// connection owned.
func (h *Hub) OnDisconnect(ctx context.Context, c *Client) {
	h.mu.Lock()
	delete(h.clients, c)

	type endedCall struct {
		id             string
		consultationID string
		peer           *Client
	}
	var ended []endedCall
	for id, call := range h.calls {
		var peer *Client
		switch c {
		case call.patient:
			peer = call.provider
		case call.provider:
			peer = call.patient
		default:
			continue
		}
		delete(h.calls, id)
		ended = append(ended, endedCall{id: id, consultationID: call.consultationID, peer: peer})
	}

	var leftQueue []string
	for id, entry := range h.waiting {
		if entry.client == c {
			delete(h.waiting, id)
			leftQueue = append(leftQueue, id)
		}
	}
	var providers []*Client
	if len(leftQueue) > 0 {
		providers = h.providerClientsLocked()
	}
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
	h.mu.Unlock()

	for _, e := range ended {
		h.send(e.peer, Envelope{Type: EventCallEnded, CallID: e.id, Reason: "peer_disconnected"})
		h.markCompleted(ctx, e.consultationID)
	}
	for _, id := range leftQueue {
		h.sendAll(providers, Envelope{Type: EventQueueUpdated, ConsultationID: id})
	}
}

// WaitingCount returns the number of waiting-room entries.
func (h *Hub) WaitingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiting)
}

// ActiveCallCount returns the number of calls in connecting or active state.
func (h *Hub) ActiveCallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *Hub) providerClientsLocked() []*Client {
	var out []*Client
	for c := range h.clients {
		if c.provider {
			out = append(out, c)
		}
	}
	return out
}

// send delivers one event without blocking. The hub mutex serializes the
// write against OnDisconnect closing the channel: a client marked closed is
// skipped, so a concurrent disconnect can never turn a notification into a
// send on a closed channel. Callers must not hold h.mu.
func (h *Hub) send(c *Client, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("event", env.Type).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		// Client buffer full; skip to avoid blocking the hub.
	}
}

func (h *Hub) sendAll(clients []*Client, env Envelope) {
	for _, c := range clients {
		h.send(c, env)
	}
}

func (h *Hub) markInProgress(ctx context.Context, consultationID string) {
	id, err := uuid.Parse(consultationID)
	if err != nil {
		h.log.Debug().Str("consultation_id", consultationID).Msg("non-uuid consultation id, skipping durable update")
		return
	}
	if err := h.consults.MarkInProgress(ctx, id); err != nil {
		h.log.Warn().Err(err).Str("consultation_id", consultationID).
			Msg("failed to mark consultation in_progress")
	}
}

func (h *Hub) markCompleted(ctx context.Context, consultationID string) {
	id, err := uuid.Parse(consultationID)
	if err != nil {
		h.log.Debug().Str("consultation_id", consultationID).Msg("non-uuid consultation id, skipping durable update")
		return
	}
	if err := h.consults.MarkCompleted(ctx, id); err != nil {
		h.log.Warn().Err(err).Str("consultation_id", consultationID).
			Msg("failed to mark consultation completed")
	}
}
