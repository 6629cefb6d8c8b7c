package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// recordingUpdater captures durable transitions triggered by the hub.
type recordingUpdater struct {
	mu         sync.Mutex
	inProgress []uuid.UUID
	completed  []uuid.UUID
}

func (r *recordingUpdater) MarkInProgress(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inProgress = append(r.inProgress, id)
	return nil
}

func (r *recordingUpdater) MarkCompleted(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, id)
	return nil
}

func newTestHub() (*Hub, *recordingUpdater) {
	upd := &recordingUpdater{}
	return NewHub(upd, zerolog.Nop()), upd
}

func newTestClient(hub *Hub, role string) *Client {
	c := NewClient(nil, role)
	hub.Register(c)
	return c
}

func recvEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.Send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("expected an event, got none")
		return Envelope{}
	}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("expected no event, got %s", data)
	default:
	}
}

func TestJoinWaitingRoom_AcksAndNotifiesProviders(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)

	consultationID := uuid.NewString()
	hub.JoinWaitingRoom(patient, consultationID, json.RawMessage(`{"severity":5}`))

	ack := recvEvent(t, patient)
	if ack.Type != EventWaitingRoomJoined || ack.ConsultationID != consultationID {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	update := recvEvent(t, provider)
	if update.Type != EventQueueUpdated {
		t.Fatalf("expected queue_updated for providers, got %s", update.Type)
	}

	if hub.WaitingCount() != 1 {
		t.Fatalf("expected 1 waiting entry, got %d", hub.WaitingCount())
	}
}

func TestJoinWaitingRoom_DuplicateJoinLastWriterWins(t *testing.T) {
	hub, _ := newTestHub()
	first := newTestClient(hub, RolePatient)
	second := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)

	consultationID := uuid.NewString()
	hub.JoinWaitingRoom(first, consultationID, nil)
	hub.JoinWaitingRoom(second, consultationID, nil)

	if hub.WaitingCount() != 1 {
		t.Fatalf("expected a single entry after duplicate join, got %d", hub.WaitingCount())
	}

	// Drain the joins, then confirm the call goes to the second connection.
	<-first.Send
	<-second.Send
	for len(provider.Send) > 0 {
		<-provider.Send
	}

	hub.StartCall(context.Background(), provider, consultationID, RoleProvider)

	incoming := recvEvent(t, second)
	if incoming.Type != EventIncomingCall {
		t.Fatalf("expected incoming_call on the later connection, got %s", incoming.Type)
	}
	expectNoEvent(t, first)
}

func TestStartCall_DeliversExactlyOneIncomingCall(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)

	consultationID := uuid.NewString()
	hub.JoinWaitingRoom(patient, consultationID, nil)
	<-patient.Send // drain ack

	hub.StartCall(context.Background(), provider, consultationID, RoleProvider)

	incoming := recvEvent(t, patient)
	if incoming.Type != EventIncomingCall {
		t.Fatalf("expected incoming_call, got %s", incoming.Type)
	}
	if incoming.ConsultationID != consultationID {
		t.Fatalf("unexpected consultation id %s", incoming.ConsultationID)
	}
	if incoming.CallID == "" {
		t.Fatal("incoming_call must carry a call id")
	}
	if incoming.From != RoleProvider {
		t.Fatalf("expected from=provider, got %s", incoming.From)
	}
	expectNoEvent(t, patient)

	if hub.WaitingCount() != 0 {
		t.Fatalf("waiting entry must be removed on call start, got %d", hub.WaitingCount())
	}
	if hub.ActiveCallCount() != 1 {
		t.Fatalf("expected 1 active call, got %d", hub.ActiveCallCount())
	}
}

func TestStartCall_NoWaitingEntryIsNoop(t *testing.T) {
	hub, _ := newTestHub()
	provider := newTestClient(hub, RoleProvider)

	hub.StartCall(context.Background(), provider, uuid.NewString(), RoleProvider)

	if hub.ActiveCallCount() != 0 {
		t.Fatalf("no call should be created, got %d", hub.ActiveCallCount())
	}
	expectNoEvent(t, provider)
}

func TestStartCall_NonProviderIgnored(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)
	other := newTestClient(hub, RolePatient)

	consultationID := uuid.NewString()
	hub.JoinWaitingRoom(patient, consultationID, nil)
	<-patient.Send

	hub.StartCall(context.Background(), other, consultationID, RolePatient)

	if hub.ActiveCallCount() != 0 {
		t.Fatal("patient-initiated start_call must not create a call")
	}
	if hub.WaitingCount() != 1 {
		t.Fatal("waiting entry must survive an ignored start_call")
	}
}

// startCall is a test helper that walks a patient and provider through
// join_waiting_room and start_call, returning the fresh call id.
func startCall(t *testing.T, hub *Hub, patient, provider *Client, consultationID string) string {
	t.Helper()
	hub.JoinWaitingRoom(patient, consultationID, nil)
	<-patient.Send
	for len(provider.Send) > 0 {
		<-provider.Send
	}

	hub.StartCall(context.Background(), provider, consultationID, RoleProvider)
	incoming := recvEvent(t, patient)
	if incoming.Type != EventIncomingCall {
		t.Fatalf("expected incoming_call, got %s", incoming.Type)
	}
	return incoming.CallID
}

func TestAcceptCall_UnknownIDIsNoop(t *testing.T) {
	hub, upd := newTestHub()
	provider := newTestClient(hub, RoleProvider)

	hub.AcceptCall(context.Background(), provider, uuid.NewString())

	expectNoEvent(t, provider)
	if len(upd.inProgress) != 0 {
		t.Fatal("unknown call must not touch the durable record")
	}
}

func TestAcceptCall_NotifiesBothAndMarksInProgress(t *testing.T) {
	hub, upd := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)

	consultationID := uuid.NewString()
	callID := startCall(t, hub, patient, provider, consultationID)

	hub.AcceptCall(context.Background(), patient, callID)

	for _, c := range []*Client{patient, provider} {
		ev := recvEvent(t, c)
		if ev.Type != EventCallAccepted || ev.CallID != callID {
			t.Fatalf("unexpected event: %+v", ev)
		}
		expectNoEvent(t, c)
	}

	if len(upd.inProgress) != 1 || upd.inProgress[0].String() != consultationID {
		t.Fatalf("expected consultation marked in_progress, got %v", upd.inProgress)
	}
}

func TestRelay_ForwardsToOtherPartyOnly(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)

	callID := startCall(t, hub, patient, provider, uuid.NewString())

	offer := json.RawMessage(`{"sdp":"v=0...","type":"offer"}`)
	hub.Relay(provider, EventWebRTCOffer, callID, offer)

	ev := recvEvent(t, patient)
	if ev.Type != EventWebRTCOffer || string(ev.Payload) != string(offer) {
		t.Fatalf("payload must be forwarded unchanged, got %+v", ev)
	}
	expectNoEvent(t, provider)

	answer := json.RawMessage(`{"sdp":"v=0...","type":"answer"}`)
	hub.Relay(patient, EventWebRTCAnswer, callID, answer)

	ev = recvEvent(t, provider)
	if ev.Type != EventWebRTCAnswer || string(ev.Payload) != string(answer) {
		t.Fatalf("answer must reach the provider unchanged, got %+v", ev)
	}
	expectNoEvent(t, patient)
}

func TestRelay_UnknownCallOrOutsiderDropped(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)
	outsider := newTestClient(hub, RolePatient)

	callID := startCall(t, hub, patient, provider, uuid.NewString())

	hub.Relay(patient, EventWebRTCICECandidate, uuid.NewString(), json.RawMessage(`{}`))
	expectNoEvent(t, provider)

	hub.Relay(outsider, EventWebRTCOffer, callID, json.RawMessage(`{}`))
	expectNoEvent(t, patient)
	expectNoEvent(t, provider)
}

func TestEndCall_NotifiesBothAndCompletes(t *testing.T) {
	hub, upd := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)

	consultationID := uuid.NewString()
	callID := startCall(t, hub, patient, provider, consultationID)

	hub.EndCall(context.Background(), provider, callID)

	for _, c := range []*Client{patient, provider} {
		ev := recvEvent(t, c)
		if ev.Type != EventCallEnded || ev.CallID != callID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}

	if hub.ActiveCallCount() != 0 {
		t.Fatalf("call must be removed, got %d", hub.ActiveCallCount())
	}
	if len(upd.completed) != 1 || upd.completed[0].String() != consultationID {
		t.Fatalf("expected consultation marked completed, got %v", upd.completed)
	}

	// Ending again is a no-op.
	hub.EndCall(context.Background(), provider, callID)
	expectNoEvent(t, patient)
}

func TestOnDisconnect_PurgesCallsAndNotifiesPeer(t *testing.T) {
	hub, upd := newTestHub()
	patient1 := newTestClient(hub, RolePatient)
	patient2 := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)
	otherProvider := newTestClient(hub, RoleProvider)

	consultation1 := uuid.NewString()
	call1 := startCall(t, hub, patient1, provider, consultation1)
	call2 := startCall(t, hub, patient2, otherProvider, uuid.NewString())
	_ = call2

	hub.OnDisconnect(context.Background(), provider)

	ev := recvEvent(t, patient1)
	if ev.Type != EventCallEnded || ev.CallID != call1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Reason != "peer_disconnected" {
		t.Fatalf("expected reason peer_disconnected, got %q", ev.Reason)
	}

	// The unrelated call is untouched.
	expectNoEvent(t, patient2)
	if hub.ActiveCallCount() != 1 {
		t.Fatalf("expected the unrelated call to survive, got %d", hub.ActiveCallCount())
	}

	if len(upd.completed) != 1 || upd.completed[0].String() != consultation1 {
		t.Fatalf("expected only the dropped call's consultation completed, got %v", upd.completed)
	}
}

func TestOnDisconnect_DropsWaitingEntry(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RoleProvider)

	hub.JoinWaitingRoom(patient, uuid.NewString(), nil)
	<-patient.Send
	<-provider.Send

	hub.OnDisconnect(context.Background(), patient)

	if hub.WaitingCount() != 0 {
		t.Fatalf("waiting entry must be dropped with its connection, got %d", hub.WaitingCount())
	}

	update := recvEvent(t, provider)
	if update.Type != EventQueueUpdated {
		t.Fatalf("providers should learn the queue changed, got %s", update.Type)
	}
}

func TestEndCall_ConcurrentWithDisconnectDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		hub, _ := newTestHub()
		patient := newTestClient(hub, RolePatient)
		provider := newTestClient(hub, RoleProvider)

		callID := startCall(t, hub, patient, provider, uuid.NewString())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.EndCall(context.Background(), provider, callID)
		}()
		go func() {
			defer wg.Done()
			hub.OnDisconnect(context.Background(), patient)
		}()
		wg.Wait()

		if hub.ActiveCallCount() != 0 {
			t.Fatalf("call must be gone after end/disconnect, got %d", hub.ActiveCallCount())
		}
	}
}

func TestSend_AfterDisconnectIsDropped(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)

	hub.OnDisconnect(context.Background(), patient)

	// A straggling notification for a closed connection must be a no-op.
	hub.send(patient, Envelope{Type: EventCallEnded, CallID: uuid.NewString()})

	if _, ok := <-patient.Send; ok {
		t.Fatal("no event should reach a closed connection")
	}
}

func TestProviderReady_BroadcastsWithoutStateChange(t *testing.T) {
	hub, _ := newTestHub()
	patient := newTestClient(hub, RolePatient)
	provider := newTestClient(hub, RolePatient) // not yet marked provider

	providerID := uuid.NewString()
	hub.ProviderReady(provider, providerID)

	for _, c := range []*Client{patient, provider} {
		ev := recvEvent(t, c)
		if ev.Type != EventProviderOnline || ev.ProviderID != providerID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}

	if hub.WaitingCount() != 0 || hub.ActiveCallCount() != 0 {
		t.Fatal("provider_ready must not mutate hub state")
	}

	// The connection now counts as provider-facing for queue updates.
	hub.JoinWaitingRoom(patient, uuid.NewString(), nil)
	<-patient.Send
	update := recvEvent(t, provider)
	if update.Type != EventQueueUpdated {
		t.Fatalf("expected queue_updated after provider_ready, got %s", update.Type)
	}
}
