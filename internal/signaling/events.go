package signaling

import "encoding/json"

// Inbound event types.
const (
	EventJoinWaitingRoom    = "join_waiting_room"
	EventProviderReady      = "provider_ready"
	EventStartCall          = "start_call"
	EventAcceptCall         = "accept_call"
	EventWebRTCOffer        = "webrtc_offer"
	EventWebRTCAnswer       = "webrtc_answer"
	EventWebRTCICECandidate = "webrtc_ice_candidate"
	EventEndCall            = "end_call"
)

// Outbound event types.
const (
	EventWaitingRoomJoined = "waiting_room_joined"
	EventQueueUpdated      = "queue_updated"
	EventProviderOnline    = "provider_online"
	EventIncomingCall      = "incoming_call"
	EventCallAccepted      = "call_accepted"
	EventCallEnded         = "call_ended"
)

// Roles carried in start_call and incoming_call events.
const (
	RolePatient  = "patient"
	RoleProvider = "provider"
)

// Envelope is the single message shape exchanged on the real-time channel.
// Fields are populated per event type; WebRTC payloads pass through Payload
// untouched.
type Envelope struct {
	Type           string          `json:"type"`
	ConsultationID string          `json:"consultation_id,omitempty"`
	CallID         string          `json:"call_id,omitempty"`
	CallerType     string          `json:"caller_type,omitempty"`
	ProviderID     string          `json:"provider_id,omitempty"`
	TriageData     json.RawMessage `json:"triage_data,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	From           string          `json:"from,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}
