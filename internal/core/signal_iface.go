package core

import (
	"context"
	"encoding/json"

	"github.com/MishthiJain8/joinright/internal/domain"
)

type SessionID string

// EventKind is a protocol message kind on the signaling channel.
type EventKind string

const (
	KindJoinRoom          EventKind = "join-room"
	KindExistingUsers     EventKind = "existing-users"
	KindUserConnected     EventKind = "user-connected"
	KindUserDisconnected  EventKind = "user-disconnected"
	KindSignal            EventKind = "signal"
	KindChatMessage       EventKind = "chat-message"
	KindUserTyping        EventKind = "user-typing"
	KindUserStopTyping    EventKind = "user-stop-typing"
	KindToggleVideo       EventKind = "toggle-video"
	KindToggleAudio       EventKind = "toggle-audio"
	KindStartScreenShare  EventKind = "start-screen-share"
	KindStopScreenShare   EventKind = "stop-screen-share"
	KindHandRaiseToggle   EventKind = "hand-raise-toggle"
	KindWaitingRoomStatus EventKind = "waiting-room-status"
	KindAdmitted          EventKind = "admitted-to-meeting"
	KindRejected          EventKind = "rejected-from-meeting"
	KindAdmitParticipant  EventKind = "admit-participant"
	KindRejectParticipant EventKind = "reject-participant"
	KindAdmitAll          EventKind = "admit-all-participants"
	KindMeetingStarted    EventKind = "meeting-started"
	KindMeetingEnded      EventKind = "meeting-ended"
)

// Event is one inbound protocol message. Payload stays raw; each handler
// decodes only the kind it understands.
type Event struct {
	Kind    EventKind
	From    domain.RemoteID
	Payload json.RawMessage
}

// SignalTransport abstracts the signaling channel. At most one active
// connection per session context; reconnect policy belongs to the caller.
type SignalTransport interface {
	Connect(ctx context.Context, local *domain.User, room domain.RoomID) error
	Send(kind EventKind, payload any) error
	OnEvent(func(Event))
	OnDisconnect(func(reason error))
	Close()
}

// SignalEnvelope is the opaque connection-setup payload relayed verbatim
// between the transport and the matching peer link.
type SignalEnvelope struct {
	To      domain.RemoteID `json:"to,omitempty"`
	From    domain.RemoteID `json:"from,omitempty"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

const (
	EnvelopeOffer        = "offer"
	EnvelopeAnswer       = "answer"
	EnvelopeICECandidate = "ice-candidate"
)
