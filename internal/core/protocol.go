package core

import "github.com/MishthiJain8/joinright/internal/domain"

// Typed payloads for the protocol kinds above. Field names follow the
// wire format the signaling server speaks.

type JoinRoomPayload struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

// RosterEntry appears in existing-users lists and user-connected events.
type RosterEntry struct {
	SocketID domain.RemoteID `json:"socketId"`
	UserName string          `json:"userName"`
}

type UserDisconnectedPayload struct {
	SocketID domain.RemoteID `json:"socketId"`
}

const (
	ChatTypeText     = "text"
	ChatTypeFile     = "file"
	ChatTypeReaction = "reaction"
)

type ChatMessagePayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Time    string `json:"time"`
}

type TypingPayload struct {
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

type StopTypingPayload struct {
	UserID domain.UserID `json:"userId"`
}

type TogglePayload struct {
	Enabled bool `json:"enabled"`
}

type HandRaisePayload struct {
	Raised bool `json:"raised"`
}

type WaitingRoomStatusPayload struct {
	InWaitingRoom bool   `json:"inWaitingRoom"`
	Message       string `json:"message"`
}

type RejectedPayload struct {
	Message string `json:"message"`
}

type AdmitPayload struct {
	ParticipantID domain.RemoteID `json:"participantId"`
}

type MeetingEndedPayload struct {
	Message string `json:"message"`
}
