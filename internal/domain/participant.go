package domain

import "time"

// RemoteID is the signaling-assigned peer id. It is session-scoped and
// not stable across reconnects.
type RemoteID string

// Participant is a roster entry for a remote user.
type Participant struct {
	RemoteID     RemoteID
	DisplayName  string
	HandRaised   bool
	MutedLocally bool
}

// AdmissionRequest is a host-side entry for a participant waiting to be
// admitted into the meeting.
type AdmissionRequest struct {
	RemoteID    RemoteID
	DisplayName string
	RequestedAt time.Time
}
