package domain

type RoomID string

// Room holds the host-side view of the meeting room policy flags.
// The signaling server is the authority; these are local projections.
type Room struct {
	ID      RoomID
	Locked  bool
	Started bool
}
