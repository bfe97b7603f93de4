package domain

type Role int

const (
	RoleAttendee Role = iota
	RoleHost
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "attendee"
}

type ConnectionState int

const (
	ConnIdle ConnectionState = iota
	ConnJoining
	ConnActive
	ConnReconnecting
	ConnLeaving
	ConnClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnJoining:
		return "joining"
	case ConnActive:
		return "active"
	case ConnReconnecting:
		return "reconnecting"
	case ConnLeaving:
		return "leaving"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

// ActiveSource names which local video stream is transmitted as the
// primary outbound video.
type ActiveSource string

const (
	SourceCamera ActiveSource = "camera"
	SourceScreen ActiveSource = "screen"
)

type MediaState struct {
	AudioEnabled bool
	VideoEnabled bool
	ActiveSource ActiveSource
}

// Session is the local user's participation in one room.
type Session struct {
	Room       RoomID
	Local      *User
	Role       Role
	Connection ConnectionState
	Media      MediaState
}
