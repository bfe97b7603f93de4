package core

import (
	"context"

	"github.com/MishthiJain8/joinright/internal/domain"
)

type LinkRole int

const (
	RoleInitiator LinkRole = iota
	RoleResponder
)

func (r LinkRole) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// TransportState reflects the underlying peer connection transport.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// MediaLink is one media connection to one remote peer.
// Owned by the mesh coordinator; the adapter must Close() it.
type MediaLink interface {
	// Start binds the link lifetime to ctx. An initiator begins
	// negotiation immediately; a responder waits for the first envelope.
	Start(ctx context.Context) error
	// HandleEnvelope applies a relayed offer/answer/candidate.
	HandleEnvelope(env SignalEnvelope) error
	AddTrack(t LocalTrack) error
	RemoveTrack(t LocalTrack) error
	// ReplaceVideoTrack swaps the outbound video in place, without
	// renegotiation. Callers fall back to RemoveTrack+AddTrack on error.
	ReplaceVideoTrack(t LocalTrack) error
	// OnEnvelope sets the outbound signaling callback.
	OnEnvelope(func(SignalEnvelope))
	OnTransportState(func(TransportState))
	Close()
}

// LinkFactory builds a MediaLink for a remote peer.
type LinkFactory func(remote domain.RemoteID, role LinkRole) (MediaLink, error)
