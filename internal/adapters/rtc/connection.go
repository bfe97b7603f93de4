// Package rtc wraps a pion PeerConnection into the per-peer media link
// used by the mesh coordinator. Signaling stays outside: the link emits
// envelopes through a callback and accepts them through HandleEnvelope.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

// DefaultConfig builds a webrtc.Configuration from the configured ICE
// server URLs. An empty list still yields a usable config for loopback
// and LAN testing.
func DefaultConfig(iceURLs []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceURLs}}
	}
	return cfg
}

// Link is a single peer connection with trickle ICE. Candidates that
// arrive before the remote description are queued and flushed after it
// is applied.
type Link struct {
	remote domain.RemoteID
	role   core.LinkRole
	pc     *webrtc.PeerConnection

	mu        sync.Mutex
	senders   map[string]*webrtc.RTPSender
	videoSndr *webrtc.RTPSender
	pending   []webrtc.ICECandidateInit
	started   bool
	closed    bool

	onEnvelope func(core.SignalEnvelope)
	onState    func(core.TransportState)
}

// NewLink creates the underlying peer connection but does not start
// negotiation; that happens in Start.
func NewLink(cfg webrtc.Configuration, remote domain.RemoteID, role core.LinkRole) (*Link, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, &core.NegotiationError{Remote: remote, Reason: "create peer connection", Err: err}
	}
	return &Link{
		remote:  remote,
		role:    role,
		pc:      pc,
		senders: make(map[string]*webrtc.RTPSender),
	}, nil
}

func (l *Link) OnEnvelope(fn func(core.SignalEnvelope)) {
	l.mu.Lock()
	l.onEnvelope = fn
	l.mu.Unlock()
}

func (l *Link) OnTransportState(fn func(core.TransportState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

// Start wires the connection callbacks and, for the initiating side,
// kicks off the first offer.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started || l.closed {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	// The link never outlives ctx; the mesh cancels it on session end.
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		raw, err := json.Marshal(init)
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("marshal candidate")
			return
		}
		l.emit(core.SignalEnvelope{To: l.remote, Kind: core.EnvelopeICECandidate, Payload: raw})
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "rtc").Str("remote", string(l.remote)).Str("state", s.String()).Msg("connection state")
		l.report(mapState(s))
	})

	l.pc.OnNegotiationNeeded(func() {
		// First offer for the initiator goes out here too; pion fires
		// OnNegotiationNeeded once tracks are attached.
		if l.role != core.RoleInitiator {
			return
		}
		if l.pc.SignalingState() != webrtc.SignalingStateStable {
			return
		}
		if err := l.sendOffer(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("remote", string(l.remote)).Msg("renegotiation offer")
		}
	})

	if l.role == core.RoleInitiator {
		if err := l.sendOffer(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) sendOffer() error {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "create offer", Err: err}
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "set local offer", Err: err}
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "marshal offer", Err: err}
	}
	l.emit(core.SignalEnvelope{To: l.remote, Kind: core.EnvelopeOffer, Payload: raw})
	return nil
}

// HandleEnvelope applies a remote offer, answer or candidate.
func (l *Link) HandleEnvelope(env core.SignalEnvelope) error {
	switch env.Kind {
	case core.EnvelopeOffer:
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &offer); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "decode offer", Err: err}
		}
		if err := l.pc.SetRemoteDescription(offer); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "set remote offer", Err: err}
		}
		answer, err := l.pc.CreateAnswer(nil)
		if err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "create answer", Err: err}
		}
		if err := l.pc.SetLocalDescription(answer); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "set local answer", Err: err}
		}
		raw, err := json.Marshal(answer)
		if err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "marshal answer", Err: err}
		}
		l.emit(core.SignalEnvelope{To: l.remote, Kind: core.EnvelopeAnswer, Payload: raw})
		return l.flushCandidates()

	case core.EnvelopeAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &answer); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "decode answer", Err: err}
		}
		if err := l.pc.SetRemoteDescription(answer); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "set remote answer", Err: err}
		}
		return l.flushCandidates()

	case core.EnvelopeICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &cand); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "decode candidate", Err: err}
		}
		if l.pc.RemoteDescription() == nil {
			l.mu.Lock()
			l.pending = append(l.pending, cand)
			l.mu.Unlock()
			return nil
		}
		if err := l.pc.AddICECandidate(cand); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "add candidate", Err: err}
		}
		return nil

	default:
		return &core.NegotiationError{Remote: l.remote, Reason: fmt.Sprintf("unknown envelope kind %q", env.Kind)}
	}
}

func (l *Link) flushCandidates() error {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, cand := range pending {
		if err := l.pc.AddICECandidate(cand); err != nil {
			return &core.NegotiationError{Remote: l.remote, Reason: "add queued candidate", Err: err}
		}
	}
	return nil
}

func (l *Link) AddTrack(t core.LocalTrack) error {
	if t == nil || t.RTC() == nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "no transport track"}
	}
	sender, err := l.pc.AddTrack(t.RTC())
	if err != nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "add track", Err: err}
	}
	l.mu.Lock()
	l.senders[t.ID()] = sender
	if t.Kind() == core.TrackVideo {
		l.videoSndr = sender
	}
	l.mu.Unlock()
	return nil
}

func (l *Link) RemoveTrack(t core.LocalTrack) error {
	if t == nil {
		return nil
	}
	l.mu.Lock()
	sender, ok := l.senders[t.ID()]
	if ok {
		delete(l.senders, t.ID())
		if l.videoSndr == sender {
			l.videoSndr = nil
		}
	}
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := l.pc.RemoveTrack(sender); err != nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "remove track", Err: err}
	}
	return nil
}

// ReplaceVideoTrack swaps the outgoing video in place, keeping the
// sender and its SSRC so the remote side needs no renegotiation.
func (l *Link) ReplaceVideoTrack(t core.LocalTrack) error {
	if t == nil || t.RTC() == nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "no replacement track"}
	}
	l.mu.Lock()
	sender := l.videoSndr
	l.mu.Unlock()
	if sender == nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "no video sender"}
	}
	if err := sender.ReplaceTrack(t.RTC()); err != nil {
		return &core.NegotiationError{Remote: l.remote, Reason: "replace track", Err: err}
	}
	l.mu.Lock()
	for id, s := range l.senders {
		if s == sender {
			delete(l.senders, id)
		}
	}
	l.senders[t.ID()] = sender
	l.mu.Unlock()
	return nil
}

func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("remote", string(l.remote)).Msg("close peer connection")
	}
}

func (l *Link) emit(env core.SignalEnvelope) {
	l.mu.Lock()
	fn := l.onEnvelope
	l.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

func (l *Link) report(s core.TransportState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func mapState(s webrtc.PeerConnectionState) core.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return core.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return core.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return core.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return core.TransportClosed
	default:
		return core.TransportNew
	}
}

// NewLinkFactory adapts NewLink to the factory signature used by the
// mesh coordinator.
func NewLinkFactory(cfg webrtc.Configuration) core.LinkFactory {
	return func(remote domain.RemoteID, role core.LinkRole) (core.MediaLink, error) {
		return NewLink(cfg, remote, role)
	}
}
