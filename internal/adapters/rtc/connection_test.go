package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/MishthiJain8/joinright/internal/core"
)

type staticTrack struct {
	t *webrtc.TrackLocalStaticSample
}

func newStaticTrack(t *testing.T, id string) *staticTrack {
	t.Helper()
	trk, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "joinright")
	if err != nil {
		t.Fatal(err)
	}
	return &staticTrack{t: trk}
}

func (s *staticTrack) ID() string             { return s.t.ID() }
func (s *staticTrack) Kind() core.TrackKind   { return core.TrackVideo }
func (s *staticTrack) SetEnabled(bool)        {}
func (s *staticTrack) Enabled() bool          { return true }
func (s *staticTrack) OnEnded(func())         {}
func (s *staticTrack) Close() error           { return nil }
func (s *staticTrack) RTC() webrtc.TrackLocal { return s.t }

func collectEnvelopes(l *Link) chan core.SignalEnvelope {
	ch := make(chan core.SignalEnvelope, 32)
	l.OnEnvelope(func(env core.SignalEnvelope) { ch <- env })
	return ch
}

func awaitKind(t *testing.T, ch chan core.SignalEnvelope, kind string) core.SignalEnvelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Kind == kind {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s envelope", kind)
		}
	}
}

func TestLinkOfferAnswerExchange(t *testing.T) {
	cfg := DefaultConfig(nil)

	offerer, err := NewLink(cfg, "responder", core.RoleInitiator)
	if err != nil {
		t.Fatal(err)
	}
	defer offerer.Close()
	answerer, err := NewLink(cfg, "initiator", core.RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	defer answerer.Close()

	fromOfferer := collectEnvelopes(offerer)
	fromAnswerer := collectEnvelopes(answerer)

	if err := offerer.AddTrack(newStaticTrack(t, "cam")); err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}
	if err := answerer.Start(context.Background()); err != nil {
		t.Fatalf("responder Start failed: %v", err)
	}
	if err := offerer.Start(context.Background()); err != nil {
		t.Fatalf("initiator Start failed: %v", err)
	}

	offer := awaitKind(t, fromOfferer, core.EnvelopeOffer)
	if offer.To != "responder" {
		t.Errorf("Expected offer addressed to the remote, got %q", offer.To)
	}
	if err := answerer.HandleEnvelope(offer); err != nil {
		t.Fatalf("HandleEnvelope(offer) failed: %v", err)
	}

	answer := awaitKind(t, fromAnswerer, core.EnvelopeAnswer)
	if err := offerer.HandleEnvelope(answer); err != nil {
		t.Fatalf("HandleEnvelope(answer) failed: %v", err)
	}

	if offerer.pc.RemoteDescription() == nil {
		t.Error("Expected offerer to hold a remote description")
	}
	if answerer.pc.RemoteDescription() == nil {
		t.Error("Expected answerer to hold a remote description")
	}
}

func TestLinkQueuesEarlyCandidates(t *testing.T) {
	cfg := DefaultConfig(nil)
	offerer, err := NewLink(cfg, "r", core.RoleInitiator)
	if err != nil {
		t.Fatal(err)
	}
	defer offerer.Close()
	answerer, err := NewLink(cfg, "i", core.RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	defer answerer.Close()

	fromOfferer := collectEnvelopes(offerer)
	if err := offerer.AddTrack(newStaticTrack(t, "cam")); err != nil {
		t.Fatal(err)
	}
	if err := offerer.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	offer := awaitKind(t, fromOfferer, core.EnvelopeOffer)

	// A candidate arriving before the offer must queue, not error.
	candidate := webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 2122252543 127.0.0.1 54321 typ host"}
	raw, _ := json.Marshal(candidate)
	if err := answerer.HandleEnvelope(core.SignalEnvelope{Kind: core.EnvelopeICECandidate, Payload: raw}); err != nil {
		t.Fatalf("early candidate rejected: %v", err)
	}
	answerer.mu.Lock()
	queued := len(answerer.pending)
	answerer.mu.Unlock()
	if queued != 1 {
		t.Fatalf("Expected 1 queued candidate, got %d", queued)
	}

	// Applying the offer flushes the queue.
	if err := answerer.HandleEnvelope(offer); err != nil {
		t.Fatalf("HandleEnvelope(offer) failed: %v", err)
	}
	answerer.mu.Lock()
	queued = len(answerer.pending)
	answerer.mu.Unlock()
	if queued != 0 {
		t.Errorf("Expected queue drained after offer, got %d", queued)
	}
}

func TestLinkUnknownEnvelopeKind(t *testing.T) {
	l, err := NewLink(DefaultConfig(nil), "r", core.RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	err = l.HandleEnvelope(core.SignalEnvelope{Kind: "renegotiate-v2"})
	var nerr *core.NegotiationError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected a negotiation error, got %v", err)
	}
	if nerr.Remote != "r" {
		t.Errorf("Expected the error to name the remote, got %q", nerr.Remote)
	}
}

func TestLinkNilTrackGuards(t *testing.T) {
	l, err := NewLink(DefaultConfig(nil), "r", core.RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.AddTrack(newStaticTrack(t, "cam")); err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}

	// An audio-only session swaps video against a nil track; none of
	// these may panic.
	var nerr *core.NegotiationError
	if err := l.ReplaceVideoTrack(nil); !errors.As(err, &nerr) {
		t.Errorf("Expected a negotiation error for a nil replacement, got %v", err)
	}
	if err := l.RemoveTrack(nil); err != nil {
		t.Errorf("Expected removing a nil track to be a no-op, got %v", err)
	}
	if err := l.AddTrack(nil); !errors.As(err, &nerr) {
		t.Errorf("Expected a negotiation error for a nil added track, got %v", err)
	}
}

func TestLinkClosesWithContext(t *testing.T) {
	l, err := NewLink(DefaultConfig(nil), "r", core.RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}

	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for l.pc.ConnectionState() != webrtc.PeerConnectionStateClosed {
		if time.Now().After(deadline) {
			t.Fatal("peer connection not closed after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLinkCloseIdempotent(t *testing.T) {
	l, err := NewLink(DefaultConfig(nil), "r", core.RoleResponder)
	if err != nil {
		t.Fatal(err)
	}
	l.Close()
	l.Close()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig([]string{"stun:stun.example.com:3478"})
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("Expected the configured STUN server, got %+v", cfg.ICEServers)
	}
	if got := DefaultConfig(nil); len(got.ICEServers) != 0 {
		t.Errorf("Expected no ICE servers by default, got %+v", got.ICEServers)
	}
}
