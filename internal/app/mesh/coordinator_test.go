package mesh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

type fakeTrack struct {
	id   string
	kind core.TrackKind
}

func (f *fakeTrack) ID() string { return f.id }
func (f *fakeTrack) Kind() core.TrackKind { return f.kind }
func (f *fakeTrack) SetEnabled(bool) {}
func (f *fakeTrack) Enabled() bool { return true }
func (f *fakeTrack) OnEnded(func()) {}
func (f *fakeTrack) Close() error { return nil }
func (f *fakeTrack) RTC() webrtc.TrackLocal { return nil }

type fakeLink struct {
	mu         sync.Mutex
	remote     domain.RemoteID
	role       core.LinkRole
	started    bool
	closed     bool
	tracks     []string
	handled    []core.SignalEnvelope
	handleErr  error
	replaceErr error
	onEnvelope func(core.SignalEnvelope)
	onState    func(core.TransportState)
}

func (f *fakeLink) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeLink) HandleEnvelope(env core.SignalEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, env)
	return f.handleErr
}

func (f *fakeLink) AddTrack(t core.LocalTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, t.ID())
	return nil
}

func (f *fakeLink) RemoveTrack(t core.LocalTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.tracks {
		if id == t.ID() {
			f.tracks = append(f.tracks[:i], f.tracks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeLink) ReplaceVideoTrack(t core.LocalTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	for i, id := range f.tracks {
		if id != "mic" {
			f.tracks[i] = t.ID()
			return nil
		}
	}
	f.tracks = append(f.tracks, t.ID())
	return nil
}

func (f *fakeLink) OnEnvelope(fn func(core.SignalEnvelope)) {
	f.mu.Lock()
	f.onEnvelope = fn
	f.mu.Unlock()
}

func (f *fakeLink) OnTransportState(fn func(core.TransportState)) {
	f.mu.Lock()
	f.onState = fn
	f.mu.Unlock()
}

func (f *fakeLink) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeLink) reportState(s core.TransportState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakeLink) trackIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.tracks))
	copy(out, f.tracks)
	return out
}

type meshHarness struct {
	coord  *Coordinator
	links  map[domain.RemoteID]*fakeLink
	mu     sync.Mutex
	sent   []core.SignalEnvelope
	failed []domain.RemoteID
}

func newMeshHarness(t *testing.T, timeout time.Duration) *meshHarness {
	t.Helper()
	h := &meshHarness{links: make(map[domain.RemoteID]*fakeLink)}
	factory := func(remote domain.RemoteID, role core.LinkRole) (core.MediaLink, error) {
		fl := &fakeLink{remote: remote, role: role}
		h.links[remote] = fl
		return fl, nil
	}
	send := func(env core.SignalEnvelope) error {
		h.mu.Lock()
		h.sent = append(h.sent, env)
		h.mu.Unlock()
		return nil
	}
	h.coord = NewCoordinator(context.Background(), factory, send, timeout, func(id domain.RemoteID, err error) {
		h.mu.Lock()
		h.failed = append(h.failed, id)
		h.mu.Unlock()
	})
	return h
}

func (h *meshHarness) addPeer(t *testing.T, id string, role core.LinkRole, tracks ...core.LocalTrack) {
	t.Helper()
	p := &domain.Participant{RemoteID: domain.RemoteID(id), DisplayName: id}
	if err := h.coord.AddPeer(p, role, tracks); err != nil {
		t.Fatalf("AddPeer(%s) failed: %v", id, err)
	}
}

func TestCoordinatorOneLinkPerPeer(t *testing.T) {
	h := newMeshHarness(t, 0)
	mic := &fakeTrack{id: "mic", kind: core.TrackAudio}
	cam := &fakeTrack{id: "cam", kind: core.TrackVideo}

	h.addPeer(t, "P1", core.RoleInitiator, mic, cam)
	h.addPeer(t, "P2", core.RoleResponder, mic, cam)
	// Re-adding an existing peer is a no-op.
	h.addPeer(t, "P1", core.RoleResponder)

	if h.coord.Count() != 2 {
		t.Fatalf("Expected 2 links, got %d", h.coord.Count())
	}
	if role, _ := h.coord.RoleOf("P1"); role != core.RoleInitiator {
		t.Errorf("Expected P1 to keep its initiator role, got %s", role)
	}
	if st, _ := h.coord.StateOf("P1"); st != LinkNegotiating {
		t.Errorf("Expected initiator link negotiating, got %s", st)
	}
	if st, _ := h.coord.StateOf("P2"); st != LinkCreated {
		t.Errorf("Expected responder link created until first envelope, got %s", st)
	}
	if got := h.links["P1"].trackIDs(); len(got) != 2 {
		t.Errorf("Expected both tracks attached, got %v", got)
	}
}

func TestCoordinatorRemovePeerIdempotent(t *testing.T) {
	h := newMeshHarness(t, 0)
	h.addPeer(t, "P1", core.RoleInitiator)

	h.coord.RemovePeer("P1")
	h.coord.RemovePeer("P1")
	h.coord.RemovePeer("unknown")

	if h.coord.Count() != 0 {
		t.Errorf("Expected 0 links, got %d", h.coord.Count())
	}
	if !h.links["P1"].closed {
		t.Error("Expected removed link to be closed")
	}
}

func TestCoordinatorRouteSignal(t *testing.T) {
	h := newMeshHarness(t, 0)
	h.addPeer(t, "P1", core.RoleResponder)

	env := core.SignalEnvelope{From: "P1", Kind: core.EnvelopeOffer}
	h.coord.RouteSignal(env)

	if st, _ := h.coord.StateOf("P1"); st != LinkNegotiating {
		t.Errorf("Expected responder negotiating after first envelope, got %s", st)
	}
	if got := len(h.links["P1"].handled); got != 1 {
		t.Errorf("Expected 1 envelope handled, got %d", got)
	}

	// Unknown sender is dropped without side effects.
	h.coord.RouteSignal(core.SignalEnvelope{From: "ghost", Kind: core.EnvelopeOffer})
	if h.coord.Count() != 1 {
		t.Errorf("Expected link set unchanged, got %d", h.coord.Count())
	}
}

func TestCoordinatorBadEnvelopeEvictsOnlyThatPeer(t *testing.T) {
	h := newMeshHarness(t, 0)
	h.addPeer(t, "P1", core.RoleResponder)
	h.addPeer(t, "P2", core.RoleResponder)
	h.links["P1"].handleErr = errors.New("sdp parse failure")

	h.coord.RouteSignal(core.SignalEnvelope{From: "P1", Kind: core.EnvelopeOffer})

	if h.coord.Count() != 1 {
		t.Fatalf("Expected only the failed link removed, got %d links", h.coord.Count())
	}
	if _, ok := h.coord.StateOf("P2"); !ok {
		t.Error("Expected P2 untouched by P1's failure")
	}
	if len(h.failed) != 1 || h.failed[0] != "P1" {
		t.Errorf("Expected P1 reported failed, got %v", h.failed)
	}
	if !h.links["P1"].closed {
		t.Error("Expected failed link closed")
	}
}

func TestCoordinatorTransportStates(t *testing.T) {
	h := newMeshHarness(t, 0)
	h.addPeer(t, "P1", core.RoleInitiator)

	h.links["P1"].reportState(core.TransportConnected)
	if st, _ := h.coord.StateOf("P1"); st != LinkConnected {
		t.Errorf("Expected connected, got %s", st)
	}

	h.links["P1"].reportState(core.TransportDisconnected)
	if st, _ := h.coord.StateOf("P1"); st != LinkReconnecting {
		t.Errorf("Expected reconnecting on transient failure, got %s", st)
	}

	h.links["P1"].reportState(core.TransportFailed)
	if h.coord.Count() != 0 {
		t.Error("Expected failed link evicted")
	}
	if len(h.failed) != 1 || h.failed[0] != "P1" {
		t.Errorf("Expected P1 reported failed, got %v", h.failed)
	}
}

func TestCoordinatorNegotiationTimeout(t *testing.T) {
	h := newMeshHarness(t, 20*time.Millisecond)
	h.addPeer(t, "P1", core.RoleInitiator)
	h.addPeer(t, "P2", core.RoleInitiator)

	// P2 connects in time, P1 stays stuck.
	h.links["P2"].reportState(core.TransportConnected)

	deadline := time.After(2 * time.Second)
	for h.coord.Count() != 1 {
		select {
		case <-deadline:
			t.Fatal("Expected stuck link evicted before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, ok := h.coord.StateOf("P2"); !ok {
		t.Error("Expected connected link to survive the timeout")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.failed) != 1 || h.failed[0] != "P1" {
		t.Errorf("Expected only P1 evicted, got %v", h.failed)
	}
}

func TestCoordinatorSwapActiveVideo(t *testing.T) {
	h := newMeshHarness(t, 0)
	mic := &fakeTrack{id: "mic", kind: core.TrackAudio}
	cam := &fakeTrack{id: "cam", kind: core.TrackVideo}
	screen := &fakeTrack{id: "screen", kind: core.TrackVideo}

	h.addPeer(t, "P1", core.RoleInitiator, mic, cam)
	h.addPeer(t, "P2", core.RoleInitiator, mic, cam)
	h.links["P1"].reportState(core.TransportConnected)
	h.links["P2"].reportState(core.TransportConnected)

	// P2 cannot replace in place and falls back to remove-then-add.
	h.links["P2"].replaceErr = errors.New("no sender")

	h.coord.SwapActiveVideo(cam, screen)

	for _, id := range []domain.RemoteID{"P1", "P2"} {
		got := h.links[id].trackIDs()
		hasMic, hasScreen, hasCam := false, false, false
		for _, tid := range got {
			switch tid {
			case "mic":
				hasMic = true
			case "screen":
				hasScreen = true
			case "cam":
				hasCam = true
			}
		}
		if !hasMic {
			t.Errorf("%s: expected audio untouched by video swap, got %v", id, got)
		}
		if !hasScreen || hasCam {
			t.Errorf("%s: expected video swapped to screen, got %v", id, got)
		}
		refs := h.coord.links[id].Tracks()
		hasScreen, hasCam = false, false
		for _, ref := range refs {
			switch ref {
			case screen:
				hasScreen = true
			case cam:
				hasCam = true
			}
		}
		if !hasScreen || hasCam {
			t.Errorf("%s: expected the link to record the swapped video, got %d refs", id, len(refs))
		}
	}
}

func TestCoordinatorSwapWithoutCameraTrack(t *testing.T) {
	h := newMeshHarness(t, 0)
	mic := &fakeTrack{id: "mic", kind: core.TrackAudio}
	screen := &fakeTrack{id: "screen", kind: core.TrackVideo}

	// Audio-only session: no camera track was ever attached, so a
	// screen share swaps against a nil source.
	h.addPeer(t, "P1", core.RoleInitiator, mic)
	h.links["P1"].reportState(core.TransportConnected)

	h.coord.SwapActiveVideo(nil, screen)
	got := h.links["P1"].trackIDs()
	if len(got) != 2 || got[0] != "mic" || got[1] != "screen" {
		t.Fatalf("Expected screen added next to mic, got %v", got)
	}

	h.coord.SwapActiveVideo(screen, nil)
	got = h.links["P1"].trackIDs()
	if len(got) != 1 || got[0] != "mic" {
		t.Fatalf("Expected screen removed again, got %v", got)
	}
	if refs := h.coord.links["P1"].Tracks(); len(refs) != 1 || refs[0] != mic {
		t.Errorf("Expected only the mic recorded on the link, got %d refs", len(refs))
	}

	// Nothing to swap either way is a no-op, not a panic.
	h.coord.SwapActiveVideo(nil, nil)
}

func TestCoordinatorCloseAll(t *testing.T) {
	h := newMeshHarness(t, 0)
	h.addPeer(t, "P1", core.RoleInitiator)
	h.addPeer(t, "P2", core.RoleResponder)

	h.coord.CloseAll()

	if h.coord.Count() != 0 {
		t.Errorf("Expected no links after CloseAll, got %d", h.coord.Count())
	}
	for id, fl := range h.links {
		if !fl.closed {
			t.Errorf("Expected %s closed", id)
		}
	}
}
