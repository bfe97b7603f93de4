// Package app orchestrates the session layer: registry, admission,
// peer mesh and the controller the UI drives. Everything flows through
// the controller; there is no signaling-to-UI or UI-to-peer shortcut.
package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/app/mesh"
	"github.com/MishthiJain8/joinright/internal/config"
	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

var (
	ErrSessionActive = errors.New("session already active")
	ErrNoSession     = errors.New("no active session")
	ErrNotHost       = errors.New("host-only operation")
)

// Uploader pushes a produced file to the collaborating HTTP API.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Callbacks are the controller's outbound edge to the rendering layer.
// All are optional.
type Callbacks struct {
	OnChat      func(core.ChatMessagePayload)
	OnRoster    func([]domain.Participant)
	OnNotice    func(string)
	OnPeerMedia func(remote domain.RemoteID, kind core.TrackKind, enabled bool)
}

// Deps wires the controller's collaborators.
type Deps struct {
	Registry    *Registry
	Transport   core.SignalTransport
	Capture     core.CaptureDevice
	LinkFactory core.LinkFactory
	Recorder    core.Recorder
	Uploader    Uploader
	Callbacks   Callbacks
}

// Controller is the façade the UI drives and the single source of truth
// for roster and session state.
type Controller struct {
	cfg         *config.Config
	registry    *Registry
	transport   core.SignalTransport
	capture     core.CaptureDevice
	linkFactory core.LinkFactory
	recorder    core.Recorder
	uploader    Uploader
	callbacks   Callbacks

	mu            sync.Mutex
	sess          *domain.Session
	key           ContextKey
	sctx          *SessionContext
	admission     *Admission
	mesh          *mesh.Coordinator
	bundle        *core.TrackBundle
	screen        *core.ScreenSource
	roster        map[domain.RemoteID]*domain.Participant
	pendingRoster []core.RosterEntry
	room          domain.Room
	handRaised    bool
	typing        bool
	recording     bool
	joinDone      chan error
}

func NewController(cfg *config.Config, deps Deps) *Controller {
	return &Controller{
		cfg:         cfg,
		registry:    deps.Registry,
		transport:   deps.Transport,
		capture:     deps.Capture,
		linkFactory: deps.LinkFactory,
		recorder:    deps.Recorder,
		uploader:    deps.Uploader,
		callbacks:   deps.Callbacks,
		roster:      make(map[domain.RemoteID]*domain.Participant),
	}
}

// Join acquires media, connects signaling, announces presence and waits
// for admission. On camera failure it degrades to audio-only; it aborts
// only on total device failure, unreachable signaling, or rejection.
// A Leave() racing an in-flight Join cancels its effects.
func (c *Controller) Join(ctx context.Context, local *domain.User, room domain.RoomID, role domain.Role) error {
	c.mu.Lock()
	if c.sess != nil && c.sess.Connection != domain.ConnClosed {
		c.mu.Unlock()
		return ErrSessionActive
	}
	key := ContextKey{Session: core.SessionID(uuid.NewString()), User: local.ID, Room: room}
	sctx := c.registry.Create(context.Background(), key)
	c.key = key
	c.sctx = sctx
	c.sess = &domain.Session{
		Room:       room,
		Local:      local,
		Role:       role,
		Connection: domain.ConnJoining,
		Media:      domain.MediaState{ActiveSource: domain.SourceCamera},
	}
	c.admission = NewAdmission()
	c.roster = make(map[domain.RemoteID]*domain.Participant)
	c.pendingRoster = nil
	c.room = domain.Room{ID: room}
	c.handRaised = false
	joinDone := make(chan error, 1)
	c.joinDone = joinDone
	c.mesh = mesh.NewCoordinator(sctx.Context(), c.linkFactory, c.sendEnvelope, c.cfg.NegotiationTimeout, c.onPeerFailed)
	admission := c.admission
	c.mu.Unlock()

	admission.OnActive(c.onAdmissionActive)

	log.Info().Str("module", "app.controller").Str("room", string(room)).Str("role", role.String()).Msg("joining")

	bundle, err := c.capture.AcquireCamera(sctx.Context(), core.CameraConstraints{
		Width:     c.cfg.CameraWidth,
		Height:    c.cfg.CameraHeight,
		FrameRate: float32(c.cfg.CameraFrameRate),
	})
	if err != nil {
		var derr *core.DeviceError
		if errors.As(err, &derr) {
			log.Warn().Err(err).Str("module", "app.controller").Msg("camera unavailable, degrading to audio-only")
			bundle, err = c.capture.AcquireAudio(sctx.Context())
		}
		if err != nil {
			c.Leave()
			return err
		}
	}
	c.mu.Lock()
	c.bundle = bundle
	c.sess.Media.AudioEnabled = bundle.MicAudio != nil
	c.sess.Media.VideoEnabled = bundle.CameraVideo != nil
	c.mu.Unlock()
	sctx.Track("media", func() error { c.capture.Release(bundle); return nil })

	if !sctx.Alive() {
		return context.Canceled
	}

	c.transport.OnEvent(func(ev core.Event) {
		if !sctx.Alive() {
			return
		}
		c.handleEvent(ev)
	})
	c.transport.OnDisconnect(func(reason error) {
		if !sctx.Alive() {
			return
		}
		c.handleDisconnect(reason)
	})

	if err := c.transport.Connect(sctx.Context(), local, room); err != nil {
		c.Leave()
		return err
	}
	sctx.Track("signaling", func() error { c.transport.Close(); return nil })

	admission.Begin()
	announce := core.JoinRoomPayload{RoomID: room, UserID: local.ID, UserName: local.DisplayName}
	if err := c.transport.Send(core.KindJoinRoom, announce); err != nil {
		c.Leave()
		return err
	}
	if role == domain.RoleHost {
		// The host's own arrival starts the meeting; from here the
		// waiting room holds newcomers only while the room is locked.
		c.mu.Lock()
		c.room.Started = true
		c.mu.Unlock()
		admission.Activate()
	}

	select {
	case err := <-joinDone:
		if err != nil {
			c.Leave()
			return err
		}
	case <-ctx.Done():
		c.Leave()
		return ctx.Err()
	case <-sctx.Context().Done():
		return context.Canceled
	}

	c.mu.Lock()
	c.sess.Connection = domain.ConnActive
	c.mu.Unlock()
	log.Info().Str("module", "app.controller").Str("room", string(room)).Msg("joined")
	return nil
}

// Leave always succeeds and is idempotent. Teardown order: peer links
// first, then the session context with its tracked resources, so no
// late event can recreate resources after teardown begins.
func (c *Controller) Leave() {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.Connection == domain.ConnClosed || sess.Connection == domain.ConnLeaving {
		c.mu.Unlock()
		return
	}
	sess.Connection = domain.ConnLeaving
	key := c.key
	m := c.mesh
	screen := c.screen
	rec := c.recording
	c.bundle = nil
	c.screen = nil
	c.recording = false
	c.roster = make(map[domain.RemoteID]*domain.Participant)
	c.pendingRoster = nil
	c.joinDone = nil
	c.mu.Unlock()

	if rec && c.recorder != nil {
		if _, err := c.recorder.Stop(); err != nil {
			log.Warn().Err(err).Str("module", "app.controller").Msg("recorder stop during leave")
		}
	}
	if m != nil {
		m.CloseAll()
	}
	if screen != nil {
		c.capture.ReleaseScreen(screen)
	}
	// Destroy runs the tracked releases: signaling close, then the
	// media bundle. Links are already down, so no track is in use.
	c.registry.Destroy(key)

	c.mu.Lock()
	sess.Connection = domain.ConnClosed
	c.mu.Unlock()
	log.Info().Str("module", "app.controller").Str("room", string(sess.Room)).Msg("left")
}

// ToggleAudio flips mic enablement in place and broadcasts the new
// state. No renegotiation.
func (c *Controller) ToggleAudio() error {
	c.mu.Lock()
	if c.bundle == nil || c.bundle.MicAudio == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	t := c.bundle.MicAudio
	enabled := !t.Enabled()
	t.SetEnabled(enabled)
	c.sess.Media.AudioEnabled = enabled
	c.mu.Unlock()
	return c.transport.Send(core.KindToggleAudio, core.TogglePayload{Enabled: enabled})
}

func (c *Controller) ToggleVideo() error {
	c.mu.Lock()
	if c.bundle == nil || c.bundle.CameraVideo == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	t := c.bundle.CameraVideo
	enabled := !t.Enabled()
	t.SetEnabled(enabled)
	c.sess.Media.VideoEnabled = enabled
	c.mu.Unlock()
	return c.transport.Send(core.KindToggleVideo, core.TogglePayload{Enabled: enabled})
}

// StartScreenShare acquires a screen source and rewires every link's
// outbound video to it. A capture failure leaves the active source at
// camera with no renegotiation attempted.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if c.sess == nil || c.bundle == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.screen != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	src, err := c.capture.AcquireScreen(ctx, core.ScreenConstraints{FrameRate: float32(c.cfg.ScreenFrameRate)})
	if err != nil {
		return err
	}
	// The native "stop sharing" control is treated identically to an
	// explicit StopScreenShare call.
	src.Video.OnEnded(func() { c.StopScreenShare() })

	c.mu.Lock()
	if c.screen != nil || c.bundle == nil {
		c.mu.Unlock()
		c.capture.ReleaseScreen(src)
		return nil
	}
	c.screen = src
	c.bundle.ScreenVideo = src.Video
	c.bundle.ScreenAudio = src.Audio
	from := c.bundle.CameraVideo
	m := c.mesh
	c.sess.Media.ActiveSource = domain.SourceScreen
	c.mu.Unlock()

	m.SwapActiveVideo(from, src.Video)
	return c.transport.Send(core.KindStartScreenShare, nil)
}

func (c *Controller) StopScreenShare() error {
	c.mu.Lock()
	src := c.screen
	if src == nil {
		c.mu.Unlock()
		return nil
	}
	c.screen = nil
	c.bundle.ScreenVideo = nil
	c.bundle.ScreenAudio = nil
	cam := c.bundle.CameraVideo
	m := c.mesh
	c.sess.Media.ActiveSource = domain.SourceCamera
	c.mu.Unlock()

	m.SwapActiveVideo(src.Video, cam)
	c.capture.ReleaseScreen(src)
	return c.transport.Send(core.KindStopScreenShare, nil)
}

// SendChat is a pure signaling broadcast; no mesh impact.
func (c *Controller) SendChat(text string) error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	sender := c.sess.Local.DisplayName
	c.mu.Unlock()
	return c.transport.Send(core.KindChatMessage, core.ChatMessagePayload{
		Sender:  sender,
		Message: text,
		Type:    core.ChatTypeText,
		Time:    time.Now().Format(time.RFC3339),
	})
}

// SendReaction rides the chat channel with its own message type.
func (c *Controller) SendReaction(kind string) error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	sender := c.sess.Local.DisplayName
	c.mu.Unlock()
	return c.transport.Send(core.KindChatMessage, core.ChatMessagePayload{
		Sender:  sender,
		Message: kind,
		Type:    core.ChatTypeReaction,
		Time:    time.Now().Format(time.RFC3339),
	})
}

func (c *Controller) ToggleHandRaise() error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.handRaised = !c.handRaised
	raised := c.handRaised
	c.mu.Unlock()
	return c.transport.Send(core.KindHandRaiseToggle, core.HandRaisePayload{Raised: raised})
}

// SetTyping emits the typing indicator edge-triggered.
func (c *Controller) SetTyping(typing bool) error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.typing == typing {
		c.mu.Unlock()
		return nil
	}
	c.typing = typing
	local := c.sess.Local
	c.mu.Unlock()
	if typing {
		return c.transport.Send(core.KindUserTyping, core.TypingPayload{UserID: local.ID, UserName: local.DisplayName})
	}
	return c.transport.Send(core.KindUserStopTyping, core.StopTypingPayload{UserID: local.ID})
}

// MuteLocally flips the local-only mute projection for one participant.
func (c *Controller) MuteLocally(id domain.RemoteID, muted bool) {
	c.mu.Lock()
	if p, ok := c.roster[id]; ok {
		p.MutedLocally = muted
	}
	c.mu.Unlock()
	c.notifyRoster()
}

// StartRecording captures the local stream to disk.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	if c.recorder == nil {
		c.mu.Unlock()
		return errors.New("recording not configured")
	}
	if c.sess == nil || c.bundle == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.recording {
		c.mu.Unlock()
		return nil
	}
	bundle := c.bundle
	sctx := c.sctx
	c.mu.Unlock()

	if err := c.recorder.Start(sctx.Context(), bundle); err != nil {
		return err
	}
	c.mu.Lock()
	c.recording = true
	c.mu.Unlock()
	return nil
}

// StopRecording finalizes the capture and uploads the files
// best-effort; an upload failure never tears the session down.
func (c *Controller) StopRecording(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil, nil
	}
	c.recording = false
	c.mu.Unlock()

	files, err := c.recorder.Stop()
	if err != nil {
		return nil, err
	}
	if c.uploader != nil {
		for _, f := range files {
			if _, err := c.uploader.Upload(ctx, f); err != nil {
				log.Warn().Err(err).Str("module", "app.controller").Str("file", f).Msg("recording upload failed")
			}
		}
	}
	return files, nil
}

// Session returns a snapshot of the local session state.
func (c *Controller) Session() (domain.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return domain.Session{}, false
	}
	return *c.sess, true
}

// Roster returns the participants sorted by remote id.
func (c *Controller) Roster() []domain.Participant {
	c.mu.Lock()
	out := make([]domain.Participant, 0, len(c.roster))
	for _, p := range c.roster {
		out = append(out, *p)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

func (c *Controller) sendEnvelope(env core.SignalEnvelope) error {
	return c.transport.Send(core.KindSignal, env)
}

func (c *Controller) sendTracksLocked() []core.LocalTrack {
	if c.bundle == nil {
		return nil
	}
	out := make([]core.LocalTrack, 0, 3)
	if c.bundle.MicAudio != nil {
		out = append(out, c.bundle.MicAudio)
	}
	if c.sess.Media.ActiveSource == domain.SourceScreen && c.bundle.ScreenVideo != nil {
		out = append(out, c.bundle.ScreenVideo)
		if c.bundle.ScreenAudio != nil {
			out = append(out, c.bundle.ScreenAudio)
		}
	} else if c.bundle.CameraVideo != nil {
		out = append(out, c.bundle.CameraVideo)
	}
	return out
}

func (c *Controller) notifyRoster() {
	if c.callbacks.OnRoster != nil {
		c.callbacks.OnRoster(c.Roster())
	}
}

func (c *Controller) notice(msg string) {
	if c.callbacks.OnNotice != nil {
		c.callbacks.OnNotice(msg)
	}
}
