package mesh

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

type LinkState int

const (
	LinkCreated LinkState = iota
	LinkNegotiating
	LinkConnected
	LinkReconnecting
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkCreated:
		return "created"
	case LinkNegotiating:
		return "negotiating"
	case LinkConnected:
		return "connected"
	case LinkReconnecting:
		return "reconnecting"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Link is one peer connection and its lifecycle state. Operations on a
// link are serialized by its mutex; links never touch each other.
type Link struct {
	remote domain.RemoteID
	role   core.LinkRole
	ml     core.MediaLink

	mu     sync.Mutex
	state  LinkState
	timer  *time.Timer
	tracks []core.LocalTrack
}

func newLink(remote domain.RemoteID, role core.LinkRole, ml core.MediaLink) *Link {
	return &Link{remote: remote, role: role, ml: ml, state: LinkCreated}
}

func (l *Link) Remote() domain.RemoteID { return l.remote }
func (l *Link) Role() core.LinkRole { return l.role }

func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Tracks are the local tracks attached at negotiation time.
func (l *Link) Tracks() []core.LocalTrack {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.LocalTrack, len(l.tracks))
	copy(out, l.tracks)
	return out
}

func (l *Link) attach(t core.LocalTrack) error {
	if err := l.ml.AddTrack(t); err != nil {
		return err
	}
	l.mu.Lock()
	l.tracks = append(l.tracks, t)
	l.mu.Unlock()
	return nil
}

// recordSwap keeps the attached-track list in step with a video source
// swap, so Tracks reflects what the link actually transmits.
func (l *Link) recordSwap(from, to core.LocalTrack) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.tracks[:0]
	for _, t := range l.tracks {
		if from != nil && t == from {
			continue
		}
		kept = append(kept, t)
	}
	l.tracks = kept
	if to != nil {
		l.tracks = append(l.tracks, to)
	}
}

// beginNegotiation arms the stuck-negotiation timer. A link held in
// Negotiating beyond the window is evicted, not kept forever.
func (l *Link) beginNegotiation(timeout time.Duration, onTimeout func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LinkCreated {
		return
	}
	l.state = LinkNegotiating
	if timeout > 0 {
		l.timer = time.AfterFunc(timeout, onTimeout)
	}
	log.Debug().Str("module", "app.mesh").Str("remote", string(l.remote)).Str("role", l.role.String()).Msg("negotiating")
}

func (l *Link) markConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == LinkClosed {
		return
	}
	l.state = LinkConnected
	l.stopTimerLocked()
	log.Info().Str("module", "app.mesh").Str("remote", string(l.remote)).Msg("link connected")
}

// markReconnecting handles a transient transport failure: the link is
// not destroyed, signaling continues.
func (l *Link) markReconnecting() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LinkConnected {
		return
	}
	l.state = LinkReconnecting
	log.Warn().Str("module", "app.mesh").Str("remote", string(l.remote)).Msg("link reconnecting")
}

func (l *Link) close() {
	l.mu.Lock()
	if l.state == LinkClosed {
		l.mu.Unlock()
		return
	}
	l.state = LinkClosed
	l.stopTimerLocked()
	l.mu.Unlock()
	l.ml.Close()
	log.Info().Str("module", "app.mesh").Str("remote", string(l.remote)).Msg("link closed")
}

func (l *Link) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
