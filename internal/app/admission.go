package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

type AdmissionState int

const (
	AdmissionIdle AdmissionState = iota
	AdmissionJoining
	AdmissionWaiting
	AdmissionActive
	AdmissionClosed
)

func (s AdmissionState) String() string {
	switch s {
	case AdmissionIdle:
		return "idle"
	case AdmissionJoining:
		return "joining"
	case AdmissionWaiting:
		return "awaiting-host-decision"
	case AdmissionActive:
		return "active"
	case AdmissionClosed:
		return "closed"
	}
	return "unknown"
}

// Admission tracks the local session's admission state and, for a host,
// the FIFO queue of participants waiting to enter.
type Admission struct {
	mu       sync.Mutex
	state    AdmissionState
	queue    []domain.AdmissionRequest
	decided  map[domain.RemoteID]bool
	onActive func()
}

func NewAdmission() *Admission {
	return &Admission{decided: make(map[domain.RemoteID]bool)}
}

// OnActive registers the hook fired on the single transition to Active.
func (a *Admission) OnActive(fn func()) {
	a.mu.Lock()
	a.onActive = fn
	a.mu.Unlock()
}

func (a *Admission) State() AdmissionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CanJoinMesh gates peer link creation on reaching Active.
func (a *Admission) CanJoinMesh() bool {
	return a.State() == AdmissionActive
}

func (a *Admission) Begin() {
	a.mu.Lock()
	if a.state == AdmissionIdle || a.state == AdmissionClosed {
		a.state = AdmissionJoining
	}
	a.mu.Unlock()
}

// Activate moves straight to Active: unlocked room, or the host itself.
func (a *Admission) Activate() {
	a.transitionActive()
}

func (a *Admission) HandleWaitingRoom(inWaitingRoom bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !inWaitingRoom {
		return
	}
	if a.state == AdmissionJoining {
		a.state = AdmissionWaiting
		log.Info().Str("module", "app.admission").Msg("placed in waiting room")
	}
}

func (a *Admission) HandleAdmitted() {
	a.transitionActive()
}

func (a *Admission) transitionActive() {
	a.mu.Lock()
	if a.state == AdmissionActive || a.state == AdmissionClosed {
		a.mu.Unlock()
		return
	}
	a.state = AdmissionActive
	fn := a.onActive
	a.mu.Unlock()
	log.Info().Str("module", "app.admission").Msg("admission active")
	if fn != nil {
		fn()
	}
}

// HandleRejected closes the local session's admission with a terminal error.
func (a *Admission) HandleRejected(message string) *core.AdmissionError {
	a.mu.Lock()
	a.state = AdmissionClosed
	a.mu.Unlock()
	return &core.AdmissionError{Reason: core.AdmissionRejected, Message: message}
}

func (a *Admission) HandleMeetingEnded(message string) *core.AdmissionError {
	a.mu.Lock()
	a.state = AdmissionClosed
	a.mu.Unlock()
	return &core.AdmissionError{Reason: core.AdmissionMeetingEnded, Message: message}
}

// Enqueue records a pending participant. Duplicates and already-decided
// ids are ignored.
func (a *Admission) Enqueue(req domain.AdmissionRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.decided[req.RemoteID] {
		return
	}
	for _, q := range a.queue {
		if q.RemoteID == req.RemoteID {
			return
		}
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	a.queue = append(a.queue, req)
	log.Info().Str("module", "app.admission").Str("remote", string(req.RemoteID)).Msg("admission request queued")
}

// Admit removes the request and marks it decided. Reports false when the
// id was never queued or already decided.
func (a *Admission) Admit(id domain.RemoteID) (domain.AdmissionRequest, bool) {
	return a.decide(id)
}

func (a *Admission) Reject(id domain.RemoteID) (domain.AdmissionRequest, bool) {
	return a.decide(id)
}

func (a *Admission) decide(id domain.RemoteID) (domain.AdmissionRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, q := range a.queue {
		if q.RemoteID == id {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			a.decided[id] = true
			return q, true
		}
	}
	return domain.AdmissionRequest{}, false
}

// AdmitAll drains the queue in enqueue order, first-waiting first.
func (a *Admission) AdmitAll() []domain.AdmissionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.queue
	a.queue = nil
	for _, q := range out {
		a.decided[q.RemoteID] = true
	}
	return out
}

func (a *Admission) Pending() []domain.AdmissionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AdmissionRequest, len(a.queue))
	copy(out, a.queue)
	return out
}
