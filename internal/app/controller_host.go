package app

import (
	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

func (c *Controller) requireHost() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ErrNoSession
	}
	if c.sess.Role != domain.RoleHost {
		return ErrNotHost
	}
	return nil
}

// AdmitParticipant is the only path that lets a queued participant
// proceed to mesh join. Re-admitting a decided id is a no-op.
func (c *Controller) AdmitParticipant(id domain.RemoteID) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	req, ok := c.admissionRef().Admit(id)
	if !ok {
		return nil
	}
	if err := c.transport.Send(core.KindAdmitParticipant, core.AdmitPayload{ParticipantID: id}); err != nil {
		return err
	}
	// The admitted peer dials us once the server lets it through.
	c.addParticipant(req.RemoteID, req.DisplayName, core.RoleResponder)
	log.Info().Str("module", "app.controller").Str("remote", string(id)).Msg("participant admitted")
	return nil
}

// RejectParticipant signals rejection; no mesh join ever occurs.
func (c *Controller) RejectParticipant(id domain.RemoteID) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if _, ok := c.admissionRef().Reject(id); !ok {
		return nil
	}
	log.Info().Str("module", "app.controller").Str("remote", string(id)).Msg("participant rejected")
	return c.transport.Send(core.KindRejectParticipant, core.AdmitPayload{ParticipantID: id})
}

// AdmitAll admits every queued request in enqueue order, first-waiting
// first. An empty queue is a no-op.
func (c *Controller) AdmitAll() error {
	if err := c.requireHost(); err != nil {
		return err
	}
	reqs := c.admissionRef().AdmitAll()
	if len(reqs) == 0 {
		return nil
	}
	if err := c.transport.Send(core.KindAdmitAll, nil); err != nil {
		return err
	}
	for _, req := range reqs {
		c.addParticipant(req.RemoteID, req.DisplayName, core.RoleResponder)
	}
	log.Info().Str("module", "app.controller").Int("count", len(reqs)).Msg("admitted all")
	return nil
}

// PendingAdmissions exposes the waiting queue for the host UI.
func (c *Controller) PendingAdmissions() []domain.AdmissionRequest {
	return c.admissionRef().Pending()
}

// LockRoom routes new non-host joins through the admission queue.
// Room lock is host-local policy; the wire protocol carries no lock kind.
func (c *Controller) LockRoom() error {
	if err := c.requireHost(); err != nil {
		return err
	}
	c.mu.Lock()
	c.room.Locked = true
	c.mu.Unlock()
	log.Info().Str("module", "app.controller").Msg("room locked")
	return nil
}

func (c *Controller) UnlockRoom() error {
	if err := c.requireHost(); err != nil {
		return err
	}
	c.mu.Lock()
	c.room.Locked = false
	c.mu.Unlock()
	return nil
}

// StartMeeting opens the room so joins no longer queue by default.
func (c *Controller) StartMeeting() error {
	if err := c.requireHost(); err != nil {
		return err
	}
	c.mu.Lock()
	c.room.Started = true
	c.mu.Unlock()
	return c.transport.Send(core.KindMeetingStarted, nil)
}

// EndMeetingForAll broadcasts the end event, then performs the same
// local teardown as Leave.
func (c *Controller) EndMeetingForAll(message string) error {
	if err := c.requireHost(); err != nil {
		return err
	}
	if err := c.transport.Send(core.KindMeetingEnded, core.MeetingEndedPayload{Message: message}); err != nil {
		log.Warn().Err(err).Str("module", "app.controller").Msg("end broadcast failed, leaving anyway")
	}
	c.Leave()
	return nil
}
