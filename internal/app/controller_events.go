package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

// handleEvent is the single dispatch point for inbound signaling.
// Events for one peer arrive in send order from the transport's read
// loop; handlers never block on another peer's link.
func (c *Controller) handleEvent(ev core.Event) {
	switch ev.Kind {
	case core.KindExistingUsers:
		c.handleExistingUsers(ev.Payload)
	case core.KindUserConnected:
		c.handleUserConnected(ev.Payload)
	case core.KindUserDisconnected:
		var p core.UserDisconnectedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			log.Error().Err(err).Str("module", "app.controller").Msg("bad user-disconnected payload")
			return
		}
		c.removeParticipant(p.SocketID, "left the meeting")
	case core.KindSignal:
		var env core.SignalEnvelope
		if err := json.Unmarshal(ev.Payload, &env); err != nil {
			log.Error().Err(err).Str("module", "app.controller").Msg("bad signal payload")
			return
		}
		if env.From == "" {
			env.From = ev.From
		}
		c.mu.Lock()
		m := c.mesh
		c.mu.Unlock()
		if m != nil {
			m.RouteSignal(env)
		}
	case core.KindChatMessage:
		var p core.ChatMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		if c.callbacks.OnChat != nil {
			c.callbacks.OnChat(p)
		}
	case core.KindUserTyping:
		var p core.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		c.notice(fmt.Sprintf("%s is typing…", p.UserName))
	case core.KindUserStopTyping:
		// nothing to project locally
	case core.KindToggleAudio, core.KindToggleVideo:
		var p core.TogglePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		kind := core.TrackAudio
		if ev.Kind == core.KindToggleVideo {
			kind = core.TrackVideo
		}
		if c.callbacks.OnPeerMedia != nil {
			c.callbacks.OnPeerMedia(ev.From, kind, p.Enabled)
		}
	case core.KindHandRaiseToggle:
		var p core.HandRaisePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		c.mu.Lock()
		if participant, ok := c.roster[ev.From]; ok {
			participant.HandRaised = p.Raised
		}
		c.mu.Unlock()
		c.notifyRoster()
	case core.KindStartScreenShare:
		c.notice(fmt.Sprintf("%s started screen sharing", ev.From))
	case core.KindStopScreenShare:
		c.notice(fmt.Sprintf("%s stopped screen sharing", ev.From))
	case core.KindWaitingRoomStatus:
		var p core.WaitingRoomStatusPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		c.admissionRef().HandleWaitingRoom(p.InWaitingRoom)
		if p.Message != "" {
			c.notice(p.Message)
		}
	case core.KindAdmitted:
		c.admissionRef().HandleAdmitted()
	case core.KindRejected:
		var p core.RejectedPayload
		_ = json.Unmarshal(ev.Payload, &p)
		c.failAdmission(c.admissionRef().HandleRejected(p.Message))
	case core.KindMeetingStarted:
		c.mu.Lock()
		c.room.Started = true
		c.mu.Unlock()
		c.notice("meeting started")
	case core.KindMeetingEnded:
		var p core.MeetingEndedPayload
		_ = json.Unmarshal(ev.Payload, &p)
		c.failAdmission(c.admissionRef().HandleMeetingEnded(p.Message))
	default:
		log.Debug().Str("module", "app.controller").Str("kind", string(ev.Kind)).Msg("unhandled event")
	}
}

func (c *Controller) handleExistingUsers(payload json.RawMessage) {
	var list []core.RosterEntry
	if err := json.Unmarshal(payload, &list); err != nil {
		log.Error().Err(err).Str("module", "app.controller").Msg("bad existing-users payload")
		return
	}
	// Mesh join is gated strictly on admission reaching Active; a roster
	// delivered earlier is replayed on activation.
	if !c.admissionRef().CanJoinMesh() {
		c.mu.Lock()
		c.pendingRoster = append(c.pendingRoster, list...)
		c.mu.Unlock()
		return
	}
	// The newcomer dials every existing participant.
	for _, entry := range list {
		c.addParticipant(entry.SocketID, entry.UserName, core.RoleInitiator)
	}
}

func (c *Controller) handleUserConnected(payload json.RawMessage) {
	var entry core.RosterEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		log.Error().Err(err).Str("module", "app.controller").Msg("bad user-connected payload")
		return
	}
	c.mu.Lock()
	sess := c.sess
	room := c.room
	c.mu.Unlock()
	if sess == nil {
		return
	}
	// A host holds newcomers in the admission queue while the room is
	// locked or the meeting has not started; no link is created until a
	// decision admits them.
	if sess.Role == domain.RoleHost && (room.Locked || !room.Started) {
		c.admissionRef().Enqueue(domain.AdmissionRequest{
			RemoteID:    entry.SocketID,
			DisplayName: entry.UserName,
			RequestedAt: time.Now(),
		})
		c.notice(fmt.Sprintf("%s is waiting to join", entry.UserName))
		return
	}
	if !c.admissionRef().CanJoinMesh() {
		return
	}
	// A connecting peer dials us, so our side responds.
	c.addParticipant(entry.SocketID, entry.UserName, core.RoleResponder)
}

func (c *Controller) onAdmissionActive() {
	c.mu.Lock()
	pending := c.pendingRoster
	c.pendingRoster = nil
	done := c.joinDone
	c.joinDone = nil
	c.mu.Unlock()

	for _, entry := range pending {
		c.addParticipant(entry.SocketID, entry.UserName, core.RoleInitiator)
	}
	if done != nil {
		done <- nil
	}
}

// failAdmission ends the local session on a terminal admission error.
func (c *Controller) failAdmission(aerr *core.AdmissionError) {
	c.mu.Lock()
	done := c.joinDone
	c.joinDone = nil
	c.mu.Unlock()
	if done != nil {
		// Join is still in flight; it owns the teardown.
		done <- aerr
		return
	}
	c.notice(aerr.Error())
	c.Leave()
}

func (c *Controller) addParticipant(id domain.RemoteID, name string, role core.LinkRole) {
	c.mu.Lock()
	if c.sess == nil || c.mesh == nil {
		c.mu.Unlock()
		return
	}
	// A roster entry is never created twice for the same id while present.
	if _, ok := c.roster[id]; ok {
		c.mu.Unlock()
		return
	}
	p := &domain.Participant{RemoteID: id, DisplayName: name}
	c.roster[id] = p
	m := c.mesh
	tracks := c.sendTracksLocked()
	c.mu.Unlock()

	if err := m.AddPeer(p, role, tracks); err != nil {
		c.mu.Lock()
		delete(c.roster, id)
		c.mu.Unlock()
		log.Warn().Err(err).Str("module", "app.controller").Str("remote", string(id)).Msg("peer add failed")
		return
	}
	c.notifyRoster()
}

func (c *Controller) removeParticipant(id domain.RemoteID, reason string) {
	c.mu.Lock()
	p, ok := c.roster[id]
	if ok {
		delete(c.roster, id)
	}
	m := c.mesh
	c.mu.Unlock()
	if m != nil {
		m.RemovePeer(id)
	}
	if !ok {
		return
	}
	c.notice(fmt.Sprintf("%s %s", p.DisplayName, reason))
	c.notifyRoster()
}

// onPeerFailed evicts a failed peer from the roster so the UI can show
// a disconnected notice. No other link is affected.
func (c *Controller) onPeerFailed(id domain.RemoteID, err error) {
	log.Warn().Err(err).Str("module", "app.controller").Str("remote", string(id)).Msg("peer evicted")
	c.removeParticipant(id, "disconnected")
}

// handleDisconnect applies the controller's reconnect policy for
// signaling blips: links stay up, the transport is redialed with
// backoff, and the session ends only after the attempts are exhausted.
func (c *Controller) handleDisconnect(reason error) {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.Connection != domain.ConnActive {
		c.mu.Unlock()
		return
	}
	sess.Connection = domain.ConnReconnecting
	local := sess.Local
	room := sess.Room
	sctx := c.sctx
	c.mu.Unlock()

	log.Warn().Err(reason).Str("module", "app.controller").Msg("signaling disconnected, retrying")

	go func() {
		for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
			select {
			case <-time.After(c.cfg.ReconnectBackoff):
			case <-sctx.Context().Done():
				return
			}
			if !sctx.Alive() {
				return
			}
			if err := c.transport.Connect(sctx.Context(), local, room); err != nil {
				log.Warn().Err(err).Str("module", "app.controller").Int("attempt", attempt).Msg("reconnect failed")
				continue
			}
			_ = c.transport.Send(core.KindJoinRoom, core.JoinRoomPayload{
				RoomID: room, UserID: local.ID, UserName: local.DisplayName,
			})
			c.mu.Lock()
			if c.sess == sess && sess.Connection == domain.ConnReconnecting {
				sess.Connection = domain.ConnActive
			}
			c.mu.Unlock()
			log.Info().Str("module", "app.controller").Msg("signaling reconnected")
			return
		}
		log.Error().Str("module", "app.controller").Msg("reconnect attempts exhausted")
		c.Leave()
	}()
}

func (c *Controller) admissionRef() *Admission {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.admission == nil {
		c.admission = NewAdmission()
	}
	return c.admission
}

