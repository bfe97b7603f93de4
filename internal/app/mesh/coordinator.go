// Package mesh owns the set of per-remote peer links and their
// lifecycle. Events flow in from signaling and the session controller;
// roster changes and link failures flow back out through callbacks.
package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

// Coordinator maintains the one-link-per-participant invariant.
type Coordinator struct {
	factory core.LinkFactory
	send    func(core.SignalEnvelope) error
	// onPeerFailed reports an evicted peer so the roster drops it.
	onPeerFailed func(domain.RemoteID, error)
	timeout      time.Duration

	mu    sync.Mutex
	links map[domain.RemoteID]*Link
	ctx   context.Context
}

func NewCoordinator(
	ctx context.Context,
	factory core.LinkFactory,
	send func(core.SignalEnvelope) error,
	timeout time.Duration,
	onPeerFailed func(domain.RemoteID, error),
) *Coordinator {
	return &Coordinator{
		factory:      factory,
		send:         send,
		onPeerFailed: onPeerFailed,
		timeout:      timeout,
		ctx:          ctx,
		links:        make(map[domain.RemoteID]*Link),
	}
}

// AddPeer allocates a link for the participant, attaches the current
// local tracks and wires its outbound signaling. Adding an existing
// peer is a no-op.
func (c *Coordinator) AddPeer(p *domain.Participant, role core.LinkRole, tracks []core.LocalTrack) error {
	c.mu.Lock()
	if _, ok := c.links[p.RemoteID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ml, err := c.factory(p.RemoteID, role)
	if err != nil {
		return &core.NegotiationError{Remote: p.RemoteID, Reason: "create link", Err: err}
	}
	link := newLink(p.RemoteID, role, ml)

	remote := p.RemoteID
	ml.OnEnvelope(func(env core.SignalEnvelope) {
		if err := c.send(env); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("remote", string(remote)).Msg("envelope send failed")
		}
	})
	ml.OnTransportState(func(st core.TransportState) {
		switch st {
		case core.TransportConnected:
			link.markConnected()
		case core.TransportDisconnected:
			link.markReconnecting()
		case core.TransportFailed:
			c.failLink(remote, &core.NegotiationError{Remote: remote, Reason: "transport failed"})
		}
	})

	for _, t := range tracks {
		if err := link.attach(t); err != nil {
			ml.Close()
			return &core.NegotiationError{Remote: remote, Reason: "attach track", Err: err}
		}
	}

	c.mu.Lock()
	c.links[remote] = link
	c.mu.Unlock()

	if err := ml.Start(c.ctx); err != nil {
		c.failLink(remote, &core.NegotiationError{Remote: remote, Reason: "start", Err: err})
		return &core.NegotiationError{Remote: remote, Reason: "start", Err: err}
	}

	// An initiator negotiates now; a responder waits for the first
	// inbound envelope.
	if role == core.RoleInitiator {
		link.beginNegotiation(c.timeout, func() { c.evictStuck(remote) })
	}
	log.Info().Str("module", "app.mesh").Str("remote", string(remote)).Str("role", role.String()).Msg("peer added")
	return nil
}

// RemovePeer closes and drops the link. Unknown ids are a no-op.
func (c *Coordinator) RemovePeer(remote domain.RemoteID) {
	c.mu.Lock()
	link, ok := c.links[remote]
	if ok {
		delete(c.links, remote)
	}
	c.mu.Unlock()
	if ok {
		link.close()
	}
}

// RouteSignal forwards an envelope to the matching link. An envelope for
// an unknown peer is dropped: it is an expected race during teardown.
func (c *Coordinator) RouteSignal(env core.SignalEnvelope) {
	c.mu.Lock()
	link, ok := c.links[env.From]
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "app.mesh").Str("from", string(env.From)).Str("kind", env.Kind).Msg("signal for unknown peer dropped")
		return
	}
	remote := env.From
	link.beginNegotiation(c.timeout, func() { c.evictStuck(remote) })
	if err := link.ml.HandleEnvelope(env); err != nil {
		c.failLink(remote, &core.NegotiationError{Remote: remote, Reason: "bad envelope", Err: err})
	}
}

// SwapActiveVideo replaces the outbound video track on every link.
// When in-place replacement fails for one link it falls back to
// remove-then-add for that link only; the swap proceeds for the rest.
func (c *Coordinator) SwapActiveVideo(from, to core.LocalTrack) {
	c.mu.Lock()
	links := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.mu.Unlock()

	for _, link := range links {
		if st := link.State(); st != LinkConnected && st != LinkNegotiating {
			continue
		}
		// An audio-only session has no camera track: a nil from means
		// there is nothing to replace or remove, a nil to means the
		// outbound video simply goes away.
		if to == nil {
			if from == nil {
				continue
			}
			if err := link.ml.RemoveTrack(from); err != nil {
				log.Warn().Err(err).Str("module", "app.mesh").Str("remote", string(link.remote)).Msg("remove during swap failed")
			}
			link.recordSwap(from, nil)
			continue
		}
		if from != nil {
			if err := link.ml.ReplaceVideoTrack(to); err == nil {
				link.recordSwap(from, to)
				continue
			} else {
				log.Warn().Err(err).Str("module", "app.mesh").Str("remote", string(link.remote)).Msg("replace failed, falling back to remove/add")
			}
			if err := link.ml.RemoveTrack(from); err != nil {
				log.Warn().Err(err).Str("module", "app.mesh").Str("remote", string(link.remote)).Msg("remove during swap failed")
			}
		}
		if err := link.ml.AddTrack(to); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("remote", string(link.remote)).Msg("add during swap failed")
			continue
		}
		link.recordSwap(from, to)
	}
}

// CloseAll tears down every link, tolerating individual failures.
func (c *Coordinator) CloseAll() {
	c.mu.Lock()
	links := c.links
	c.links = make(map[domain.RemoteID]*Link)
	c.mu.Unlock()
	for _, link := range links {
		link.close()
	}
}

func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.links)
}

func (c *Coordinator) StateOf(remote domain.RemoteID) (LinkState, bool) {
	c.mu.Lock()
	link, ok := c.links[remote]
	c.mu.Unlock()
	if !ok {
		return LinkClosed, false
	}
	return link.State(), true
}

func (c *Coordinator) RoleOf(remote domain.RemoteID) (core.LinkRole, bool) {
	c.mu.Lock()
	link, ok := c.links[remote]
	c.mu.Unlock()
	if !ok {
		return 0, false
	}
	return link.role, true
}

func (c *Coordinator) evictStuck(remote domain.RemoteID) {
	c.mu.Lock()
	link, ok := c.links[remote]
	c.mu.Unlock()
	if !ok || link.State() != LinkNegotiating {
		return
	}
	c.failLink(remote, &core.NegotiationError{Remote: remote, Reason: "negotiation timeout"})
}

// failLink isolates a failed peer: the link is closed and the peer
// reported for roster eviction. No other link is affected.
func (c *Coordinator) failLink(remote domain.RemoteID, err error) {
	c.mu.Lock()
	link, ok := c.links[remote]
	if ok {
		delete(c.links, remote)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	link.close()
	log.Warn().Err(err).Str("module", "app.mesh").Str("remote", string(remote)).Msg("peer link failed")
	if c.onPeerFailed != nil {
		c.onPeerFailed(remote, err)
	}
}
