package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

// ContextKey namespaces every session resource by (session, user, room)
// so concurrent sessions in one process never cross-talk.
type ContextKey struct {
	Session core.SessionID
	User    domain.UserID
	Room    domain.RoomID
}

type resource struct {
	name    string
	release func() error
}

// SessionContext owns the resources acquired under one key. After
// Destroy, Alive reports false and no handler checked against it may act.
type SessionContext struct {
	key    ContextKey
	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool

	mu        sync.Mutex
	resources []resource
}

func (c *SessionContext) Key() ContextKey { return c.key }
func (c *SessionContext) Context() context.Context { return c.ctx }
func (c *SessionContext) Alive() bool { return c.alive.Load() }

// Track registers a release hook, run exactly once on Destroy. Hooks run
// in reverse registration order. If the context is already destroyed the
// hook runs immediately so late acquisitions cannot leak.
func (c *SessionContext) Track(name string, release func() error) {
	c.mu.Lock()
	if !c.alive.Load() {
		c.mu.Unlock()
		if err := release(); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("resource", name).Msg("late release failed")
		}
		return
	}
	c.resources = append(c.resources, resource{name: name, release: release})
	c.mu.Unlock()
}

func (c *SessionContext) destroy() {
	if !c.alive.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.mu.Lock()
	resources := c.resources
	c.resources = nil
	c.mu.Unlock()

	// One failing resource must not block cleanup of the rest.
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if err := r.release(); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("resource", r.name).Msg("release failed")
		}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(c.key.Session)).Msg("context destroyed")
}

// Registry holds every live SessionContext in the process.
type Registry struct {
	mu       sync.RWMutex
	contexts map[ContextKey]*SessionContext
}

func NewRegistry() *Registry {
	return &Registry{contexts: make(map[ContextKey]*SessionContext)}
}

// Create returns the context for key, building it when absent.
func (r *Registry) Create(parent context.Context, key ContextKey) *SessionContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contexts[key]; ok && c.Alive() {
		return c
	}
	ctx, cancel := context.WithCancel(parent)
	c := &SessionContext{key: key, ctx: ctx, cancel: cancel}
	c.alive.Store(true)
	r.contexts[key] = c
	log.Info().Str("module", "app.registry").Str("sid", string(key.Session)).Str("room", string(key.Room)).Msg("context created")
	return c
}

func (r *Registry) Get(key ContextKey) (*SessionContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[key]
	return c, ok
}

// Destroy tears down the context for key. Idempotent; never touches
// another context's resources.
func (r *Registry) Destroy(key ContextKey) {
	r.mu.Lock()
	c, ok := r.contexts[key]
	if ok {
		delete(r.contexts, key)
	}
	r.mu.Unlock()
	if ok {
		c.destroy()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
