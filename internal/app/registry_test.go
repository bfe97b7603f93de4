package app

import (
	"context"
	"errors"
	"testing"

	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

func key(sid, uid, rid string) ContextKey {
	return ContextKey{Session: core.SessionID(sid), User: domain.UserID(uid), Room: domain.RoomID(rid)}
}

func TestRegistryDestroyReleasesInReverseOrder(t *testing.T) {
	r := NewRegistry()
	c := r.Create(context.Background(), key("s1", "u1", "r1"))

	var order []string
	c.Track("first", func() error { order = append(order, "first"); return nil })
	c.Track("second", func() error { order = append(order, "second"); return nil })

	r.Destroy(c.Key())

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("Expected reverse-order release, got %v", order)
	}
	if c.Alive() {
		t.Error("Expected Alive false after destroy")
	}
	if c.Context().Err() == nil {
		t.Error("Expected context cancelled after destroy")
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}

func TestRegistryDestroyIdempotent(t *testing.T) {
	r := NewRegistry()
	c := r.Create(context.Background(), key("s1", "u1", "r1"))

	released := 0
	c.Track("res", func() error { released++; return errors.New("release failed") })

	r.Destroy(c.Key())
	r.Destroy(c.Key())
	c.destroy()

	if released != 1 {
		t.Errorf("Expected exactly one release, got %d", released)
	}
}

func TestRegistryIsolation(t *testing.T) {
	r := NewRegistry()
	a := r.Create(context.Background(), key("s1", "u1", "r1"))
	b := r.Create(context.Background(), key("s2", "u1", "r1"))

	aReleased, bReleased := false, false
	a.Track("a", func() error { aReleased = true; return nil })
	b.Track("b", func() error { bReleased = true; return nil })

	r.Destroy(a.Key())

	if !aReleased {
		t.Error("Expected a's resource released")
	}
	if bReleased {
		t.Error("Expected b's resource untouched by a's destroy")
	}
	if !b.Alive() {
		t.Error("Expected b still alive")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 remaining context, got %d", r.Len())
	}
}

func TestRegistryLateTrackReleasesImmediately(t *testing.T) {
	r := NewRegistry()
	c := r.Create(context.Background(), key("s1", "u1", "r1"))
	r.Destroy(c.Key())

	released := false
	c.Track("late", func() error { released = true; return nil })

	if !released {
		t.Error("Expected a late Track to release immediately on a destroyed context")
	}
}

func TestRegistryCreateReusesLiveContext(t *testing.T) {
	r := NewRegistry()
	k := key("s1", "u1", "r1")
	a := r.Create(context.Background(), k)
	b := r.Create(context.Background(), k)
	if a != b {
		t.Error("Expected Create to return the live context for the same key")
	}

	r.Destroy(k)
	c := r.Create(context.Background(), k)
	if c == a {
		t.Error("Expected a fresh context after destroy")
	}
	if !c.Alive() {
		t.Error("Expected the recreated context to be alive")
	}
}
