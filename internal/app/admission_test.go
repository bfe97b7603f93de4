package app

import (
	"testing"

	"github.com/MishthiJain8/joinright/internal/domain"
)

func TestAdmissionActivateFiresOnce(t *testing.T) {
	a := NewAdmission()
	fired := 0
	a.OnActive(func() { fired++ })

	a.Begin()
	if a.State() != AdmissionJoining {
		t.Errorf("Expected joining after Begin, got %s", a.State())
	}

	a.HandleAdmitted()
	a.HandleAdmitted()
	a.Activate()

	if fired != 1 {
		t.Errorf("Expected onActive to fire exactly once, fired %d times", fired)
	}
	if !a.CanJoinMesh() {
		t.Error("Expected CanJoinMesh true after activation")
	}
}

func TestAdmissionWaitingRoomGate(t *testing.T) {
	a := NewAdmission()
	a.Begin()
	a.HandleWaitingRoom(true)

	if a.State() != AdmissionWaiting {
		t.Errorf("Expected waiting state, got %s", a.State())
	}
	if a.CanJoinMesh() {
		t.Error("Expected CanJoinMesh false while waiting")
	}

	a.HandleAdmitted()
	if !a.CanJoinMesh() {
		t.Error("Expected CanJoinMesh true after admission")
	}
}

func TestAdmissionRejectedIsTerminal(t *testing.T) {
	a := NewAdmission()
	fired := 0
	a.OnActive(func() { fired++ })

	a.Begin()
	aerr := a.HandleRejected("host said no")
	if aerr == nil || aerr.Message != "host said no" {
		t.Fatalf("Expected rejection error with message, got %v", aerr)
	}
	if a.State() != AdmissionClosed {
		t.Errorf("Expected closed state after rejection, got %s", a.State())
	}

	// A late admitted event must not resurrect the session.
	a.HandleAdmitted()
	if fired != 0 {
		t.Errorf("Expected no activation after rejection, fired %d times", fired)
	}
	if a.CanJoinMesh() {
		t.Error("Expected CanJoinMesh false after rejection")
	}
}

func TestAdmissionQueueFIFO(t *testing.T) {
	a := NewAdmission()
	for _, id := range []string{"A", "B", "C"} {
		a.Enqueue(domain.AdmissionRequest{RemoteID: domain.RemoteID(id), DisplayName: id})
	}
	// Duplicate enqueue is ignored.
	a.Enqueue(domain.AdmissionRequest{RemoteID: "B"})

	if got := len(a.Pending()); got != 3 {
		t.Fatalf("Expected 3 pending requests, got %d", got)
	}

	reqs := a.AdmitAll()
	if len(reqs) != 3 {
		t.Fatalf("Expected 3 admitted, got %d", len(reqs))
	}
	for i, want := range []domain.RemoteID{"A", "B", "C"} {
		if reqs[i].RemoteID != want {
			t.Errorf("Expected position %d to be %s, got %s", i, want, reqs[i].RemoteID)
		}
	}
	if len(a.Pending()) != 0 {
		t.Error("Expected empty queue after AdmitAll")
	}
}

func TestAdmissionDecideOnce(t *testing.T) {
	a := NewAdmission()
	a.Enqueue(domain.AdmissionRequest{RemoteID: "P1", DisplayName: "One"})

	req, ok := a.Admit("P1")
	if !ok || req.DisplayName != "One" {
		t.Fatalf("Expected first admit to succeed, got ok=%v req=%+v", ok, req)
	}
	if _, ok := a.Admit("P1"); ok {
		t.Error("Expected re-admit of a decided id to report false")
	}
	if _, ok := a.Reject("P1"); ok {
		t.Error("Expected reject after admit to report false")
	}

	// A decided id cannot be re-queued.
	a.Enqueue(domain.AdmissionRequest{RemoteID: "P1"})
	if len(a.Pending()) != 0 {
		t.Error("Expected decided participant to stay out of the queue")
	}
}

func TestAdmissionRejectRemovesFromQueue(t *testing.T) {
	a := NewAdmission()
	a.Enqueue(domain.AdmissionRequest{RemoteID: "P1"})
	a.Enqueue(domain.AdmissionRequest{RemoteID: "P2"})

	if _, ok := a.Reject("P1"); !ok {
		t.Fatal("Expected reject of a queued id to succeed")
	}
	pending := a.Pending()
	if len(pending) != 1 || pending[0].RemoteID != "P2" {
		t.Errorf("Expected only P2 pending, got %+v", pending)
	}
	if _, ok := a.Admit("unknown"); ok {
		t.Error("Expected admit of an unknown id to report false")
	}
}
