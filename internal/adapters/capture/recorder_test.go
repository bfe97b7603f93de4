package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/MishthiJain8/joinright/internal/core"
)

// stubTrack is a LocalTrack with no capture source behind it; the
// recorder must skip it.
type stubTrack struct{}

func (stubTrack) ID() string             { return "stub" }
func (stubTrack) Kind() core.TrackKind   { return core.TrackVideo }
func (stubTrack) SetEnabled(bool)        {}
func (stubTrack) Enabled() bool          { return true }
func (stubTrack) OnEnded(func())         {}
func (stubTrack) Close() error           { return nil }
func (stubTrack) RTC() webrtc.TrackLocal { return nil }

func TestRecorderNoRecordableTracks(t *testing.T) {
	r := NewRecorder(t.TempDir())
	b := &core.TrackBundle{CameraVideo: stubTrack{}}

	if err := r.Start(context.Background(), b); err == nil {
		t.Fatal("Expected an error for a bundle with no recordable tracks")
	}
	files, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop after failed start errored: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected no files after a failed start, got %v", files)
	}
}

func TestRecorderBadDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRecorder(filepath.Join(blocker, "rec"))
	if err := r.Start(context.Background(), &core.TrackBundle{}); err == nil {
		t.Fatal("Expected an error for an unusable recording dir")
	}
	if files, _ := r.Stop(); len(files) != 0 {
		t.Errorf("Expected no files after a failed start, got %v", files)
	}
}

func TestRecorderStopWhenIdle(t *testing.T) {
	r := NewRecorder(t.TempDir())
	files, err := r.Stop()
	if err != nil || files != nil {
		t.Errorf("Expected idle Stop to be a no-op, got %v %v", files, err)
	}
}
