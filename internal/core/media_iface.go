package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is one locally captured track. SetEnabled mutes in place
// with no signaling impact; Close is idempotent.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	SetEnabled(bool)
	Enabled() bool
	// OnEnded observes the source going away underneath us, e.g. the
	// native "stop sharing" control on a screen track.
	OnEnded(func())
	Close() error
	// RTC exposes the transport-level track for peer link attachment.
	// May be nil for tracks that never leave the process.
	RTC() webrtc.TrackLocal
}

// TrackBundle holds the camera audio/video tracks plus the optional
// screen tracks. Shared by reference with every peer link transmitting it.
type TrackBundle struct {
	MicAudio    LocalTrack
	CameraVideo LocalTrack
	ScreenVideo LocalTrack
	ScreenAudio LocalTrack
}

// Tracks returns the bundle's tracks in stable order, skipping unset slots.
func (b *TrackBundle) Tracks() []LocalTrack {
	if b == nil {
		return nil
	}
	out := make([]LocalTrack, 0, 4)
	for _, t := range []LocalTrack{b.MicAudio, b.CameraVideo, b.ScreenVideo, b.ScreenAudio} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// ScreenSource is an acquired screen capture. Audio may be nil.
type ScreenSource struct {
	Video LocalTrack
	Audio LocalTrack
}

type CameraConstraints struct {
	Width     int
	Height    int
	FrameRate float32
}

type ScreenConstraints struct {
	FrameRate float32
}

// CaptureDevice acquires and releases local media sources. Failures are
// always a *DeviceError so callers can degrade instead of aborting.
type CaptureDevice interface {
	AcquireCamera(ctx context.Context, c CameraConstraints) (*TrackBundle, error)
	// AcquireAudio is the degraded path when the camera is denied or missing.
	AcquireAudio(ctx context.Context) (*TrackBundle, error)
	AcquireScreen(ctx context.Context, c ScreenConstraints) (*ScreenSource, error)
	// Release stops every track in the bundle. Safe to call twice.
	Release(b *TrackBundle)
	ReleaseScreen(s *ScreenSource)
}

// Recorder captures the local stream to files on disk.
type Recorder interface {
	Start(ctx context.Context, b *TrackBundle) error
	// Stop finalizes and returns the produced file paths.
	Stop() ([]string, error)
}
