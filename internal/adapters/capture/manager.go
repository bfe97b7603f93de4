// Package capture acquires local camera, microphone and screen media
// through pion/mediadevices and exposes them as sendable tracks.
package capture

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // registers the camera adapter
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone adapter
	_ "github.com/pion/mediadevices/pkg/driver/screen"     // registers the screen adapter
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
)

// Manager implements core.CaptureDevice. One codec selector is shared
// by every stream it opens so all tracks negotiate the same VP8/opus
// pair.
type Manager struct {
	selector *mediadevices.CodecSelector
}

func NewManager() (*Manager, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, &core.DeviceError{Code: core.DeviceUnsupported, Op: "vp8 params", Err: err}
	}
	vpxParams.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, &core.DeviceError{Code: core.DeviceUnsupported, Op: "opus params", Err: err}
	}
	opusParams.Latency = opus.Latency20ms

	return &Manager{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (m *Manager) Selector() *mediadevices.CodecSelector { return m.selector }

// AcquireCamera opens camera and microphone together. The caller is
// expected to fall back to AcquireAudio when the camera is denied.
func (m *Manager) AcquireCamera(ctx context.Context, c core.CameraConstraints) (*core.TrackBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.DeviceError{Code: core.DeviceUserCancelled, Op: "camera", Err: err}
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			mc.Width = prop.Int(c.Width)
			mc.Height = prop.Int(c.Height)
			mc.FrameRate = prop.Float(c.FrameRate)
		},
		Audio: func(mc *mediadevices.MediaTrackConstraints) {
			mc.SampleRate = prop.Int(48000)
			mc.ChannelCount = prop.Int(2)
		},
		Codec: m.selector,
	})
	if err != nil {
		return nil, classify("camera", err)
	}
	b := &core.TrackBundle{}
	for _, t := range stream.GetVideoTracks() {
		b.CameraVideo = wrapTrack(t, core.TrackVideo)
	}
	for _, t := range stream.GetAudioTracks() {
		b.MicAudio = wrapTrack(t, core.TrackAudio)
	}
	log.Info().Str("module", "capture").Msg("camera and microphone acquired")
	return b, nil
}

// AcquireAudio opens the microphone alone, for audio-only joins.
func (m *Manager) AcquireAudio(ctx context.Context) (*core.TrackBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.DeviceError{Code: core.DeviceUserCancelled, Op: "microphone", Err: err}
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(mc *mediadevices.MediaTrackConstraints) {
			mc.SampleRate = prop.Int(48000)
			mc.ChannelCount = prop.Int(2)
		},
		Codec: m.selector,
	})
	if err != nil {
		return nil, classify("microphone", err)
	}
	b := &core.TrackBundle{}
	for _, t := range stream.GetAudioTracks() {
		b.MicAudio = wrapTrack(t, core.TrackAudio)
	}
	log.Info().Str("module", "capture").Msg("microphone acquired")
	return b, nil
}

// AcquireScreen opens a display stream. System audio is captured only
// when the platform driver offers it.
func (m *Manager) AcquireScreen(ctx context.Context, c core.ScreenConstraints) (*core.ScreenSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.DeviceError{Code: core.DeviceUserCancelled, Op: "screen", Err: err}
	}
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			mc.FrameRate = prop.Float(c.FrameRate)
		},
		Codec: m.selector,
	})
	if err != nil {
		return nil, classify("screen", err)
	}
	src := &core.ScreenSource{}
	for _, t := range stream.GetVideoTracks() {
		src.Video = wrapTrack(t, core.TrackVideo)
	}
	for _, t := range stream.GetAudioTracks() {
		src.Audio = wrapTrack(t, core.TrackAudio)
	}
	if src.Video == nil {
		return nil, &core.DeviceError{Code: core.DeviceNotFound, Op: "screen"}
	}
	log.Info().Str("module", "capture").Bool("audio", src.Audio != nil).Msg("screen acquired")
	return src, nil
}

func (m *Manager) Release(b *core.TrackBundle) {
	if b == nil {
		return
	}
	for _, t := range b.Tracks() {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("module", "capture").Str("track", t.ID()).Msg("release track")
		}
	}
}

func (m *Manager) ReleaseScreen(s *core.ScreenSource) {
	if s == nil {
		return
	}
	if s.Video != nil {
		if err := s.Video.Close(); err != nil {
			log.Error().Err(err).Str("module", "capture").Msg("release screen video")
		}
	}
	if s.Audio != nil {
		if err := s.Audio.Close(); err != nil {
			log.Error().Err(err).Str("module", "capture").Msg("release screen audio")
		}
	}
}

// Devices enumerates attached capture hardware, for the devices CLI.
func (m *Manager) Devices() []mediadevices.MediaDeviceInfo {
	return mediadevices.EnumerateDevices()
}

// classify maps driver errors onto the device error codes. The drivers
// return plain errors, so this goes by message.
func classify(op string, err error) *core.DeviceError {
	msg := strings.ToLower(err.Error())
	code := core.DeviceNotFound
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "not authorized"):
		code = core.DevicePermissionDenied
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		code = core.DeviceBusy
	case strings.Contains(msg, "cancel"):
		code = core.DeviceUserCancelled
	case strings.Contains(msg, "unsupported") || strings.Contains(msg, "no supported") || strings.Contains(msg, "failed to find the best driver"):
		code = core.DeviceUnsupported
	}
	return &core.DeviceError{Code: code, Op: op, Err: err}
}

// localTrack adapts a mediadevices track to core.LocalTrack. Enabled is
// advisory: senders consult it before attaching, and toggles flip it
// without tearing the capture down.
type localTrack struct {
	t       mediadevices.Track
	kind    core.TrackKind
	enabled atomic.Bool
	once    sync.Once
}

func wrapTrack(t mediadevices.Track, kind core.TrackKind) *localTrack {
	lt := &localTrack{t: t, kind: kind}
	lt.enabled.Store(true)
	return lt
}

func (lt *localTrack) ID() string { return lt.t.ID() }
func (lt *localTrack) Kind() core.TrackKind { return lt.kind }

func (lt *localTrack) SetEnabled(v bool) { lt.enabled.Store(v) }
func (lt *localTrack) Enabled() bool { return lt.enabled.Load() }

func (lt *localTrack) OnEnded(fn func()) {
	lt.t.OnEnded(func(error) { fn() })
}

func (lt *localTrack) Close() error {
	var err error
	lt.once.Do(func() { err = lt.t.Close() })
	return err
}

func (lt *localTrack) RTC() webrtc.TrackLocal { return lt.t }

// Source exposes the underlying mediadevices track, for the recorder.
func (lt *localTrack) Source() mediadevices.Track { return lt.t }
