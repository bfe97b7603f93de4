package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"

	"github.com/MishthiJain8/joinright/internal/core"
)

const recorderMTU = 1200

// Recorder writes the local tracks to disk while a meeting runs, video
// as IVF and audio as Ogg. It records what this client sends, not the
// remote peers.
type Recorder struct {
	dir string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	files  []string
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// Start begins writing every track in the bundle. Tracks not produced
// by this package's capture manager are skipped.
func (r *Recorder) Start(ctx context.Context, b *core.TrackBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("recording already running")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}

	recCtx, cancel := context.WithCancel(ctx)
	stamp := time.Now().Format("20060102-150405")
	started := 0
	var files []string

	for _, t := range b.Tracks() {
		lt, ok := t.(*localTrack)
		if !ok {
			continue
		}
		var (
			path  string
			w     rtpWriter
			err   error
			codec string
		)
		switch lt.Kind() {
		case core.TrackVideo:
			path = filepath.Join(r.dir, fmt.Sprintf("%s-%s.ivf", stamp, lt.ID()))
			w, err = ivfwriter.New(path)
			codec = "VP8"
		case core.TrackAudio:
			path = filepath.Join(r.dir, fmt.Sprintf("%s-%s.ogg", stamp, lt.ID()))
			w, err = oggwriter.New(path, 48000, 2)
			codec = "opus"
		}
		if err != nil {
			cancel()
			r.wg.Wait()
			return fmt.Errorf("open recording file: %w", err)
		}

		reader, err := lt.Source().NewRTPReader(codec, rand.Uint32(), recorderMTU)
		if err != nil {
			_ = w.Close()
			_ = os.Remove(path)
			cancel()
			r.wg.Wait()
			return fmt.Errorf("rtp reader for %s: %w", lt.ID(), err)
		}

		files = append(files, path)
		started++
		r.wg.Add(1)
		go r.pump(recCtx, lt.ID(), reader, w)
	}

	if started == 0 {
		cancel()
		return errors.New("no recordable tracks")
	}
	// Paths land on the recorder only once every track is pumping; a
	// failed attempt leaves no stale paths behind.
	r.files = files
	r.cancel = cancel
	log.Info().Str("module", "capture").Int("tracks", started).Str("dir", r.dir).Msg("recording started")
	return nil
}

func (r *Recorder) pump(ctx context.Context, id string, reader mediadevices.RTPReadCloser, w rtpWriter) {
	defer r.wg.Done()
	defer func() {
		if err := reader.Close(); err != nil {
			log.Error().Err(err).Str("module", "capture").Str("track", id).Msg("close rtp reader")
		}
		if err := w.Close(); err != nil {
			log.Error().Err(err).Str("module", "capture").Str("track", id).Msg("close recording writer")
		}
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		pkts, release, err := reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Error().Err(err).Str("module", "capture").Str("track", id).Msg("recording read")
			}
			return
		}
		for _, pkt := range pkts {
			if err := w.WriteRTP(pkt); err != nil {
				release()
				log.Error().Err(err).Str("module", "capture").Str("track", id).Msg("recording write")
				return
			}
		}
		release()
	}
}

// Stop ends the recording and returns the files written so far. Safe to
// call when not recording.
func (r *Recorder) Stop() ([]string, error) {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil, nil
	}
	cancel()
	r.wg.Wait()

	r.mu.Lock()
	files := r.files
	r.files = nil
	r.mu.Unlock()
	log.Info().Str("module", "capture").Int("files", len(files)).Msg("recording stopped")
	return files, nil
}
