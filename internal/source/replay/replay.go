// Package replay plays back frames recorded with the wire stream format.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/wire"
)

// Config configures a Source.
type Config struct {
	Path string
	// FPS paces playback. 0 delivers frames as fast as they are consumed.
	FPS float64
	// Loop restarts from the beginning at end of file
	Loop bool
	// Buffer is the channel capacity (default 10)
	Buffer int
}

// Source reads frames from a file. It implements imageingest.Source.
//
// Frames are delivered with blocking sends: a replay never drops frames
// itself, the worker queue decides what is kept.
type Source struct {
	cfg Config

	frames  chan imageingest.RawFrame
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	started atomic.Bool

	delivered atomic.Uint64
	skipped   atomic.Uint64 // undecodable messages
	loops     atomic.Uint64
}

// New checks that the file exists and returns a Source.
func New(cfg Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("replay: path is required")
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("replay: invalid FPS %.2f", cfg.FPS)
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 10
	}
	return &Source{
		cfg:    cfg,
		frames: make(chan imageingest.RawFrame, cfg.Buffer),
		stopCh: make(chan struct{}),
	}, nil
}

// Name implements imageingest.Source.
func (s *Source) Name() string { return "replay:" + filepath.Base(s.cfg.Path) }

// Delivered returns the number of frames sent.
func (s *Source) Delivered() uint64 { return s.delivered.Load() }

// Skipped returns the number of messages that could not be decoded.
func (s *Source) Skipped() uint64 { return s.skipped.Load() }

// Start implements imageingest.Source.
func (s *Source) Start(ctx context.Context) (<-chan imageingest.RawFrame, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("replay: source already started")
	}
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("replay: open: %w", err)
	}

	slog.Info("replay: source starting",
		"path", s.cfg.Path,
		"fps", s.cfg.FPS,
		"loop", s.cfg.Loop,
	)

	s.wg.Add(1)
	go s.play(ctx, f)
	return s.frames, nil
}

// Stop implements imageingest.Source. Idempotent.
func (s *Source) Stop() error {
	s.stop.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

func (s *Source) play(ctx context.Context, f *os.File) {
	defer s.wg.Done()
	defer close(s.frames)
	defer f.Close()

	var tick <-chan time.Time
	if s.cfg.FPS > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.FPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	var seq uint64
	r := wire.NewReader(f)
	inPass := 0 // frames delivered in the current pass

	for {
		frame, err := r.Read()
		switch {
		case err == io.EOF:
			if !s.cfg.Loop || inPass == 0 {
				slog.Info("replay: end of file",
					"delivered", s.delivered.Load(),
					"skipped", s.skipped.Load(),
					"loops", s.loops.Load(),
				)
				return
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				slog.Error("replay: rewind failed", "error", err)
				return
			}
			s.loops.Add(1)
			r = wire.NewReader(f)
			inPass = 0
			continue
		case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, wire.ErrTooLarge):
			slog.Error("replay: stream corrupt, stopping", "path", s.cfg.Path, "error", err)
			return
		case err != nil:
			// The length prefix was intact, so the next message is still reachable
			s.skipped.Add(1)
			slog.Warn("replay: skipping undecodable message", "error", err)
			continue
		}

		seq++
		frame.Seq = seq
		if frame.TraceID == "" {
			frame.TraceID = uuid.New().String()
		}

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}

		select {
		case s.frames <- frame:
			s.delivered.Add(1)
			inPass++
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
