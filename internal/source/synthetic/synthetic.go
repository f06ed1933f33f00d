// Package synthetic generates test-pattern frames, optionally injecting
// malformed ones, for exercising the pipeline without a camera.
package synthetic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
)

// Fault is a kind of malformed frame.
type Fault int

const (
	// FaultTruncated drops the last byte of the payload
	FaultTruncated Fault = iota
	// FaultUnknownEncoding tags the frame with an encoding nobody supports
	FaultUnknownEncoding
	// FaultEmpty sends a 0x0 frame
	FaultEmpty

	numFaults = 3
)

func (f Fault) String() string {
	switch f {
	case FaultTruncated:
		return "truncated"
	case FaultUnknownEncoding:
		return "unknown-encoding"
	case FaultEmpty:
		return "empty"
	default:
		return fmt.Sprintf("Fault(%d)", int(f))
	}
}

// Config configures a Source.
type Config struct {
	Name     string // default "pattern"
	Encoding string // default "bgr8"
	Width    int
	Height   int
	// FPS paces delivery. 0 sends as fast as the consumer reads.
	FPS float64
	// Count stops the source after this many frames. 0 = unbounded.
	Count int
	// FaultEvery makes every Nth frame malformed, cycling through the Fault
	// kinds. 0 = never.
	FaultEvery int
	// Buffer is the channel capacity (default 10)
	Buffer int
}

// Source generates frames. It implements imageingest.Source.
type Source struct {
	cfg Config

	frames  chan imageingest.RawFrame
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	started atomic.Bool
	emitted atomic.Uint64
}

// New validates cfg and returns a Source.
func New(cfg Config) (*Source, error) {
	if cfg.Name == "" {
		cfg.Name = "pattern"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "bgr8"
	}
	if _, ok := imageingest.LookupEncoding(cfg.Encoding); !ok {
		return nil, fmt.Errorf("synthetic: unsupported encoding %q", cfg.Encoding)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("synthetic: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 0 || cfg.Count < 0 || cfg.FaultEvery < 0 {
		return nil, fmt.Errorf("synthetic: fps, count and fault_every must be >= 0")
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
func (s *Source) Name() string { return "synthetic:" + s.cfg.Name }

// Emitted returns the number of frames delivered so far.
func (s *Source) Emitted() uint64 { return s.emitted.Load() }

// Start implements imageingest.Source.
func (s *Source) Start(ctx context.Context) (<-chan imageingest.RawFrame, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("synthetic: source already started")
	}

	slog.Info("synthetic: source starting",
		"encoding", s.cfg.Encoding,
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"fps", s.cfg.FPS,
		"count", s.cfg.Count,
		"fault_every", s.cfg.FaultEvery,
	)

	s.wg.Add(1)
	go s.generate(ctx)
	return s.frames, nil
}

// Stop implements imageingest.Source. Idempotent.
func (s *Source) Stop() error {
	s.stop.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

func (s *Source) generate(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.frames)

	var tick <-chan time.Time
	if s.cfg.FPS > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.FPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	for seq := uint64(1); s.cfg.Count == 0 || seq <= uint64(s.cfg.Count); seq++ {
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
		case s.frames <- s.Frame(seq):
			s.emitted.Add(1)
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
	slog.Debug("synthetic: frame count reached", "count", s.cfg.Count)
}

// Frame builds frame seq deterministically (apart from the trace ID and
// timestamp). Faults are applied according to Config.FaultEvery.
func (s *Source) Frame(seq uint64) imageingest.RawFrame {
	f := Pattern(s.cfg.Encoding, s.cfg.Width, s.cfg.Height, seq)
	f.Seq = seq
	f.Timestamp = time.Now()
	f.Source = s.cfg.Name
	f.TraceID = uuid.New().String()

	if n := uint64(s.cfg.FaultEvery); n > 0 && seq%n == 0 {
		applyFault(&f, Fault((seq/n-1)%numFaults))
	}
	return f
}

func applyFault(f *imageingest.RawFrame, fault Fault) {
	switch fault {
	case FaultTruncated:
		if len(f.Data) > 0 {
			f.Data = f.Data[:len(f.Data)-1]
		}
	case FaultUnknownEncoding:
		f.Encoding = "x-unknown"
	case FaultEmpty:
		f.Width, f.Height, f.Data = 0, 0, nil
	}
}

// Pattern returns a diagonal gradient that shifts with seq. Color and mono
// encodings are derived from an 8-bit BGR pattern through the decoder; other
// encodings get a byte ramp of the right length.
func Pattern(encoding string, width, height int, seq uint64) imageingest.RawFrame {
	base := imageingest.RawFrame{
		Encoding: "bgr8",
		Width:    width,
		Height:   height,
		Data:     make([]byte, width*height*3),
	}
	shift := int(seq * 4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			base.Data[i] = byte(x + shift)       // B
			base.Data[i+1] = byte(y + shift)     // G
			base.Data[i+2] = byte(x + y + shift) // R
		}
	}
	if encoding == base.Encoding {
		return base
	}

	if buf, err := imageingest.Decode(base, encoding); err == nil {
		return imageingest.ToRawFrame(buf)
	}

	bpp, _ := imageingest.BytesPerPixel(encoding)
	data := make([]byte, width*height*bpp)
	for i := range data {
		data[i] = byte(i + shift)
	}
	return imageingest.RawFrame{Encoding: encoding, Width: width, Height: height, Data: data}
}
