// Package gst captures frames from a GStreamer launch pipeline that ends in
// an appsink named "sink".
//
// Any pipeline works as long as it delivers raw video to the sink, e.g.
//
//	rtspsrc location=rtsp://cam/stream protocols=tcp ! rtph264depay ! avdec_h264 !
//	    videoconvert ! video/x-raw,format=BGR ! appsink name=sink
//
// Frame encoding, width and height are taken from the negotiated caps of each
// sample.
package gst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
)

// SinkName is the appsink element the launch pipeline must contain.
const SinkName = "sink"

var errEndOfStream = errors.New("gst: end of stream")

// Config configures a Source.
type Config struct {
	Pipeline  string // gst-launch syntax
	Name      string // reported as RawFrame.Source
	Buffer    int    // frame channel capacity (default 10)
	Reconnect ReconnectConfig
}

// Source runs the pipeline and restarts it with exponential backoff when it
// fails. End of stream stops the source. It implements imageingest.Source
// and imageingest.DropCounter.
type Source struct {
	cfg Config

	frames  chan imageingest.RawFrame
	stopCh  chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	started atomic.Bool

	seq        atomic.Uint64
	bytesRead  atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint32

	errNetwork atomic.Uint64
	errCodec   atomic.Uint64
	errAuth    atomic.Uint64
	errUnknown atomic.Uint64
}

// Stats are the capture counters of a Source.
type Stats struct {
	Frames     uint64
	Bytes      uint64
	Dropped    uint64
	Reconnects uint32
	Errors     map[string]uint64 // by ErrorCategory
}

// New validates cfg and returns a stopped Source.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Pipeline) == "" {
		return nil, fmt.Errorf("gst: pipeline is required")
	}
	if !strings.Contains(cfg.Pipeline, "appsink") {
		return nil, fmt.Errorf("gst: pipeline must contain an appsink named %q", SinkName)
	}
	if cfg.Name == "" {
		cfg.Name = "gst"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 10
	}
	def := DefaultReconnectConfig()
	if cfg.Reconnect.MaxRetries <= 0 {
		cfg.Reconnect.MaxRetries = def.MaxRetries
	}
	if cfg.Reconnect.RetryDelay <= 0 {
		cfg.Reconnect.RetryDelay = def.RetryDelay
	}
	if cfg.Reconnect.MaxRetryDelay <= 0 {
		cfg.Reconnect.MaxRetryDelay = def.MaxRetryDelay
	}
	return &Source{
		cfg:    cfg,
		frames: make(chan imageingest.RawFrame, cfg.Buffer),
		stopCh: make(chan struct{}),
	}, nil
}

// Name implements imageingest.Source.
func (s *Source) Name() string { return "gst:" + s.cfg.Name }

// Dropped implements imageingest.DropCounter.
func (s *Source) Dropped() uint64 { return s.dropped.Load() }

// Stats returns a snapshot of the capture counters.
func (s *Source) Stats() Stats {
	return Stats{
		Frames:     s.seq.Load(),
		Bytes:      s.bytesRead.Load(),
		Dropped:    s.dropped.Load(),
		Reconnects: s.reconnects.Load(),
		Errors: map[string]uint64{
			ErrCategoryNetwork.String(): s.errNetwork.Load(),
			ErrCategoryCodec.String():   s.errCodec.Load(),
			ErrCategoryAuth.String():    s.errAuth.Load(),
			ErrCategoryUnknown.String(): s.errUnknown.Load(),
		},
	}
}

// Start launches the pipeline in the background. Failures after Start are
// retried; the frame channel closes when retries run out, on end of stream,
// on Stop or when ctx is cancelled.
func (s *Source) Start(ctx context.Context) (<-chan imageingest.RawFrame, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("gst: source already started")
	}
	gst.Init(nil)

	slog.Info("gst: source starting",
		"name", s.cfg.Name,
		"pipeline", s.cfg.Pipeline,
		"max_retries", s.cfg.Reconnect.MaxRetries,
	)

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer close(s.frames)
		s.run(runCtx)
	}()
	return s.frames, nil
}

// Stop tears the pipeline down and waits for the capture goroutine.
func (s *Source) Stop() error {
	s.stop.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

func (s *Source) run(ctx context.Context) {
	retries := 0
	for {
		started := time.Now()
		err := s.runOnce(ctx)
		switch {
		case ctx.Err() != nil:
			slog.Info("gst: source stopped", "frames", s.seq.Load(), "dropped", s.dropped.Load())
			return
		case errors.Is(err, errEndOfStream):
			slog.Info("gst: end of stream",
				"frames", s.seq.Load(),
				"uptime", time.Since(started),
			)
			return
		}

		// A pipeline that reached PLAYING and ran a while earns a fresh budget
		if time.Since(started) > s.cfg.Reconnect.MaxRetryDelay {
			retries = 0
		}
		retries++
		s.reconnects.Add(1)
		if retries > s.cfg.Reconnect.MaxRetries {
			slog.Error("gst: max retries exceeded, giving up",
				"max_retries", s.cfg.Reconnect.MaxRetries,
				"error", err,
			)
			return
		}

		delay := backoff(retries, s.cfg.Reconnect)
		slog.Warn("gst: restarting pipeline",
			"attempt", retries,
			"max_retries", s.cfg.Reconnect.MaxRetries,
			"delay", delay,
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// runOnce builds and plays the pipeline until it errors, ends or ctx is done.
func (s *Source) runOnce(ctx context.Context) error {
	pipeline, err := gst.NewPipelineFromString(s.cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("gst: parse pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	elem, err := pipeline.GetElementByName(SinkName)
	if err != nil || elem == nil {
		return fmt.Errorf("gst: no element named %q in pipeline", SinkName)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		return fmt.Errorf("gst: element %q is not an appsink", SinkName)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onNewSample(ctx, sink)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gst: failed to start pipeline: %w", err)
	}
	return s.watchBus(ctx, pipeline)
}

// watchBus polls the pipeline bus until an error or EOS arrives.
func (s *Source) watchBus(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return errEndOfStream
		case gst.MessageError:
			gerr := msg.ParseError()
			category := Classify(gerr.Error(), gerr.DebugString())
			s.countError(category)
			slog.Error("gst: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"frames", s.seq.Load(),
			)
			return fmt.Errorf("gst: pipeline error [%s]: %s", category, gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, now := msg.ParseStateChanged()
				slog.Debug("gst: pipeline state changed", "from", old, "to", now)
			}
		}
	}
}

// onNewSample copies the sample out of GStreamer and sends it without
// blocking the streaming thread.
func (s *Source) onNewSample(ctx context.Context, sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gst: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gst: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	var vf VideoFormat
	if caps := sample.GetCaps(); caps != nil {
		parsed, err := ParseCaps(caps.String())
		if err != nil {
			slog.Warn("gst: unreadable caps", "error", err)
		}
		vf = parsed
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	// GStreamer reuses the buffer after Unmap
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	if bpp, ok := imageingest.BytesPerPixel(vf.Encoding); ok {
		frameData = packRows(frameData, vf.Width, vf.Height, bpp)
	}

	seq := s.seq.Add(1)
	s.bytesRead.Add(uint64(len(data)))

	frame := imageingest.RawFrame{
		Seq:       seq,
		Timestamp: time.Now(),
		Source:    s.cfg.Name,
		TraceID:   uuid.New().String(),
		Encoding:  vf.Encoding,
		Width:     vf.Width,
		Height:    vf.Height,
		BigEndian: vf.BigEndian,
		Data:      frameData,
	}

	select {
	case s.frames <- frame:
	case <-ctx.Done():
		return gst.FlowEOS
	default:
		s.dropped.Add(1)
		slog.Debug("gst: dropping frame, channel full", "seq", seq, "trace_id", frame.TraceID)
	}
	return gst.FlowOK
}

func (s *Source) countError(c ErrorCategory) {
	switch c {
	case ErrCategoryNetwork:
		s.errNetwork.Add(1)
	case ErrCategoryCodec:
		s.errCodec.Add(1)
	case ErrCategoryAuth:
		s.errAuth.Add(1)
	default:
		s.errUnknown.Add(1)
	}
}
