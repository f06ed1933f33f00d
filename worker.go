package imageingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/mailbox"
	"github.com/e7canasta/orion-care-sensor/modules/image-ingest/internal/rate"
)

// ErrWorkerRunning is returned by Run when the worker is already running.
var ErrWorkerRunning = errors.New("image-ingest: worker already running")

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// QueueDepth is the number of frames held between the transport and the
	// pipeline. When full the oldest frame is dropped. Default 1.
	QueueDepth int
	// RateWindow is the number of arrivals used for rate statistics. Default 30.
	RateWindow int
	// Logger defaults to slog.Default()
	Logger *slog.Logger
	// Recorder receives drop events. Outcomes are reported by the Pipeline.
	Recorder Recorder
}

// WorkerStats is a snapshot of a Worker's counters.
type WorkerStats struct {
	Source  string
	Running bool
	Started time.Time

	Received        uint64 // frames taken from the source channel
	Processed       uint64 // frames handed to the pipeline
	Reported        uint64
	Skipped         uint64 // empty frames
	DecodeFailures  uint64
	ConvertFailures uint64 // convert and inspect failures
	Dropped         uint64 // overwritten in the queue
	TransportDrops  uint64 // reported by the source, see DropCounter

	LastSeq       uint64
	LastFrameAt   time.Time
	LastError     string
	LastLatency   time.Duration
	ArrivalFPS    float64
	ArrivalJitter float64 // mean, seconds
	Steady        bool
}

// Failures returns DecodeFailures + ConvertFailures.
func (s WorkerStats) Failures() uint64 { return s.DecodeFailures + s.ConvertFailures }

// Worker pulls frames from a Source and runs them through a Pipeline one at a
// time.
//
// Goroutine topology:
//   - pump: moves frames from the source channel into a KEEP_LAST queue
//   - the goroutine calling Run: takes frames from the queue and calls
//     Pipeline.Process, so invocations never overlap
type Worker struct {
	src      Source
	pipeline *Pipeline
	depth    int
	log      *slog.Logger
	recorder Recorder
	arrivals *rate.Window

	running atomic.Bool
	queue   atomic.Pointer[mailbox.Mailbox[RawFrame]]

	received        atomic.Uint64
	processed       atomic.Uint64
	reported        atomic.Uint64
	skipped         atomic.Uint64
	decodeFailures  atomic.Uint64
	convertFailures atomic.Uint64

	mu          sync.Mutex // Protects the fields below
	started     time.Time
	lastSeq     uint64
	lastFrameAt time.Time
	lastError   string
	lastLatency time.Duration
}

// NewWorker validates its arguments and returns a Worker.
func NewWorker(src Source, p *Pipeline, cfg WorkerConfig) (*Worker, error) {
	if src == nil {
		return nil, fmt.Errorf("image-ingest: source is required")
	}
	if p == nil {
		return nil, fmt.Errorf("image-ingest: pipeline is required")
	}
	if cfg.QueueDepth < 0 {
		return nil, fmt.Errorf("image-ingest: invalid queue depth %d", cfg.QueueDepth)
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 1
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = 30
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		src:      src,
		pipeline: p,
		depth:    cfg.QueueDepth,
		log:      log,
		recorder: cfg.Recorder,
		arrivals: rate.NewWindow(cfg.RateWindow),
	}, nil
}

// Run starts the source and processes frames until ctx is cancelled or the
// source closes its channel. Frames already queued are processed before Run
// returns.
//
// Returns nil when the source ended, ctx.Err() when cancelled, or the error
// from Source.Start.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}
	defer w.running.Store(false)

	frames, err := w.src.Start(ctx)
	if err != nil {
		return fmt.Errorf("image-ingest: start source %s: %w", w.src.Name(), err)
	}

	queue := mailbox.New[RawFrame](w.depth)
	w.queue.Store(queue)

	w.mu.Lock()
	w.started = time.Now()
	w.mu.Unlock()

	w.log.Info("image-ingest: worker started",
		"source", w.src.Name(),
		"queue_depth", w.depth,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.pump(ctx, frames, queue)
	}()

	for {
		frame, ok := queue.Receive()
		if !ok {
			break
		}
		w.handle(frame)
	}
	wg.Wait()

	if err := w.src.Stop(); err != nil {
		w.log.Warn("image-ingest: source stop failed", "source", w.src.Name(), "error", err)
	}

	st := w.Stats()
	w.log.Info("image-ingest: worker stopped",
		"source", st.Source,
		"received", st.Received,
		"reported", st.Reported,
		"failures", st.Failures(),
		"skipped", st.Skipped,
		"dropped", st.Dropped,
	)
	return ctx.Err()
}

// pump moves frames into the queue until the source closes or ctx ends, then
// closes the queue so the consumer drains and exits.
func (w *Worker) pump(ctx context.Context, frames <-chan RawFrame, queue *mailbox.Mailbox[RawFrame]) {
	defer queue.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				w.log.Debug("image-ingest: source channel closed", "source", w.src.Name())
				return
			}
			w.received.Add(1)
			w.arrivals.Observe(time.Now())
			if queue.Publish(frame) {
				w.log.Debug("image-ingest: dropping oldest queued frame",
					"seq", frame.Seq,
					"queue_depth", w.depth,
				)
				if w.recorder != nil {
					w.recorder.FramesDropped(1)
				}
			}
		}
	}
}

func (w *Worker) handle(frame RawFrame) {
	out := w.pipeline.Process(frame)
	w.processed.Add(1)

	switch out.State {
	case StateReported:
		w.reported.Add(1)
	case StateSkipped:
		w.skipped.Add(1)
	case StateFailed:
		if out.Stage == StageDecode {
			w.decodeFailures.Add(1)
		} else {
			w.convertFailures.Add(1)
		}
	}

	w.mu.Lock()
	w.lastSeq = out.Seq
	w.lastFrameAt = time.Now()
	w.lastLatency = out.Duration
	if out.State == StateFailed && out.Err != nil {
		w.lastError = out.Err.Error()
	}
	w.mu.Unlock()
}

// Stats returns a snapshot of the worker counters. Safe from any goroutine.
func (w *Worker) Stats() WorkerStats {
	st := WorkerStats{
		Source:          w.src.Name(),
		Running:         w.running.Load(),
		Received:        w.received.Load(),
		Processed:       w.processed.Load(),
		Reported:        w.reported.Load(),
		Skipped:         w.skipped.Load(),
		DecodeFailures:  w.decodeFailures.Load(),
		ConvertFailures: w.convertFailures.Load(),
	}
	if q := w.queue.Load(); q != nil {
		st.Dropped = q.Drops()
	}
	if dc, ok := w.src.(DropCounter); ok {
		st.TransportDrops = dc.Dropped()
	}

	w.mu.Lock()
	st.Started = w.started
	st.LastSeq = w.lastSeq
	st.LastFrameAt = w.lastFrameAt
	st.LastError = w.lastError
	st.LastLatency = w.lastLatency
	w.mu.Unlock()

	arr := w.arrivals.Stats()
	st.ArrivalFPS = arr.FPSMean
	st.ArrivalJitter = arr.JitterMean
	st.Steady = arr.Steady
	return st
}
