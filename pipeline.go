package imageingest

import (
	"fmt"
	"log/slog"
	"time"
)

// Stage identifies the pipeline step a frame failed in.
type Stage int

const (
	StageNone Stage = iota
	StageDecode
	StageConvert
	StageInspect
)

func (s Stage) String() string {
	switch s {
	case StageDecode:
		return "decode"
	case StageConvert:
		return "convert"
	case StageInspect:
		return "inspect"
	default:
		return "none"
	}
}

// State is the per-frame processing state.
//
//	Received -> Decoded -> Converted -> Reported
//	    |          |           |
//	    +----------+-----------+--> Failed
//	               +--> Skipped (empty frame)
type State int

const (
	StateReceived State = iota
	StateDecoded
	StateConverted
	StateReported
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDecoded:
		return "decoded"
	case StateConverted:
		return "converted"
	case StateReported:
		return "reported"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the result of processing one frame. It holds no pixel data.
type Outcome struct {
	Seq     uint64
	TraceID string
	Source  string

	State State
	// Stage is set when State is StateFailed
	Stage Stage
	// Err is the failure reason, or ErrEmptyFrame for skipped frames
	Err error

	// Input frame as received
	Width    int
	Height   int
	Encoding string

	// InputType is the descriptor of the decoded buffer, OutputType of the
	// converted one. Empty when the stage was not reached.
	InputType  string
	OutputType string

	Duration time.Duration
}

// OK reports whether the frame went all the way to StateReported.
func (o Outcome) OK() bool { return o.State == StateReported }

// Recorder receives pipeline and worker events. Implementations must be safe
// for concurrent use.
type Recorder interface {
	// FrameProcessed is called once per Process call with the final outcome
	FrameProcessed(o Outcome)
	// FramesDropped is called by the Worker when frames are discarded before
	// reaching the pipeline
	FramesDropped(n uint64)
}

// Options configures a Pipeline.
type Options struct {
	// TargetEncoding is passed to Decode. Empty keeps the frame's own encoding.
	TargetEncoding string
	// Semantic is the conversion applied after decoding (default Grayscale)
	Semantic PixelSemantic
	// Logger receives per-frame diagnostics (default slog.Default())
	Logger *slog.Logger
	// Recorder is optional
	Recorder Recorder
	// Inspect, when set, is called synchronously with the decoded buffer and
	// the converted one (nil for skipped frames). Buffers are only valid for
	// the duration of the call.
	Inspect func(decoded, converted *ImageBuffer)
}

// Pipeline runs decode, format and convert on one frame at a time. It keeps
// no state between frames; a Pipeline may be shared but callers that need
// ordered logs should serialise Process, as Worker does.
type Pipeline struct {
	target   string
	semantic PixelSemantic
	log      *slog.Logger
	recorder Recorder
	inspect  func(decoded, converted *ImageBuffer)
}

// NewPipeline validates opts and returns a Pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.TargetEncoding != "" {
		if _, ok := LookupEncoding(opts.TargetEncoding); !ok {
			return nil, fmt.Errorf("image-ingest: target encoding %q: %w", opts.TargetEncoding, ErrUnsupportedEncoding)
		}
	}
	if _, ok := semanticNames[opts.Semantic]; !ok {
		return nil, fmt.Errorf("image-ingest: invalid pixel semantic %d", int(opts.Semantic))
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		target:   opts.TargetEncoding,
		semantic: opts.Semantic,
		log:      log,
		recorder: opts.Recorder,
		inspect:  opts.Inspect,
	}, nil
}

// Process runs one frame through the pipeline. It never panics and never
// returns an error: every failure is logged and reported in the Outcome.
func (p *Pipeline) Process(raw RawFrame) (out Outcome) {
	start := time.Now()
	out = Outcome{
		Seq:      raw.Seq,
		TraceID:  raw.TraceID,
		Source:   raw.Source,
		State:    StateReceived,
		Width:    raw.Width,
		Height:   raw.Height,
		Encoding: raw.Encoding,
	}
	log := p.log.With("seq", raw.Seq, "trace_id", raw.TraceID)

	stage := StageDecode
	defer func() {
		if r := recover(); r != nil {
			out.State = StateFailed
			out.Stage = stage
			out.Err = fmt.Errorf("image-ingest: panic in %s: %v", stage, r)
			log.Error("image-ingest: frame failed", "stage", stage.String(), "error", out.Err)
		}
		out.Duration = time.Since(start)
		p.record(log, out)
	}()

	log.Info("image-ingest: frame received",
		"source", raw.Source,
		"encoding", raw.Encoding,
		"bytes", len(raw.Data),
	)

	buf, err := Decode(raw, p.target)
	if err != nil {
		return p.fail(log, out, StageDecode, err)
	}
	out.State = StateDecoded
	out.InputType = FormatType(buf.Depth, buf.Channels)

	if buf.Empty() {
		out.State = StateSkipped
		out.Err = ErrEmptyFrame
		log.Warn("image-ingest: empty frame, skipping conversion",
			"size", fmt.Sprintf("%dx%d", buf.Width, buf.Height),
			"type", out.InputType,
		)
		if p.inspect != nil {
			stage = StageInspect
			p.inspect(buf, nil)
		}
		return out
	}

	stage = StageConvert
	conv, err := Convert(buf, p.semantic)
	if err != nil {
		return p.fail(log, out, StageConvert, err)
	}
	out.State = StateConverted
	out.OutputType = conv.Type()

	if p.inspect != nil {
		stage = StageInspect
		p.inspect(buf, conv)
	}

	out.State = StateReported
	log.Info("image-ingest: frame processed",
		"size", fmt.Sprintf("%dx%d", buf.Width, buf.Height),
		"type", out.InputType,
		"semantic", p.semantic.String(),
		"output_size", fmt.Sprintf("%dx%d", conv.Width, conv.Height),
		"output_type", out.OutputType,
	)
	return out
}

// record hands out to the Recorder. A panicking Recorder loses the event but
// not the frame.
func (p *Pipeline) record(log *slog.Logger, out Outcome) {
	if p.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("image-ingest: recorder panicked", "error", r)
		}
	}()
	p.recorder.FrameProcessed(out)
}

func (p *Pipeline) fail(log *slog.Logger, out Outcome, stage Stage, err error) Outcome {
	out.State = StateFailed
	out.Stage = stage
	out.Err = err
	log.Error("image-ingest: frame failed",
		"stage", stage.String(),
		"encoding", out.Encoding,
		"error", err,
	)
	return out
}
