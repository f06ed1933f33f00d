// Package metrics exposes Prometheus counters and histograms for processed
// frames and worker drops.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
)

// Metrics holds all Prometheus metrics. It implements imageingest.Recorder.
type Metrics struct {
	// Frame metrics
	FramesProcessed *prometheus.CounterVec // by final state
	FrameFailures   *prometheus.CounterVec // by stage and reason
	DroppedFrames   prometheus.Counter
	FramePixels     prometheus.Histogram

	// Timing
	ProcessDuration prometheus.Histogram
	LastFrameTime   prometheus.Gauge
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		FramesProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_ingest_frames_processed_total",
				Help: "Frames run through the pipeline, by final state",
			},
			[]string{"state"}, // reported, failed, skipped
		),
		FrameFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_ingest_frame_failures_total",
				Help: "Frames that failed, by stage and reason",
			},
			[]string{"stage", "reason"},
		),
		DroppedFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "image_ingest_frames_dropped_total",
			Help: "Frames overwritten in the queue before processing",
		}),
		FramePixels: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "image_ingest_frame_pixels",
			Help:    "Pixels per received frame",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 8), // 64x64 to ~8K
		}),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "image_ingest_process_duration_seconds",
			Help:    "Time spent in Pipeline.Process per frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
		}),
		LastFrameTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "image_ingest_last_frame_timestamp_seconds",
			Help: "Unix time of the last processed frame",
		}),
	}
}

// FrameProcessed implements imageingest.Recorder.
func (m *Metrics) FrameProcessed(o imageingest.Outcome) {
	m.FramesProcessed.WithLabelValues(o.State.String()).Inc()
	if o.State == imageingest.StateFailed {
		m.FrameFailures.WithLabelValues(o.Stage.String(), Reason(o.Err)).Inc()
	}
	if o.Width > 0 && o.Height > 0 {
		m.FramePixels.Observe(float64(o.Width) * float64(o.Height))
	}
	m.ProcessDuration.Observe(o.Duration.Seconds())
	m.LastFrameTime.SetToCurrentTime()
}

// FramesDropped implements imageingest.Recorder.
func (m *Metrics) FramesDropped(n uint64) {
	m.DroppedFrames.Add(float64(n))
}

// Reason maps a frame error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, imageingest.ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, imageingest.ErrUnsupportedEncoding):
		return "unsupported_encoding"
	case errors.Is(err, imageingest.ErrConversionUnsupported):
		return "conversion_unsupported"
	case errors.Is(err, imageingest.ErrUnsupportedChannelLayout):
		return "unsupported_channel_layout"
	case errors.Is(err, imageingest.ErrUnsupportedGeometry):
		return "unsupported_geometry"
	case errors.Is(err, imageingest.ErrEmptyFrame):
		return "empty_frame"
	default:
		return "other"
	}
}
