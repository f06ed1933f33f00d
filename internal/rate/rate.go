// Package rate measures frame arrival rate and jitter.
package rate

import (
	"math"
	"sync"
	"time"
)

const (
	// stableFPSSpread is the largest FPS standard deviation, as a fraction of
	// the mean, for which arrivals count as steady.
	stableFPSSpread = 0.15

	// stableJitter is the largest mean jitter, as a fraction of the mean
	// inter-arrival interval, for which arrivals count as steady.
	stableJitter = 0.20
)

// Stats summarises a series of arrival times.
type Stats struct {
	Frames    int
	Span      time.Duration // first to last arrival
	FPSMean   float64
	FPSStdDev float64
	FPSMin    float64
	FPSMax    float64
	// Jitter is the deviation of each interval from the mean interval, seconds
	JitterMean float64
	JitterMax  float64
	Steady     bool
}

// Compute derives Stats from arrival times in ascending order.
//
// FPSMean is intervals/span, so n frames evenly spaced one second apart give
// exactly 1 fps. Fewer than two arrivals give a zero-rate result.
func Compute(times []time.Time) Stats {
	n := len(times)
	st := Stats{Frames: n}
	if n < 2 {
		return st
	}
	st.Span = times[n-1].Sub(times[0])
	if st.Span <= 0 {
		return st
	}
	st.FPSMean = float64(n-1) / st.Span.Seconds()
	expected := 1 / st.FPSMean

	var sumSq, jitterSum float64
	valid := 0
	for i := 1; i < n; i++ {
		interval := times[i].Sub(times[i-1]).Seconds()

		j := math.Abs(interval - expected)
		jitterSum += j
		st.JitterMax = math.Max(st.JitterMax, j)

		if interval <= 0 {
			continue
		}
		fps := 1 / interval
		if valid == 0 || fps < st.FPSMin {
			st.FPSMin = fps
		}
		if fps > st.FPSMax {
			st.FPSMax = fps
		}
		d := fps - st.FPSMean
		sumSq += d * d
		valid++
	}
	if valid > 0 {
		st.FPSStdDev = math.Sqrt(sumSq / float64(valid))
	}
	st.JitterMean = jitterSum / float64(n-1)
	st.Steady = st.FPSStdDev < st.FPSMean*stableFPSSpread && st.JitterMean < expected*stableJitter
	return st
}

// Window keeps the most recent arrival times. Safe for concurrent use.
type Window struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewWindow returns a Window remembering the last size arrivals (minimum 2).
func NewWindow(size int) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{times: make([]time.Time, size)}
}

// Observe records an arrival.
func (w *Window) Observe(t time.Time) {
	w.mu.Lock()
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.next == 0 {
		w.full = true
	}
	w.mu.Unlock()
}

// Stats computes Stats over the remembered arrivals.
func (w *Window) Stats() Stats {
	w.mu.Lock()
	var ordered []time.Time
	if w.full {
		ordered = make([]time.Time, 0, len(w.times))
		ordered = append(ordered, w.times[w.next:]...)
		ordered = append(ordered, w.times[:w.next]...)
	} else {
		ordered = append([]time.Time(nil), w.times[:w.next]...)
	}
	w.mu.Unlock()
	return Compute(ordered)
}
