// Package cadence measures how regularly frames reach the texture.
//
// A Window keeps the most recent delivery timestamps; Calculate turns them
// into rate and jitter statistics. A stream is stable when the standard
// deviation of its instantaneous rate stays under 15% of the mean and the
// mean jitter under 20% of the expected inter-frame interval.
package cadence

import (
	"math"
	"sync"
	"time"
)

const (
	fpsStabilityThreshold    = 0.15
	jitterStabilityThreshold = 0.20

	// DefaultWindow holds about four seconds at 30 fps.
	DefaultWindow = 120
)

// Stats describe the frames held by a window.
type Stats struct {
	Frames   int
	Duration time.Duration

	FPSMean   float64
	FPSStdDev float64
	FPSMin    float64
	FPSMax    float64

	JitterMean   time.Duration
	JitterStdDev time.Duration
	JitterMax    time.Duration

	Stable bool
}

// Calculate computes statistics over ordered timestamps. Fewer than two
// timestamps, or a zero span, yield zero rates and an unstable result.
func Calculate(times []time.Time) Stats {
	n := len(times)
	if n < 2 {
		return Stats{Frames: n}
	}
	span := times[n-1].Sub(times[0])
	if span <= 0 {
		return Stats{Frames: n}
	}

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}

	fpsMean := float64(len(intervals)) / span.Seconds()

	var instant []float64
	for _, iv := range intervals {
		if iv > 0 {
			instant = append(instant, 1/iv)
		}
	}
	s := Stats{Frames: n, Duration: span, FPSMean: fpsMean}
	if len(instant) > 0 {
		s.FPSMin, s.FPSMax = instant[0], instant[0]
		var sq float64
		for _, fps := range instant {
			s.FPSMin = math.Min(s.FPSMin, fps)
			s.FPSMax = math.Max(s.FPSMax, fps)
			d := fps - fpsMean
			sq += d * d
		}
		s.FPSStdDev = math.Sqrt(sq / float64(len(instant)))
	}

	expected := 1 / fpsMean
	var sum, max float64
	jitters := make([]float64, len(intervals))
	for i, iv := range intervals {
		j := math.Abs(iv - expected)
		jitters[i] = j
		sum += j
		max = math.Max(max, j)
	}
	mean := sum / float64(len(jitters))
	var sq float64
	for _, j := range jitters {
		d := j - mean
		sq += d * d
	}

	s.JitterMean = seconds(mean)
	s.JitterStdDev = seconds(math.Sqrt(sq / float64(len(jitters))))
	s.JitterMax = seconds(max)
	s.Stable = s.FPSStdDev < fpsMean*fpsStabilityThreshold && mean < expected*jitterStabilityThreshold
	return s
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// Window is a fixed-size ring of delivery timestamps. Safe for concurrent use.
type Window struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewWindow returns a window holding the last size timestamps.
func NewWindow(size int) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{times: make([]time.Time, size)}
}

// Add records a delivery.
func (w *Window) Add(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.next == 0 {
		w.full = true
	}
}

// Snapshot returns the recorded timestamps, oldest first.
func (w *Window) Snapshot() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.full {
		return append([]time.Time(nil), w.times[:w.next]...)
	}
	out := make([]time.Time, 0, len(w.times))
	out = append(out, w.times[w.next:]...)
	return append(out, w.times[:w.next]...)
}

// Stats calculates statistics over the window.
func (w *Window) Stats() Stats { return Calculate(w.Snapshot()) }
