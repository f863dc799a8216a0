package metrics

import (
	"math"
	"slices"
)

const (
	// DefaultPercentileWindow is the number of frame times kept.
	DefaultPercentileWindow = 100
	// MinPercentileSamples gates the 1% low until enough data is buffered.
	MinPercentileSamples = 10

	lowPercentile = 0.99
)

// PercentileTracker keeps a rolling window of frame times. It is not safe
// for concurrent use; the monitor loop is its only writer.
type PercentileTracker struct {
	capacity int
	samples  []float64
	head     int
}

// NewPercentileTracker returns a tracker holding up to capacity samples.
func NewPercentileTracker(capacity int) *PercentileTracker {
	if capacity <= 0 {
		capacity = DefaultPercentileWindow
	}
	return &PercentileTracker{
		capacity: capacity,
		samples:  make([]float64, 0, capacity),
	}
}

// Push records a frame time. Non-positive and non-finite values are ignored.
// The oldest sample is evicted once the window is full.
func (p *PercentileTracker) Push(frameTimeMS float64) {
	if frameTimeMS <= 0 || math.IsInf(frameTimeMS, 0) || math.IsNaN(frameTimeMS) {
		return
	}
	if len(p.samples) < p.capacity {
		p.samples = append(p.samples, frameTimeMS)
		return
	}
	p.samples[p.head] = frameTimeMS
	p.head = (p.head + 1) % p.capacity
}

// Len returns the number of buffered samples.
func (p *PercentileTracker) Len() int {
	return len(p.samples)
}

// Reset drops every sample.
func (p *PercentileTracker) Reset() {
	p.samples = p.samples[:0]
	p.head = 0
}

// OnePercentLow returns the frame rate at the 99th percentile frame time, or
// 0 while fewer than MinPercentileSamples are buffered.
func (p *PercentileTracker) OnePercentLow() float64 {
	count := len(p.samples)
	if count < MinPercentileSamples {
		return 0
	}

	sorted := slices.Clone(p.samples)
	slices.Sort(sorted)

	idx := int(math.Floor(float64(count) * lowPercentile))
	if idx >= count {
		idx = count - 1
	}
	worst := sorted[idx]
	if worst <= 0 {
		return 0
	}
	return 1000.0 / worst
}
