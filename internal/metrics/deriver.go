// Package metrics turns raw telemetry counters into frame-rate values.
package metrics

import (
	"math"

	"github.com/skobkin/rtsstop-web/internal/telemetry"
)

const (
	// MaxPeriodMS caps the measurement period; longer spans indicate a stale
	// entry or a wrapped counter.
	MaxPeriodMS = 10_000
	// MinFPS and MaxFPS bound an accepted period frame rate as [MinFPS, MaxFPS).
	MinFPS = 1.0
	MaxFPS = 1000.0

	millihertzPerHertz = 1000.0
)

// Derived holds the values computed from one entry.
type Derived struct {
	// HasData is false when neither a fresh nor a retained frame rate exists.
	HasData bool `json:"has_data"`
	// Held is true when FPS was carried over from an earlier tick.
	Held               bool    `json:"held"`
	FPS                float64 `json:"fps"`
	FrameTimeMS        float64 `json:"frame_time_ms"`
	InstantFrameTimeMS float64 `json:"instant_frame_time_ms"`
	MinFPS             float64 `json:"min_fps"`
	AvgFPS             float64 `json:"avg_fps"`
	MaxFPS             float64 `json:"max_fps"`
	GraphicsAPI        string  `json:"graphics_api"`
	Architecture       string  `json:"architecture"`
	UWP                bool    `json:"uwp"`
}

// Retention is the last accepted period frame rate for one process.
type Retention struct {
	FPS   float64
	Valid bool
}

// PeriodFPS computes frames per second over the producer's measurement period.
// ok is false when the period or the resulting rate fails validation.
func PeriodFPS(periodStart, periodEnd, frameCount uint32) (fps float64, ok bool) {
	deltaMS := int64(periodEnd) - int64(periodStart)
	if deltaMS <= 0 || deltaMS > MaxPeriodMS || frameCount == 0 {
		return 0, false
	}
	fps = 1000.0 * float64(frameCount) / float64(deltaMS)
	if fps < MinFPS || fps >= MaxFPS || math.IsNaN(fps) {
		return 0, false
	}
	return fps, true
}

// FrameTimeMS returns the frame time matching fps.
func FrameTimeMS(fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return 1000.0 / fps
}

// HoldFPS applies the hold-last-valid policy: a fresh value replaces the
// retained one; a rejected value falls back to it.
func HoldFPS(fps float64, ok bool, last *Retention) (value float64, held, valid bool) {
	if ok {
		if last != nil {
			last.FPS = fps
			last.Valid = true
		}
		return fps, false, true
	}
	if last != nil && last.Valid {
		return last.FPS, true, true
	}
	return 0, false, false
}

// Derive computes all metrics for an entry. last may be nil to disable
// hold-last-valid.
func Derive(entry telemetry.RawEntry, last *Retention) Derived {
	fps, ok := PeriodFPS(entry.PeriodStart, entry.PeriodEnd, entry.FrameCount)
	value, held, valid := HoldFPS(fps, ok, last)

	out := Derived{
		HasData:      valid,
		Held:         held,
		GraphicsAPI:  GraphicsAPI(entry.Flags),
		Architecture: Architecture(entry.Flags),
		UWP:          entry.Flags&FlagUWP != 0,
	}
	if valid {
		out.FPS = value
		out.FrameTimeMS = FrameTimeMS(value)
	}

	out.InstantFrameTimeMS = InstantFrameTimeMS(entry.FrameTimeMicros)
	out.MinFPS, out.AvgFPS, out.MaxFPS = Stats(entry)
	return out
}

// InstantFrameTimeMS converts the producer's last frame time in microseconds.
// Zero, the sentinel and values beyond MaxPeriodMS yield 0.
func InstantFrameTimeMS(micros uint32) float64 {
	if micros == 0 || micros == telemetry.Sentinel {
		return 0
	}
	ms := float64(micros) / 1000.0
	if ms > MaxPeriodMS {
		return 0
	}
	return ms
}

// Stats returns the producer's min/avg/max frame rate. Statistics are read only
// when statistics are enabled and have samples; each field is rejected on its
// own when it is zero or the sentinel. Rejected fields report 0.
func Stats(entry telemetry.RawEntry) (minFPS, avgFPS, maxFPS float64) {
	if entry.StatFlags == 0 || entry.StatCount == 0 {
		return 0, 0, 0
	}
	return statFPS(entry.StatMin), statFPS(entry.StatAvg), statFPS(entry.StatMax)
}

func statFPS(raw uint32) float64 {
	if raw == 0 || raw == telemetry.Sentinel {
		return 0
	}
	return float64(raw) / millihertzPerHertz
}
