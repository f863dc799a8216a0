package metrics

import (
	"math"
	"testing"

	"github.com/skobkin/rtsstop-web/internal/telemetry"
)

func TestPeriodFPSFormula(t *testing.T) {
	t.Parallel()

	entry := telemetry.RawEntry{ProcessID: 1, PeriodStart: 0, PeriodEnd: 1000, FrameCount: 100}
	derived := Derive(entry, nil)

	if !derived.HasData || derived.Held {
		t.Fatalf("expected fresh data, got %+v", derived)
	}
	assertClose(t, derived.FPS, 100)
	assertClose(t, derived.FrameTimeMS, 10)
}

func TestPeriodFPSRejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name              string
		start, end, count uint32
	}{
		{"ZeroDelta", 500, 500, 60},
		{"NegativeDelta", 2000, 1000, 60},
		{"PeriodTooLong", 0, 10_001, 600},
		{"NoFrames", 0, 1000, 0},
		{"BelowOneFPS", 0, 10_000, 5},
		{"AtUpperBound", 0, 1000, 1000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if fps, ok := PeriodFPS(tc.start, tc.end, tc.count); ok {
				t.Fatalf("expected rejection, got %.3f", fps)
			}
		})
	}

	if fps, ok := PeriodFPS(0, 10_000, 10); !ok || fps != 1 {
		t.Fatalf("expected 1 fps at the lower bound, got %.3f (%v)", fps, ok)
	}
}

func TestHoldLastValid(t *testing.T) {
	t.Parallel()

	var last Retention

	first := Derive(telemetry.RawEntry{ProcessID: 9, PeriodStart: 0, PeriodEnd: 1000, FrameCount: 60}, &last)
	assertClose(t, first.FPS, 60)

	second := Derive(telemetry.RawEntry{ProcessID: 9, PeriodStart: 1000, PeriodEnd: 1000, FrameCount: 60}, &last)
	if !second.HasData || !second.Held {
		t.Fatalf("expected held data, got %+v", second)
	}
	assertClose(t, second.FPS, 60)
	assertClose(t, second.FrameTimeMS, 1000.0/60)

	third := Derive(telemetry.RawEntry{ProcessID: 9, PeriodStart: 0, PeriodEnd: 500, FrameCount: 60}, &last)
	if third.Held {
		t.Fatalf("fresh value must replace the retained one")
	}
	assertClose(t, third.FPS, 120)
}

func TestNoDataWithoutRetention(t *testing.T) {
	t.Parallel()

	var last Retention
	derived := Derive(telemetry.RawEntry{ProcessID: 3, PeriodStart: 10, PeriodEnd: 5, FrameCount: 1}, &last)
	if derived.HasData || derived.FPS != 0 || derived.FrameTimeMS != 0 {
		t.Fatalf("expected no data, got %+v", derived)
	}
}

func TestStatsSentinelAndGates(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		entry         telemetry.RawEntry
		min, avg, max float64
	}{
		{
			name:  "Valid",
			entry: telemetry.RawEntry{StatFlags: 1, StatCount: 3, StatMin: 55500, StatAvg: 60000, StatMax: 64250},
			min:   55.5, avg: 60, max: 64.25,
		},
		{
			name:  "SentinelField",
			entry: telemetry.RawEntry{StatFlags: 1, StatCount: 3, StatMin: telemetry.Sentinel, StatAvg: 60000, StatMax: 0},
			min:   0, avg: 60, max: 0,
		},
		{
			name:  "AllSentinel",
			entry: telemetry.RawEntry{StatFlags: telemetry.Sentinel, StatCount: telemetry.Sentinel, StatMin: telemetry.Sentinel, StatAvg: telemetry.Sentinel, StatMax: telemetry.Sentinel},
		},
		{
			name:  "FlagsOff",
			entry: telemetry.RawEntry{StatFlags: 0, StatCount: 3, StatMin: 1000, StatAvg: 2000, StatMax: 3000},
		},
		{
			name:  "NoSamples",
			entry: telemetry.RawEntry{StatFlags: 1, StatCount: 0, StatMin: 1000, StatAvg: 2000, StatMax: 3000},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			minFPS, avgFPS, maxFPS := Stats(tc.entry)
			assertClose(t, minFPS, tc.min)
			assertClose(t, avgFPS, tc.avg)
			assertClose(t, maxFPS, tc.max)
		})
	}
}

func TestInstantFrameTime(t *testing.T) {
	t.Parallel()

	assertClose(t, InstantFrameTimeMS(8333), 8.333)
	assertClose(t, InstantFrameTimeMS(0), 0)
	assertClose(t, InstantFrameTimeMS(telemetry.Sentinel), 0)
	assertClose(t, InstantFrameTimeMS(20_000_000), 0)
}

func TestFlagsDecoding(t *testing.T) {
	t.Parallel()

	derived := Derive(telemetry.RawEntry{Flags: 0x00030008}, nil)
	if derived.GraphicsAPI != "Direct3D 12" || derived.Architecture != "x64" || !derived.UWP {
		t.Fatalf("unexpected decoding %+v", derived)
	}
	if GraphicsAPI(0x0000000A) != "Vulkan" || Architecture(0x0000000A) != "x86" {
		t.Fatalf("unexpected Vulkan/x86 decoding")
	}
	if GraphicsAPI(0x00000042) != "Unknown" {
		t.Fatalf("unexpected API for unknown flag")
	}
}

func assertClose(t *testing.T, got, want float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > 0.0001 {
		t.Fatalf("expected %.4f, got %.4f", want, got)
	}
}
