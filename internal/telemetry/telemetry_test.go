package telemetry_test

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/skobkin/rtsstop-web/internal/shm"
	"github.com/skobkin/rtsstop-web/internal/telemetry"
	"github.com/skobkin/rtsstop-web/internal/telemetry/telemetrytest"
)

func TestReadHeaderValid(t *testing.T) {
	t.Parallel()

	layout := telemetrytest.DefaultLayout(4)
	region := shm.NewRegion("test", telemetrytest.Build(layout))

	header, err := telemetry.ReadHeader(region)
	if err != nil {
		t.Fatalf("ReadHeader returned error: %v", err)
	}
	if header.EntrySize != telemetrytest.EntrySize {
		t.Fatalf("unexpected entry size %d", header.EntrySize)
	}
	if header.EntryCount != 4 {
		t.Fatalf("unexpected entry count %d", header.EntryCount)
	}
	if header.EntryArrayOffset != telemetry.DefaultEntryArrayOffset || header.OffsetFallback {
		t.Fatalf("unexpected array offset %d (fallback %v)", header.EntryArrayOffset, header.OffsetFallback)
	}
	if header.VersionString() != "2.0" {
		t.Fatalf("unexpected version %s", header.VersionString())
	}
}

func TestReadHeaderRejects(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(*telemetrytest.Layout)
	}{
		{"BadSignature", func(l *telemetrytest.Layout) { l.Signature = 0x12345678 }},
		{"DeadSignature", func(l *telemetrytest.Layout) { l.Signature = telemetry.DeadSignature }},
		{"OldVersion", func(l *telemetrytest.Layout) { l.Version = 0x00000009 }},
		{"TinyEntries", func(l *telemetrytest.Layout) { l.EntrySize = 64 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			layout := telemetrytest.DefaultLayout(2)
			buf := telemetrytest.Build(layout)
			tc.mutate(&layout)
			telemetrytest.WriteHeader(buf, layout)

			if _, err := telemetry.ReadHeader(shm.NewRegion("test", buf)); !errors.Is(err, telemetry.ErrProtocolMismatch) {
				t.Fatalf("expected ErrProtocolMismatch, got %v", err)
			}
		})
	}

	if _, err := telemetry.ReadHeader(shm.NewRegion("short", []byte{0x53, 0x53})); !errors.Is(err, telemetry.ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch for truncated region, got %v", err)
	}
}

func TestReadHeaderOffsetFallback(t *testing.T) {
	t.Parallel()

	layout := telemetrytest.DefaultLayout(1)
	buf := telemetrytest.Build(layout, telemetrytest.Entry{PID: 42, Name: "game.exe", PeriodEnd: 1000, FrameCount: 60})
	binary.LittleEndian.PutUint32(buf[telemetry.OffsetEntryArrayOffset:], 0x7FFFFFFF)

	region := shm.NewRegion("test", buf)
	header, err := telemetry.ReadHeader(region)
	if err != nil {
		t.Fatalf("ReadHeader returned error: %v", err)
	}
	if !header.OffsetFallback || header.EntryArrayOffset != telemetry.DefaultEntryArrayOffset {
		t.Fatalf("expected fallback offset, got %+v", header)
	}

	entries, skipped := telemetry.ReadEntries(region, header)
	if skipped != 0 || len(entries) != 1 || entries[0].ProcessID != 42 {
		t.Fatalf("unexpected entries %+v (skipped %d)", entries, skipped)
	}
}

func TestReadEntryOffsets(t *testing.T) {
	t.Parallel()

	layout := telemetrytest.DefaultLayout(3)
	want := telemetrytest.Entry{
		PID:             100,
		Name:            `C:\Games\Game\game.exe`,
		Flags:           0x00010008,
		PeriodStart:     1000,
		PeriodEnd:       3000,
		FrameCount:      240,
		FrameTimeMicros: 8333,
		StatFlags:       1,
		StatCount:       5,
		StatMin:         59000,
		StatAvg:         60000,
		StatMax:         61000,
	}
	buf := telemetrytest.Build(layout, telemetrytest.Entry{}, want)
	region := shm.NewRegion("test", buf)

	header, err := telemetry.ReadHeader(region)
	if err != nil {
		t.Fatalf("ReadHeader returned error: %v", err)
	}

	got, err := telemetry.ReadEntry(region, header, 1)
	if err != nil {
		t.Fatalf("ReadEntry returned error: %v", err)
	}

	if got.Slot != 1 || got.ProcessID != want.PID || got.Name != want.Name || got.Flags != want.Flags ||
		got.PeriodStart != want.PeriodStart || got.PeriodEnd != want.PeriodEnd || got.FrameCount != want.FrameCount ||
		got.FrameTimeMicros != want.FrameTimeMicros || got.StatFlags != want.StatFlags || got.StatCount != want.StatCount ||
		got.StatMin != want.StatMin || got.StatAvg != want.StatAvg || got.StatMax != want.StatMax {
		t.Fatalf("entry mismatch: %+v", got)
	}
	if got.BaseName() != "game.exe" {
		t.Fatalf("unexpected base name %q", got.BaseName())
	}

	if _, err := telemetry.ReadEntry(region, header, 3); !errors.Is(err, shm.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds for slot past count, got %v", err)
	}
}

func TestReadEntriesSkipsEmptyAndTruncated(t *testing.T) {
	t.Parallel()

	layout := telemetrytest.DefaultLayout(4)
	buf := telemetrytest.Build(layout,
		telemetrytest.Entry{PID: 10},
		telemetrytest.Entry{},
		telemetrytest.Entry{PID: 30},
	)
	// Cut the region in the middle of slot 3.
	buf = buf[:layout.Size()-100]

	region := shm.NewRegion("test", buf)
	header, err := telemetry.ReadHeader(region)
	if err != nil {
		t.Fatalf("ReadHeader returned error: %v", err)
	}

	entries, skipped := telemetry.ReadEntries(region, header)
	if len(entries) != 2 || entries[0].ProcessID != 10 || entries[1].ProcessID != 30 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].Slot != 0 || entries[1].Slot != 2 {
		t.Fatalf("slot order not preserved: %+v", entries)
	}
	if skipped != 1 {
		t.Fatalf("expected one skipped slot, got %d", skipped)
	}
}

func TestSourceOpensNewestValidRegion(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opener := telemetrytest.NewOpener()

	bad := telemetrytest.DefaultLayout(1)
	bad.Signature = 0
	opener.Set("RTSSSharedMemoryV2", telemetrytest.Build(bad))
	opener.Set("RTSSSharedMemory", telemetrytest.Build(telemetrytest.DefaultLayout(1), telemetrytest.Entry{PID: 7}))

	source, err := telemetry.NewSource(opener, nil, logger)
	if err != nil {
		t.Fatalf("NewSource returned error: %v", err)
	}
	t.Cleanup(func() { _ = source.Close() })

	snapshot, err := source.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snapshot.Region != "RTSSSharedMemory" || source.RegionName() != "RTSSSharedMemory" {
		t.Fatalf("expected fallback region, got %q", snapshot.Region)
	}
	if len(snapshot.Entries) != 1 || snapshot.Entries[0].ProcessID != 7 {
		t.Fatalf("unexpected entries %+v", snapshot.Entries)
	}

	// The mapping is reused across ticks.
	if _, err := source.Snapshot(); err != nil {
		t.Fatalf("second Snapshot returned error: %v", err)
	}
	if opener.Opens() != 2 {
		t.Fatalf("expected two opens (rejected + accepted), got %d", opener.Opens())
	}
}

func TestSourceUnavailableAndRecovery(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opener := telemetrytest.NewOpener()

	source, err := telemetry.NewSource(opener, []string{"RTSSSharedMemoryV2"}, logger)
	if err != nil {
		t.Fatalf("NewSource returned error: %v", err)
	}

	if _, err := source.Snapshot(); !errors.Is(err, telemetry.ErrRegionUnavailable) {
		t.Fatalf("expected ErrRegionUnavailable, got %v", err)
	}

	layout := telemetrytest.DefaultLayout(1)
	buf := telemetrytest.Build(layout, telemetrytest.Entry{PID: 5})
	opener.Set("RTSSSharedMemoryV2", buf)

	if _, err := source.Snapshot(); err != nil {
		t.Fatalf("Snapshot after publish returned error: %v", err)
	}

	// Producer marks the region dead: the source drops it and reports unavailability.
	layout.Signature = telemetry.DeadSignature
	telemetrytest.WriteHeader(buf, layout)
	if _, err := source.Snapshot(); !errors.Is(err, telemetry.ErrRegionUnavailable) {
		t.Fatalf("expected ErrRegionUnavailable after release, got %v", err)
	}
	if source.RegionName() != "" {
		t.Fatalf("expected region to be released")
	}
}
