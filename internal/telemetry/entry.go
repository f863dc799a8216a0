package telemetry

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/skobkin/rtsstop-web/internal/shm"
)

// RawEntry holds the unvalidated fields of one process slot. It is re-read
// every tick and never retained.
type RawEntry struct {
	Slot            int    `json:"slot"`
	ProcessID       uint32 `json:"pid"`
	Name            string `json:"name"`
	Flags           uint32 `json:"flags"`
	PeriodStart     uint32 `json:"period_start"`
	PeriodEnd       uint32 `json:"period_end"`
	FrameCount      uint32 `json:"frame_count"`
	FrameTimeMicros uint32 `json:"frame_time_us"`
	StatFlags       uint32 `json:"stat_flags"`
	StatCount       uint32 `json:"stat_count"`
	StatMin         uint32 `json:"stat_min_mhz"`
	StatAvg         uint32 `json:"stat_avg_mhz"`
	StatMax         uint32 `json:"stat_max_mhz"`
}

// BaseName returns the executable name without its directory.
func (e RawEntry) BaseName() string {
	if e.Name == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(e.Name, `\`, "/"))
}

// ReadEntry reads one slot. An empty slot (process id 0) is returned with only
// ProcessID populated.
func ReadEntry(r RegionReader, h Header, slot int) (RawEntry, error) {
	if slot < 0 || uint32(slot) >= h.EntryCount {
		return RawEntry{}, fmt.Errorf("%w: slot %d of %d", shm.ErrOutOfBounds, slot, h.EntryCount)
	}

	start := entryStart(h, slot)
	if !slotFits(r, start) {
		return RawEntry{}, fmt.Errorf("%w: slot %d at %d exceeds capacity %d", shm.ErrOutOfBounds, slot, start, r.Len())
	}
	base := int(start)

	entry := RawEntry{Slot: slot}
	var err error
	if entry.ProcessID, err = r.ReadU32(base + EntryOffsetProcessID); err != nil {
		return RawEntry{}, err
	}
	if entry.ProcessID == 0 {
		return entry, nil
	}

	name, err := r.ReadBytes(base+EntryOffsetName, EntryNameSize)
	if err != nil {
		return RawEntry{}, err
	}
	if idx := bytes.IndexByte(name, 0); idx >= 0 {
		name = name[:idx]
	}
	entry.Name = string(name)

	fields := []struct {
		offset int
		dst    *uint32
	}{
		{EntryOffsetFlags, &entry.Flags},
		{EntryOffsetPeriodStart, &entry.PeriodStart},
		{EntryOffsetPeriodEnd, &entry.PeriodEnd},
		{EntryOffsetFrameCount, &entry.FrameCount},
		{EntryOffsetFrameTime, &entry.FrameTimeMicros},
		{EntryOffsetStatFlags, &entry.StatFlags},
		{EntryOffsetStatCount, &entry.StatCount},
		{EntryOffsetStatMin, &entry.StatMin},
		{EntryOffsetStatAvg, &entry.StatAvg},
		{EntryOffsetStatMax, &entry.StatMax},
	}
	for _, field := range fields {
		if *field.dst, err = r.ReadU32(base + field.offset); err != nil {
			return RawEntry{}, err
		}
	}

	return entry, nil
}

// Snapshot is one tick's view of the region.
type Snapshot struct {
	Region  string     `json:"region"`
	Header  Header     `json:"header"`
	Entries []RawEntry `json:"entries"`
	// Skipped counts slots that could not be read.
	Skipped int `json:"skipped"`
}

// ReadEntries reads every non-empty slot in index order. Unreadable slots
// are skipped and counted.
func ReadEntries(r RegionReader, h Header) ([]RawEntry, int) {
	var (
		entries []RawEntry
		skipped int
	)
	for slot := 0; uint32(slot) < h.EntryCount; slot++ {
		if !slotFits(r, entryStart(h, slot)) {
			// Slots are laid out in ascending order, so the rest are out of bounds too.
			skipped += int(h.EntryCount) - slot
			break
		}
		entry, err := ReadEntry(r, h, slot)
		if err != nil {
			skipped++
			continue
		}
		if entry.ProcessID == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, skipped
}

func entryStart(h Header, slot int) uint64 {
	return uint64(h.EntryArrayOffset) + uint64(slot)*uint64(h.EntrySize)
}

func slotFits(r RegionReader, start uint64) bool {
	return start+uint64(MinEntrySize) <= uint64(r.Len())
}
