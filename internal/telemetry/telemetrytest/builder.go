// Package telemetrytest builds synthetic telemetry regions for tests.
package telemetrytest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/skobkin/rtsstop-web/internal/shm"
	"github.com/skobkin/rtsstop-web/internal/telemetry"
)

// EntrySize is the slot size used by synthetic regions.
const EntrySize = 320

// Entry describes one synthetic process slot.
type Entry struct {
	PID             uint32
	Name            string
	Flags           uint32
	PeriodStart     uint32
	PeriodEnd       uint32
	FrameCount      uint32
	FrameTimeMicros uint32
	StatFlags       uint32
	StatCount       uint32
	StatMin         uint32
	StatAvg         uint32
	StatMax         uint32
}

// Layout controls the synthetic header.
type Layout struct {
	Signature        uint32
	Version          uint32
	EntrySize        uint32
	EntryArrayOffset uint32
	Slots            int
}

// DefaultLayout returns a valid v2.0 layout with the given number of slots.
func DefaultLayout(slots int) Layout {
	return Layout{
		Signature:        telemetry.Signature,
		Version:          0x00020000,
		EntrySize:        EntrySize,
		EntryArrayOffset: telemetry.DefaultEntryArrayOffset,
		Slots:            slots,
	}
}

// Size returns the buffer size required by the layout.
func (l Layout) Size() int {
	return int(l.EntryArrayOffset) + l.Slots*int(l.EntrySize)
}

// Build renders a region buffer with entries placed in slots 0..len-1.
func Build(layout Layout, entries ...Entry) []byte {
	if len(entries) > layout.Slots {
		panic(fmt.Sprintf("telemetrytest: %d entries exceed %d slots", len(entries), layout.Slots))
	}
	buf := make([]byte, layout.Size())
	WriteHeader(buf, layout)
	for slot, entry := range entries {
		WriteEntry(buf, layout, slot, entry)
	}
	return buf
}

// WriteHeader writes the header fields into buf.
func WriteHeader(buf []byte, layout Layout) {
	put(buf, telemetry.OffsetSignature, layout.Signature)
	put(buf, telemetry.OffsetVersion, layout.Version)
	put(buf, telemetry.OffsetEntrySize, layout.EntrySize)
	put(buf, telemetry.OffsetEntryArrayOffset, layout.EntryArrayOffset)
	put(buf, telemetry.OffsetEntryCount, uint32(layout.Slots))
}

// WriteEntry overwrites one slot.
func WriteEntry(buf []byte, layout Layout, slot int, entry Entry) {
	base := int(layout.EntryArrayOffset) + slot*int(layout.EntrySize)
	clear(buf[base : base+int(layout.EntrySize)])

	put(buf, base+telemetry.EntryOffsetProcessID, entry.PID)
	copy(buf[base+telemetry.EntryOffsetName:base+telemetry.EntryOffsetName+telemetry.EntryNameSize-1], entry.Name)
	put(buf, base+telemetry.EntryOffsetFlags, entry.Flags)
	put(buf, base+telemetry.EntryOffsetPeriodStart, entry.PeriodStart)
	put(buf, base+telemetry.EntryOffsetPeriodEnd, entry.PeriodEnd)
	put(buf, base+telemetry.EntryOffsetFrameCount, entry.FrameCount)
	put(buf, base+telemetry.EntryOffsetFrameTime, entry.FrameTimeMicros)
	put(buf, base+telemetry.EntryOffsetStatFlags, entry.StatFlags)
	put(buf, base+telemetry.EntryOffsetStatCount, entry.StatCount)
	put(buf, base+telemetry.EntryOffsetStatMin, entry.StatMin)
	put(buf, base+telemetry.EntryOffsetStatAvg, entry.StatAvg)
	put(buf, base+telemetry.EntryOffsetStatMax, entry.StatMax)
}

func put(buf []byte, offset int, value uint32) {
	binary.LittleEndian.PutUint32(buf[offset:offset+4], value)
}

// Opener serves in-memory regions by name. Buffers are shared, so tests can
// rewrite them between ticks.
type Opener struct {
	mu      sync.Mutex
	regions map[string][]byte
	opens   int
}

// NewOpener returns an empty Opener.
func NewOpener() *Opener {
	return &Opener{regions: make(map[string][]byte)}
}

// Set publishes (or replaces) a region buffer.
func (o *Opener) Set(name string, buf []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.regions[name] = buf
}

// Remove unpublishes a region.
func (o *Opener) Remove(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.regions, name)
}

// Opens returns how many successful opens were served.
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Open implements telemetry.Opener.
func (o *Opener) Open(name string) (*shm.Region, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf, ok := o.regions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shm.ErrNotFound, name)
	}
	o.opens++
	return shm.NewRegion(name, buf), nil
}
