// Package telemetry reads the RivaTuner Statistics Server shared-memory
// layout: a fixed header followed by an array of per-process entries.
package telemetry

const (
	// Signature is the 'RTSS' magic stored at offset 0 of a live region.
	Signature uint32 = 0x52545353
	// DeadSignature marks a region the producer released.
	DeadSignature uint32 = 0xDEAD
	// MinVersion is the oldest (major<<16 | minor) layout accepted.
	MinVersion uint32 = 0x00010000

	// DefaultEntryArrayOffset replaces an entry array offset that points
	// outside the mapped capacity.
	DefaultEntryArrayOffset uint32 = 0x100

	// Sentinel is the producer's "not yet computed" value.
	Sentinel uint32 = 0xFFFFFFFF
)

// Header field offsets.
const (
	OffsetSignature        = 0
	OffsetVersion          = 4
	OffsetEntrySize        = 8
	OffsetEntryArrayOffset = 12
	OffsetEntryCount       = 16

	HeaderSize = 20
)

// Entry field offsets relative to the start of an entry.
const (
	EntryOffsetProcessID   = 0
	EntryOffsetName        = 4
	EntryOffsetFlags       = 264
	EntryOffsetPeriodStart = 268
	EntryOffsetPeriodEnd   = 272
	EntryOffsetFrameCount  = 276
	EntryOffsetFrameTime   = 280
	EntryOffsetStatFlags   = 284
	EntryOffsetStatCount   = 300
	EntryOffsetStatMin     = 304
	EntryOffsetStatAvg     = 308
	EntryOffsetStatMax     = 312

	EntryNameSize = 260

	// MinEntrySize is the end of the last field read from an entry.
	MinEntrySize = EntryOffsetStatMax + 4
)
