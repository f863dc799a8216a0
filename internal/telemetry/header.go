package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolMismatch reports a region whose signature, version or
	// geometry is not understood.
	ErrProtocolMismatch = errors.New("telemetry protocol mismatch")
	// ErrRegionUnavailable reports that no candidate region could be opened
	// and validated.
	ErrRegionUnavailable = errors.New("telemetry region unavailable")
)

// RegionReader is the subset of shm.Region the readers depend on.
type RegionReader interface {
	ReadU32(offset int) (uint32, error)
	ReadBytes(offset, n int) ([]byte, error)
	Len() int
}

// Header describes the entry array geometry published by the producer.
type Header struct {
	Signature        uint32 `json:"signature"`
	Version          uint32 `json:"version"`
	EntrySize        uint32 `json:"entry_size"`
	EntryArrayOffset uint32 `json:"entry_array_offset"`
	EntryCount       uint32 `json:"entry_count"`
	// OffsetFallback is set when the published array offset was outside the
	// mapped capacity and DefaultEntryArrayOffset was substituted.
	OffsetFallback bool `json:"offset_fallback"`
}

// VersionString renders the version as major.minor.
func (h Header) VersionString() string {
	return fmt.Sprintf("%d.%d", h.Version>>16, h.Version&0xFFFF)
}

// ReadHeader validates the signature and extracts array geometry.
func ReadHeader(r RegionReader) (Header, error) {
	var h Header
	var err error

	if h.Signature, err = r.ReadU32(OffsetSignature); err != nil {
		return Header{}, fmt.Errorf("%w: read signature: %v", ErrProtocolMismatch, err)
	}
	switch h.Signature {
	case Signature:
	case DeadSignature:
		return Header{}, fmt.Errorf("%w: region released by producer", ErrProtocolMismatch)
	default:
		return Header{}, fmt.Errorf("%w: unexpected signature %#08x", ErrProtocolMismatch, h.Signature)
	}

	fields := []struct {
		offset int
		dst    *uint32
	}{
		{OffsetVersion, &h.Version},
		{OffsetEntrySize, &h.EntrySize},
		{OffsetEntryArrayOffset, &h.EntryArrayOffset},
		{OffsetEntryCount, &h.EntryCount},
	}
	for _, field := range fields {
		if *field.dst, err = r.ReadU32(field.offset); err != nil {
			return Header{}, fmt.Errorf("%w: read header field at %d: %v", ErrProtocolMismatch, field.offset, err)
		}
	}

	if h.Version < MinVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %s", ErrProtocolMismatch, h.VersionString())
	}
	if h.EntrySize < MinEntrySize {
		return Header{}, fmt.Errorf("%w: entry size %d below %d", ErrProtocolMismatch, h.EntrySize, MinEntrySize)
	}

	if uint64(h.EntryArrayOffset) >= uint64(r.Len()) || h.EntryArrayOffset < HeaderSize {
		h.EntryArrayOffset = DefaultEntryArrayOffset
		h.OffsetFallback = true
	}

	return h, nil
}
