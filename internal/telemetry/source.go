package telemetry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/skobkin/rtsstop-web/internal/shm"
)

// DefaultRegionNames lists the producer's region names, newest protocol first.
var DefaultRegionNames = []string{"RTSSSharedMemoryV2", "RTSSSharedMemory"}

// Opener maps a named region.
type Opener interface {
	Open(name string) (*shm.Region, error)
}

// Source keeps the producer's region mapped across ticks and re-opens it when
// it disappears or stops validating.
type Source struct {
	opener Opener
	names  []string
	logger *slog.Logger

	region *shm.Region
}

// NewSource constructs a Source trying names in order.
func NewSource(opener Opener, names []string, logger *slog.Logger) (*Source, error) {
	if opener == nil {
		return nil, fmt.Errorf("opener is required")
	}
	if len(names) == 0 {
		names = DefaultRegionNames
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{
		opener: opener,
		names:  append([]string(nil), names...),
		logger: logger,
	}, nil
}

// RegionName returns the name of the currently mapped region, if any.
func (s *Source) RegionName() string {
	if s.region == nil {
		return ""
	}
	return s.region.Name()
}

// Snapshot reads the header and all non-empty entries. It returns an error
// wrapping ErrRegionUnavailable when no region can be mapped and validated;
// callers retry on the next tick.
func (s *Source) Snapshot() (Snapshot, error) {
	if s.region == nil {
		if err := s.open(); err != nil {
			return Snapshot{}, err
		}
	}

	header, err := ReadHeader(s.region)
	if err != nil {
		name := s.region.Name()
		s.logger.Info("telemetry region invalidated", "region", name, "err", err)
		s.release()
		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrRegionUnavailable, name, err)
	}

	entries, skipped := ReadEntries(s.region, header)
	return Snapshot{
		Region:  s.region.Name(),
		Header:  header,
		Entries: entries,
		Skipped: skipped,
	}, nil
}

func (s *Source) open() error {
	var errs []error
	for _, name := range s.names {
		region, err := s.opener.Open(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		header, err := ReadHeader(region)
		if err != nil {
			if closeErr := region.Close(); closeErr != nil {
				s.logger.Debug("failed to close rejected region", "region", name, "err", closeErr)
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		s.region = region
		s.logger.Info("telemetry region opened",
			"region", name,
			"version", header.VersionString(),
			"entry_size", header.EntrySize,
			"entries", header.EntryCount,
			"offset_fallback", header.OffsetFallback,
		)
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRegionUnavailable, errors.Join(errs...))
}

func (s *Source) release() {
	if s.region == nil {
		return
	}
	if err := s.region.Close(); err != nil {
		s.logger.Debug("failed to close region", "region", s.region.Name(), "err", err)
	}
	s.region = nil
}

// Close releases the mapped region.
func (s *Source) Close() error {
	if s.region == nil {
		return nil
	}
	err := s.region.Close()
	s.region = nil
	return err
}
