// Package selector picks the single process worth reporting on among all
// processes the producer is hooked into.
package selector

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/skobkin/rtsstop-web/internal/metrics"
	"github.com/skobkin/rtsstop-web/internal/procinfo"
	"github.com/skobkin/rtsstop-web/internal/telemetry"
)

const defaultQueryTimeout = 50 * time.Millisecond

// ProcessInspector answers liveness and name queries.
type ProcessInspector interface {
	Exists(ctx context.Context, pid uint32) (bool, error)
	Name(ctx context.Context, pid uint32) (string, error)
}

// WindowInspector answers window state queries.
type WindowInspector interface {
	Window(ctx context.Context, pid uint32) (procinfo.WindowInfo, error)
}

// Options tunes filtering and ranking.
type Options struct {
	IgnoredProcesses []string
	MinFPS           float64
	PreferFullscreen bool
	// QueryTimeout bounds every collaborator call.
	QueryTimeout time.Duration
}

// Candidate is one process surviving the filters, with its derived metrics.
type Candidate struct {
	Slot        int             `json:"slot"`
	ProcessID   uint32          `json:"pid"`
	ProcessName string          `json:"process_name"`
	WindowTitle string          `json:"window_title"`
	Fullscreen  bool            `json:"fullscreen"`
	Foreground  bool            `json:"foreground"`
	Metrics     metrics.Derived `json:"metrics"`
}

// Selector filters and ranks telemetry entries. It owns the per-process
// hold-last-valid state and is not safe for concurrent use.
type Selector struct {
	opts    Options
	ignored map[string]struct{}
	procs   ProcessInspector
	windows WindowInspector
	logger  *slog.Logger

	retention map[uint32]*metrics.Retention
}

// New constructs a Selector.
func New(opts Options, procs ProcessInspector, windows WindowInspector, logger *slog.Logger) (*Selector, error) {
	if procs == nil {
		return nil, fmt.Errorf("process inspector is required")
	}
	if windows == nil {
		return nil, fmt.Errorf("window inspector is required")
	}
	if opts.MinFPS < 0 {
		return nil, fmt.Errorf("minimum fps must be >= 0")
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ignored := make(map[string]struct{}, len(opts.IgnoredProcesses))
	for _, name := range opts.IgnoredProcesses {
		if key := normalizeName(name); key != "" {
			ignored[key] = struct{}{}
		}
	}

	return &Selector{
		opts:      opts,
		ignored:   ignored,
		procs:     procs,
		windows:   windows,
		logger:    logger,
		retention: make(map[uint32]*metrics.Retention),
	}, nil
}

// Select returns the surviving candidates, best first. Entries must be in
// slot order; ties are broken by that order.
func (s *Selector) Select(ctx context.Context, entries []telemetry.RawEntry) []Candidate {
	seen := make(map[uint32]struct{}, len(entries))
	candidates := make([]Candidate, 0, len(entries))

	for _, entry := range entries {
		if entry.ProcessID == 0 {
			continue
		}
		pid := entry.ProcessID

		if !s.alive(ctx, pid) {
			continue
		}
		seen[pid] = struct{}{}

		name := s.processName(ctx, entry)
		if s.Ignored(name) {
			continue
		}

		last, ok := s.retention[pid]
		if !ok {
			last = &metrics.Retention{}
			s.retention[pid] = last
		}
		derived := metrics.Derive(entry, last)
		if !derived.HasData || derived.FPS < s.opts.MinFPS {
			continue
		}

		window := s.window(ctx, pid)
		candidates = append(candidates, Candidate{
			Slot:        entry.Slot,
			ProcessID:   pid,
			ProcessName: name,
			WindowTitle: window.Title,
			Fullscreen:  window.Fullscreen,
			Foreground:  window.Foreground,
			Metrics:     derived,
		})
	}

	for pid := range s.retention {
		if _, ok := seen[pid]; !ok {
			delete(s.retention, pid)
		}
	}

	slices.SortStableFunc(candidates, s.compare)
	return candidates
}

// Best returns the head of a ranked candidate list.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// Ignored reports whether name matches the ignore list.
func (s *Selector) Ignored(name string) bool {
	_, ok := s.ignored[normalizeName(name)]
	return ok
}

func (s *Selector) compare(a, b Candidate) int {
	if s.opts.PreferFullscreen && a.Fullscreen != b.Fullscreen {
		if a.Fullscreen {
			return -1
		}
		return 1
	}
	return cmp.Compare(b.Metrics.FPS, a.Metrics.FPS)
}

func (s *Selector) alive(ctx context.Context, pid uint32) bool {
	qctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	exists, err := s.procs.Exists(qctx, pid)
	if err != nil {
		s.logger.Debug("process liveness check failed", "pid", pid, "err", err)
		return true
	}
	return exists
}

func (s *Selector) processName(ctx context.Context, entry telemetry.RawEntry) string {
	qctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	name, err := s.procs.Name(qctx, entry.ProcessID)
	if err == nil && name != "" {
		return name
	}
	if base := entry.BaseName(); base != "" {
		return base
	}
	return "pid " + strconv.FormatUint(uint64(entry.ProcessID), 10)
}

func (s *Selector) window(ctx context.Context, pid uint32) procinfo.WindowInfo {
	qctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	info, err := s.windows.Window(qctx, pid)
	if err != nil {
		s.logger.Debug("window query failed", "pid", pid, "err", err)
		return procinfo.WindowInfo{}
	}
	return info
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}
