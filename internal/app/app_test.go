//go:build unix

package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/rtsstop-web/internal/config"
	"github.com/skobkin/rtsstop-web/internal/telemetry/telemetrytest"
)

func TestNewMonitorReadsMappedRegion(t *testing.T) {
	dir := t.TempDir()
	pid := uint32(os.Getpid())

	buf := telemetrytest.Build(telemetrytest.DefaultLayout(4), telemetrytest.Entry{
		PID:         pid,
		Name:        `C:\Games\game.exe`,
		PeriodStart: 1000,
		PeriodEnd:   2000,
		FrameCount:  90,
	})
	if err := os.WriteFile(filepath.Join(dir, "RTSSSharedMemoryV2"), buf, 0o600); err != nil {
		t.Fatalf("write region: %v", err)
	}

	t.Setenv("APP_SHM_DIR", dir)
	t.Setenv("APP_POLL_INTERVAL", "10ms")
	t.Setenv("APP_IGNORED_PROCESSES", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	mon, err := NewMonitor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mon.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state := mon.Latest(); state.IsMonitoring {
			if state.ProcessID != pid {
				t.Fatalf("expected pid %d, got %d", pid, state.ProcessID)
			}
			if state.FPS != 90 {
				t.Fatalf("expected 90 fps, got %v", state.FPS)
			}
			if got := mon.Stats().Region; got != "RTSSSharedMemoryV2" {
				t.Fatalf("unexpected region %q", got)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor never reported the mapped process")
}

func TestNewMonitorRejectsBadCategoryRule(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		PollInterval: time.Second,
		Monitor: config.MonitorConfig{
			CategoryRules: []config.CategoryRule{{Pattern: "[", Label: "broken"}},
		},
	}
	if _, err := NewMonitor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error for malformed pattern")
	}
}
