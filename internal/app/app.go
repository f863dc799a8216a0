// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skobkin/rtsstop-web/internal/config"
	"github.com/skobkin/rtsstop-web/internal/httpserver"
	"github.com/skobkin/rtsstop-web/internal/monitor"
	"github.com/skobkin/rtsstop-web/internal/procinfo"
	"github.com/skobkin/rtsstop-web/internal/selector"
	"github.com/skobkin/rtsstop-web/internal/shm"
	"github.com/skobkin/rtsstop-web/internal/telemetry"
	"github.com/skobkin/rtsstop-web/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")
	appLogger.Info("starting", "version", version.Current().String())

	mon, err := NewMonitor(cfg, baseLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := mon.Close(); err != nil {
			appLogger.Warn("monitor close", "err", err)
		}
	}()

	monitorCtx, monitorCancel := context.WithCancel(ctx)
	defer monitorCancel()

	monitorErrCh := make(chan error, 1)
	go func() {
		monitorErrCh <- mon.Run(monitorCtx)
	}()

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), mon)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	waitMonitor := func() error {
		if monitorErrCh == nil {
			return nil
		}
		if err := <-monitorErrCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	for {
		select {
		case err := <-errCh:
			monitorCancel()
			if err != nil {
				return err
			}
			return waitMonitor()
		case err := <-monitorErrCh:
			monitorErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case <-ctx.Done():
			appLogger.Info("shutdown initiated", "reason", ctx.Err())

			// Stopping the monitor first closes subscriber channels, which ends
			// open websocket sessions.
			monitorCancel()
			monitorErr := waitMonitor()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("http shutdown: %w", err)
			}

			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			if monitorErr != nil {
				return monitorErr
			}

			appLogger.Info("shutdown complete")
			return nil
		}
	}
}

// NewMonitor assembles the telemetry source, candidate selector and
// monitoring loop from configuration.
func NewMonitor(cfg config.Config, baseLogger *slog.Logger) (*monitor.Monitor, error) {
	source, err := telemetry.NewSource(
		shm.Opener{Dir: cfg.Telemetry.ShmDir},
		cfg.Telemetry.RegionNames,
		baseLogger.With("component", "telemetry"),
	)
	if err != nil {
		return nil, fmt.Errorf("init telemetry source: %w", err)
	}

	sel, err := selector.New(selector.Options{
		IgnoredProcesses: cfg.Selection.IgnoredProcesses,
		MinFPS:           cfg.Selection.MinFPS,
		PreferFullscreen: cfg.Selection.PreferFullscreen,
		QueryTimeout:     cfg.Selection.QueryTimeout,
	}, procinfo.NewProcesses(), procinfo.NewWindows(), baseLogger.With("component", "selector"))
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("init selector: %w", err)
	}

	rules := make([]monitor.CategoryRule, 0, len(cfg.Monitor.CategoryRules))
	for _, rule := range cfg.Monitor.CategoryRules {
		rules = append(rules, monitor.CategoryRule{Pattern: rule.Pattern, Label: rule.Label})
	}

	mon, err := monitor.New(monitor.Options{
		Interval:           cfg.PollInterval,
		DefaultTitle:       cfg.Monitor.DefaultTitle,
		PercentileWindow:   cfg.Monitor.PercentileWindow,
		HookAcquireTimeout: cfg.Monitor.HookAcquireTimeout,
		HookLossTimeout:    cfg.Monitor.HookLossTimeout,
		ClearHeartbeat:     cfg.Monitor.ClearHeartbeat,
		CategoryRules:      rules,
	}, source, sel, baseLogger)
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("init monitor: %w", err)
	}
	return mon, nil
}
