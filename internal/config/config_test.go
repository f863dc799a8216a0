package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected ListenAddr %q", cfg.ListenAddr)
	}
	if cfg.PollInterval != 16*time.Millisecond {
		t.Fatalf("unexpected PollInterval %s", cfg.PollInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	wantRegions := []string{"RTSSSharedMemoryV2", "RTSSSharedMemory"}
	if !reflect.DeepEqual(cfg.Telemetry.RegionNames, wantRegions) {
		t.Fatalf("unexpected RegionNames %v", cfg.Telemetry.RegionNames)
	}
	if cfg.Selection.MinFPS != 5 || !cfg.Selection.PreferFullscreen {
		t.Fatalf("unexpected selection defaults %+v", cfg.Selection)
	}
	if len(cfg.Selection.IgnoredProcesses) != 6 {
		t.Fatalf("unexpected IgnoredProcesses %v", cfg.Selection.IgnoredProcesses)
	}
	if cfg.Monitor.PercentileWindow != 100 {
		t.Fatalf("unexpected PercentileWindow %d", cfg.Monitor.PercentileWindow)
	}
	if cfg.Monitor.DefaultTitle != "Nothing to capture" {
		t.Fatalf("unexpected DefaultTitle %q", cfg.Monitor.DefaultTitle)
	}
	if cfg.Monitor.HookAcquireTimeout != time.Minute || cfg.Monitor.HookLossTimeout != 10*time.Second {
		t.Fatalf("unexpected hook budgets %+v", cfg.Monitor)
	}
	if cfg.EnvFile != ".env" {
		t.Fatalf("unexpected EnvFile %q", cfg.EnvFile)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("APP_POLL_INTERVAL", "100ms")
	t.Setenv("APP_ALLOWED_ORIGINS", "https://example.com, https://other.test")
	t.Setenv("APP_ENABLE_PROMETHEUS", "true")
	t.Setenv("APP_ENABLE_PPROF", "true")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_WS_MAX_CLIENTS", "2048")
	t.Setenv("APP_WS_WRITE_TIMEOUT", "10s")
	t.Setenv("APP_WS_READ_TIMEOUT", "45s")
	t.Setenv("APP_RTSS_REGION_NAMES", "CustomRegion")
	t.Setenv("APP_SHM_DIR", "/tmp/shm")
	t.Setenv("APP_IGNORED_PROCESSES", "launcher.exe, overlay.exe")
	t.Setenv("APP_MIN_FPS", "2.5")
	t.Setenv("APP_PREFER_FULLSCREEN", "false")
	t.Setenv("APP_QUERY_TIMEOUT", "20ms")
	t.Setenv("APP_PERCENTILE_WINDOW", "300")
	t.Setenv("APP_DEFAULT_TITLE", "Idle")
	t.Setenv("APP_CATEGORY_RULES", "cs2*=Shooter; *factorio*=Factory")
	t.Setenv("APP_HOOK_ACQUIRE_TIMEOUT", "2m")
	t.Setenv("APP_HOOK_LOSS_TIMEOUT", "3s")
	t.Setenv("APP_CLEAR_HEARTBEAT", "1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr override failed, got %q", cfg.ListenAddr)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Fatalf("PollInterval override failed, got %s", cfg.PollInterval)
	}
	wantOrigins := []string{"https://example.com", "https://other.test"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Fatalf("AllowedOrigins mismatch: %+v", cfg.AllowedOrigins)
	}
	if !cfg.EnablePrometheus || !cfg.EnablePprof {
		t.Fatalf("feature toggles override failed")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.WS.MaxClients != 2048 || cfg.WS.WriteTimeout != 10*time.Second || cfg.WS.ReadTimeout != 45*time.Second {
		t.Fatalf("WS override failed, got %+v", cfg.WS)
	}
	if !reflect.DeepEqual(cfg.Telemetry.RegionNames, []string{"CustomRegion"}) || cfg.Telemetry.ShmDir != "/tmp/shm" {
		t.Fatalf("Telemetry override failed, got %+v", cfg.Telemetry)
	}
	if !reflect.DeepEqual(cfg.Selection.IgnoredProcesses, []string{"launcher.exe", "overlay.exe"}) {
		t.Fatalf("IgnoredProcesses override failed, got %v", cfg.Selection.IgnoredProcesses)
	}
	if cfg.Selection.MinFPS != 2.5 || cfg.Selection.PreferFullscreen || cfg.Selection.QueryTimeout != 20*time.Millisecond {
		t.Fatalf("Selection override failed, got %+v", cfg.Selection)
	}
	if cfg.Monitor.PercentileWindow != 300 || cfg.Monitor.DefaultTitle != "Idle" {
		t.Fatalf("Monitor override failed, got %+v", cfg.Monitor)
	}
	wantRules := []CategoryRule{{Pattern: "cs2*", Label: "Shooter"}, {Pattern: "*factorio*", Label: "Factory"}}
	if !reflect.DeepEqual(cfg.Monitor.CategoryRules, wantRules) {
		t.Fatalf("CategoryRules mismatch: %+v", cfg.Monitor.CategoryRules)
	}
	if cfg.Monitor.HookAcquireTimeout != 2*time.Minute || cfg.Monitor.HookLossTimeout != 3*time.Second || cfg.Monitor.ClearHeartbeat != time.Second {
		t.Fatalf("Monitor timing override failed, got %+v", cfg.Monitor)
	}
}

func TestLoadEmptyIgnoreList(t *testing.T) {
	t.Setenv("APP_IGNORED_PROCESSES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Selection.IgnoredProcesses) != 0 {
		t.Fatalf("expected empty ignore list, got %v", cfg.Selection.IgnoredProcesses)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	content := "APP_LISTEN_ADDR=:9999\nAPP_MIN_FPS=12\n# comment\nAPP_DEFAULT_TITLE=\"From file\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("APP_ENV_FILE", path)
	// Process environment wins over the file.
	t.Setenv("APP_MIN_FPS", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("expected listen addr from file, got %q", cfg.ListenAddr)
	}
	if cfg.Monitor.DefaultTitle != "From file" {
		t.Fatalf("expected default title from file, got %q", cfg.Monitor.DefaultTitle)
	}
	if cfg.Selection.MinFPS != 20 {
		t.Fatalf("expected process env to win, got %v", cfg.Selection.MinFPS)
	}
	if cfg.EnvFile != path {
		t.Fatalf("unexpected EnvFile %q", cfg.EnvFile)
	}
	if os.Getenv("APP_LISTEN_ADDR") == ":9999" {
		t.Fatalf("env file must not leak into the process environment")
	}
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	t.Setenv("APP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing explicit env file")
	}
}

func TestParseCategoryRules(t *testing.T) {
	t.Parallel()

	rules, err := parseCategoryRules("a=b=Label; ;game*=Game")
	if err != nil {
		t.Fatalf("parseCategoryRules returned error: %v", err)
	}
	want := []CategoryRule{{Pattern: "a=b", Label: "Label"}, {Pattern: "game*", Label: "Game"}}
	if !reflect.DeepEqual(rules, want) {
		t.Fatalf("unexpected rules %+v", rules)
	}

	for _, bad := range []string{"nolabel", "=Label", "pattern="} {
		if _, err := parseCategoryRules(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"NegativePollInterval", "APP_POLL_INTERVAL", "-1s"},
		{"InvalidPollInterval", "APP_POLL_INTERVAL", "fast"},
		{"InvalidOrigins", "APP_ALLOWED_ORIGINS", ","},
		{"InvalidPrometheusBool", "APP_ENABLE_PROMETHEUS", "maybe"},
		{"InvalidLogLevel", "APP_LOG_LEVEL", "loud"},
		{"InvalidWSMaxClients", "APP_WS_MAX_CLIENTS", "zero"},
		{"NonPositiveWSMaxClients", "APP_WS_MAX_CLIENTS", "0"},
		{"InvalidWSWriteTimeout", "APP_WS_WRITE_TIMEOUT", "nope"},
		{"NegativeWSWriteTimeout", "APP_WS_WRITE_TIMEOUT", "-1s"},
		{"EmptyRegionNames", "APP_RTSS_REGION_NAMES", " , "},
		{"InvalidMinFPS", "APP_MIN_FPS", "lots"},
		{"NegativeMinFPS", "APP_MIN_FPS", "-1"},
		{"InvalidPreferFullscreen", "APP_PREFER_FULLSCREEN", "sometimes"},
		{"NonPositiveQueryTimeout", "APP_QUERY_TIMEOUT", "0"},
		{"NonPositivePercentileWindow", "APP_PERCENTILE_WINDOW", "0"},
		{"InvalidCategoryRules", "APP_CATEGORY_RULES", "broken"},
		{"InvalidAcquireTimeout", "APP_HOOK_ACQUIRE_TIMEOUT", "forever"},
		{"NonPositiveLossTimeout", "APP_HOOK_LOSS_TIMEOUT", "0s"},
		{"InvalidHeartbeat", "APP_CLEAR_HEARTBEAT", "often"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
