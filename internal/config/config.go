package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// Config represents runtime configuration sourced from environment variables
// and an optional dotenv file.
type Config struct {
	ListenAddr       string
	PollInterval     time.Duration
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	EnvFile          string
	WS               WebsocketConfig
	Telemetry        TelemetryConfig
	Selection        SelectionConfig
	Monitor          MonitorConfig
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// TelemetryConfig locates the producer's shared memory.
type TelemetryConfig struct {
	RegionNames []string
	// ShmDir holds named regions on platforms without named file mappings.
	ShmDir string
}

// SelectionConfig tunes candidate filtering.
type SelectionConfig struct {
	IgnoredProcesses []string
	MinFPS           float64
	PreferFullscreen bool
	QueryTimeout     time.Duration
}

// MonitorConfig tunes the polling loop.
type MonitorConfig struct {
	PercentileWindow   int
	DefaultTitle       string
	CategoryRules      []CategoryRule
	HookAcquireTimeout time.Duration
	HookLossTimeout    time.Duration
	ClearHeartbeat     time.Duration
}

// CategoryRule labels processes whose name or window title matches Pattern.
type CategoryRule struct {
	Pattern string
	Label   string
}

// Load parses configuration from environment variables, applying defaults.
// Variables from the dotenv file named by APP_ENV_FILE (default .env) fill in
// whatever the process environment leaves unset.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       ":8080",
		PollInterval:     16 * time.Millisecond,
		AllowedOrigins:   []string{"*"},
		EnablePrometheus: false,
		EnablePprof:      false,
		LogLevel:         slog.LevelInfo,
		EnvFile:          defaultEnvFile,
		WS: WebsocketConfig{
			MaxClients:   1024,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			RegionNames: []string{"RTSSSharedMemoryV2", "RTSSSharedMemory"},
			ShmDir:      "/dev/shm",
		},
		Selection: SelectionConfig{
			IgnoredProcesses: []string{
				"explorer.exe",
				"dwm.exe",
				"RTSS.exe",
				"EncoderServer.exe",
				"RTSSHooksLoader64.exe",
				"steamwebhelper.exe",
			},
			MinFPS:           5,
			PreferFullscreen: true,
			QueryTimeout:     50 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			PercentileWindow:   100,
			DefaultTitle:       "Nothing to capture",
			HookAcquireTimeout: 60 * time.Second,
			HookLossTimeout:    10 * time.Second,
			ClearHeartbeat:     5 * time.Second,
		},
	}

	env, err := loadEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.EnvFile = env.path

	if value := env.get("APP_LISTEN_ADDR"); value != "" {
		cfg.ListenAddr = value
	}

	if err := env.duration("APP_POLL_INTERVAL", &cfg.PollInterval); err != nil {
		return Config{}, err
	}

	if value := env.get("APP_ALLOWED_ORIGINS"); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if err := env.boolean("APP_ENABLE_PROMETHEUS", &cfg.EnablePrometheus); err != nil {
		return Config{}, err
	}
	if err := env.boolean("APP_ENABLE_PPROF", &cfg.EnablePprof); err != nil {
		return Config{}, err
	}

	if value := env.get("APP_LOG_LEVEL"); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if err := env.positiveInt("APP_WS_MAX_CLIENTS", &cfg.WS.MaxClients); err != nil {
		return Config{}, err
	}
	if err := env.duration("APP_WS_WRITE_TIMEOUT", &cfg.WS.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := env.duration("APP_WS_READ_TIMEOUT", &cfg.WS.ReadTimeout); err != nil {
		return Config{}, err
	}

	if value := env.get("APP_RTSS_REGION_NAMES"); value != "" {
		names := splitAndTrim(value, ",")
		if len(names) == 0 {
			return Config{}, fmt.Errorf("APP_RTSS_REGION_NAMES must not be empty")
		}
		cfg.Telemetry.RegionNames = names
	}
	if value := env.get("APP_SHM_DIR"); value != "" {
		cfg.Telemetry.ShmDir = value
	}

	// An explicitly empty list disables ignoring.
	if value, ok := env.lookup("APP_IGNORED_PROCESSES"); ok {
		cfg.Selection.IgnoredProcesses = splitAndTrim(value, ",")
	}

	if value := env.get("APP_MIN_FPS"); value != "" {
		minFPS, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_MIN_FPS: %w", err)
		}
		if minFPS < 0 {
			return Config{}, fmt.Errorf("APP_MIN_FPS must be >= 0")
		}
		cfg.Selection.MinFPS = minFPS
	}

	if err := env.boolean("APP_PREFER_FULLSCREEN", &cfg.Selection.PreferFullscreen); err != nil {
		return Config{}, err
	}
	if err := env.duration("APP_QUERY_TIMEOUT", &cfg.Selection.QueryTimeout); err != nil {
		return Config{}, err
	}

	if err := env.positiveInt("APP_PERCENTILE_WINDOW", &cfg.Monitor.PercentileWindow); err != nil {
		return Config{}, err
	}
	if value := env.get("APP_DEFAULT_TITLE"); value != "" {
		cfg.Monitor.DefaultTitle = value
	}
	if value := env.get("APP_CATEGORY_RULES"); value != "" {
		rules, err := parseCategoryRules(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_CATEGORY_RULES: %w", err)
		}
		cfg.Monitor.CategoryRules = rules
	}
	if err := env.duration("APP_HOOK_ACQUIRE_TIMEOUT", &cfg.Monitor.HookAcquireTimeout); err != nil {
		return Config{}, err
	}
	if err := env.duration("APP_HOOK_LOSS_TIMEOUT", &cfg.Monitor.HookLossTimeout); err != nil {
		return Config{}, err
	}
	if err := env.duration("APP_CLEAR_HEARTBEAT", &cfg.Monitor.ClearHeartbeat); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// environment resolves variables from the process first, then the dotenv file.
type environment struct {
	path string
	file map[string]string
}

func loadEnv() (environment, error) {
	path, explicit := os.LookupEnv("APP_ENV_FILE")
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultEnvFile
		explicit = false
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return environment{path: path}, nil
		}
		return environment{}, fmt.Errorf("read env file %s: %w", path, err)
	}
	return environment{path: path, file: values}, nil
}

func (e environment) lookup(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value), true
	}
	value, ok := e.file[key]
	return strings.TrimSpace(value), ok
}

func (e environment) get(key string) string {
	value, _ := e.lookup(key)
	return value
}

func (e environment) duration(key string, dst *time.Duration) error {
	value := e.get(key)
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if duration <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = duration
	return nil
}

func (e environment) positiveInt(key string, dst *int) error {
	value := e.get(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if n <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = n
	return nil
}

func (e environment) boolean(key string, dst *bool) error {
	value := e.get(key)
	if value == "" {
		return nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = enabled
	return nil
}

// parseCategoryRules parses "pattern=label;pattern=label".
func parseCategoryRules(value string) ([]CategoryRule, error) {
	items := splitAndTrim(value, ";")
	rules := make([]CategoryRule, 0, len(items))
	for _, item := range items {
		idx := strings.LastIndex(item, "=")
		if idx <= 0 || idx == len(item)-1 {
			return nil, fmt.Errorf("rule %q: expected pattern=label", item)
		}
		pattern := strings.TrimSpace(item[:idx])
		label := strings.TrimSpace(item[idx+1:])
		if pattern == "" || label == "" {
			return nil, fmt.Errorf("rule %q: expected pattern=label", item)
		}
		rules = append(rules, CategoryRule{Pattern: pattern, Label: label})
	}
	return rules, nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
