package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skobkin/rtsstop-web/internal/metrics"
	"github.com/skobkin/rtsstop-web/internal/procinfo"
	"github.com/skobkin/rtsstop-web/internal/selector"
	"github.com/skobkin/rtsstop-web/internal/shm"
	"github.com/skobkin/rtsstop-web/internal/telemetry"
	"github.com/skobkin/rtsstop-web/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
)

type probeEntry struct {
	telemetry.RawEntry
	Metrics metrics.Derived `json:"metrics"`
}

type probeResult struct {
	Region     string               `json:"region"`
	Header     telemetry.Header     `json:"header"`
	Skipped    int                  `json:"skipped"`
	Entries    []probeEntry         `json:"entries"`
	Candidates []selector.Candidate `json:"candidates,omitempty"`
}

type regionStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Size   int    `json:"size,omitempty"`
	Error  string `json:"error,omitempty"`
}

type probeFlags struct {
	regions    []string
	shmDir     string
	jsonOutput bool
	verbose    bool
}

func main() {
	version.Set(version.Info{Version: buildVersion, Commit: buildCommit})

	var flags probeFlags
	rootCmd := &cobra.Command{
		Use:     "rtss-probe",
		Short:   "Inspect the RTSS shared memory region",
		Long:    `Reads the frame telemetry region published by RivaTuner Statistics Server and prints what the monitor would see.`,
		Version: version.Current().String(),
		// Errors are reported once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&flags.regions, "region",
		splitList(envOrDefault("APP_RTSS_REGION_NAMES", strings.Join(telemetry.DefaultRegionNames, ","))),
		"Region names to try in order")
	rootCmd.PersistentFlags().StringVar(&flags.shmDir, "shm-dir", envOrDefault("APP_SHM_DIR", shm.DefaultDir),
		"Directory holding named regions (non-Windows)")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "Emit results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log telemetry diagnostics to stderr")

	rootCmd.AddCommand(newReadCmd(&flags), newRegionsCmd(&flags))

	if err := rootCmd.Execute(); err != nil {
		logErrorCmd(rootCmd, err)
		os.Exit(1)
	}
}

func newReadCmd(flags *probeFlags) *cobra.Command {
	var (
		rank     bool
		count    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read header and process slots",
		Long: `Read the header and every non-empty process slot, with derived metrics.

Examples:
  # One read, human readable
  rtss-probe read

  # Five reads a second apart, ranked the way the monitor ranks them
  rtss-probe read --rank --count 5 --interval 1s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := probeLogger(flags.verbose)

			source, err := telemetry.NewSource(shm.Opener{Dir: flags.shmDir}, flags.regions, logger.With("component", "telemetry"))
			if err != nil {
				return err
			}
			defer source.Close()

			var sel *selector.Selector
			if rank {
				sel, err = selector.New(selector.Options{PreferFullscreen: true},
					procinfo.NewProcesses(), procinfo.NewWindows(), logger.With("component", "selector"))
				if err != nil {
					return err
				}
			}

			retention := make(map[uint32]*metrics.Retention)
			for i := 0; i < max(count, 1); i++ {
				if i > 0 {
					time.Sleep(interval)
				}

				snapshot, err := source.Snapshot()
				if err != nil {
					return err
				}
				result := buildResult(snapshot, retention)
				if sel != nil {
					result.Candidates = sel.Select(cmd.Context(), snapshot.Entries)
				}

				if flags.jsonOutput {
					if err := logJSONCmd(cmd, result); err != nil {
						return err
					}
					continue
				}
				printResult(cmd, result)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rank, "rank", false, "Rank entries the way the monitor would")
	cmd.Flags().IntVar(&count, "count", 1, "Number of reads")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between reads")
	return cmd
}

func newRegionsCmd(flags *probeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "Check which region names can be opened and validated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opener := shm.Opener{Dir: flags.shmDir}
			statuses := make([]regionStatus, 0, len(flags.regions))
			for _, name := range flags.regions {
				statuses = append(statuses, checkRegion(opener, name))
			}

			if flags.jsonOutput {
				return logJSONCmd(cmd, statuses)
			}
			for _, status := range statuses {
				printRegionStatus(cmd, status)
			}
			return nil
		},
	}
}

func checkRegion(opener shm.Opener, name string) regionStatus {
	region, err := opener.Open(name)
	if err != nil {
		status := "error"
		if errors.Is(err, shm.ErrNotFound) {
			status = "missing"
		}
		return regionStatus{Name: name, Status: status, Error: err.Error()}
	}
	defer region.Close()

	if _, err := telemetry.ReadHeader(region); err != nil {
		return regionStatus{Name: name, Status: "invalid", Size: region.Len(), Error: err.Error()}
	}
	return regionStatus{Name: name, Status: "ok", Size: region.Len()}
}

func buildResult(snapshot telemetry.Snapshot, retention map[uint32]*metrics.Retention) probeResult {
	result := probeResult{
		Region:  snapshot.Region,
		Header:  snapshot.Header,
		Skipped: snapshot.Skipped,
		Entries: make([]probeEntry, 0, len(snapshot.Entries)),
	}
	for _, entry := range snapshot.Entries {
		last, ok := retention[entry.ProcessID]
		if !ok {
			last = &metrics.Retention{}
			retention[entry.ProcessID] = last
		}
		result.Entries = append(result.Entries, probeEntry{RawEntry: entry, Metrics: metrics.Derive(entry, last)})
	}
	return result
}

func probeLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
