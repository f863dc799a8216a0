package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

func logJSONCmd(cmd *cobra.Command, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode probe output: %w", err)
	}
	formatter := prettyjson.NewFormatter()
	formatter.DisabledColor = color.NoColor
	pretty, err := formatter.Format(data)
	if err != nil {
		return fmt.Errorf("format probe output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", pretty)
	return nil
}

func logErrorCmd(cmd *cobra.Command, err error) {
	color.New(color.FgRed, color.Bold).Fprint(cmd.ErrOrStderr(), "error: ")
	fmt.Fprintln(cmd.ErrOrStderr(), color.RedString(err.Error()))
}

func printResult(cmd *cobra.Command, result probeResult) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	h := result.Header

	bold.Fprintf(out, "Region %s", result.Region)
	fmt.Fprintf(out, " (v%s) at %s\n", h.VersionString(), time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "  entry size %d, array offset 0x%x, slots %d", h.EntrySize, h.EntryArrayOffset, h.EntryCount)
	if h.OffsetFallback {
		fmt.Fprint(out, color.YellowString(" (offset fallback)"))
	}
	if result.Skipped > 0 {
		fmt.Fprint(out, color.YellowString(", %d unreadable", result.Skipped))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 60))

	if len(result.Entries) == 0 {
		fmt.Fprintln(out, "No hooked processes")
	}
	for _, entry := range result.Entries {
		m := entry.Metrics
		fps := color.HiBlackString("n/a")
		if m.HasData {
			fps = color.GreenString("%.1f fps / %.2f ms", m.FPS, m.FrameTimeMS)
			if m.Held {
				fps += color.YellowString(" (held)")
			}
		}
		fmt.Fprintf(out, "- slot %d pid %d %s: %s, api %s %s\n",
			entry.Slot, entry.ProcessID, entry.BaseName(), fps, m.GraphicsAPI, m.Architecture)
	}

	if len(result.Candidates) > 0 {
		fmt.Fprintln(out)
		bold.Fprintln(out, "Ranked candidates:")
		for i, c := range result.Candidates {
			fmt.Fprintf(out, "%d. pid %d %s %.1f fps fullscreen=%t foreground=%t\n",
				i+1, c.ProcessID, c.ProcessName, c.Metrics.FPS, c.Fullscreen, c.Foreground)
		}
	}
	fmt.Fprintln(out)
}

func printRegionStatus(cmd *cobra.Command, status regionStatus) {
	out := cmd.OutOrStdout()
	var label string
	switch status.Status {
	case "ok":
		label = color.GreenString("ok")
	case "missing":
		label = color.HiBlackString("missing")
	default:
		label = color.RedString(status.Status)
	}

	fmt.Fprintf(out, "%-24s %s", status.Name, label)
	if status.Size > 0 {
		fmt.Fprintf(out, " (%d bytes)", status.Size)
	}
	if status.Error != "" && status.Status != "missing" {
		fmt.Fprintf(out, ": %s", status.Error)
	}
	fmt.Fprintln(out)
}
