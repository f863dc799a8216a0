package httpserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/rtsstop-web/internal/monitor"
)

const metricsNamespace = "rtsstop"

type monitorCollector struct {
	monitor  *monitor.Monitor
	active   *prometheus.Desc
	frame    []stateMetric
	counters []statsMetric
}

// stateMetric is reported only while a process is monitored, labelled with it.
type stateMetric struct {
	desc    *prometheus.Desc
	extract func(state monitor.State) (float64, bool)
}

type statsMetric struct {
	desc    *prometheus.Desc
	extract func(stats monitor.Stats) float64
}

func newMonitorCollector(mon *monitor.Monitor) prometheus.Collector {
	if mon == nil {
		return nil
	}

	frameDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "frame", name),
			help,
			[]string{"pid", "process"},
			nil,
		)
	}
	loopDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "monitor", name),
			help,
			nil,
			nil,
		)
	}
	positive := func(v float64) (float64, bool) {
		return v, v > 0
	}

	return &monitorCollector{
		monitor: mon,
		active:  loopDesc("active", "Whether a process is currently monitored (1) or not (0)."),
		frame: []stateMetric{
			{
				desc:    frameDesc("fps", "Frame rate over the producer's measurement period."),
				extract: func(s monitor.State) (float64, bool) { return positive(s.FPS) },
			},
			{
				desc:    frameDesc("time_milliseconds", "Frame time derived from the period frame rate."),
				extract: func(s monitor.State) (float64, bool) { return positive(s.FrameTimeMS) },
			},
			{
				desc:    frameDesc("one_percent_low_fps", "Frame rate at the 99th percentile frame time of the rolling window."),
				extract: func(s monitor.State) (float64, bool) { return positive(s.OnePercentLowFPS) },
			},
			{
				desc:    frameDesc("min_fps", "Producer-reported minimum frame rate."),
				extract: func(s monitor.State) (float64, bool) { return positive(s.MinFPS) },
			},
			{
				desc:    frameDesc("avg_fps", "Producer-reported average frame rate."),
				extract: func(s monitor.State) (float64, bool) { return positive(s.AvgFPS) },
			},
			{
				desc:    frameDesc("max_fps", "Producer-reported maximum frame rate."),
				extract: func(s monitor.State) (float64, bool) { return positive(s.MaxFPS) },
			},
			{
				desc:    frameDesc("instant_time_milliseconds", "Duration of the most recent frame."),
				extract: func(s monitor.State) (float64, bool) { return positive(s.InstantFrameTimeMS) },
			},
			{
				desc: frameDesc("state_age_seconds", "Seconds since the monitored state was last updated."),
				extract: func(s monitor.State) (float64, bool) {
					if s.UpdatedAt.IsZero() {
						return 0, false
					}
					return max(time.Since(s.UpdatedAt).Seconds(), 0), true
				},
			},
		},
		counters: []statsMetric{
			{
				desc:    loopDesc("ticks_total", "Polling loop iterations since start."),
				extract: func(s monitor.Stats) float64 { return float64(s.Ticks) },
			},
			{
				desc:    loopDesc("region_errors_total", "Ticks on which no telemetry region could be read."),
				extract: func(s monitor.Stats) float64 { return float64(s.RegionErrors) },
			},
			{
				desc:    loopDesc("skipped_entries_total", "Process slots skipped as unreadable."),
				extract: func(s monitor.Stats) float64 { return float64(s.SkippedEntries) },
			},
			{
				desc:    loopDesc("hooks_total", "Processes hooked since start."),
				extract: func(s monitor.Stats) float64 { return float64(s.Hooks) },
			},
			{
				desc:    loopDesc("losses_total", "Hooked processes lost since start."),
				extract: func(s monitor.Stats) float64 { return float64(s.Losses) },
			},
			{
				desc:    loopDesc("acquire_timeouts_total", "Hook acquisition budgets exhausted since start."),
				extract: func(s monitor.Stats) float64 { return float64(s.Timeouts) },
			},
		},
	}
}

func (c *monitorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	for _, metric := range c.frame {
		ch <- metric.desc
	}
	for _, metric := range c.counters {
		ch <- metric.desc
	}
}

func (c *monitorCollector) Collect(ch chan<- prometheus.Metric) {
	state := c.monitor.Latest()
	stats := c.monitor.Stats()

	active := 0.0
	if state.IsMonitoring {
		active = 1
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, active)

	for _, metric := range c.counters {
		ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.CounterValue, metric.extract(stats))
	}

	if !state.IsMonitoring {
		return
	}
	pid := formatPID(state.ProcessID)
	for _, metric := range c.frame {
		value, ok := metric.extract(state)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, value, pid, state.ProcessName)
	}
}

func formatPID(pid uint32) string {
	return strconv.FormatUint(uint64(pid), 10)
}
