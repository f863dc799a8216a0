package monitor

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/skobkin/rtsstop-web/internal/hook"
)

// Kind names an event.
type Kind string

const (
	KindMetrics        Kind = "metrics"
	KindHooked         Kind = "hooked"
	KindHookLost       Kind = "hook_lost"
	KindAcquireTimeout Kind = "acquire_timeout"
	KindCleared        Kind = "cleared"
)

// State is the snapshot consumers see. A zero ProcessID means nothing is
// being monitored and WindowTitle carries the configured default title.
type State struct {
	ProcessID          uint32     `json:"pid"`
	ProcessName        string     `json:"process_name,omitempty"`
	WindowTitle        string     `json:"window_title"`
	Category           string     `json:"category,omitempty"`
	FPS                float64    `json:"fps"`
	FrameTimeMS        float64    `json:"frame_time_ms"`
	OnePercentLowFPS   float64    `json:"one_percent_low_fps"`
	MinFPS             float64    `json:"min_fps"`
	AvgFPS             float64    `json:"avg_fps"`
	MaxFPS             float64    `json:"max_fps"`
	InstantFrameTimeMS float64    `json:"instant_frame_time_ms"`
	GraphicsAPI        string     `json:"graphics_api,omitempty"`
	Architecture       string     `json:"architecture,omitempty"`
	Fullscreen         bool       `json:"fullscreen"`
	Foreground         bool       `json:"foreground"`
	IsMonitoring       bool       `json:"is_monitoring"`
	Hook               hook.State `json:"hook"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Event is delivered to listeners and subscribers once per state change.
type Event struct {
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"ts"`
	State     State     `json:"state"`
}

// Listener receives events synchronously on the loop goroutine.
type Listener func(Event)

// CategoryRule maps a glob over the process name or window title to a label.
type CategoryRule struct {
	Pattern string
	Label   string
}

type categoryMatcher []CategoryRule

func newCategoryMatcher(rules []CategoryRule) (categoryMatcher, error) {
	out := make(categoryMatcher, 0, len(rules))
	for _, rule := range rules {
		pattern := strings.ToLower(strings.TrimSpace(rule.Pattern))
		if pattern == "" {
			return nil, fmt.Errorf("category rule %q: empty pattern", rule.Label)
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("category rule %q: %w", rule.Pattern, err)
		}
		out = append(out, CategoryRule{Pattern: pattern, Label: rule.Label})
	}
	return out, nil
}

// match returns the label of the first rule matching name or title.
func (c categoryMatcher) match(name, title string) string {
	name = strings.ToLower(name)
	title = strings.ToLower(title)
	for _, rule := range c {
		if ok, _ := path.Match(rule.Pattern, name); ok {
			return rule.Label
		}
		if title == "" {
			continue
		}
		if ok, _ := path.Match(rule.Pattern, title); ok {
			return rule.Label
		}
	}
	return ""
}
