// Package hook tracks whether the producer has attached to a target process.
package hook

import (
	"fmt"
	"time"
)

// State is a hook acquisition state.
type State int

const (
	Idle State = iota
	AwaitingHook
	Hooked
	// Lost is reported by the transition that drops a target; the machine
	// settles in Idle within the same Observe call.
	Lost
	// Stopped means the acquisition budget ran out. Observation continues and
	// a later success still hooks.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingHook:
		return "awaiting_hook"
	case Hooked:
		return "hooked"
	case Lost:
		return "lost"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for candidate := Idle; candidate <= Stopped; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown hook state %q", text)
}

// Signal is the edge produced by one observation.
type Signal int

const (
	SignalNone Signal = iota
	// SignalHooked fires once per acquired target, including a switch to a
	// different pid while hooked.
	SignalHooked
	SignalLost
	// SignalTimeout fires once when the acquisition budget is exhausted.
	SignalTimeout
)

func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "none"
	case SignalHooked:
		return "hooked"
	case SignalLost:
		return "lost"
	case SignalTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Machine is the acquisition state machine. It is driven by one goroutine and
// is not safe for concurrent use.
type Machine struct {
	maxAcquire int
	maxLoss    int

	state    State
	target   uint32
	attempts int
	misses   int
}

// NewMachine returns a machine in Idle. Budgets are tick counts; values
// below 1 are raised to 1.
func NewMachine(maxAcquire, maxLoss int) *Machine {
	return &Machine{
		maxAcquire: max(maxAcquire, 1),
		maxLoss:    max(maxLoss, 1),
	}
}

// TicksFor converts a time budget into a tick count for the given interval,
// rounding up.
func TicksFor(budget, interval time.Duration) int {
	if budget <= 0 || interval <= 0 {
		return 1
	}
	ticks := int((budget + interval - 1) / interval)
	return max(ticks, 1)
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Target returns the hooked pid, or 0.
func (m *Machine) Target() uint32 {
	return m.target
}

// Observe advances the machine by one tick. found reports whether a valid
// candidate was read this tick and pid identifies it.
func (m *Machine) Observe(found bool, pid uint32) Signal {
	if found && pid == 0 {
		found = false
	}

	switch m.state {
	case Idle:
		if found {
			return m.hook(pid)
		}
		m.state = AwaitingHook
		m.attempts = 0
		return m.miss()

	case AwaitingHook:
		if found {
			return m.hook(pid)
		}
		return m.miss()

	case Hooked:
		if found {
			m.misses = 0
			if pid != m.target {
				m.target = pid
				return SignalHooked
			}
			return SignalNone
		}
		m.misses++
		if m.misses >= m.maxLoss {
			m.state = Idle
			m.target = 0
			m.misses = 0
			return SignalLost
		}
		return SignalNone

	case Stopped:
		if found {
			return m.hook(pid)
		}
		return SignalNone
	}

	return SignalNone
}

// Reset returns the machine to Idle.
func (m *Machine) Reset() {
	m.state = Idle
	m.target = 0
	m.attempts = 0
	m.misses = 0
}

func (m *Machine) hook(pid uint32) Signal {
	m.state = Hooked
	m.target = pid
	m.attempts = 0
	m.misses = 0
	return SignalHooked
}

func (m *Machine) miss() Signal {
	m.attempts++
	if m.attempts >= m.maxAcquire {
		m.state = Stopped
		m.attempts = 0
		return SignalTimeout
	}
	return SignalNone
}
