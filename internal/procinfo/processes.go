// Package procinfo answers best-effort OS questions about processes and
// their windows.
package procinfo

import (
	"context"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// Processes resolves process liveness and names via gopsutil. Names are
// cached per pid until the pid is observed dead.
type Processes struct {
	mu    sync.Mutex
	names map[uint32]string
}

// NewProcesses returns an empty Processes.
func NewProcesses() *Processes {
	return &Processes{names: make(map[uint32]string)}
}

// Exists reports whether pid refers to a running process.
func (p *Processes) Exists(ctx context.Context, pid uint32) (bool, error) {
	if pid == 0 {
		return false, nil
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return false, fmt.Errorf("check pid %d: %w", pid, err)
	}
	if !exists {
		p.forget(pid)
	}
	return exists, nil
}

// Name returns the executable name of pid.
func (p *Processes) Name(ctx context.Context, pid uint32) (string, error) {
	p.mu.Lock()
	if name, ok := p.names[pid]; ok {
		p.mu.Unlock()
		return name, nil
	}
	p.mu.Unlock()

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("open pid %d: %w", pid, err)
	}
	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("name of pid %d: %w", pid, err)
	}

	p.mu.Lock()
	p.names[pid] = name
	p.mu.Unlock()
	return name, nil
}

func (p *Processes) forget(pid uint32) {
	p.mu.Lock()
	delete(p.names, pid)
	p.mu.Unlock()
}
