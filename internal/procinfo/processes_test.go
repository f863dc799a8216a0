package procinfo

import (
	"context"
	"os"
	"testing"
)

func TestProcessesSelf(t *testing.T) {
	t.Parallel()

	procs := NewProcesses()
	ctx := context.Background()
	pid := uint32(os.Getpid())

	exists, err := procs.Exists(ctx, pid)
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !exists {
		t.Fatalf("expected own pid %d to exist", pid)
	}

	name, err := procs.Name(ctx, pid)
	if err != nil {
		t.Fatalf("Name returned error: %v", err)
	}
	if name == "" {
		t.Fatalf("expected non-empty process name")
	}

	procs.mu.Lock()
	cached := procs.names[pid]
	procs.mu.Unlock()
	if cached != name {
		t.Fatalf("expected cached name %q, got %q", name, cached)
	}
}

func TestProcessesZeroPID(t *testing.T) {
	t.Parallel()

	exists, err := NewProcesses().Exists(context.Background(), 0)
	if err != nil || exists {
		t.Fatalf("expected pid 0 to be reported missing, got %v, %v", exists, err)
	}
}

func TestWindowsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewWindows().Window(ctx, uint32(os.Getpid())); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
