package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// State is the lifecycle state of a machine as seen by this package.
type State int

const (
	StateNotExisting       State = iota
	StatePoweredOff              // Registered, no machine process
	StateSpawning                // Power-on requested, process starting
	StateRunning                 // Machine process running
	StateShuttingDown            // Graceful power-down in progress
	StateSnapshotRestoring       // Snapshot restore in progress
)

func (s State) String() string {
	switch s {
	case StateNotExisting:
		return "not-existing"
	case StatePoweredOff:
		return "powered-off"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateSnapshotRestoring:
		return "snapshot-restoring"
	default:
		return "unknown"
	}
}

func (l *Lifecycle) track(name string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracked[name] = s
}

func (l *Lifecycle) untrack(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tracked, name)
}

// Status returns the state of an in-flight operation on name, or derives the
// state from the hypervisor when nothing is in flight.
func (l *Lifecycle) Status(ctx context.Context, name string) (State, error) {
	l.mu.RLock()
	s, ok := l.tracked[name]
	l.mu.RUnlock()
	if ok {
		return s, nil
	}

	m, err := l.lookup(ctx, name)
	if errors.Is(err, hypervisor.ErrNotFound) {
		return StateNotExisting, nil
	}
	if err != nil {
		return StateNotExisting, err
	}

	sessionState, err := m.SessionState(ctx)
	if err != nil {
		return StateNotExisting, fmt.Errorf("read session state of %q: %w", name, err)
	}
	if sessionState == hypervisor.SessionSpawning {
		return StateSpawning, nil
	}

	power, err := m.State(ctx)
	if err != nil {
		return StateNotExisting, fmt.Errorf("read state of %q: %w", name, err)
	}

	switch {
	case power == hypervisor.MachineStopping:
		return StateShuttingDown, nil
	case power == hypervisor.MachineRestoringSnapshot:
		return StateSnapshotRestoring, nil
	case power.Online():
		return StateRunning, nil
	default:
		return StatePoweredOff, nil
	}
}
