// Package lifecycle orchestrates machine launch, shutdown and snapshot
// restore on top of session control and guest network probing.
//
// Operations on the same machine name are serialized by a per-name lock;
// operations on different machines may run concurrently.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/javanstorm/vmsession/pkg/guestnet"
	"github.com/javanstorm/vmsession/pkg/hypervisor"
	"github.com/javanstorm/vmsession/pkg/session"
)

// Lifecycle controls machines on one hypervisor host.
type Lifecycle struct {
	client   hypervisor.Client
	owned    bool
	logger   *zap.Logger
	opts     Options
	sessions *session.Controller
	probe    *guestnet.Probe
	locks    *keyLock

	mu      sync.RWMutex
	tracked map[string]State
}

// New creates a Lifecycle on a shared client. The caller keeps ownership of client.
func New(client hypervisor.Client, logger *zap.Logger, opts Options) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	return &Lifecycle{
		client:   client,
		logger:   logger.Named("lifecycle"),
		opts:     opts,
		sessions: session.NewController(client, logger, session.Options{PollInterval: opts.UnlockPollInterval}),
		probe:    guestnet.NewProbe(logger),
		locks:    newKeyLock(),
		tracked:  make(map[string]State),
	}
}

// Open connects to endpoint and returns a Lifecycle owning the connection.
func Open(ctx context.Context, endpoint string, logger *zap.Logger, opts Options) (*Lifecycle, error) {
	client, err := hypervisor.Connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	l := New(client, logger, opts)
	l.owned = true
	l.logger.Info("connected to hypervisor", zap.String("endpoint", endpoint))
	return l, nil
}

// Close closes the connection if it was opened by Open.
func (l *Lifecycle) Close() error {
	if !l.owned {
		return nil
	}
	return l.client.Close()
}

// Options returns the effective options.
func (l *Lifecycle) Options() Options {
	return l.opts
}

// Exists reports whether a machine named name is registered. An empty name
// is logged as an invalid argument and reported as absent without calling
// the hypervisor.
func (l *Lifecycle) Exists(ctx context.Context, name string) bool {
	found, err := l.exists(ctx, name)
	if err != nil {
		l.logger.Error("machine existence check failed", zap.String("machine", name), zap.Error(err))
		return false
	}
	return found
}

func (l *Lifecycle) exists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("machine name is empty: %w", hypervisor.ErrInvalidArgument)
	}

	names, err := l.client.Machines(ctx)
	if err != nil {
		return false, fmt.Errorf("list machines: %w", err)
	}
	return slices.Contains(names, name), nil
}

// lookup verifies existence, then resolves the machine handle.
func (l *Lifecycle) lookup(ctx context.Context, name string) (hypervisor.Machine, error) {
	found, err := l.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("machine %q: %w", name, hypervisor.ErrNotFound)
	}

	m, err := l.client.FindMachine(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find machine %q: %w", name, err)
	}
	return m, nil
}

// IsRunning reports whether the machine's power state is Running. It is a
// single read and does not wait for in-flight operations.
func (l *Lifecycle) IsRunning(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("machine name is empty: %w", hypervisor.ErrInvalidArgument)
	}

	m, err := l.client.FindMachine(ctx, name)
	if err != nil {
		return false, fmt.Errorf("find machine %q: %w", name, err)
	}

	state, err := m.State(ctx)
	if err != nil {
		return false, fmt.Errorf("read state of %q: %w", name, err)
	}

	l.logger.Info("machine status", zap.String("machine", name), zap.Stringer("state", state))
	return state == hypervisor.MachineRunning, nil
}

// MachineIPv4 reads the guest-reported address once, without waiting. It
// waits for any in-flight operation on name to finish first.
func (l *Lifecycle) MachineIPv4(ctx context.Context, name string) (string, bool, error) {
	release, err := l.locks.acquire(ctx, name)
	if err != nil {
		return "", false, err
	}
	defer release()

	m, err := l.lookup(ctx, name)
	if err != nil {
		return "", false, err
	}
	return l.probe.ReadIPv4(ctx, m, l.opts.SubnetPrefix)
}

// await waits on op for at most timeout. A passed deadline is logged and
// absorbed: the next phase re-checks the actual state.
func (l *Lifecycle) await(ctx context.Context, logger *zap.Logger, op hypervisor.Operation, what string, timeout time.Duration) error {
	err := op.WaitForCompletion(ctx, timeout)
	switch {
	case err == nil:
		logger.Debug("operation completed", zap.String("operation", what), zap.String("id", op.ID()))
		return nil
	case errors.Is(err, hypervisor.ErrTimeoutExceeded):
		logger.Warn("operation wait timed out, continuing",
			zap.String("operation", what),
			zap.String("id", op.ID()),
			zap.Duration("timeout", timeout),
		)
		return nil
	default:
		logger.Error("operation failed", zap.String("operation", what), zap.String("id", op.ID()), zap.Error(err))
		return fmt.Errorf("%s: %w", what, err)
	}
}
