package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/javanstorm/vmsession/internal/poll"
	"github.com/javanstorm/vmsession/internal/timing"
	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// LaunchResult describes a successful launch. A launch succeeds once the
// machine process has started; IPAcquired reports whether the guest network
// came up within the probe budget.
type LaunchResult struct {
	Machine    string
	IPv4       string
	IPAcquired bool
	Phases     []timing.Phase
}

// Launch powers a machine on, waits for its process to leave Spawning and
// then for the guest to report an IPv4 address in the configured subnet.
//
// An empty mode uses Options.LaunchMode. A missing machine yields an error
// wrapping hypervisor.ErrNotFound. A guest that never reports an address is
// logged as a warning and is not an error.
func (l *Lifecycle) Launch(ctx context.Context, name, mode string) (*LaunchResult, error) {
	if mode == "" {
		mode = l.opts.LaunchMode
	}
	if !hypervisor.ValidLaunchMode(mode) {
		return nil, fmt.Errorf("launch %q in mode %q: %w", name, mode, hypervisor.ErrInvalidLaunchMode)
	}

	logger := l.logger.With(zap.String("machine", name), zap.String("mode", mode))

	release, err := l.locks.acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer release()

	m, err := l.lookup(ctx, name)
	if err != nil {
		logger.Error("cannot launch machine", zap.Error(err))
		return nil, err
	}

	l.track(name, StateSpawning)
	defer l.untrack(name)

	timer := timing.New()

	err = l.sessions.RunSpawned(ctx, m, mode, func(ctx context.Context, op hypervisor.Operation) error {
		return l.await(ctx, logger, op, "power_on", l.opts.LaunchTimeout)
	})
	timer.Mark("power_on")
	if err != nil {
		return nil, fmt.Errorf("launch %q: %w", name, err)
	}

	if err := l.waitSpawned(ctx, logger, m); err != nil {
		return nil, fmt.Errorf("launch %q: %w", name, err)
	}
	timer.Mark("spawn_wait")
	l.track(name, StateRunning)

	if err := poll.Sleep(ctx, l.opts.SettleDelay); err != nil {
		return nil, fmt.Errorf("launch %q: settle: %w", name, err)
	}
	timer.Mark("settle")

	ip, ok, err := l.probe.WaitForIPv4(ctx, m, l.opts.SubnetPrefix, l.opts.ProbeAttempts, l.opts.ProbeInterval)
	timer.Mark("ip_wait")
	if err != nil {
		return nil, fmt.Errorf("launch %q: wait for guest network: %w", name, err)
	}

	if ok {
		logger.Info("IP acquired", append([]zap.Field{zap.String("ip", ip)}, timer.Fields()...)...)
	} else {
		logger.Warn("no IP acquired, network dependent interactions will fail",
			append([]zap.Field{
				zap.Error(hypervisor.ErrGuestUnreachable),
				zap.Int("attempts", l.opts.ProbeAttempts),
			}, timer.Fields()...)...,
		)
	}

	return &LaunchResult{
		Machine:    name,
		IPv4:       ip,
		IPAcquired: ok,
		Phases:     timer.Phases(),
	}, nil
}

// waitSpawned polls the machine's session state until it leaves Spawning.
// There is no attempt budget; ctx bounds the wait.
func (l *Lifecycle) waitSpawned(ctx context.Context, logger *zap.Logger, m hypervisor.Machine) error {
	_, err := poll.Until(ctx, poll.Forever(l.opts.SpawnPollInterval), func(ctx context.Context, attempt int) (hypervisor.SessionState, bool, error) {
		state, err := m.SessionState(ctx)
		if err != nil {
			return state, false, fmt.Errorf("read session state: %w", err)
		}
		if state != hypervisor.SessionSpawning {
			logger.Debug("machine process spawned", zap.Stringer("session_state", state), zap.Int("polls", attempt))
			return state, true, nil
		}

		logger.Info("session still spawning", zap.Int("attempt", attempt), zap.Duration("interval", l.opts.SpawnPollInterval))
		return state, false, nil
	})
	if err != nil {
		return fmt.Errorf("wait for spawn: %w", err)
	}
	return nil
}
