package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// Shutdown requests a graceful power-down of name and waits up to
// Options.ShutdownTimeout for it to complete. A machine that is not online
// is left alone. A missing machine is logged and is not an error.
func (l *Lifecycle) Shutdown(ctx context.Context, name string) error {
	logger := l.logger.With(zap.String("machine", name))

	release, err := l.locks.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	m, err := l.lookup(ctx, name)
	if errors.Is(err, hypervisor.ErrNotFound) || errors.Is(err, hypervisor.ErrInvalidArgument) {
		logger.Error("machine does not exist", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("shutdown %q: %w", name, err)
	}

	err = l.sessions.RunUnderSession(ctx, m, hypervisor.LockShared, func(ctx context.Context, s hypervisor.Session) error {
		state, err := m.State(ctx)
		if err != nil {
			return fmt.Errorf("read state: %w", err)
		}
		if !state.Online() {
			logger.Info("machine not running, nothing to shut down", zap.Stringer("state", state))
			return nil
		}

		l.track(name, StateShuttingDown)
		defer l.untrack(name)

		op, err := s.PowerDown(ctx)
		if err != nil {
			return fmt.Errorf("power down: %w", err)
		}
		logger.Info("power down requested", zap.Stringer("state", state), zap.String("operation", op.ID()))

		return l.await(ctx, logger, op, "power_down", l.opts.ShutdownTimeout)
	})
	if err != nil {
		return fmt.Errorf("shutdown %q: %w", name, err)
	}
	return nil
}
