// Package session owns the lock/unlock protocol for machine sessions and the
// wait for an unlock to converge.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/javanstorm/vmsession/internal/poll"
	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// DefaultPollInterval is the delay between two session state reads while
// waiting for an unlock.
const DefaultPollInterval = time.Second

// Options configures a Controller.
type Options struct {
	// PollInterval is the delay between session state reads in AwaitUnlock.
	PollInterval time.Duration
}

// Controller acquires and releases sessions on machines.
type Controller struct {
	client   hypervisor.Client
	logger   *zap.Logger
	interval time.Duration
}

// NewController creates a Controller issuing sessions from client.
func NewController(client hypervisor.Client, logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &Controller{
		client:   client,
		logger:   logger.Named("session"),
		interval: opts.PollInterval,
	}
}

// Lock acquires a new session on m. The error wraps hypervisor.ErrLockConflict
// if m is already locked incompatibly.
func (c *Controller) Lock(ctx context.Context, m hypervisor.Machine, mode hypervisor.LockType) (hypervisor.Session, error) {
	s, err := c.client.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := m.Lock(ctx, s, mode); err != nil {
		return nil, fmt.Errorf("lock %q (%s): %w", m.Name(), mode, err)
	}

	c.logger.Debug("session locked",
		zap.String("machine", m.Name()),
		zap.String("session", s.ID()),
		zap.Stringer("mode", mode),
	)
	return s, nil
}

// AwaitUnlock requests release of s and blocks until s reports Unlocked.
//
// There is no deadline: an unlock always converges once requested. The unlock
// request is issued even if ctx is already done, and a failed request is
// logged, never returned; it is reissued while the session still reads
// Locked. State read errors are logged and polled again. Cancellation of ctx
// is checked between reads and ends the wait with an error wrapping
// hypervisor.ErrTransientUnlock; the unlock already requested is left in flight.
func (c *Controller) AwaitUnlock(ctx context.Context, s hypervisor.Session, m hypervisor.Machine) error {
	logger := c.logger.With(zap.String("machine", m.Name()), zap.String("session", s.ID()))
	requestCtx := context.WithoutCancel(ctx)

	requested := c.requestUnlock(requestCtx, logger, s)

	// Reads use requestCtx so a cancelled caller still gets one confirmation read.
	_, err := poll.Until(ctx, poll.Forever(c.interval), func(_ context.Context, attempt int) (hypervisor.SessionState, bool, error) {
		state, err := s.State(requestCtx)
		if err != nil {
			logger.Warn("reading session state failed", zap.Int("attempt", attempt), zap.Error(err))
			return state, false, nil
		}

		if state == hypervisor.SessionUnlocked {
			return state, true, nil
		}

		logger.Info("waiting for session unlock", zap.Stringer("state", state), zap.Int("attempt", attempt))

		if state == hypervisor.SessionLocked && !requested {
			requested = c.requestUnlock(requestCtx, logger, s)
		}
		return state, false, nil
	})
	if err != nil {
		logger.Error("interrupted while waiting for session unlock", zap.Error(err))
		return fmt.Errorf("await unlock of %q: %w: %w", m.Name(), hypervisor.ErrTransientUnlock, err)
	}

	logger.Debug("session unlocked")
	return nil
}

func (c *Controller) requestUnlock(ctx context.Context, logger *zap.Logger, s hypervisor.Session) bool {
	if err := s.Unlock(ctx); err != nil {
		logger.Error("session unlock request failed", zap.Error(err))
		return false
	}
	return true
}

// Action runs while a session is held.
type Action func(ctx context.Context, s hypervisor.Session) error

// RunUnderSession locks m with mode, runs action and releases the session
// with AwaitUnlock on every exit path, including panics. An unlock that cannot
// be confirmed is appended to the action's error.
func (c *Controller) RunUnderSession(ctx context.Context, m hypervisor.Machine, mode hypervisor.LockType, action Action) error {
	s, err := c.Lock(ctx, m, mode)
	if err != nil {
		return err
	}

	return c.scoped(ctx, m, s, func(ctx context.Context) error {
		return action(ctx, s)
	})
}

// SpawnAction runs while the session that launched a machine is held.
type SpawnAction func(ctx context.Context, op hypervisor.Operation) error

// RunSpawned launches m's process in launchMode on a new session, runs action
// with the launch operation and releases the session like RunUnderSession.
func (c *Controller) RunSpawned(ctx context.Context, m hypervisor.Machine, launchMode string, action SpawnAction) error {
	s, err := c.client.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	op, err := m.LaunchProcess(ctx, s, launchMode)
	if err != nil {
		return fmt.Errorf("launch %q (%s): %w", m.Name(), launchMode, err)
	}

	c.logger.Debug("machine process launching",
		zap.String("machine", m.Name()),
		zap.String("session", s.ID()),
		zap.String("operation", op.ID()),
	)

	return c.scoped(ctx, m, s, func(ctx context.Context) error {
		return action(ctx, op)
	})
}

func (c *Controller) scoped(ctx context.Context, m hypervisor.Machine, s hypervisor.Session, fn func(context.Context) error) (err error) {
	defer func() {
		if unlockErr := c.AwaitUnlock(ctx, s, m); unlockErr != nil {
			err = multierror.Append(err, unlockErr)
		}
	}()

	return fn(ctx)
}
