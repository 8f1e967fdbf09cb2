package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// RestoreSnapshot restores the snapshot named snapshot on machine name and
// waits up to Options.RestoreTimeout for the restore to complete. The
// machine must not be online.
func (l *Lifecycle) RestoreSnapshot(ctx context.Context, name, snapshot string) error {
	if snapshot == "" {
		return fmt.Errorf("restore %q: snapshot name is empty: %w", name, hypervisor.ErrInvalidArgument)
	}
	logger := l.logger.With(zap.String("machine", name), zap.String("snapshot", snapshot))

	release, err := l.locks.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	m, err := l.lookup(ctx, name)
	if err != nil {
		logger.Error("cannot restore snapshot", zap.Error(err))
		return fmt.Errorf("restore %q: %w", name, err)
	}

	l.track(name, StateSnapshotRestoring)
	defer l.untrack(name)

	err = l.sessions.RunUnderSession(ctx, m, hypervisor.LockShared, func(ctx context.Context, s hypervisor.Session) error {
		snap, err := m.FindSnapshot(ctx, snapshot)
		if err != nil {
			return err
		}

		op, err := s.RestoreSnapshot(ctx, snap)
		if err != nil {
			return fmt.Errorf("restore snapshot %q: %w", snapshot, err)
		}
		logger.Info("snapshot restore requested", zap.String("snapshot_id", snap.ID), zap.String("operation", op.ID()))

		return l.await(ctx, logger, op, "restore_snapshot", l.opts.RestoreTimeout)
	})
	if err != nil {
		return fmt.Errorf("restore %q: %w", name, err)
	}

	logger.Info("snapshot restored")
	return nil
}

// SnapshotExists reports whether machine name has a snapshot named snapshot.
// It waits for any in-flight operation on name to finish first.
func (l *Lifecycle) SnapshotExists(ctx context.Context, name, snapshot string) (bool, error) {
	if snapshot == "" {
		return false, fmt.Errorf("snapshot name is empty: %w", hypervisor.ErrInvalidArgument)
	}

	release, err := l.locks.acquire(ctx, name)
	if err != nil {
		return false, err
	}
	defer release()

	m, err := l.lookup(ctx, name)
	if err != nil {
		return false, err
	}

	_, err = m.FindSnapshot(ctx, snapshot)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, hypervisor.ErrSnapshotNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("find snapshot %q of %q: %w", snapshot, name, err)
	}
}
