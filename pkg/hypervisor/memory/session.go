package memory

import (
	"context"
	"fmt"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

type session struct {
	h          *Hypervisor
	id         string
	state      hypervisor.SessionState
	machine    string
	unlockLeft int
}

var _ hypervisor.Session = (*session)(nil)

// own resolves a session issued by this host. Must be called with h.mu held.
func (h *Hypervisor) own(hs hypervisor.Session) (*session, error) {
	s, ok := hs.(*session)
	if !ok || s.h != h {
		return nil, fmt.Errorf("session not issued by this host: %w", hypervisor.ErrInvalidArgument)
	}
	return s, nil
}

func (s *session) lock(machine string) {
	s.state = hypervisor.SessionLocked
	s.machine = machine
}

func (s *session) ID() string {
	return s.id
}

func (s *session) State(ctx context.Context) (hypervisor.SessionState, error) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodSessionStatus, s.machine, s.id); err != nil {
		return hypervisor.SessionNull, err
	}

	if s.state == hypervisor.SessionUnlocking {
		if s.unlockLeft > 0 {
			s.unlockLeft--
			return hypervisor.SessionUnlocking, nil
		}
		s.state = hypervisor.SessionUnlocked
		s.machine = ""
	}
	return s.state, nil
}

func (s *session) Unlock(ctx context.Context) error {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodUnlock, s.machine, s.id); err != nil {
		return err
	}
	if s.state != hypervisor.SessionLocked {
		return fmt.Errorf("unlock session %s: session is %s: %w", s.id, s.state, hypervisor.ErrInvalidArgument)
	}

	if m, ok := h.machines[s.machine]; ok {
		delete(m.holders, s.id)
		s.unlockLeft = m.spec.UnlockPolls
	}
	s.state = hypervisor.SessionUnlocking
	return nil
}

// machineLocked returns the machine this session holds. Must be called with h.mu held.
func (s *session) machineLocked() (*machine, error) {
	if s.state != hypervisor.SessionLocked {
		return nil, fmt.Errorf("session %s is %s: %w", s.id, s.state, hypervisor.ErrInvalidArgument)
	}
	m, ok := s.h.machines[s.machine]
	if !ok {
		return nil, fmt.Errorf("machine %q: %w", s.machine, hypervisor.ErrNotFound)
	}
	return m, nil
}

func (s *session) PowerDown(ctx context.Context) (hypervisor.Operation, error) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodPowerDown, s.machine, s.id); err != nil {
		return nil, err
	}
	m, err := s.machineLocked()
	if err != nil {
		return nil, fmt.Errorf("power down: %w", err)
	}
	if !m.power.Online() {
		return nil, fmt.Errorf("power down %q: machine is %s: %w", s.machine, m.power, hypervisor.ErrInvalidArgument)
	}

	prev := m.power
	m.power = hypervisor.MachineStopping
	return h.startOperation(MethodPowerDown, s.machine, m.spec.OperationDelay, m.powerOff, func() {
		m.power = prev
	}), nil
}

func (s *session) RestoreSnapshot(ctx context.Context, snap hypervisor.Snapshot) (hypervisor.Operation, error) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodRestoreSnapshot, s.machine, s.id); err != nil {
		return nil, err
	}
	m, err := s.machineLocked()
	if err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	if m.power.Online() {
		return nil, fmt.Errorf("restore snapshot of %q: machine is %s: %w", s.machine, m.power, hypervisor.ErrLockConflict)
	}

	found := false
	for _, known := range m.snapshots {
		if known.ID == snap.ID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("restore %q of %q: %w", snap.Name, s.machine, hypervisor.ErrSnapshotNotFound)
	}

	prev := m.power
	m.power = hypervisor.MachineRestoringSnapshot
	return h.startOperation(MethodRestoreSnapshot, s.machine, m.spec.OperationDelay, func() {
		m.current = snap.Name
		m.power = prev
	}, func() {
		m.power = prev
	}), nil
}
