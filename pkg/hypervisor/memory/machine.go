package memory

import (
	"context"
	"fmt"
	"path"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// IPv4Property is the guest property carrying the first adapter's address.
const IPv4Property = "/VirtualBox/GuestInfo/Net/0/V4/IP"

type machine struct {
	spec      MachineSpec
	power     hypervisor.MachineState
	holders   map[string]hypervisor.LockType // session ID -> lock type
	process   bool                           // machine process holds its own lock
	spawnLeft int
	spawning  bool
	probes    int // guest property enumerations since boot
	snapshots []hypervisor.Snapshot
	current   string
}

func (m *machine) sessionState() hypervisor.SessionState {
	switch {
	case m.spawning:
		return hypervisor.SessionSpawning
	case m.process || len(m.holders) > 0:
		return hypervisor.SessionLocked
	default:
		return hypervisor.SessionUnlocked
	}
}

func (m *machine) exclusivelyHeld() bool {
	for _, lt := range m.holders {
		if lt == hypervisor.LockExclusive {
			return true
		}
	}
	return false
}

func (m *machine) finishSpawn() {
	m.spawning = false
	m.power = hypervisor.MachineRunning
}

func (m *machine) powerOff() {
	m.power = hypervisor.MachinePoweredOff
	m.process = false
	m.spawning = false
	m.probes = 0
}

type machineHandle struct {
	h    *Hypervisor
	name string
}

var _ hypervisor.Machine = (*machineHandle)(nil)

func (mh *machineHandle) Name() string {
	return mh.name
}

// lookup returns the machine record. Must be called with h.mu held.
func (mh *machineHandle) lookup() (*machine, error) {
	m, ok := mh.h.machines[mh.name]
	if !ok {
		return nil, fmt.Errorf("machine %q: %w", mh.name, hypervisor.ErrNotFound)
	}
	return m, nil
}

func (mh *machineHandle) State(ctx context.Context) (hypervisor.MachineState, error) {
	h := mh.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodState, mh.name, ""); err != nil {
		return hypervisor.MachineNull, err
	}
	m, err := mh.lookup()
	if err != nil {
		return hypervisor.MachineNull, err
	}
	return m.power, nil
}

func (mh *machineHandle) SessionState(ctx context.Context) (hypervisor.SessionState, error) {
	h := mh.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodSessionState, mh.name, ""); err != nil {
		return hypervisor.SessionNull, err
	}
	m, err := mh.lookup()
	if err != nil {
		return hypervisor.SessionNull, err
	}

	if m.spawning {
		if m.spawnLeft > 0 {
			m.spawnLeft--
			return hypervisor.SessionSpawning, nil
		}
		m.finishSpawn()
	}
	return m.sessionState(), nil
}

func (mh *machineHandle) GuestProperties(ctx context.Context, pattern string) ([]hypervisor.GuestProperty, error) {
	h := mh.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodGuestProperties, mh.name, ""); err != nil {
		return nil, err
	}
	m, err := mh.lookup()
	if err != nil {
		return nil, err
	}

	props := make([]hypervisor.GuestProperty, 0, len(m.spec.Properties)+1)
	props = append(props, m.spec.Properties...)

	if m.power.Online() && !m.spawning {
		m.probes++
		if m.spec.GuestIPv4 != "" && m.probes > m.spec.GuestIPAfter {
			props = append(props, hypervisor.GuestProperty{
				Name:      IPv4Property,
				Value:     m.spec.GuestIPv4,
				Timestamp: h.clock.Now(),
				Flags:     "TRANSIENT, TRANSRESET",
			})
		}
	}

	if pattern == "" {
		return props, nil
	}

	matched := props[:0]
	for _, p := range props {
		if ok, _ := path.Match(pattern, p.Name); ok {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (mh *machineHandle) Lock(ctx context.Context, hs hypervisor.Session, lock hypervisor.LockType) error {
	h := mh.h
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.own(hs)
	if err != nil {
		return err
	}
	if err := h.enter(ctx, MethodLock, mh.name, s.id); err != nil {
		return err
	}
	m, err := mh.lookup()
	if err != nil {
		return err
	}

	if s.state != hypervisor.SessionUnlocked {
		return fmt.Errorf("lock %q: session %s is %s: %w", mh.name, s.id, s.state, hypervisor.ErrLockConflict)
	}
	switch lock {
	case hypervisor.LockExclusive:
		if m.process || len(m.holders) > 0 {
			return fmt.Errorf("lock %q exclusively: %w", mh.name, hypervisor.ErrLockConflict)
		}
	case hypervisor.LockShared:
		if m.exclusivelyHeld() || m.spawning {
			return fmt.Errorf("lock %q shared: %w", mh.name, hypervisor.ErrLockConflict)
		}
	default:
		return fmt.Errorf("lock %q: lock type %d: %w", mh.name, lock, hypervisor.ErrInvalidArgument)
	}

	m.holders[s.id] = lock
	s.lock(mh.name)
	return nil
}

func (mh *machineHandle) LaunchProcess(ctx context.Context, hs hypervisor.Session, mode string) (hypervisor.Operation, error) {
	h := mh.h
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.own(hs)
	if err != nil {
		return nil, err
	}
	if err := h.enter(ctx, MethodLaunchProcess, mh.name, s.id); err != nil {
		return nil, err
	}
	m, err := mh.lookup()
	if err != nil {
		return nil, err
	}

	if !hypervisor.ValidLaunchMode(mode) {
		return nil, fmt.Errorf("launch %q in mode %q: %w", mh.name, mode, hypervisor.ErrInvalidLaunchMode)
	}
	if s.state != hypervisor.SessionUnlocked {
		return nil, fmt.Errorf("launch %q: session %s is %s: %w", mh.name, s.id, s.state, hypervisor.ErrLockConflict)
	}
	if m.process || len(m.holders) > 0 || m.power.Online() {
		return nil, fmt.Errorf("launch %q: machine is %s: %w", mh.name, m.power, hypervisor.ErrLockConflict)
	}

	m.holders[s.id] = hypervisor.LockExclusive
	m.process = true
	m.spawning = true
	m.spawnLeft = m.spec.SpawnPolls
	m.probes = 0
	m.power = hypervisor.MachineStarting
	s.lock(mh.name)

	return h.startOperation(MethodLaunchProcess, mh.name, m.spec.OperationDelay, nil, m.powerOff), nil
}

func (mh *machineHandle) FindSnapshot(ctx context.Context, name string) (hypervisor.Snapshot, error) {
	h := mh.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodFindSnapshot, mh.name, ""); err != nil {
		return hypervisor.Snapshot{}, err
	}
	m, err := mh.lookup()
	if err != nil {
		return hypervisor.Snapshot{}, err
	}

	for _, snap := range m.snapshots {
		if snap.Name == name {
			return snap, nil
		}
	}
	return hypervisor.Snapshot{}, fmt.Errorf("snapshot %q of %q: %w", name, mh.name, hypervisor.ErrSnapshotNotFound)
}
