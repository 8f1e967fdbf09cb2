// Package memory provides an in-process hypervisor.Client with scripted
// session and power transitions. It backs the "memory://<host>" endpoint
// scheme and is used as a test double with fault injection and a call journal.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// Scheme is the endpoint scheme served by this package.
const Scheme = "memory"

func init() {
	hypervisor.Register(Scheme, connect)
}

var (
	hosts     = make(map[string]*Hypervisor)
	hostsLock sync.Mutex
)

// Host returns the named in-process host, creating it on first use or when
// the previous instance was closed. Connect("memory://<name>") returns a
// connection to the same instance.
func Host(name string, opts ...Option) *Hypervisor {
	hostsLock.Lock()
	defer hostsLock.Unlock()

	if h, ok := hosts[name]; ok && !h.isClosed() {
		return h
	}
	h := New(opts...)
	hosts[name] = h
	return h
}

// Forget drops the named host so the next Host call creates a new one.
func Forget(name string) {
	hostsLock.Lock()
	defer hostsLock.Unlock()
	delete(hosts, name)
}

func connect(_ context.Context, u *url.URL) (hypervisor.Client, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("memory: endpoint needs a host name: %w", hypervisor.ErrInvalidArgument)
	}
	return &conn{h: Host(u.Host)}, nil
}

// Option configures a Hypervisor.
type Option func(*Hypervisor)

// WithClock sets the clock used for operation deadlines and timestamps.
func WithClock(c clock.Clock) Option {
	return func(h *Hypervisor) {
		h.clock = c
	}
}

// MachineSpec describes a simulated machine.
type MachineSpec struct {
	// Name is the unique, case-sensitive machine name.
	Name string

	// State is the initial power state. Zero means powered off.
	State hypervisor.MachineState

	// Snapshots are the names of snapshots the machine can be restored to.
	Snapshots []string

	// SpawnPolls is how many machine session state reads report Spawning
	// after a launch before the machine settles into Locked.
	SpawnPolls int

	// UnlockPolls is how many session state reads report Unlocking after an
	// unlock request before the session is Unlocked.
	UnlockPolls int

	// GuestIPv4 is published as GuestInfo/Net/0/V4/IP while the machine runs.
	// Empty means the guest never reports an address.
	GuestIPv4 string

	// GuestIPAfter is how many guest property enumerations miss the address
	// before it shows up.
	GuestIPAfter int

	// OperationDelay is how long every operation takes to complete.
	OperationDelay time.Duration

	// Properties are extra guest properties, reported in order before the IP.
	Properties []hypervisor.GuestProperty
}

// Hypervisor is an in-process hypervisor host. It implements hypervisor.Client.
type Hypervisor struct {
	mu       sync.Mutex
	clock    clock.Clock
	machines map[string]*machine
	order    []string
	sessions map[string]*session
	journal  []Call
	faults   map[Method][]error
	opFaults map[Method][]error
	timers   []*clock.Timer
	closed   bool
}

var _ hypervisor.Client = (*Hypervisor)(nil)

// New creates an empty host.
func New(opts ...Option) *Hypervisor {
	h := &Hypervisor{
		clock:    clock.New(),
		machines: make(map[string]*machine),
		sessions: make(map[string]*session),
		faults:   make(map[Method][]error),
		opFaults: make(map[Method][]error),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddMachine registers a machine. An existing machine with the same name is replaced.
func (h *Hypervisor) AddMachine(spec MachineSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()

	power := spec.State
	if power == hypervisor.MachineNull {
		power = hypervisor.MachinePoweredOff
	}

	m := &machine{
		spec:    spec,
		power:   power,
		holders: make(map[string]hypervisor.LockType),
	}
	for _, name := range spec.Snapshots {
		m.snapshots = append(m.snapshots, hypervisor.Snapshot{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: h.clock.Now(),
		})
	}
	// A machine that starts online has a machine process holding its lock.
	if power.Online() {
		m.process = true
	}

	if _, ok := h.machines[spec.Name]; !ok {
		h.order = append(h.order, spec.Name)
	}
	h.machines[spec.Name] = m
}

// PowerState returns the current power state of a machine, bypassing the journal.
func (h *Hypervisor) PowerState(name string) (hypervisor.MachineState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.machines[name]
	if !ok {
		return hypervisor.MachineNull, false
	}
	return m.power, true
}

// CurrentSnapshot returns the snapshot a machine was last restored to.
func (h *Hypervisor) CurrentSnapshot(name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.machines[name]; ok {
		return m.current
	}
	return ""
}

// Session returns the state of a session by ID, bypassing the journal.
func (h *Hypervisor) Session(id string) (hypervisor.SessionState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return hypervisor.SessionNull, false
	}
	return s.state, true
}

// LockedSessions returns the IDs of sessions that are not Unlocked.
func (h *Hypervisor) LockedSessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ids []string
	for id, s := range h.sessions {
		if s.state != hypervisor.SessionUnlocked {
			ids = append(ids, id)
		}
	}
	return ids
}

// Machines implements hypervisor.Client.
func (h *Hypervisor) Machines(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodMachines, "", ""); err != nil {
		return nil, err
	}

	names := make([]string, len(h.order))
	copy(names, h.order)
	return names, nil
}

// FindMachine implements hypervisor.Client.
func (h *Hypervisor) FindMachine(ctx context.Context, name string) (hypervisor.Machine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.enter(ctx, MethodFindMachine, name, ""); err != nil {
		return nil, err
	}
	if _, ok := h.machines[name]; !ok {
		return nil, fmt.Errorf("find machine %q: %w", name, hypervisor.ErrNotFound)
	}
	return &machineHandle{h: h, name: name}, nil
}

// NewSession implements hypervisor.Client.
func (h *Hypervisor) NewSession(ctx context.Context) (hypervisor.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &session{h: h, id: uuid.NewString(), state: hypervisor.SessionUnlocked}
	if err := h.enter(ctx, MethodNewSession, "", s.id); err != nil {
		return nil, err
	}
	h.sessions[s.id] = s
	return s, nil
}

// Close implements hypervisor.Client. Pending operations never complete.
func (h *Hypervisor) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
	h.closed = true
	return nil
}

func (h *Hypervisor) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// enter records a call and returns a queued fault or a closed/cancelled error.
// Must be called with h.mu held.
func (h *Hypervisor) enter(ctx context.Context, method Method, machine, sessionID string) error {
	h.journal = append(h.journal, Call{Method: method, Machine: machine, Session: sessionID})

	if h.closed {
		return hypervisor.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if queued := h.faults[method]; len(queued) > 0 {
		h.faults[method] = queued[1:]
		return queued[0]
	}
	return nil
}
