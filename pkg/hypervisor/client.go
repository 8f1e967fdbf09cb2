// Package hypervisor defines the collaborator interfaces used to control
// machines on a remote hypervisor host: machine lookup, sessions, guest
// properties and asynchronous operations.
//
// Backends register a ConnectFunc under an endpoint scheme; callers obtain a
// process-wide Client through Connect and share it read-only.
package hypervisor

import (
	"context"
	"time"
)

// Client is the connection to a hypervisor host.
// A Client is established once and reused by every operation.
type Client interface {
	// Machines returns the names of all registered machines.
	Machines(ctx context.Context) ([]string, error)

	// FindMachine looks up a machine by its case-sensitive name.
	// Returns an error wrapping ErrNotFound if no machine has that name.
	FindMachine(ctx context.Context, name string) (Machine, error)

	// NewSession returns a fresh, unlocked session handle.
	NewSession(ctx context.Context) (Session, error)

	// Close releases the connection. Safe to call multiple times.
	Close() error
}

// Machine is a handle to a registered virtual machine.
type Machine interface {
	Name() string

	// State returns the current power state.
	State(ctx context.Context) (MachineState, error)

	// SessionState returns the machine's session state as seen by the hypervisor.
	SessionState(ctx context.Context) (SessionState, error)

	// GuestProperties returns a single snapshot of all guest properties whose
	// name matches pattern. An empty pattern matches everything.
	GuestProperties(ctx context.Context, pattern string) ([]GuestProperty, error)

	// Lock locks the machine for the given session.
	// Returns an error wrapping ErrLockConflict if the machine is locked incompatibly.
	Lock(ctx context.Context, s Session, lock LockType) error

	// LaunchProcess powers the machine on, locking it for the given session.
	LaunchProcess(ctx context.Context, s Session, mode string) (Operation, error)

	// FindSnapshot resolves a snapshot by name.
	// Returns an error wrapping ErrSnapshotNotFound if there is none.
	FindSnapshot(ctx context.Context, name string) (Snapshot, error)
}

// Session is an access handle to a machine for the duration of one operation.
// Its own state always moves Unlocked -> Locked -> Unlocking -> Unlocked.
type Session interface {
	ID() string

	// State returns the state of this session handle.
	State(ctx context.Context) (SessionState, error)

	// Unlock requests release of the machine. The transition to Unlocked is
	// asynchronous; poll State to confirm it.
	Unlock(ctx context.Context) error

	// PowerDown requests a graceful power-down of the locked machine.
	PowerDown(ctx context.Context) (Operation, error)

	// RestoreSnapshot reverts the locked machine to the given snapshot.
	RestoreSnapshot(ctx context.Context, snap Snapshot) (Operation, error)
}

// Operation is an in-progress hypervisor action.
type Operation interface {
	ID() string

	// WaitForCompletion blocks until the operation completes, the timeout
	// passes or ctx is done. A passed timeout yields an error wrapping
	// ErrTimeoutExceeded; a failed operation yields its failure.
	WaitForCompletion(ctx context.Context, timeout time.Duration) error
}

// GuestProperty is a key/value pair published by software inside the guest.
type GuestProperty struct {
	Name      string
	Value     string
	Timestamp time.Time
	Flags     string
}

// Snapshot describes a saved machine state.
type Snapshot struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Launch modes accepted by Machine.LaunchProcess.
const (
	LaunchModeGUI      = "gui"
	LaunchModeHeadless = "headless"
	LaunchModeSDL      = "sdl"
	LaunchModeSeparate = "separate"
)

// ValidLaunchMode reports whether mode is a known launch mode.
func ValidLaunchMode(mode string) bool {
	switch mode {
	case LaunchModeGUI, LaunchModeHeadless, LaunchModeSDL, LaunchModeSeparate:
		return true
	default:
		return false
	}
}
