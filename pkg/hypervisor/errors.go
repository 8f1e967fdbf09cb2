package hypervisor

import "errors"

// Input errors
var (
	ErrInvalidArgument   = errors.New("hypervisor: invalid argument")
	ErrInvalidLaunchMode = errors.New("hypervisor: launch mode must be one of gui, headless, sdl, separate")
)

// Lookup errors
var (
	ErrNotFound         = errors.New("hypervisor: machine not found")
	ErrSnapshotNotFound = errors.New("hypervisor: snapshot not found")
)

// Runtime errors
var (
	ErrLockConflict     = errors.New("hypervisor: machine already locked")
	ErrTimeoutExceeded  = errors.New("hypervisor: operation did not complete before deadline")
	ErrTransientUnlock  = errors.New("hypervisor: session unlock not confirmed")
	ErrGuestUnreachable = errors.New("hypervisor: no guest IPv4 address reported")
)

// Connection errors
var (
	ErrUnsupportedEndpoint = errors.New("hypervisor: no backend registered for endpoint scheme")
	ErrClosed              = errors.New("hypervisor: client closed")
)
