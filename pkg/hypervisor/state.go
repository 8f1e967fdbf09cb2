package hypervisor

// SessionState is the lock state of a session or of a machine's session slot.
type SessionState int

const (
	SessionNull SessionState = iota
	SessionUnlocked
	SessionLocked
	SessionSpawning  // Machine process is being launched
	SessionUnlocking // Unlock requested, not yet confirmed
)

func (s SessionState) String() string {
	switch s {
	case SessionNull:
		return "null"
	case SessionUnlocked:
		return "unlocked"
	case SessionLocked:
		return "locked"
	case SessionSpawning:
		return "spawning"
	case SessionUnlocking:
		return "unlocking"
	default:
		return "unknown"
	}
}

// LockType selects shared or exclusive access.
type LockType int

const (
	LockShared LockType = iota + 1
	LockExclusive
)

func (l LockType) String() string {
	switch l {
	case LockShared:
		return "shared"
	case LockExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// MachineState is the power state of a machine.
// The order matters: FirstOnline..LastOnline and FirstTransient..LastTransient
// are inclusive ranges.
type MachineState int

const (
	MachineNull MachineState = iota
	MachinePoweredOff
	MachineSaved
	MachineTeleported
	MachineAborted
	MachineRunning
	MachinePaused
	MachineStuck
	MachineTeleporting
	MachineLiveSnapshotting
	MachineStarting
	MachineStopping
	MachineSaving
	MachineRestoring
	MachineTeleportingPausedVM
	MachineTeleportingIn
	MachineDeletingSnapshotOnline
	MachineDeletingSnapshotPaused
	MachineOnlineSnapshotting
	MachineRestoringSnapshot
	MachineDeletingSnapshot
	MachineSettingUp
	MachineSnapshotting

	MachineFirstOnline    = MachineRunning
	MachineLastOnline     = MachineOnlineSnapshotting
	MachineFirstTransient = MachineTeleporting
	MachineLastTransient  = MachineSnapshotting
)

var machineStateNames = map[MachineState]string{
	MachineNull:                   "null",
	MachinePoweredOff:             "powered-off",
	MachineSaved:                  "saved",
	MachineTeleported:             "teleported",
	MachineAborted:                "aborted",
	MachineRunning:                "running",
	MachinePaused:                 "paused",
	MachineStuck:                  "stuck",
	MachineTeleporting:            "teleporting",
	MachineLiveSnapshotting:       "live-snapshotting",
	MachineStarting:               "starting",
	MachineStopping:               "stopping",
	MachineSaving:                 "saving",
	MachineRestoring:              "restoring",
	MachineTeleportingPausedVM:    "teleporting-paused-vm",
	MachineTeleportingIn:          "teleporting-in",
	MachineDeletingSnapshotOnline: "deleting-snapshot-online",
	MachineDeletingSnapshotPaused: "deleting-snapshot-paused",
	MachineOnlineSnapshotting:     "online-snapshotting",
	MachineRestoringSnapshot:      "restoring-snapshot",
	MachineDeletingSnapshot:       "deleting-snapshot",
	MachineSettingUp:              "setting-up",
	MachineSnapshotting:           "snapshotting",
}

func (s MachineState) String() string {
	if name, ok := machineStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Online reports whether the machine has a live process: running, paused,
// stuck or any of the in-process transitions.
func (s MachineState) Online() bool {
	return s >= MachineFirstOnline && s <= MachineLastOnline
}

// Transient reports whether the machine is between two stable states.
func (s MachineState) Transient() bool {
	return s >= MachineFirstTransient && s <= MachineLastTransient
}
