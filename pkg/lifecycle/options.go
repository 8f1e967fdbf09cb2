package lifecycle

import (
	"time"

	"github.com/javanstorm/vmsession/pkg/guestnet"
	"github.com/javanstorm/vmsession/pkg/hypervisor"
	"github.com/javanstorm/vmsession/pkg/session"
)

// Default operation deadlines and poll intervals.
const (
	DefaultLaunchTimeout     = 2500 * time.Millisecond
	DefaultShutdownTimeout   = 25 * time.Second
	DefaultRestoreTimeout    = 25 * time.Second
	DefaultSpawnPollInterval = time.Second
	DefaultBatchConcurrency  = 4
)

// Options tunes deadlines, poll intervals and the IP probe.
// Zero values are replaced by their defaults.
type Options struct {
	// SubnetPrefix selects which guest IPv4 address counts as reachable.
	SubnetPrefix string

	// LaunchMode is used by LaunchAll and by Launch when called with "".
	LaunchMode string

	// LaunchTimeout bounds the wait on the power-on operation. The spawning
	// poll afterwards is the real completion check.
	LaunchTimeout time.Duration

	// ShutdownTimeout bounds the wait on the power-down operation.
	ShutdownTimeout time.Duration

	// RestoreTimeout bounds the wait on the snapshot restore operation.
	RestoreTimeout time.Duration

	// SpawnPollInterval is the delay between checks while the machine's
	// session is Spawning.
	SpawnPollInterval time.Duration

	// UnlockPollInterval is the delay between checks while waiting for a
	// session to unlock.
	UnlockPollInterval time.Duration

	// SettleDelay is waited after spawning before the first IP probe.
	SettleDelay time.Duration

	// ProbeInterval is the delay between IP probes.
	ProbeInterval time.Duration

	// ProbeAttempts bounds the number of IP probes.
	ProbeAttempts int

	// BatchConcurrency bounds how many machines LaunchAll and ShutdownAll
	// work on at once.
	BatchConcurrency int
}

// DefaultOptions returns the options used when none are set.
func DefaultOptions() Options {
	return Options{
		SubnetPrefix:       guestnet.DefaultSubnetPrefix,
		LaunchMode:         hypervisor.LaunchModeHeadless,
		LaunchTimeout:      DefaultLaunchTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		RestoreTimeout:     DefaultRestoreTimeout,
		SpawnPollInterval:  DefaultSpawnPollInterval,
		UnlockPollInterval: session.DefaultPollInterval,
		SettleDelay:        guestnet.DefaultSettleDelay,
		ProbeInterval:      guestnet.DefaultInterval,
		ProbeAttempts:      guestnet.DefaultMaxAttempts,
		BatchConcurrency:   DefaultBatchConcurrency,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()

	if o.SubnetPrefix == "" {
		o.SubnetPrefix = d.SubnetPrefix
	}
	if o.LaunchMode == "" {
		o.LaunchMode = d.LaunchMode
	}
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = d.LaunchTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = d.ShutdownTimeout
	}
	if o.RestoreTimeout <= 0 {
		o.RestoreTimeout = d.RestoreTimeout
	}
	if o.SpawnPollInterval <= 0 {
		o.SpawnPollInterval = d.SpawnPollInterval
	}
	if o.UnlockPollInterval <= 0 {
		o.UnlockPollInterval = d.UnlockPollInterval
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = d.SettleDelay
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = d.ProbeInterval
	}
	if o.ProbeAttempts <= 0 {
		o.ProbeAttempts = d.ProbeAttempts
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = d.BatchConcurrency
	}
	return o
}
