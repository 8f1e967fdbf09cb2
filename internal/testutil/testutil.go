// Package testutil provides common test helpers for vmsession tests.
package testutil

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/javanstorm/vmsession/pkg/hypervisor/memory"
	"github.com/javanstorm/vmsession/pkg/lifecycle"
)

// Logger returns a debug logger that writes to the test log and records
// every entry for assertions.
func Logger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel), zaptest.WrapOptions(
		zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}),
	))
	return logger, logs
}

// Host returns a fresh in-memory hypervisor holding the given machines.
// It is closed when the test ends.
func Host(t *testing.T, specs ...memory.MachineSpec) *memory.Hypervisor {
	t.Helper()

	h := memory.New()
	for _, spec := range specs {
		h.AddMachine(spec)
	}
	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Errorf("failed to close host: %v", err)
		}
	})
	return h
}

// FastOptions returns lifecycle options with millisecond intervals so a
// test launch takes tens of milliseconds instead of a minute.
func FastOptions() lifecycle.Options {
	opts := lifecycle.DefaultOptions()
	opts.LaunchTimeout = 250 * time.Millisecond
	opts.ShutdownTimeout = 250 * time.Millisecond
	opts.RestoreTimeout = 250 * time.Millisecond
	opts.SpawnPollInterval = time.Millisecond
	opts.UnlockPollInterval = time.Millisecond
	opts.SettleDelay = time.Millisecond
	opts.ProbeInterval = time.Millisecond
	return opts
}

// Count returns how many recorded entries have the given message.
func Count(logs *observer.ObservedLogs, message string) int {
	return logs.FilterMessage(message).Len()
}

// Field returns the value of key on the first entry with the given message,
// or nil if there is none.
func Field(logs *observer.ObservedLogs, message, key string) any {
	entries := logs.FilterMessage(message).All()
	if len(entries) == 0 {
		return nil
	}
	return entries[0].ContextMap()[key]
}
