package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vmsession/pkg/hypervisor/memory"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	k := newKeyLock()

	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := k.acquire(context.Background(), "vm-a")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Zero(t, k.held())
}

func TestKeyLockIndependentKeys(t *testing.T) {
	k := newKeyLock()

	releaseA, err := k.acquire(context.Background(), "vm-a")
	require.NoError(t, err)
	releaseB, err := k.acquire(context.Background(), "vm-b")
	require.NoError(t, err)
	assert.Equal(t, 2, k.held())

	releaseA()
	releaseA()
	releaseB()
	assert.Zero(t, k.held())
}

func TestKeyLockCancelledWait(t *testing.T) {
	k := newKeyLock()

	release, err := k.acquire(context.Background(), "vm-a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = k.acquire(ctx, "vm-a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, k.held())

	release()
	assert.Zero(t, k.held())
}

func TestQueriesWaitForMachineLock(t *testing.T) {
	host := memory.New()
	host.AddMachine(memory.MachineSpec{Name: "vm-a", Snapshots: []string{"clean"}})
	l := New(host, nil, Options{})

	release, err := l.locks.acquire(context.Background(), "vm-a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.SnapshotExists(ctx, "vm-a", "clean")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, _, err = l.MachineIPv4(ctx, "vm-a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, host.Calls(), "no hypervisor call while the machine is busy")

	running, err := l.IsRunning(context.Background(), "vm-a")
	require.NoError(t, err, "single state reads do not wait")
	assert.False(t, running)

	release()

	ok, err := l.SnapshotExists(context.Background(), "vm-a", "clean")
	require.NoError(t, err)
	assert.True(t, ok)
}
