package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyLock serializes work per machine name. Entries are dropped once no
// caller holds or waits for them.
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[string]*keyEntry)}
}

// acquire blocks until key is free or ctx is done. The returned release is
// idempotent.
func (k *keyLock) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyEntry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.drop(key, e)
		return nil, fmt.Errorf("wait for machine %q: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.drop(key, e)
		})
	}, nil
}

func (k *keyLock) drop(key string, e *keyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// held returns the number of keys with a holder or waiter.
func (k *keyLock) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
