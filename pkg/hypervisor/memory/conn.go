package memory

import (
	"context"
	"sync"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

// conn is one client connection to a shared host. Closing it invalidates
// only this connection; the host and other connections keep working.
type conn struct {
	h *Hypervisor

	mu     sync.RWMutex
	closed bool
}

var _ hypervisor.Client = (*conn)(nil)

func (c *conn) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return hypervisor.ErrClosed
	}
	return nil
}

func (c *conn) Machines(ctx context.Context) ([]string, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.h.Machines(ctx)
}

func (c *conn) FindMachine(ctx context.Context, name string) (hypervisor.Machine, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.h.FindMachine(ctx, name)
}

func (c *conn) NewSession(ctx context.Context) (hypervisor.Session, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.h.NewSession(ctx)
}

// Close implements hypervisor.Client. Safe to call multiple times.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
