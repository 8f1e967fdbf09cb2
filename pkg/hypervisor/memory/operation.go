package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/javanstorm/vmsession/pkg/hypervisor"
)

type operation struct {
	h       *Hypervisor
	id      string
	machine string
	done    chan struct{}
	err     error
}

var _ hypervisor.Operation = (*operation)(nil)

// startOperation creates an operation that applies effect after delay, or
// rollback if a completion fault was queued for method.
// Must be called with h.mu held.
func (h *Hypervisor) startOperation(method Method, machine string, delay time.Duration, effect, rollback func()) *operation {
	op := &operation{
		h:       h,
		id:      uuid.NewString(),
		machine: machine,
		done:    make(chan struct{}),
	}

	if queued := h.opFaults[method]; len(queued) > 0 {
		h.opFaults[method] = queued[1:]
		op.err = queued[0]
		effect = rollback
	}

	if delay <= 0 {
		op.complete(effect)
		return op
	}

	t := h.clock.AfterFunc(delay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		op.complete(effect)
	})
	h.timers = append(h.timers, t)
	return op
}

func (op *operation) complete(effect func()) {
	if effect != nil {
		effect()
	}
	close(op.done)
}

func (op *operation) ID() string {
	return op.id
}

// WaitForCompletion implements hypervisor.Operation. A timeout <= 0 waits
// without a deadline.
func (op *operation) WaitForCompletion(ctx context.Context, timeout time.Duration) error {
	h := op.h
	h.mu.Lock()
	err := h.enter(ctx, MethodWait, op.machine, "")
	h.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-op.done:
		return op.err
	default:
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := h.clock.Timer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-op.done:
		return op.err
	case <-deadline:
		return fmt.Errorf("operation %s after %s: %w", op.id, timeout, hypervisor.ErrTimeoutExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}
