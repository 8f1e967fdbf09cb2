// Package timing records how long each phase of a machine operation took.
package timing

import (
	"time"

	"go.uber.org/zap"
)

// Timer tracks durations of named phases.
type Timer struct {
	start  time.Time
	last   time.Time
	phases []Phase
}

// Phase is a named, timed step of an operation.
type Phase struct {
	Name     string
	Duration time.Duration
}

// New creates a Timer starting now.
func New() *Timer {
	now := time.Now()
	return &Timer{start: now, last: now}
}

// Mark records a phase ending now. Its duration runs from the previous mark,
// or from the start for the first one.
func (t *Timer) Mark(name string) {
	now := time.Now()
	t.phases = append(t.phases, Phase{Name: name, Duration: now.Sub(t.last)})
	t.last = now
}

// Total returns the time elapsed since the timer was created.
func (t *Timer) Total() time.Duration {
	return time.Since(t.start)
}

// Phases returns a copy of the recorded phases.
func (t *Timer) Phases() []Phase {
	phases := make([]Phase, len(t.phases))
	copy(phases, t.phases)
	return phases
}

// Fields renders the phases as log fields, one duration per phase plus the total.
func (t *Timer) Fields() []zap.Field {
	fields := make([]zap.Field, 0, len(t.phases)+1)
	for _, p := range t.phases {
		fields = append(fields, zap.Duration(p.Name, p.Duration))
	}
	return append(fields, zap.Duration("total", t.Total()))
}
