// Package engine implements the runtime kernel: the scheduler loop,
// its poll sources (terminal input, timers, worker pool, async tasks)
// and the application context threaded through every handler.
package engine

import "github.com/lixenwraith/termloop/control"

// PollSource is anything pluggable into the scheduler that can report
// readiness and then produce exactly one outcome on demand. Poll must
// never block; Read is called only after Poll reported true and must
// return quickly. Both run on the scheduler goroutine.
type PollSource[E any] interface {
	// Poll reports whether a Read would yield an outcome right now.
	Poll() (bool, error)

	// Read produces exactly one outcome. Dropping pending work instead
	// of reporting it on a later Read is a contract violation.
	Read() (control.Control[E], error)
}

// Draining marks a source whose pending outcomes must all be consumed
// within the tick that found it ready. The scheduler keeps calling Read
// on such a source until Poll goes false before moving on; for every
// other source it reads exactly once per tick.
//
// The timer registry needs this: several timers can elapse in the same
// tick and the one-outcome-per-read contract must not silently drop
// the rest until the next tick.
type Draining interface {
	DrainPerTick() bool
}
