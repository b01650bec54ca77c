package engine

import (
	"time"

	"github.com/lixenwraith/termloop/control"
)

// TimerHandle identifies a registered timer. Handles are unique and
// monotonically increasing for the lifetime of one registry; the zero
// value never identifies a live timer.
type TimerHandle uint64

// RepeatForever makes a timer fire until it is removed.
const RepeatForever = -1

// TimerDef describes a timer to register.
type TimerDef[E any] struct {
	// Interval between fires, measured from registration for the first
	// fire and advanced by Interval on each subsequent fire.
	// Non-positive intervals are clamped to a millisecond: a deadline
	// that never advances would keep the registry ready forever and pin
	// the drain loop inside one tick.
	Interval time.Duration

	// Repeat is the total fire count. Zero is treated as one;
	// RepeatForever never self-removes.
	Repeat int

	// Repaint makes each fire report Changed so the loop schedules a
	// render even when no payload is attached.
	Repaint bool

	// Payload, when non-nil, is dispatched as an Event on each fire
	// and takes precedence over Repaint.
	Payload *E
}

type timerEntry[E any] struct {
	handle TimerHandle
	def    TimerDef[E]
	next   time.Time
	left   int // fires remaining, RepeatForever for unlimited
}

// TimerRegistry tracks logical repeating and one-shot timers as a poll
// source. It is owned by the scheduler goroutine; cross-thread use is
// not supported.
type TimerRegistry[E any] struct {
	clock   Clock
	entries []*timerEntry[E]
	lastID  TimerHandle
}

// NewTimerRegistry creates an empty registry on the given clock; nil
// selects the system clock.
func NewTimerRegistry[E any](clock Clock) *TimerRegistry[E] {
	if clock == nil {
		clock = SystemClock()
	}
	return &TimerRegistry[E]{clock: clock}
}

// Add registers a timer and returns its handle. The first deadline is
// registration time plus the interval.
func (t *TimerRegistry[E]) Add(def TimerDef[E]) TimerHandle {
	if def.Interval <= 0 {
		def.Interval = time.Millisecond
	}
	t.lastID++
	left := def.Repeat
	if left == 0 {
		left = 1
	}
	t.entries = append(t.entries, &timerEntry[E]{
		handle: t.lastID,
		def:    def,
		next:   t.clock.Now().Add(def.Interval),
		left:   left,
	})
	return t.lastID
}

// Remove unregisters a timer. A handle that already fired out or was
// removed is ignored.
func (t *TimerRegistry[E]) Remove(handle TimerHandle) {
	for i, e := range t.entries {
		if e.handle == handle {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Replace removes old (tolerating an already-gone handle) and registers
// def, returning the new handle.
func (t *TimerRegistry[E]) Replace(old TimerHandle, def TimerDef[E]) TimerHandle {
	t.Remove(old)
	return t.Add(def)
}

// Len returns the number of live timers.
func (t *TimerRegistry[E]) Len() int { return len(t.entries) }

// Poll reports whether the earliest live deadline has passed.
func (t *TimerRegistry[E]) Poll() (bool, error) {
	now := t.clock.Now()
	for _, e := range t.entries {
		if !e.next.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// Read fires the single most-overdue timer and returns its outcome:
// the payload as an Event when one is attached, Changed when the timer
// wants a repaint, Unchanged otherwise. Each Read advances exactly one
// deadline, so a timer that fell far behind fires once per read rather
// than in a burst. With nothing due, Read reports Continue.
func (t *TimerRegistry[E]) Read() (control.Control[E], error) {
	now := t.clock.Now()
	idx := -1
	for i, e := range t.entries {
		if e.next.After(now) {
			continue
		}
		if idx < 0 || e.next.Before(t.entries[idx].next) {
			idx = i
		}
	}
	if idx < 0 {
		return control.Continue[E](), nil
	}

	e := t.entries[idx]
	e.next = e.next.Add(e.def.Interval)
	if e.left != RepeatForever {
		e.left--
		if e.left <= 0 {
			t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
		}
	}

	switch {
	case e.def.Payload != nil:
		return control.Event(*e.def.Payload), nil
	case e.def.Repaint:
		return control.Changed[E](), nil
	default:
		return control.Unchanged[E](), nil
	}
}

// DrainPerTick implements Draining: all elapsed timers fire within the
// tick that found the registry ready.
func (t *TimerRegistry[E]) DrainPerTick() bool { return true }
