// Package control defines the outcome lattice shared by every event
// handler in the runtime. Handlers report one of five levels —
// Continue < Unchanged < Changed < Event < Quit — and callers combine
// results with Merge, short-circuiting on the first consumed value.
package control

import "fmt"

// kind is the lattice discriminant. Ordering and equality are defined
// by discriminant only; an Event payload never participates.
type kind uint8

const (
	kindContinue kind = iota
	kindUnchanged
	kindChanged
	kindEvent
	kindQuit
)

// Control is a five-level outcome carrying an optional event payload
// of the application's event type E.
type Control[E any] struct {
	k       kind
	payload E
}

// Continue reports that the handler did not consume the event.
func Continue[E any]() Control[E] { return Control[E]{k: kindContinue} }

// Unchanged reports that the event was consumed without visible effect.
func Unchanged[E any]() Control[E] { return Control[E]{k: kindUnchanged} }

// Changed reports that the event was consumed and the UI must repaint.
func Changed[E any]() Control[E] { return Control[E]{k: kindChanged} }

// Event wraps a synthesized application event for redispatch.
func Event[E any](payload E) Control[E] { return Control[E]{k: kindEvent, payload: payload} }

// Quit requests loop termination.
func Quit[E any]() Control[E] { return Control[E]{k: kindQuit} }

// IsConsumed reports whether the value is anything above Continue.
func (c Control[E]) IsConsumed() bool { return c.k != kindContinue }

// IsContinue reports the Continue level.
func (c Control[E]) IsContinue() bool { return c.k == kindContinue }

// IsUnchanged reports the Unchanged level.
func (c Control[E]) IsUnchanged() bool { return c.k == kindUnchanged }

// IsChanged reports the Changed level.
func (c Control[E]) IsChanged() bool { return c.k == kindChanged }

// IsQuit reports the Quit level.
func (c Control[E]) IsQuit() bool { return c.k == kindQuit }

// Payload returns the carried event and true when the value is an Event.
func (c Control[E]) Payload() (E, bool) {
	if c.k != kindEvent {
		var zero E
		return zero, false
	}
	return c.payload, true
}

// Cmp orders two values on the lattice: -1, 0 or +1. Payloads are
// ignored; two Events always compare equal.
func (c Control[E]) Cmp(o Control[E]) int {
	switch {
	case c.k < o.k:
		return -1
	case c.k > o.k:
		return 1
	default:
		return 0
	}
}

// Equal reports discriminant equality. Event(a).Equal(Event(b)) is true
// for any payloads a, b.
func (c Control[E]) Equal(o Control[E]) bool { return c.k == o.k }

// Or merges the receiver with o, keeping the greater value. When both
// are Events the receiver wins, so merging is left-biased but still
// associative and commutative under Equal.
func (c Control[E]) Or(o Control[E]) Control[E] {
	if o.k > c.k {
		return o
	}
	return c
}

// Merge returns the greater of a and b under the lattice order.
func Merge[E any](a, b Control[E]) Control[E] { return a.Or(b) }

// String returns the discriminant name.
func (c Control[E]) String() string {
	switch c.k {
	case kindContinue:
		return "Continue"
	case kindUnchanged:
		return "Unchanged"
	case kindChanged:
		return "Changed"
	case kindEvent:
		return fmt.Sprintf("Event(%v)", c.payload)
	case kindQuit:
		return "Quit"
	default:
		return "Unknown"
	}
}

// Outcome is the three-level subset used by leaf widgets that can
// neither synthesize events nor quit the application.
type Outcome uint8

const (
	OutcomeContinue Outcome = iota
	OutcomeUnchanged
	OutcomeChanged
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "Continue"
	case OutcomeUnchanged:
		return "Unchanged"
	case OutcomeChanged:
		return "Changed"
	default:
		return "Unknown"
	}
}

// IsConsumed reports whether the value is anything above Continue.
func (o Outcome) IsConsumed() bool { return o != OutcomeContinue }

// Or merges two outcomes, keeping the greater.
func (o Outcome) Or(other Outcome) Outcome {
	if other > o {
		return other
	}
	return o
}

// Lift embeds a three-level outcome into the full lattice. The
// embedding is lossless.
func Lift[E any](o Outcome) Control[E] {
	switch o {
	case OutcomeUnchanged:
		return Unchanged[E]()
	case OutcomeChanged:
		return Changed[E]()
	default:
		return Continue[E]()
	}
}

// Narrow collapses a full lattice value onto the three-level subset.
// Event and Quit have no counterpart and narrow to Continue.
func (c Control[E]) Narrow() Outcome {
	switch c.k {
	case kindUnchanged:
		return OutcomeUnchanged
	case kindChanged:
		return OutcomeChanged
	default:
		return OutcomeContinue
	}
}
