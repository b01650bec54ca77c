// Package winstack implements the z-ordered stack of modal and overlay
// windows. Entries share one dispatch contract and are consumed by the
// scheduler's dispatch step exactly like any other widget.
package winstack

import "fmt"

// kind is the window-outcome discriminant:
// Continue < Unchanged < Changed < Event < Close.
type kind uint8

const (
	kindContinue kind = iota
	kindUnchanged
	kindChanged
	kindEvent
	kindClose
)

// Control is the five-level outcome reported by window handlers. It is
// a sibling of the runtime lattice with Close(payload) in place of
// Quit; ordering and equality are by discriminant only.
type Control[E any] struct {
	k       kind
	payload E
}

// Continue reports that the window did not consume the event.
func Continue[E any]() Control[E] { return Control[E]{k: kindContinue} }

// Unchanged reports consumption without visible effect.
func Unchanged[E any]() Control[E] { return Control[E]{k: kindUnchanged} }

// Changed reports consumption requiring a repaint.
func Changed[E any]() Control[E] { return Control[E]{k: kindChanged} }

// Event wraps a synthesized application event.
func Event[E any](payload E) Control[E] { return Control[E]{k: kindEvent, payload: payload} }

// Close asks the stack to remove the window, carrying a payload for
// the caller (typically the window's result).
func Close[E any](payload E) Control[E] { return Control[E]{k: kindClose, payload: payload} }

// IsConsumed reports whether the value is anything above Continue.
func (c Control[E]) IsConsumed() bool { return c.k != kindContinue }

// IsContinue reports the Continue level.
func (c Control[E]) IsContinue() bool { return c.k == kindContinue }

// IsChanged reports the Changed level.
func (c Control[E]) IsChanged() bool { return c.k == kindChanged }

// IsClose reports the Close level.
func (c Control[E]) IsClose() bool { return c.k == kindClose }

// Payload returns the carried event and true when the value is an
// Event or a Close.
func (c Control[E]) Payload() (E, bool) {
	if c.k != kindEvent && c.k != kindClose {
		var zero E
		return zero, false
	}
	return c.payload, true
}

// Cmp orders two values on the lattice, ignoring payloads.
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

// Equal reports discriminant equality.
func (c Control[E]) Equal(o Control[E]) bool { return c.k == o.k }

// Or merges the receiver with o, keeping the greater value. The
// receiver wins ties, so a Close never loses its payload to a merged-in
// Changed.
func (c Control[E]) Or(o Control[E]) Control[E] {
	if o.k > c.k {
		return o
	}
	return c
}

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
	case kindClose:
		return fmt.Sprintf("Close(%v)", c.payload)
	default:
		return "Unknown"
	}
}
