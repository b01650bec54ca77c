package winstack

import (
	"github.com/gdamore/tcell/v2"
)

// HandleEvent dispatches ev to the windows from top to bottom and
// returns the first consumed outcome.
//
// For each candidate window, a primary-button mouse-down inside the
// window's area is recorded before its handler runs; when it happened,
// the window is promoted to front regardless of the handler's verdict
// and the result is folded up to at least Changed. A Close outcome
// removes the window before returning. A Continue outcome falls
// through to the window below only when the event is not a mouse event
// inside this window's area: an in-area mouse event that nobody
// consumed is trapped and reported as Unchanged, so clicks can never
// fall through an occluding window onto whatever sits beneath it.
func (s *Stack[E, C]) HandleEvent(ev tcell.Event, ctx C) (Control[E], error) {
	mouse, isMouse := ev.(*tcell.EventMouse)

	for i := len(s.states) - 1; i >= 0; i-- {
		area := s.states[i].Area()

		inArea := false
		primaryDown := false
		if isMouse {
			x, y := mouse.Position()
			inArea = area.Contains(x, y)
			primaryDown = inArea && mouse.Buttons()&tcell.ButtonPrimary != 0
		}

		w := s.checkout(i)
		res, err := s.events[i](w, ev, ctx)
		s.putback(i, w)
		if err != nil {
			return res, err
		}

		idx := i
		if primaryDown {
			// Promotion is unconditional: clicking a window raises it
			// even when its handler ignored the click.
			s.ToFront(i, ctx)
			idx = s.Top()
			res = res.Or(Changed[E]())
		}

		if res.IsClose() {
			s.Close(idx, ctx)
			return res, nil
		}
		if res.IsConsumed() {
			return res, nil
		}
		if inArea {
			// Mouse trap: the click landed on this window, so windows
			// beneath it never see the event.
			return Unchanged[E](), nil
		}
	}
	return Continue[E](), nil
}

// RenderAll draws the windows bottom to top, so the topmost window
// paints last. Each state is checked out for the duration of its own
// render call.
func (s *Stack[E, C]) RenderAll(ctx C) error {
	for i := range s.states {
		w := s.checkout(i)
		err := s.renders[i](w, ctx)
		s.putback(i, w)
		if err != nil {
			return err
		}
	}
	return nil
}
