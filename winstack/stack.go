package winstack

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/termloop/core"
)

// Errors returned by the checked accessor variants. The panicking
// accessors fail fast with the same conditions.
var (
	ErrStateTaken = errors.New("winstack: window state is checked out")
	ErrWrongType  = errors.New("winstack: window state has a different type")
	ErrBadIndex   = errors.New("winstack: window index out of range")
)

// Window is the contract every window state satisfies. SetTop is
// invoked on every entry whenever the z-order changes, so exactly one
// entry holds the top flag at all times; Area is the window's screen
// rectangle, used for mouse hit testing.
type Window[C any] interface {
	SetTop(top bool, ctx C)
	Area() core.Rect
}

// RenderFn draws one window. The state arrives checked out of the
// stack, so the closure may reach other windows through the stack but
// never its own slot.
type RenderFn[E any, C any] func(w Window[C], ctx C) error

// EventFn handles one terminal event for one window, under the same
// checkout rule as RenderFn.
type EventFn[E any, C any] func(w Window[C], ev tcell.Event, ctx C) (Control[E], error)

// slotGuard tracks checkout and borrow state for one entry. Guards are
// held by pointer so a borrow release stays attached to its entry when
// z-order operations shift indices.
type slotGuard struct {
	taken   bool // state removed for the duration of its own callback
	borrows int  // outstanding Get borrows
}

// Stack is the z-ordered collection of window entries. Four parallel
// slices hold the per-window records — type tag, type-erased state,
// render closure, event closure — and position is the only source of
// z-order: last is topmost. The slices always have equal length.
//
// The stack belongs to the scheduler goroutine; nothing here is safe
// for concurrent use.
type Stack[E any, C any] struct {
	tags    []reflect.Type
	states  []Window[C]
	renders []RenderFn[E, C]
	events  []EventFn[E, C]
	guards  []*slotGuard
}

// New returns an empty stack.
func New[E any, C any]() *Stack[E, C] {
	return &Stack[E, C]{}
}

// Len returns the number of windows.
func (s *Stack[E, C]) Len() int { return len(s.states) }

// Top returns the index of the topmost window, -1 when empty.
func (s *Stack[E, C]) Top() int { return len(s.states) - 1 }

// Show appends a window on top of the stack and recomputes the top
// flags: the new entry gets SetTop(true), every other entry
// SetTop(false).
func (s *Stack[E, C]) Show(state Window[C], render RenderFn[E, C], event EventFn[E, C], ctx C) {
	s.assertFree()
	s.tags = append(s.tags, reflect.TypeOf(state))
	s.states = append(s.states, state)
	s.renders = append(s.renders, render)
	s.events = append(s.events, event)
	s.guards = append(s.guards, &slotGuard{})
	s.recomputeTop(ctx)
}

// Close removes the window at index n and recomputes top flags. It
// panics when any state is checked out, or when the target entry is
// borrowed; closing an entry whose neighbor is borrowed is fine.
func (s *Stack[E, C]) Close(n int, ctx C) {
	s.assertFree()
	s.checkIndex(n)
	if s.guards[n].borrows > 0 {
		panic("winstack: window state is gone")
	}
	s.tags = append(s.tags[:n], s.tags[n+1:]...)
	s.states = append(s.states[:n], s.states[n+1:]...)
	s.renders = append(s.renders[:n], s.renders[n+1:]...)
	s.events = append(s.events[:n], s.events[n+1:]...)
	s.guards = append(s.guards[:n], s.guards[n+1:]...)
	s.recomputeTop(ctx)
}

// ToFront moves the window at index n to the top of the stack.
func (s *Stack[E, C]) ToFront(n int, ctx C) {
	s.assertFree()
	s.checkIndex(n)
	moveToEnd(s.tags, n)
	moveToEnd(s.states, n)
	moveToEnd(s.renders, n)
	moveToEnd(s.events, n)
	moveToEnd(s.guards, n)
	s.recomputeTop(ctx)
}

// ToBack moves the window at index n to the bottom of the stack.
func (s *Stack[E, C]) ToBack(n int, ctx C) {
	s.assertFree()
	s.checkIndex(n)
	moveToStart(s.tags, n)
	moveToStart(s.states, n)
	moveToStart(s.renders, n)
	moveToStart(s.events, n)
	moveToStart(s.guards, n)
	s.recomputeTop(ctx)
}

// Get borrows the state at index n and returns it with a release
// closure. The release stays bound to the entry even when later
// z-order changes move it. Get panics when the slot is checked out,
// which is what happens when a window callback reaches for its own
// state through the stack instead of using the value it was handed.
func (s *Stack[E, C]) Get(n int) (Window[C], func()) {
	s.checkIndex(n)
	g := s.guards[n]
	if g.taken {
		panic("winstack: window state is gone")
	}
	g.borrows++
	w := s.states[n]
	released := false
	return w, func() {
		if released {
			return
		}
		released = true
		g.borrows--
	}
}

// TryGet is the checked variant of Get.
func (s *Stack[E, C]) TryGet(n int) (Window[C], func(), error) {
	if n < 0 || n >= len(s.states) {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrBadIndex, n, len(s.states))
	}
	if s.guards[n].taken {
		return nil, nil, ErrStateTaken
	}
	w, release := s.Get(n)
	return w, release, nil
}

// Tag returns the runtime type recorded for the window at index n.
func (s *Stack[E, C]) Tag(n int) reflect.Type {
	s.checkIndex(n)
	return s.tags[n]
}

// State borrows the window state at index n downcast to T, panicking
// on a type mismatch. The release closure must be called when the
// caller is done reading or writing the state.
func State[T Window[C], E any, C any](s *Stack[E, C], n int) (T, func()) {
	w, release := s.Get(n)
	t, ok := w.(T)
	if !ok {
		release()
		panic(fmt.Sprintf("winstack: window %d is %v, not %v",
			n, s.tags[n], reflect.TypeOf((*T)(nil)).Elem()))
	}
	return t, release
}

// TryState is the checked variant of State.
func TryState[T Window[C], E any, C any](s *Stack[E, C], n int) (T, func(), error) {
	var zero T
	w, release, err := s.TryGet(n)
	if err != nil {
		return zero, nil, err
	}
	t, ok := w.(T)
	if !ok {
		release()
		return zero, nil, fmt.Errorf("%w: have %v want %v", ErrWrongType, s.tags[n], reflect.TypeOf((*T)(nil)).Elem())
	}
	return t, release, nil
}

// checkout removes the state at index n for the duration of its own
// render or event call. The caller must restore it with putback.
func (s *Stack[E, C]) checkout(n int) Window[C] {
	g := s.guards[n]
	if g.taken || g.borrows > 0 {
		panic("winstack: window state is gone")
	}
	w := s.states[n]
	s.states[n] = nil
	g.taken = true
	return w
}

// putback restores a checked-out state.
func (s *Stack[E, C]) putback(n int, w Window[C]) {
	s.states[n] = w
	s.guards[n].taken = false
}

// assertFree panics when any entry is checked out. Stack mutation
// while a callback is running would shift the parallel slices under
// the dispatch loop, so it fails fast instead.
func (s *Stack[E, C]) assertFree() {
	for _, g := range s.guards {
		if g.taken {
			panic("winstack: window state is gone")
		}
	}
}

func (s *Stack[E, C]) checkIndex(n int) {
	if n < 0 || n >= len(s.states) {
		panic(fmt.Sprintf("winstack: index %d out of range (%d windows)", n, len(s.states)))
	}
}

// recomputeTop reasserts the single-top invariant after any z-order
// change.
func (s *Stack[E, C]) recomputeTop(ctx C) {
	last := len(s.states) - 1
	for i, w := range s.states {
		w.SetTop(i == last, ctx)
	}
}

func moveToEnd[T any](xs []T, n int) {
	v := xs[n]
	copy(xs[n:], xs[n+1:])
	xs[len(xs)-1] = v
}

func moveToStart[T any](xs []T, n int) {
	v := xs[n]
	copy(xs[1:n+1], xs[:n])
	xs[0] = v
}
