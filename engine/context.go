package engine

import (
	"context"
	"errors"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/termloop/control"
)

// ErrNoFocus is returned by TryFocus when no focus object was ever
// installed.
var ErrNoFocus = errors.New("no focus object installed")

// Context is the application surface handed to every handler. It looks
// ambient but is threaded explicitly through each call boundary: the
// timers, pool and focus it reaches are only valid for the lifetime of
// one runtime instance, so it must never be promoted to a global.
//
// Context is owned by the scheduler goroutine. Background jobs must not
// touch it; they report back through their result channels.
type Context[E any] struct {
	queue  *control.Queue[E]
	timers *TimerRegistry[E]
	pool   *Pool[E]
	tasks  *TaskRuntime[E]
	screen tcell.Screen
	log    *zap.Logger

	focus        any
	insertBefore func() // one-shot, consumed before the next draw
	repaint      bool
}

// QueueEvent enqueues an application event for dispatch before the next
// poll round.
func (c *Context[E]) QueueEvent(payload E) { c.queue.PushEvent(payload) }

// Queue enqueues a raw control value.
func (c *Context[E]) Queue(v control.Control[E]) { c.queue.Push(v) }

// QueueErr enqueues an error for the application error hook. Work
// queued ahead of it still runs first.
func (c *Context[E]) QueueErr(err error) { c.queue.PushErr(err) }

// AddTimer registers a timer.
func (c *Context[E]) AddTimer(def TimerDef[E]) TimerHandle { return c.timers.Add(def) }

// RemoveTimer unregisters a timer, tolerating a dead handle.
func (c *Context[E]) RemoveTimer(h TimerHandle) { c.timers.Remove(h) }

// ReplaceTimer atomically swaps old for def.
func (c *Context[E]) ReplaceTimer(old TimerHandle, def TimerDef[E]) TimerHandle {
	return c.timers.Replace(old, def)
}

// Spawn hands a job to the worker pool; see Pool.Spawn.
func (c *Context[E]) Spawn(job Job[E]) (*Cancel, *Liveness) { return c.pool.Spawn(job) }

// SpawnExt hands a job with interim-result support to the worker pool.
func (c *Context[E]) SpawnExt(job JobExt[E]) (*Cancel, *Liveness) { return c.pool.SpawnExt(job) }

// SpawnAsync runs a context-aware task; see TaskRuntime.SpawnAsync.
func (c *Context[E]) SpawnAsync(task Task[E]) (context.CancelFunc, *Liveness) {
	return c.tasks.SpawnAsync(task)
}

// SpawnAsyncExt runs a context-aware task with interim-result support.
func (c *Context[E]) SpawnAsyncExt(task TaskExt[E]) (context.CancelFunc, *Liveness) {
	return c.tasks.SpawnAsyncExt(task)
}

// SetFocus installs the focus object consumed by widgets. The kernel
// never constructs focus order; it only stores what the application
// built.
func (c *Context[E]) SetFocus(f any) { c.focus = f }

// Focus returns the installed focus object and panics when none was
// ever installed, mirroring the contract widgets rely on.
func (c *Context[E]) Focus() any {
	if c.focus == nil {
		panic("engine: no focus object installed")
	}
	return c.focus
}

// TryFocus is the checked variant of Focus.
func (c *Context[E]) TryFocus() (any, error) {
	if c.focus == nil {
		return nil, ErrNoFocus
	}
	return c.focus, nil
}

// TakeFocus removes and returns the focus object, panicking when none
// is installed.
func (c *Context[E]) TakeFocus() any {
	f := c.Focus()
	c.focus = nil
	return f
}

// ClearFocus uninstalls the focus object.
func (c *Context[E]) ClearFocus() { c.focus = nil }

// FocusAs returns the installed focus object downcast to T, panicking
// on absence or type mismatch.
func FocusAs[T any, E any](c *Context[E]) T {
	f, ok := c.Focus().(T)
	if !ok {
		panic("engine: focus object has unexpected type")
	}
	return f
}

// Screen exposes the terminal backend for rendering.
func (c *Context[E]) Screen() tcell.Screen { return c.screen }

// ClearScreen clears the backing buffer and schedules a repaint. On a
// headless runtime there is no buffer to clear and only the repaint is
// recorded.
func (c *Context[E]) ClearScreen() {
	if c.screen != nil {
		c.screen.Clear()
	}
	c.repaint = true
}

// RequestRepaint schedules a render at the end of the current tick
// without consuming the event being handled.
func (c *Context[E]) RequestRepaint() { c.repaint = true }

// InsertBefore registers a one-shot hook executed before the next draw
// with the terminal suspended, for writing scrollback content above the
// UI. A second call before the draw replaces the first.
func (c *Context[E]) InsertBefore(fn func()) { c.insertBefore = fn }

// Logger returns the runtime's diagnostic logger.
func (c *Context[E]) Logger() *zap.Logger { return c.log }
