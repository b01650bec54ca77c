package engine

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/termloop/control"
)

// App is the application driven by the runtime. All methods run on the
// scheduler goroutine.
type App[E any] interface {
	// Init runs once before the first render. A non-nil error aborts
	// Run before the loop starts.
	Init(ctx *Context[E]) error

	// Render repaints the whole UI. It is called at most once per tick,
	// after dispatch, and never concurrently with event handling.
	Render(ctx *Context[E]) error

	// Event handles one application event and reports the outcome.
	Event(ev E, ctx *Context[E]) (control.Control[E], error)

	// Error is the application error hook. Source failures, job errors
	// and queued errors all land here; the returned control decides
	// whether to repaint or quit. Errors are never silently swallowed
	// before this point.
	Error(err error, ctx *Context[E]) control.Control[E]
}

// Options tunes a runtime instance.
type Options struct {
	// PollInterval caps the idle sleep between ticks when no source is
	// ready. Background results cut the sleep short. Default 10ms.
	PollInterval time.Duration

	// PoolSize bounds worker pool concurrency. Default 4.
	PoolSize int

	// ShutdownTimeout is how long Run waits for background jobs after
	// the loop exits. Default 3s.
	ShutdownTimeout time.Duration

	// Clock overrides wall-clock access for the timer registry.
	Clock Clock

	// Logger receives kernel diagnostics. Default is a nop logger; the
	// kernel owns the terminal and never writes to stdio itself.
	Logger *zap.Logger
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 4
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 3 * time.Second
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Runtime multiplexes heterogeneous event sources into one deterministic
// sequence of dispatches. Exactly one goroutine owns it: the one that
// calls Run. Sources are polled in fixed registration order every tick,
// which caps how much work a hot source can inject per tick and makes
// dispatch order reproducible for a given readiness pattern.
type Runtime[E any] struct {
	opts   Options
	log    *zap.Logger
	screen tcell.Screen

	queue  *control.Queue[E]
	timers *TimerRegistry[E]
	pool   *Pool[E]
	tasks  *TaskRuntime[E]
	input  *Input[E]

	sources []PollSource[E]
	ctx     *Context[E]
	wake    chan struct{}

	repaint bool
	quit    bool
}

// NewRuntime assembles a runtime over an initialized screen. A nil
// screen builds a headless runtime (no input source, no drawing), which
// is how the kernel is tested. Built-in sources register in fixed
// priority order: terminal input, timers, worker pool, async tasks.
func NewRuntime[E any](screen tcell.Screen, translate Translate[E], opts Options) *Runtime[E] {
	opts.defaults()

	r := &Runtime[E]{
		opts:   opts,
		log:    opts.Logger,
		screen: screen,
		queue:  control.NewQueue[E](),
		timers: NewTimerRegistry[E](opts.Clock),
		pool:   NewPool[E](opts.PoolSize, opts.Logger),
		tasks:  NewTaskRuntime[E](opts.Logger),
		wake:   make(chan struct{}, 1),
	}
	r.pool.SetNotify(r.Wake)
	r.tasks.SetNotify(r.Wake)

	if screen != nil {
		r.input = NewInput(screen, translate, opts.Logger)
		r.input.SetNotify(r.Wake)
		r.sources = append(r.sources, r.input)
	}
	r.sources = append(r.sources, r.timers, r.pool, r.tasks)

	r.ctx = &Context[E]{
		queue:  r.queue,
		timers: r.timers,
		pool:   r.pool,
		tasks:  r.tasks,
		screen: screen,
		log:    opts.Logger,
	}
	return r
}

// AddSource registers an extra poll source behind the built-in ones.
// Registration order is dispatch priority and never changes afterwards.
func (r *Runtime[E]) AddSource(src PollSource[E]) {
	r.sources = append(r.sources, src)
}

// Context returns the application context. Exposed for tests and for
// wiring done before Run; handlers receive the same instance.
func (r *Runtime[E]) Context() *Context[E] { return r.ctx }

// Timers returns the built-in timer registry.
func (r *Runtime[E]) Timers() *TimerRegistry[E] { return r.timers }

// Pool returns the built-in worker pool.
func (r *Runtime[E]) Pool() *Pool[E] { return r.pool }

// Tasks returns the built-in async task runtime.
func (r *Runtime[E]) Tasks() *TaskRuntime[E] { return r.tasks }

// Wake interrupts the idle sleep so the next tick starts immediately.
// Safe to call from any goroutine.
func (r *Runtime[E]) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until a Quit outcome, then shuts the sources
// down: input reader stopped, live jobs canceled and waited for, tasks
// canceled. The screen is left initialized for the caller to finalize.
func (r *Runtime[E]) Run(app App[E]) error {
	if err := app.Init(r.ctx); err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	if r.input != nil {
		r.input.Start()
	}
	r.log.Debug("run loop started", zap.Int("sources", len(r.sources)))

	// First paint before any event arrives.
	r.repaint = true
	r.render(app)

	for !r.quit {
		r.tick(app)
	}

	r.shutdown()
	r.log.Debug("run loop stopped")
	return nil
}

// tick performs one poll round: collect ready sources in registration
// order, read and dispatch each, drain the queue between reads, render
// at most once at the end.
func (r *Runtime[E]) tick(app App[E]) {
	// Anything queued outside a read (Init, the error hook, a render)
	// is consumed before the next poll round.
	if r.queue.Len() > 0 {
		r.drainQueue(app)
		if r.quit {
			return
		}
	}

	ready := r.pollAll(app)
	if len(ready) == 0 {
		if r.repaint || r.ctx.repaint {
			r.render(app)
		}
		r.sleep()
		return
	}

	for _, src := range ready {
		if r.quit {
			// Quit short-circuits the remaining sources this tick.
			break
		}
		r.readAndDispatch(app, src)

		// Timers (and anything else marked Draining) are read until no
		// longer ready, so several deadlines elapsing in one tick fire
		// as separate dispatches instead of silently coalescing.
		if d, ok := src.(Draining); ok && d.DrainPerTick() {
			for !r.quit {
				again, err := src.Poll()
				if err != nil {
					r.dispatchError(app, err)
					break
				}
				if !again {
					break
				}
				r.readAndDispatch(app, src)
			}
		}
	}

	// The queue is drained even when Quit cut the round short: queued
	// work is side-effect-committed.
	r.drainQueue(app)

	if r.quit {
		return
	}
	if r.repaint || r.ctx.repaint {
		r.render(app)
	}
}

// pollAll polls every source in registration order and returns the
// ready subset in the same order. A poll failure forfeits that source's
// work this tick and goes to the error hook.
func (r *Runtime[E]) pollAll(app App[E]) []PollSource[E] {
	var ready []PollSource[E]
	for _, src := range r.sources {
		ok, err := src.Poll()
		if err != nil {
			r.dispatchError(app, err)
			continue
		}
		if ok {
			ready = append(ready, src)
		}
	}
	return ready
}

// readAndDispatch reads exactly one outcome from src, dispatches it,
// and drains whatever the dispatch enqueued before the next source.
func (r *Runtime[E]) readAndDispatch(app App[E], src PollSource[E]) {
	c, err := src.Read()
	if err != nil {
		r.dispatchError(app, err)
	} else {
		r.dispatch(app, c)
	}
	r.drainQueue(app)
}

// dispatch folds one control value into the tick. Event outcomes run
// the application handler; a handler returning another Event is
// redispatched until the chain settles.
func (r *Runtime[E]) dispatch(app App[E], c control.Control[E]) {
	for {
		if payload, ok := c.Payload(); ok {
			res, err := app.Event(payload, r.ctx)
			if err != nil {
				r.dispatchError(app, err)
				return
			}
			c = res
			continue
		}
		switch {
		case c.IsChanged():
			r.repaint = true
		case c.IsQuit():
			r.quit = true
		}
		return
	}
}

// dispatchError forwards err to the application error hook and folds
// the hook's verdict back into the tick.
func (r *Runtime[E]) dispatchError(app App[E], err error) {
	r.log.Debug("dispatching error", zap.Error(err))
	r.dispatch(app, app.Error(err, r.ctx))
}

// drainQueue consumes the control queue in FIFO order, including items
// enqueued while draining. Errors are held back and surfaced only once
// the queue is empty: work queued before a failure is already decided
// and must still run.
func (r *Runtime[E]) drainQueue(app App[E]) {
	for {
		var deferred []error
		for {
			it, ok := r.queue.Pop()
			if !ok {
				break
			}
			if it.Err != nil {
				deferred = append(deferred, it.Err)
				continue
			}
			r.dispatch(app, it.Ctrl)
		}
		if len(deferred) == 0 {
			return
		}
		for _, err := range deferred {
			r.dispatchError(app, err)
		}
		// The error hook may have queued more work; go around again.
	}
}

// render performs the tick's single repaint: the one-shot insert-before
// hook with the terminal suspended, then the application render, then
// the screen flush.
func (r *Runtime[E]) render(app App[E]) {
	r.repaint = false
	r.ctx.repaint = false

	if fn := r.ctx.insertBefore; fn != nil {
		r.ctx.insertBefore = nil
		if r.screen != nil {
			if err := r.screen.Suspend(); err == nil {
				fn()
				if err := r.screen.Resume(); err != nil {
					r.dispatchError(app, fmt.Errorf("terminal resume: %w", err))
				}
			}
		} else {
			fn()
		}
	}

	if err := app.Render(r.ctx); err != nil {
		r.dispatchError(app, err)
		return
	}
	if r.screen != nil {
		r.screen.Show()
	}
}

// sleep idles until the poll interval elapses or a background producer
// wakes the loop.
func (r *Runtime[E]) sleep() {
	timer := time.NewTimer(r.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-r.wake:
	case <-timer.C:
	}
}

// shutdown stops the input reader and reclaims background work.
func (r *Runtime[E]) shutdown() {
	if r.input != nil {
		r.input.Stop()
	}
	r.tasks.CancelAll()
	if !r.pool.Shutdown(r.opts.ShutdownTimeout) {
		r.log.Warn("jobs still running at shutdown deadline")
	}
}
