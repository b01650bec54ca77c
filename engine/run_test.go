package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/termloop/control"
)

// mockSource is a scripted poll source with call counters, so tests can
// assert exactly how the scheduler drove it.
type mockSource struct {
	items   []control.Control[string]
	pollErr error
	readErr error
	drain   bool

	polls int
	reads int
}

func (m *mockSource) Poll() (bool, error) {
	m.polls++
	if m.pollErr != nil {
		err := m.pollErr
		m.pollErr = nil
		return false, err
	}
	return len(m.items) > 0, nil
}

func (m *mockSource) Read() (control.Control[string], error) {
	m.reads++
	if m.readErr != nil {
		err := m.readErr
		m.readErr = nil
		return control.Continue[string](), err
	}
	if len(m.items) == 0 {
		return control.Continue[string](), nil
	}
	c := m.items[0]
	m.items = m.items[1:]
	return c, nil
}

func (m *mockSource) DrainPerTick() bool { return m.drain }

// testApp records everything the scheduler hands it, in order.
type testApp struct {
	log     []string
	renders int

	onEvent func(ev string, ctx *Context[string]) (control.Control[string], error)
	onError func(err error, ctx *Context[string]) control.Control[string]
	initErr error
}

func (a *testApp) Init(ctx *Context[string]) error { return a.initErr }

func (a *testApp) Render(ctx *Context[string]) error {
	a.renders++
	return nil
}

func (a *testApp) Event(ev string, ctx *Context[string]) (control.Control[string], error) {
	a.log = append(a.log, "ev:"+ev)
	if a.onEvent != nil {
		return a.onEvent(ev, ctx)
	}
	return control.Continue[string](), nil
}

func (a *testApp) Error(err error, ctx *Context[string]) control.Control[string] {
	a.log = append(a.log, "err:"+err.Error())
	if a.onError != nil {
		return a.onError(err, ctx)
	}
	return control.Continue[string]()
}

func headless(opts Options) *Runtime[string] {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	return NewRuntime[string](nil, nil, opts)
}

// Registering [A, B, C] and marking A and C ready in the same tick must
// dispatch A then C, each exactly once, with B polled but never read.
func TestDispatchOrderFollowsRegistration(t *testing.T) {
	r := headless(Options{})

	a := &mockSource{items: []control.Control[string]{control.Event("A")}}
	b := &mockSource{}
	c := &mockSource{items: []control.Control[string]{control.Event("C")}}
	r.AddSource(a)
	r.AddSource(b)
	r.AddSource(c)

	app := &testApp{
		onEvent: func(ev string, ctx *Context[string]) (control.Control[string], error) {
			if ev == "C" {
				return control.Quit[string](), nil
			}
			return control.Continue[string](), nil
		},
	}
	require.NoError(t, r.Run(app))

	assert.Equal(t, []string{"ev:A", "ev:C"}, app.log)
	assert.Equal(t, 1, a.reads)
	assert.Equal(t, 1, c.reads)
	assert.GreaterOrEqual(t, b.polls, 1, "B is polled")
	assert.Equal(t, 0, b.reads, "B is never read")
}

// Several Changed outcomes in one tick coalesce into a single render.
func TestRenderOncePerTick(t *testing.T) {
	r := headless(Options{})

	a := &mockSource{items: []control.Control[string]{control.Changed[string]()}}
	b := &mockSource{items: []control.Control[string]{control.Changed[string]()}}
	quitter := &mockSource{}
	r.AddSource(a)
	r.AddSource(b)
	r.AddSource(quitter)

	app := &testApp{}

	// A watcher polled every tick arms the quit source once it sees the
	// batch render happened: initial paint plus exactly one more.
	armed := false
	watcher := &watchSource{onPoll: func() {
		if !armed && app.renders == 2 {
			quitter.items = append(quitter.items, control.Quit[string]())
			armed = true
		}
	}}
	r.AddSource(watcher)

	require.NoError(t, r.Run(app))
	assert.Equal(t, 2, app.renders, "exactly one render for the two-source batch")
}

// watchSource runs a callback on every poll and is never ready.
type watchSource struct {
	onPoll func()
}

func (w *watchSource) Poll() (bool, error) {
	if w.onPoll != nil {
		w.onPoll()
	}
	return false, nil
}

func (w *watchSource) Read() (control.Control[string], error) {
	return control.Continue[string](), nil
}

// Quit skips the remaining sources of the tick but still drains the
// queue: queued work is side-effect-committed.
func TestQuitShortCircuits(t *testing.T) {
	r := headless(Options{})

	a := &mockSource{items: []control.Control[string]{control.Quit[string]()}}
	c := &mockSource{items: []control.Control[string]{control.Event("late")}}
	r.AddSource(a)
	r.AddSource(c)

	app := &testApp{}
	r.Context().QueueEvent("queued-before-quit")

	require.NoError(t, r.Run(app))
	assert.Equal(t, 0, c.reads, "sources after the quit are skipped")
	assert.Contains(t, app.log, "ev:queued-before-quit", "queue drained on exit")
}

// Handling one event can synthesize more through the queue; an error
// pushed mid-stream surfaces only after everything queued has run.
func TestQueuedErrorSurfacesAfterDrain(t *testing.T) {
	r := headless(Options{})
	boom := errors.New("boom")

	src := &mockSource{items: []control.Control[string]{control.Event("first")}}
	r.AddSource(src)

	app := &testApp{}
	app.onEvent = func(ev string, ctx *Context[string]) (control.Control[string], error) {
		switch ev {
		case "first":
			ctx.QueueEvent("second")
			ctx.QueueErr(boom)
			ctx.QueueEvent("third")
		case "third":
			// Still runs before the error hook sees boom.
		}
		return control.Continue[string](), nil
	}
	app.onError = func(err error, ctx *Context[string]) control.Control[string] {
		return control.Quit[string]()
	}

	require.NoError(t, r.Run(app))
	assert.Equal(t, []string{"ev:first", "ev:second", "ev:third", "err:boom"}, app.log)
}

// A handler returning Event redispatches until the chain settles.
func TestEventChainRedispatch(t *testing.T) {
	r := headless(Options{})
	src := &mockSource{items: []control.Control[string]{control.Event("a")}}
	r.AddSource(src)

	app := &testApp{}
	app.onEvent = func(ev string, ctx *Context[string]) (control.Control[string], error) {
		switch ev {
		case "a":
			return control.Event("b"), nil
		case "b":
			return control.Event("c"), nil
		default:
			return control.Quit[string](), nil
		}
	}

	require.NoError(t, r.Run(app))
	assert.Equal(t, []string{"ev:a", "ev:b", "ev:c"}, app.log)
}

// A Draining source is read until Poll goes false, so multiple pending
// outcomes fire as separate dispatches within one tick.
func TestDrainingSourceReadUntilIdle(t *testing.T) {
	r := headless(Options{})

	d := &mockSource{
		drain: true,
		items: []control.Control[string]{
			control.Event("t1"),
			control.Event("t2"),
			control.Event("t3"),
		},
	}
	r.AddSource(d)

	app := &testApp{}
	app.onEvent = func(ev string, ctx *Context[string]) (control.Control[string], error) {
		if ev == "t3" {
			return control.Quit[string](), nil
		}
		return control.Continue[string](), nil
	}

	require.NoError(t, r.Run(app))
	assert.Equal(t, []string{"ev:t1", "ev:t2", "ev:t3"}, app.log)
	assert.Equal(t, 3, d.reads, "one read per pending outcome, same tick")
}

// Poll and Read failures reach the error hook and never kill the loop
// on their own.
func TestSourceErrorsReachErrorHook(t *testing.T) {
	r := headless(Options{})

	pollFail := &mockSource{pollErr: errors.New("poll failed")}
	readFail := &mockSource{readErr: errors.New("read failed"),
		items: []control.Control[string]{control.Event("unused")}}
	r.AddSource(pollFail)
	r.AddSource(readFail)

	hookCalls := 0
	app := &testApp{}
	app.onError = func(err error, ctx *Context[string]) control.Control[string] {
		hookCalls++
		if hookCalls == 2 {
			return control.Quit[string]()
		}
		return control.Continue[string]()
	}

	require.NoError(t, r.Run(app))
	assert.Equal(t, 2, hookCalls)
	assert.Contains(t, app.log, "err:poll failed")
	assert.Contains(t, app.log, "err:read failed")
}

// End to end: a background job's result reaches dispatch through the
// pool source and its event wakes the idle loop.
func TestPoolResultThroughLoop(t *testing.T) {
	r := headless(Options{PollInterval: 50 * time.Millisecond})

	app := &testApp{}
	app.onEvent = func(ev string, ctx *Context[string]) (control.Control[string], error) {
		if ev == "job-done" {
			return control.Quit[string](), nil
		}
		return control.Continue[string](), nil
	}

	r.Context().Spawn(func(cancel *Cancel) (control.Control[string], error) {
		return control.Event("job-done"), nil
	})

	start := time.Now()
	require.NoError(t, r.Run(app))
	assert.Contains(t, app.log, "ev:job-done")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInitErrorAbortsRun(t *testing.T) {
	r := headless(Options{})
	app := &testApp{initErr: errors.New("bad init")}
	err := r.Run(app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad init")
	assert.Equal(t, 0, app.renders, "no render after failed init")
}

// Timers plug into the loop like any other source and fire their
// payloads as dispatched events.
func TestTimerEventsThroughLoop(t *testing.T) {
	r := headless(Options{PollInterval: time.Millisecond})

	done := "tick-done"
	app := &testApp{}
	app.onEvent = func(ev string, ctx *Context[string]) (control.Control[string], error) {
		if ev == done {
			return control.Quit[string](), nil
		}
		return control.Continue[string](), nil
	}

	r.Context().AddTimer(TimerDef[string]{
		Interval: 5 * time.Millisecond,
		Repeat:   1,
		Payload:  &done,
	})

	require.NoError(t, r.Run(app))
	assert.Equal(t, []string{"ev:" + done}, app.log)
}

func TestErrorHookVerdictFoldsIn(t *testing.T) {
	r := headless(Options{})
	src := &mockSource{readErr: errors.New("one-off"),
		items: []control.Control[string]{control.Event("x")}}
	r.AddSource(src)

	app := &testApp{}
	app.onError = func(err error, ctx *Context[string]) control.Control[string] {
		return control.Quit[string]()
	}
	require.NoError(t, r.Run(app))
	assert.Equal(t, []string{fmt.Sprintf("err:%s", "one-off")}, app.log)
}
