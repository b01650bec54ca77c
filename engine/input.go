package engine

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/termloop/control"
)

// Translate converts a terminal event into a control value. Returning
// Continue discards the event; typically key and mouse events become
// Event(payload) of the application's event type and resizes become
// Changed.
type Translate[E any] func(ev tcell.Event) control.Control[E]

// Input bridges the terminal backend into the scheduler: a reader
// goroutine pumps screen.PollEvent into a buffered channel, and the
// channel is exposed through the PollSource contract. The scheduler
// side never blocks on the terminal.
type Input[E any] struct {
	screen    tcell.Screen
	translate Translate[E]
	log       *zap.Logger
	notify    func()

	eventCh chan tcell.Event
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu      sync.Mutex
	running bool
}

// NewInput creates an input source for screen. The screen must be
// initialized before Start.
func NewInput[E any](screen tcell.Screen, translate Translate[E], log *zap.Logger) *Input[E] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Input[E]{
		screen:    screen,
		translate: translate,
		log:       log,
		eventCh:   make(chan tcell.Event, 256),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// SetNotify installs the scheduler wake callback.
func (in *Input[E]) SetNotify(fn func()) { in.notify = fn }

// Start launches the reader goroutine. Calling Start twice is a no-op.
func (in *Input[E]) Start() {
	in.mu.Lock()
	if in.running {
		in.mu.Unlock()
		return
	}
	in.running = true
	in.mu.Unlock()

	go in.readLoop()
}

// readLoop pumps terminal events until stop. A panic in the reader is
// reported and ends input rather than the process; the terminal itself
// stays owned by the runtime which restores it on shutdown.
func (in *Input[E]) readLoop() {
	defer close(in.doneCh)
	defer func() {
		if r := recover(); r != nil {
			in.log.Error("input reader panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	for {
		ev := in.screen.PollEvent()
		if ev == nil {
			// Screen finalized under us.
			return
		}
		if _, ok := ev.(*tcell.EventInterrupt); ok {
			select {
			case <-in.stopCh:
				return
			default:
				// Interrupts not posted by Stop pass through.
			}
		}

		select {
		case in.eventCh <- ev:
			if in.notify != nil {
				in.notify()
			}
		case <-in.stopCh:
			return
		}
	}
}

// Stop signals the reader and waits for it to exit. The screen is left
// initialized; finalizing it is the runtime's job.
func (in *Input[E]) Stop() {
	in.mu.Lock()
	if !in.running {
		in.mu.Unlock()
		return
	}
	in.running = false
	in.mu.Unlock()

	close(in.stopCh)
	// Unblock PollEvent with a synthetic interrupt. A full queue means
	// the reader is awake and will observe stopCh on its own.
	_ = in.screen.PostEvent(tcell.NewEventInterrupt(nil))
	<-in.doneCh
}

// Poll implements PollSource: ready when an event is buffered.
func (in *Input[E]) Poll() (bool, error) {
	return len(in.eventCh) > 0, nil
}

// Read pops one terminal event and translates it. A Read racing an
// empty buffer reports Continue.
func (in *Input[E]) Read() (control.Control[E], error) {
	select {
	case ev := <-in.eventCh:
		return in.translate(ev), nil
	default:
		return control.Continue[E](), nil
	}
}
