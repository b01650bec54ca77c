package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lixenwraith/termloop/control"
)

// Task is a context-aware background computation. Cancellation arrives
// through the context rather than a Cancel token; everything else
// matches the pool contract.
type Task[E any] func(ctx context.Context) (control.Control[E], error)

// TaskExt additionally receives a TaskSender for interim results.
type TaskExt[E any] func(ctx context.Context, send *TaskSender[E]) (control.Control[E], error)

// TaskSender pushes interim results from a running task.
type TaskSender[E any] struct {
	rt *TaskRuntime[E]
}

// Send queues an interim outcome.
func (s *TaskSender[E]) Send(c control.Control[E]) { s.rt.push(JobResult[E]{Ctrl: c}) }

// SendEvent queues an interim Event outcome wrapping payload.
func (s *TaskSender[E]) SendEvent(payload E) { s.Send(control.Event(payload)) }

// TaskRuntime bridges context-based goroutine tasks onto the poll
// source contract: one guaranteed result per task, panics converted to
// error results at the goroutine boundary, results delivered to the
// scheduler in arrival order.
type TaskRuntime[E any] struct {
	log    *zap.Logger
	notify func()

	mu      sync.Mutex
	results []JobResult[E]
	live    map[*Liveness]context.CancelFunc

	wg sync.WaitGroup
}

// NewTaskRuntime creates an empty task runtime. A nil logger disables
// diagnostics.
func NewTaskRuntime[E any](log *zap.Logger) *TaskRuntime[E] {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskRuntime[E]{log: log, live: make(map[*Liveness]context.CancelFunc)}
}

// SetNotify installs the scheduler wake callback.
func (t *TaskRuntime[E]) SetNotify(fn func()) { t.notify = fn }

// SpawnAsync runs task on its own goroutine under a cancelable context
// and returns the cancel function together with the task's liveness
// flag. Canceling is advisory: the task ends when it honors ctx.Done.
func (t *TaskRuntime[E]) SpawnAsync(task Task[E]) (context.CancelFunc, *Liveness) {
	return t.SpawnAsyncExt(func(ctx context.Context, _ *TaskSender[E]) (control.Control[E], error) {
		return task(ctx)
	})
}

// SpawnAsyncExt is SpawnAsync with interim result support.
func (t *TaskRuntime[E]) SpawnAsyncExt(task TaskExt[E]) (context.CancelFunc, *Liveness) {
	ctx, cancel := context.WithCancel(context.Background())
	liveness := &Liveness{}

	t.mu.Lock()
	t.live[liveness] = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			delete(t.live, liveness)
			t.mu.Unlock()
			cancel()
			liveness.done.Store(true)
		}()
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("async task panicked", zap.Any("panic", r), zap.Stack("stack"))
				t.push(JobResult[E]{
					Ctrl: control.Continue[E](),
					Err:  fmt.Errorf("async task panic: %v", r),
				})
			}
		}()

		ctrl, err := task(ctx, &TaskSender[E]{rt: t})
		if err != nil {
			t.push(JobResult[E]{Ctrl: control.Continue[E](), Err: err})
			return
		}
		t.push(JobResult[E]{Ctrl: ctrl})
	}()

	return cancel, liveness
}

func (t *TaskRuntime[E]) push(r JobResult[E]) {
	t.mu.Lock()
	t.results = append(t.results, r)
	notify := t.notify
	t.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// CancelAll cancels the context of every live task.
func (t *TaskRuntime[E]) CancelAll() {
	t.mu.Lock()
	for _, cancel := range t.live {
		cancel()
	}
	t.mu.Unlock()
}

// Wait blocks until every spawned task has terminated.
func (t *TaskRuntime[E]) Wait() { t.wg.Wait() }

// Poll implements PollSource.
func (t *TaskRuntime[E]) Poll() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.results) > 0, nil
}

// Read pops one result in arrival order.
func (t *TaskRuntime[E]) Read() (control.Control[E], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.results) == 0 {
		return control.Continue[E](), nil
	}
	r := t.results[0]
	copy(t.results, t.results[1:])
	t.results = t.results[:len(t.results)-1]
	return r.Ctrl, r.Err
}
