package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lixenwraith/termloop/control"
)

// Cancel is an advisory stop signal for a background job. The job
// checks it at its own checkpoints; there is no preemption and a job
// that never checks runs to completion.
type Cancel struct {
	flag atomic.Bool
}

// Cancel requests the job stop. Safe to call multiple times and from
// any goroutine.
func (c *Cancel) Cancel() { c.flag.Store(true) }

// Canceled reports whether cancellation was requested.
func (c *Cancel) Canceled() bool { return c.flag.Load() }

// Liveness is set exactly once, by the pool, when a spawned job
// terminates for any reason: normal return, error or panic.
type Liveness struct {
	done atomic.Bool
}

// Finished reports whether the job has terminated.
func (l *Liveness) Finished() bool { return l.done.Load() }

// JobResult is one entry on the pool's results surface: an outcome or
// an error, never both.
type JobResult[E any] struct {
	Ctrl control.Control[E]
	Err  error
}

// Job is a blocking background computation. It receives its own Cancel
// token and returns one final outcome.
type Job[E any] func(cancel *Cancel) (control.Control[E], error)

// JobExt additionally receives a Sender for interim results, so a long
// job can report progress without finishing.
type JobExt[E any] func(cancel *Cancel, send *Sender[E]) (control.Control[E], error)

// Sender pushes interim results from a running job onto the pool's
// results surface. Safe for use from the job goroutine only.
type Sender[E any] struct {
	pool *Pool[E]
}

// Send queues an interim outcome.
func (s *Sender[E]) Send(c control.Control[E]) { s.pool.pushResult(JobResult[E]{Ctrl: c}) }

// SendEvent queues an interim Event outcome wrapping payload.
func (s *Sender[E]) SendEvent(payload E) { s.Send(control.Event(payload)) }

// SendErr queues an interim error.
func (s *Sender[E]) SendErr(err error) {
	s.pool.pushResult(JobResult[E]{Ctrl: control.Continue[E](), Err: err})
}

// Pool runs background jobs on goroutines bounded by a fixed
// concurrency limit. Results flow one direction only, job to scheduler,
// over an unbounded internal queue exposed through the PollSource
// contract. Spawning never blocks; excess jobs wait on the semaphore.
type Pool[E any] struct {
	sem    *semaphore.Weighted
	log    *zap.Logger
	notify func() // wakes the scheduler when a result lands, may be nil

	mu      sync.Mutex
	results []JobResult[E]
	live    map[*Cancel]struct{}

	wg sync.WaitGroup
}

// NewPool creates a pool running at most size jobs concurrently. A nil
// logger disables diagnostics.
func NewPool[E any](size int, log *zap.Logger) *Pool[E] {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool[E]{
		sem:  semaphore.NewWeighted(int64(size)),
		log:  log,
		live: make(map[*Cancel]struct{}),
	}
}

// SetNotify installs a callback invoked whenever a result becomes
// available. The scheduler uses it to cut its idle sleep short.
func (p *Pool[E]) SetNotify(fn func()) { p.notify = fn }

// Spawn hands job to a pool goroutine and returns immediately. The
// returned Cancel is the job's advisory stop token; the Liveness flag
// is set when the job terminates, whether or not anyone cancels.
// Exactly one result per job reaches the results surface.
func (p *Pool[E]) Spawn(job Job[E]) (*Cancel, *Liveness) {
	return p.SpawnExt(func(cancel *Cancel, _ *Sender[E]) (control.Control[E], error) {
		return job(cancel)
	})
}

// SpawnExt is Spawn with a Sender for interim results. The final
// return value is still delivered as the job's one guaranteed result;
// interim sends arrive ahead of it.
func (p *Pool[E]) SpawnExt(job JobExt[E]) (*Cancel, *Liveness) {
	cancel := &Cancel{}
	liveness := &Liveness{}

	p.mu.Lock()
	p.live[cancel] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(job, cancel, liveness)
	return cancel, liveness
}

// run executes one job inside the concurrency bound, converting panics
// into error results at the goroutine boundary so a misbehaving job can
// never take the scheduler down with it.
func (p *Pool[E]) run(job JobExt[E], cancel *Cancel, liveness *Liveness) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.live, cancel)
		p.mu.Unlock()
		liveness.done.Store(true)
	}()

	// The bound applies to running jobs; queued spawns block here, on
	// their own goroutines, not in the caller.
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		p.pushResult(JobResult[E]{Ctrl: control.Continue[E](), Err: err})
		return
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("background job panicked", zap.Any("panic", r), zap.Stack("stack"))
			p.pushResult(JobResult[E]{
				Ctrl: control.Continue[E](),
				Err:  fmt.Errorf("background job panic: %v", r),
			})
		}
	}()

	ctrl, err := job(cancel, &Sender[E]{pool: p})
	if err != nil {
		p.pushResult(JobResult[E]{Ctrl: control.Continue[E](), Err: err})
		return
	}
	p.pushResult(JobResult[E]{Ctrl: ctrl})
}

// pushResult appends to the unbounded results queue and wakes the
// scheduler.
func (p *Pool[E]) pushResult(r JobResult[E]) {
	p.mu.Lock()
	p.results = append(p.results, r)
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Pending returns the number of undelivered results.
func (p *Pool[E]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

// CancelAll requests cancellation of every live job.
func (p *Pool[E]) CancelAll() {
	p.mu.Lock()
	for c := range p.live {
		c.Cancel()
	}
	p.mu.Unlock()
}

// Shutdown cancels all live jobs and waits up to timeout for them to
// terminate. It returns false when jobs are still running at the
// deadline; those jobs keep their goroutines until they observe the
// token or finish on their own.
func (p *Pool[E]) Shutdown(timeout time.Duration) bool {
	p.CancelAll()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.log.Warn("pool shutdown timed out", zap.Duration("timeout", timeout))
		return false
	}
}

// Poll implements PollSource: ready when a result is queued.
func (p *Pool[E]) Poll() (bool, error) {
	return p.Pending() > 0, nil
}

// Read pops one result. A job error is returned as the error value and
// is no more fatal than any other background outcome.
func (p *Pool[E]) Read() (control.Control[E], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		return control.Continue[E](), nil
	}
	r := p.results[0]
	copy(p.results, p.results[1:])
	p.results = p.results[:len(p.results)-1]
	return r.Ctrl, r.Err
}
