package control

// Item is one queued entry: either a control value or an error carried
// alongside it. Errors ride the queue so that work queued before a
// failure still runs; the scheduler surfaces them only after the drain.
type Item[E any] struct {
	Ctrl Control[E]
	Err  error
}

// Queue buffers control values produced while handling a single tick.
// It is owned by the scheduler goroutine and is not safe for concurrent
// use; cross-thread producers have their own channels and reach the
// queue only through dispatch.
type Queue[E any] struct {
	items []Item[E]
}

// NewQueue returns an empty queue.
func NewQueue[E any]() *Queue[E] {
	return &Queue[E]{}
}

// Push appends a control value in FIFO order.
func (q *Queue[E]) Push(c Control[E]) {
	q.items = append(q.items, Item[E]{Ctrl: c})
}

// PushEvent appends an Event control wrapping payload.
func (q *Queue[E]) PushEvent(payload E) {
	q.Push(Event(payload))
}

// PushErr appends an error. Items queued ahead of it are already
// side-effect-committed and are still delivered first.
func (q *Queue[E]) PushErr(err error) {
	q.items = append(q.items, Item[E]{Ctrl: Continue[E](), Err: err})
}

// Len returns the number of pending items.
func (q *Queue[E]) Len() int { return len(q.items) }

// Pop removes and returns the oldest item. The second return is false
// when the queue is empty.
func (q *Queue[E]) Pop() (Item[E], bool) {
	if len(q.items) == 0 {
		return Item[E]{}, false
	}
	it := q.items[0]
	// Shift rather than re-slice so drained memory is reclaimed.
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	return it, true
}

// Drain removes and returns all pending items in FIFO order.
func (q *Queue[E]) Drain() []Item[E] {
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}
