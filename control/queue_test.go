package control

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	q.PushEvent(1)
	q.PushEvent(2)
	q.PushEvent(3)
	require.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		it, ok := q.Pop()
		require.True(t, ok)
		require.NoError(t, it.Err)
		payload, isEvent := it.Ctrl.Payload()
		require.True(t, isEvent)
		assert.Equal(t, want, payload)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

// An error keeps its queue position: items pushed before it come out
// before it, items after it after. The scheduler defers error handling
// to end-of-drain, but the queue itself stays strictly FIFO.
func TestQueueErrorKeepsPosition(t *testing.T) {
	q := NewQueue[int]()
	boom := errors.New("boom")
	q.PushEvent(1)
	q.PushErr(boom)
	q.PushEvent(2)

	items := q.Drain()
	require.Len(t, items, 3)
	assert.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, boom)
	assert.NoError(t, items[2].Err)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePushDuringConsume(t *testing.T) {
	q := NewQueue[int]()
	q.PushEvent(1)

	it, ok := q.Pop()
	require.True(t, ok)
	payload, _ := it.Ctrl.Payload()
	require.Equal(t, 1, payload)

	// Handling an item may enqueue more; they land behind everything
	// already queued.
	q.PushEvent(2)
	q.Push(Changed[int]())

	it, ok = q.Pop()
	require.True(t, ok)
	payload, _ = it.Ctrl.Payload()
	assert.Equal(t, 2, payload)

	it, ok = q.Pop()
	require.True(t, ok)
	assert.True(t, it.Ctrl.IsChanged())
}

func TestQueueDrainEmpty(t *testing.T) {
	q := NewQueue[int]()
	assert.Nil(t, q.Drain())
}
