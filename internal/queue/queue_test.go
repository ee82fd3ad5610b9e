package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("first")
	q.Enqueue("second")
	q.Enqueue("third")

	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	v, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	v, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "third", v)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueue_GrowAndShrinkKeepsOrder(t *testing.T) {
	q := NewQueue[int]()

	// interleave so the ring wraps before it grows
	for i := 0; i < 10; i++ {
		q.Enqueue(i)
	}
	for i := 0; i < 5; i++ {
		v, _ := q.Dequeue()
		assert.Equal(t, i, v)
	}
	for i := 10; i < 1000; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 995, q.Len())

	for i := 5; i < 1000; i++ {
		v, ok := q.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			q.Enqueue(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, q.Len())
}
