package queue

import (
	"sync"
)

const minCapacity = 16

// Queue is a thread-safe generic FIFO queue backed by a ring buffer.
type Queue[T any] struct {
	buf   []T
	head  int
	count int
	mu    sync.Mutex
}

// NewQueue creates an empty queue
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		buf: make([]T, minCapacity),
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Enqueue appends a value at the tail
func (q *Queue[T]) Enqueue(value T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.buf) {
		q.resize(len(q.buf) * 2)
	}
	q.buf[(q.head+q.count)%len(q.buf)] = value
	q.count++
}

// Dequeue removes and returns the value at the head
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}

	value := q.buf[q.head]
	q.buf[q.head] = zero // avoid memory leak
	q.head = (q.head + 1) % len(q.buf)
	q.count--

	if len(q.buf) > minCapacity && q.count <= len(q.buf)/4 {
		q.resize(len(q.buf) / 2)
	}
	return value, true
}

// resize must be called with mu held
func (q *Queue[T]) resize(size int) {
	buf := make([]T, size)
	for i := 0; i < q.count; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
