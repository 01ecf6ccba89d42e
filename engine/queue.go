package engine

import (
	"sync"

	"github.com/ef-ds/deque"

	"github.com/timecrypt/vdf/model/vdf"
)

// pendingQueue is the bounded FIFO of submissions waiting for a worker
// slot. Pushes beyond capacity are refused (the caller surfaces
// ErrQueueFull), and every length change is reported to the observer so the
// queue gauge stays current.
type pendingQueue struct {
	mu       sync.Mutex
	queue    deque.Deque
	capacity int
	observer func(length int)
}

func newPendingQueue(capacity int, observer func(int)) *pendingQueue {
	if observer == nil {
		observer = func(int) {}
	}
	return &pendingQueue{
		capacity: capacity,
		observer: observer,
	}
}

// push appends an instance id, refusing if the queue is at capacity.
func (q *pendingQueue) push(id vdf.InstanceID) bool {
	q.mu.Lock()
	if q.queue.Len() >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.queue.PushBack(id)
	length := q.queue.Len()
	q.mu.Unlock()

	q.observer(length)
	return true
}

// pop removes and returns the head of the queue.
func (q *pendingQueue) pop() (vdf.InstanceID, bool) {
	q.mu.Lock()
	element, ok := q.queue.PopFront()
	length := q.queue.Len()
	q.mu.Unlock()

	if !ok {
		return "", false
	}
	q.observer(length)
	return element.(vdf.InstanceID), true
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Len()
}
