package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// WorkQueue is a mutex-guarded FIFO of work items.
type WorkQueue struct {
	mu    sync.Mutex
	items []WorkItem
}

func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		items: make([]WorkItem, 0, defaultQueueCap),
	}
}

// Push appends item and returns the queue length afterwards.
func (q *WorkQueue) Push(item WorkItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return len(q.items)
}

func (q *WorkQueue) Pop() (WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return WorkItem{}, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = WorkItem{}
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

// PopAll removes and returns every queued item in FIFO order.
func (q *WorkQueue) PopAll() []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	batch := q.items
	q.items = make([]WorkItem, 0, defaultQueueCap)
	return batch
}

func (q *WorkQueue) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]WorkItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]WorkItem, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *WorkQueue) IsEmpty() bool {
	return q.Len() == 0
}
