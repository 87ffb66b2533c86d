package priority_queue

import (
	"container/heap"
	"sync"
)

// QueueItem pairs a queued value with the priority that orders it
type QueueItem[T any] struct {
	Item     T
	Priority int
	index    int
}

// PriorityQueue is a mutex-guarded binary heap of QueueItems. The comparison
// chosen at construction decides whether high or low priorities pop first.
type PriorityQueue[T any] struct {
	mu   sync.Mutex
	heap *itemHeap[T]
}

// NewMaxPriorityQueue creates a queue where higher priority values pop first
func NewMaxPriorityQueue[T any]() *PriorityQueue[T] {
	return newQueue[T](func(a, b int) bool { return a > b })
}

// NewMinPriorityQueue creates a queue where lower priority values pop first
func NewMinPriorityQueue[T any]() *PriorityQueue[T] {
	return newQueue[T](func(a, b int) bool { return a < b })
}

func newQueue[T any](compare func(a, b int) bool) *PriorityQueue[T] {
	h := &itemHeap[T]{compare: compare}
	heap.Init(h)
	return &PriorityQueue[T]{heap: h}
}

// Push adds an item to the queue and returns the new queue length
func (pq *PriorityQueue[T]) Push(item *QueueItem[T]) int {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	heap.Push(pq.heap, item)
	return pq.heap.Len()
}

// Pop removes and returns the highest-ranked item along with the remaining
// queue length. Popping an empty queue panics; check Size or IsEmpty first.
func (pq *PriorityQueue[T]) Pop() (T, int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	item := heap.Pop(pq.heap).(*QueueItem[T])
	return item.Item, pq.heap.Len()
}

// Size returns the number of queued items
func (pq *PriorityQueue[T]) Size() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

// IsEmpty reports whether the queue holds no items
func (pq *PriorityQueue[T]) IsEmpty() bool {
	return pq.Size() == 0
}

// GetSnapshot returns a copy of all queued items without modifying the queue.
// Items come back in internal heap order, not the exact order they would pop in.
func (pq *PriorityQueue[T]) GetSnapshot() []T {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	items := make([]T, pq.heap.Len())
	for i, queued := range pq.heap.items {
		items[i] = queued.Item
	}
	return items
}
