package priority_queue

import "container/heap"

// itemHeap adapts a QueueItem slice to heap.Interface. The compare function
// ranks two priorities; it is the only thing distinguishing the max and min
// variants.
type itemHeap[T any] struct {
	items   []*QueueItem[T]
	compare func(a, b int) bool
}

var _ heap.Interface = &itemHeap[any]{}

func (h itemHeap[T]) Len() int { return len(h.items) }

func (h itemHeap[T]) Less(i, j int) bool {
	return h.compare(h.items[i].Priority, h.items[j].Priority)
}

func (h itemHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *itemHeap[T]) Push(item any) {
	queued := item.(*QueueItem[T])
	queued.index = len(h.items)
	h.items = append(h.items, queued)
}

func (h *itemHeap[T]) Pop() any {
	last := len(h.items) - 1
	item := h.items[last]
	h.items[last] = nil // release the slot so the value can be collected
	item.index = -1
	h.items = h.items[:last]
	return item
}
