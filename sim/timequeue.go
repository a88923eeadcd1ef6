package sim

import "container/heap"

// TimeQueue orders items by wakeup time. Items with equal wakeup time come
// out in insertion order, which keeps agent processing deterministic.
type TimeQueue[T any] struct {
	h timeHeap[T]
	n uint64
}

type timeEntry[T any] struct {
	item T
	at   int
	seq  uint64
}

type timeHeap[T any] []timeEntry[T]

func (h timeHeap[T]) Len() int { return len(h) }
func (h timeHeap[T]) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timeHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timeHeap[T]) Push(x any) { *h = append(*h, x.(timeEntry[T])) }

func (h *timeHeap[T]) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

func NewTimeQueue[T any]() *TimeQueue[T] {
	return &TimeQueue[T]{}
}

// Add schedules an item to become due at the given time.
func (q *TimeQueue[T]) Add(item T, at int) {
	heap.Push(&q.h, timeEntry[T]{item: item, at: at, seq: q.n})
	q.n++
}

// PopDue removes and returns all items due at or before now.
func (q *TimeQueue[T]) PopDue(now int) []T {
	var due []T
	for len(q.h) > 0 && q.h[0].at <= now {
		due = append(due, heap.Pop(&q.h).(timeEntry[T]).item)
	}
	return due
}

func (q *TimeQueue[T]) Len() int { return len(q.h) }
