package scheduler

import "container/heap"

// timerHeap implements container/heap.Interface for timerEvent,
// sorted by TriggerAt (earliest first, min-heap).
type timerHeap []timerEvent

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].TriggerAt.Before(h[j].TriggerAt) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timerEvent))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *timerHeap, e timerEvent) {
	heap.Push(h, e)
}

// heapPop removes and returns the timerEvent with the earliest TriggerAt.
// Panics if the heap is empty.
func heapPop(h *timerHeap) timerEvent {
	return heap.Pop(h).(timerEvent)
}

// heapRemoveByID removes the first timerEvent with the given entry id.
// Returns true if an event was found and removed.
func heapRemoveByID(h *timerHeap, entryID int64) bool {
	for i, e := range *h {
		if e.EntryID == entryID {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
