package engine

import (
	"container/heap"
	"time"
)

type eventKind int

// Lower values are processed first when timestamps tie. A finished
// transmission frees the channel before new packets are queued on it.
const (
	eventTxComplete eventKind = iota
	eventSourceOn
	eventSourceOff
	eventPacket
)

type event struct {
	at     time.Duration
	kind   eventKind
	seq    uint64
	source int
	// gen tags packet events with the on period that scheduled them.
	gen uint64
}

// eventHeap orders events by time, then kind, then scheduling sequence.
type eventHeap struct {
	events []event
	seq    uint64
}

func newEventHeap() *eventHeap {
	h := &eventHeap{}
	heap.Init(h)
	return h
}

func (h *eventHeap) Len() int { return len(h.events) }

func (h *eventHeap) Less(i, j int) bool {
	ei, ej := h.events[i], h.events[j]
	if ei.at != ej.at {
		return ei.at < ej.at
	}
	if ei.kind != ej.kind {
		return ei.kind < ej.kind
	}
	return ei.seq < ej.seq
}

func (h *eventHeap) Swap(i, j int) { h.events[i], h.events[j] = h.events[j], h.events[i] }

func (h *eventHeap) Push(x any) { h.events = append(h.events, x.(event)) }

func (h *eventHeap) Pop() any {
	old := h.events
	n := len(old)
	item := old[n-1]
	h.events = old[:n-1]
	return item
}

// schedule stamps e with the next sequence number and queues it.
func (h *eventHeap) schedule(e event) {
	h.seq++
	e.seq = h.seq
	heap.Push(h, e)
}

// next removes and returns the earliest event.
func (h *eventHeap) next() (event, bool) {
	if h.Len() == 0 {
		return event{}, false
	}
	return heap.Pop(h).(event), true
}
