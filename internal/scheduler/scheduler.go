// Package scheduler orders the time-dependent events that drive both CPU
// cores, the GPU line engine, timers, and DMA against a single integer
// cycle timeline.
package scheduler

import (
	"container/heap"
)

// Kind identifies an event class. Channel is only meaningful for the
// per-channel kinds (Timer, DMABlockFinished, DMAWordTransfer, AudioStep,
// AudioReset); it is ignored for the rest. Equality is by (Kind, Processor,
// Channel) so Cancel can target exactly one logical event stream.
type Kind uint8

const (
	HBlank Kind = iota
	HDraw
	Timer
	DMABlockFinished
	DMAWordTransfer
	AudioStep
	AudioReset
	GenerateSample
	CheckGeometryFifo
)

// Processor distinguishes the two CPU cores for per-processor event kinds.
type Processor uint8

const (
	ProcessorNone Processor = iota
	A7
	A9
)

// Event is a single scheduled occurrence.
type Event struct {
	Kind      Kind
	Processor Processor
	Channel   int
	Deadline  uint64

	seq uint64 // insertion order, breaks deadline ties
}

// matches reports whether e is the same logical event stream as a
// (kind, processor, channel) cancellation key.
func (e *Event) matches(kind Kind, proc Processor, channel int) bool {
	return e.Kind == kind && e.Processor == proc && e.Channel == channel
}

// eventHeap is a container/heap.Interface min-heap on Deadline, with ties
// broken by insertion sequence so Pop order is deterministic.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Deadline != h[j].Deadline {
		return h[i].Deadline < h[j].Deadline
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Scheduler is the single-threaded cooperative event queue shared by both
// CPU cores. Concurrency between the two cores is simulated by interleaving
// short quanta in the emulator's main loop, not by this type.
type Scheduler struct {
	Now   uint64
	heap  eventHeap
	nextSeq uint64
}

// New creates an empty scheduler with Now == 0.
func New() *Scheduler {
	s := &Scheduler{heap: make(eventHeap, 0, 32)}
	heap.Init(&s.heap)
	return s
}

// Schedule inserts an event due at Now+delta cycles from now.
func (s *Scheduler) Schedule(kind Kind, proc Processor, channel int, delta uint64) {
	s.nextSeq++
	heap.Push(&s.heap, &Event{
		Kind:      kind,
		Processor: proc,
		Channel:   channel,
		Deadline:  s.Now + delta,
		seq:       s.nextSeq,
	})
}

// ScheduleAt inserts an event due at an absolute cycle count.
func (s *Scheduler) ScheduleAt(kind Kind, proc Processor, channel int, deadline uint64) {
	s.nextSeq++
	heap.Push(&s.heap, &Event{
		Kind:      kind,
		Processor: proc,
		Channel:   channel,
		Deadline:  deadline,
		seq:       s.nextSeq,
	})
}

// Cancel removes all pending events matching (kind, proc, channel).
func (s *Scheduler) Cancel(kind Kind, proc Processor, channel int) {
	kept := s.heap[:0]
	for _, e := range s.heap {
		if e.matches(kind, proc, channel) {
			continue
		}
		kept = append(kept, e)
	}
	s.heap = kept
	heap.Init(&s.heap)
}

// PeekNextDeadline returns the earliest pending deadline, or math.MaxUint64
// when the queue is empty (the "+∞" of spec.md §4.1).
func (s *Scheduler) PeekNextDeadline() uint64 {
	if len(s.heap) == 0 {
		return ^uint64(0)
	}
	return s.heap[0].Deadline
}

// PopDue removes and returns the next event iff its deadline has passed.
// slack is Now - deadline, used by callers to back-date the next occurrence
// of a periodic event so it does not drift.
func (s *Scheduler) PopDue() (ev Event, slack uint64, ok bool) {
	if len(s.heap) == 0 || s.heap[0].Deadline > s.Now {
		return Event{}, 0, false
	}
	e := heap.Pop(&s.heap).(*Event)
	return *e, s.Now - e.Deadline, true
}

// Advance adds cycles to Now.
func (s *Scheduler) Advance(cycles uint64) {
	s.Now += cycles
}

// RebaseThreshold bounds Now's integer growth; Rebase should be invoked once
// Now crosses it.
const RebaseThreshold = uint64(1) << 30

// Rebase subtracts Now from every deadline and resets Now to 0, preserving
// relative deadlines and pop order.
func (s *Scheduler) Rebase() {
	base := s.Now
	for _, e := range s.heap {
		e.Deadline -= base
	}
	s.Now = 0
}

// Len reports the number of pending events (mainly for tests/diagnostics).
func (s *Scheduler) Len() int { return len(s.heap) }

// gobEvent is the serializable shape of Event (seq is preserved so
// round-tripped ordering exactly matches the pre-save ordering for ties).
type gobEvent struct {
	Kind      Kind
	Processor Processor
	Channel   int
	Deadline  uint64
	Seq       uint64
}

// State is the gob-serializable snapshot of a Scheduler.
type State struct {
	Now     uint64
	NextSeq uint64
	Events  []gobEvent
}

// Snapshot captures the scheduler's state for serialization.
func (s *Scheduler) Snapshot() State {
	st := State{Now: s.Now, NextSeq: s.nextSeq}
	for _, e := range s.heap {
		st.Events = append(st.Events, gobEvent{e.Kind, e.Processor, e.Channel, e.Deadline, e.seq})
	}
	return st
}

// Restore replaces the scheduler's state with a previously captured
// Snapshot, preserving queue order and Now exactly.
func (s *Scheduler) Restore(st State) {
	s.Now = st.Now
	s.nextSeq = st.NextSeq
	s.heap = make(eventHeap, 0, len(st.Events))
	for _, e := range st.Events {
		s.heap = append(s.heap, &Event{
			Kind:      e.Kind,
			Processor: e.Processor,
			Channel:   e.Channel,
			Deadline:  e.Deadline,
			seq:       e.Seq,
		})
	}
	heap.Init(&s.heap)
}
