// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"container/heap"
	"context"
	"time"

	"github.com/rbmk-project/wlansim/host"
)

// event is a scheduled callback.
type event struct {
	at    time.Duration
	fn    func()
	id    host.TimerID
	index int
	seq   uint64
}

// eventHeap orders events by time and then by insertion order.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*event)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// Scheduler is a discrete-event scheduler with a virtual clock.
//
// Events scheduled for the same instant run in the order in which
// they were scheduled. Timer IDs are unique for the lifetime of the
// scheduler and zero is never used.
//
// The zero value is not ready to use; construct using [NewScheduler].
type Scheduler struct {
	byID    map[host.TimerID]*event
	events  eventHeap
	nextID  host.TimerID
	nextSeq uint64
	now     time.Duration
}

// NewScheduler creates a new [*Scheduler] whose clock starts at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{byID: map[host.TimerID]*event{}}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Schedule arranges for fn to run after d. A negative d is
// treated as zero.
func (s *Scheduler) Schedule(d time.Duration, fn func()) host.TimerID {
	return s.At(s.now+max(d, 0), fn)
}

// At arranges for fn to run at the given time. A time in the
// past is treated as the current time.
func (s *Scheduler) At(at time.Duration, fn func()) host.TimerID {
	s.nextID++
	s.nextSeq++
	ev := &event{at: max(at, s.now), fn: fn, id: s.nextID, seq: s.nextSeq}
	heap.Push(&s.events, ev)
	s.byID[ev.id] = ev
	return ev.id
}

// Cancel cancels a pending event and returns whether it was pending.
func (s *Scheduler) Cancel(id host.TimerID) bool {
	ev, found := s.byID[id]
	if !found {
		return false
	}
	delete(s.byID, id)
	heap.Remove(&s.events, ev.index)
	return true
}

// Pending returns the number of pending events.
func (s *Scheduler) Pending() int {
	return len(s.events)
}

// Step runs the earliest pending event and returns false
// when there are no pending events.
func (s *Scheduler) Step() bool {
	if len(s.events) <= 0 {
		return false
	}
	ev := heap.Pop(&s.events).(*event)
	delete(s.byID, ev.id)
	s.now = ev.at
	ev.fn()
	return true
}

// RunUntil runs all the events scheduled up to and including end,
// then moves the clock to end. It returns the number of events run.
func (s *Scheduler) RunUntil(end time.Duration) int {
	var count int
	for len(s.events) > 0 && s.events[0].at <= end {
		s.Step()
		count++
	}
	s.now = max(s.now, end)
	return count
}

// RunFor is like [*Scheduler.RunUntil] with a deadline relative to now.
func (s *Scheduler) RunFor(d time.Duration) int {
	return s.RunUntil(s.now + d)
}

// ctxCheckInterval is the number of events between context checks.
const ctxCheckInterval = 1024

// Run is like [*Scheduler.RunUntil] but stops early, returning the
// context error, when the context is done.
func (s *Scheduler) Run(ctx context.Context, end time.Duration) error {
	for count := 0; len(s.events) > 0 && s.events[0].at <= end; count++ {
		if count%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		s.Step()
	}
	s.now = max(s.now, end)
	return ctx.Err()
}
