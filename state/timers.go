package state

import (
	"container/heap"
	"time"
)

type TimerKind uint8

const (
	TimerNeighbourEviction TimerKind = iota
	TimerRestart
	TimerNewToken
	TimerTrickle
	TimerAnnounce
)

func (k TimerKind) String() string {
	switch k {
	case TimerNeighbourEviction:
		return "NEIGHBOUR_EVICTION"
	case TimerRestart:
		return "RESTART"
	case TimerNewToken:
		return "NEW_TOKEN"
	case TimerTrickle:
		return "TRICKLE"
	case TimerAnnounce:
		return "ANNOUNCE"
	}
	return "UNKNOWN"
}

// TimerHandle identifies one scheduled callback. The zero handle is never issued.
type TimerHandle uint64

type TimerFunc func(s *State) error

// Timers is the one-shot timeout service every protocol module schedules through.
// All methods must be called from the dispatch goroutine.
type Timers interface {
	Now() time.Time
	// Schedule arms a one-shot callback that runs on the dispatch goroutine after delay
	Schedule(kind TimerKind, delay time.Duration, fn TimerFunc) TimerHandle
	// Cancel is idempotent. Once it returns, the callback for h will never run.
	Cancel(h TimerHandle) bool
	// Fire runs the callback for h if it is still pending
	Fire(s *State, h TimerHandle) error
	Kind(h TimerHandle) (TimerKind, bool)
	CancelAll()
	Pending() int
}

type timerEntry struct {
	kind     TimerKind
	deadline time.Time
	fn       TimerFunc
	stop     func() bool
}

type timerSet struct {
	next TimerHandle
	live map[TimerHandle]*timerEntry
}

func (t *timerSet) add(e *timerEntry) TimerHandle {
	if t.live == nil {
		t.live = make(map[TimerHandle]*timerEntry)
	}
	t.next++
	t.live[t.next] = e
	return t.next
}

func (t *timerSet) Cancel(h TimerHandle) bool {
	e, ok := t.live[h]
	if !ok {
		return false
	}
	delete(t.live, h)
	if e.stop != nil {
		e.stop()
	}
	return true
}

func (t *timerSet) CancelAll() {
	for h := range t.live {
		t.Cancel(h)
	}
}

func (t *timerSet) Fire(s *State, h TimerHandle) error {
	e, ok := t.live[h]
	if !ok {
		// cancelled after the expiry was queued
		return nil
	}
	delete(t.live, h)
	return e.fn(s)
}

func (t *timerSet) Kind(h TimerHandle) (TimerKind, bool) {
	e, ok := t.live[h]
	if !ok {
		return 0, false
	}
	return e.kind, true
}

func (t *timerSet) Pending() int {
	return len(t.live)
}

// RealTimers fires on the wall clock and hands expiries to the dispatch loop
type RealTimers struct {
	timerSet
	dispatch func(func(*State) error)
}

func NewRealTimers(dispatch func(func(*State) error)) *RealTimers {
	return &RealTimers{dispatch: dispatch}
}

func (r *RealTimers) Now() time.Time {
	return time.Now()
}

func (r *RealTimers) Schedule(kind TimerKind, delay time.Duration, fn TimerFunc) TimerHandle {
	e := &timerEntry{
		kind:     kind,
		deadline: time.Now().Add(delay),
		fn:       fn,
	}
	h := r.add(e)
	t := time.AfterFunc(delay, func() {
		r.dispatch(func(s *State) error {
			return r.Fire(s, h)
		})
	})
	e.stop = t.Stop
	return h
}

// VirtualTimers only advances when told to. Expiries run synchronously inside Advance.
type VirtualTimers struct {
	timerSet
	now   time.Time
	queue timerQueue
}

func NewVirtualTimers(start time.Time) *VirtualTimers {
	return &VirtualTimers{now: start}
}

func (v *VirtualTimers) Now() time.Time {
	return v.now
}

func (v *VirtualTimers) Schedule(kind TimerKind, delay time.Duration, fn TimerFunc) TimerHandle {
	e := &timerEntry{
		kind:     kind,
		deadline: v.now.Add(delay),
		fn:       fn,
	}
	h := v.add(e)
	heap.Push(&v.queue, queuedTimer{deadline: e.deadline, handle: h})
	return h
}

// Advance moves the clock forward by d, firing every due timer in deadline order
func (v *VirtualTimers) Advance(s *State, d time.Duration) error {
	target := v.now.Add(d)
	for v.queue.Len() > 0 && !v.queue[0].deadline.After(target) {
		next := heap.Pop(&v.queue).(queuedTimer)
		if _, ok := v.live[next.handle]; !ok {
			continue
		}
		v.now = next.deadline
		if err := v.Fire(s, next.handle); err != nil {
			return err
		}
	}
	v.now = target
	return nil
}

type queuedTimer struct {
	deadline time.Time
	handle   TimerHandle
}

type timerQueue []queuedTimer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].handle < q[j].handle
	}
	return q[i].deadline.Before(q[j].deadline)
}
func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any) {
	*q = append(*q, x.(queuedTimer))
}
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
