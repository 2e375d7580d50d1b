package timeout

import (
	"container/heap"
	"time"
)

// Handle identifies a scheduled timeout. The zero Handle is never issued.
type Handle uint64

type entry struct {
	handle Handle
	fireAt time.Duration
	fn     func()
	killed bool
	index  int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].handle < h[j].handle
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue schedules one-shot callbacks against simulation time. Firing
// resolution is whatever granularity RunDue is called at (one tick).
// Game-loop goroutine only.
//
// Callbacks should capture entity ids rather than entity pointers and look
// the entity up when they fire, so a timeout outliving its entity is a no-op.
type Queue struct {
	now     time.Duration
	nextID  Handle
	heap    entryHeap
	pending map[Handle]*entry
	firing  bool
	cutoff  Handle
	onPanic func(h Handle, rec any)
}

func NewQueue() *Queue {
	return &Queue{
		heap:    make(entryHeap, 0, 64),
		pending: make(map[Handle]*entry, 64),
	}
}

// OnPanic sets the function told about a callback that panicked. The panic
// is recovered either way and the remaining due timeouts still fire.
func (q *Queue) OnPanic(fn func(h Handle, rec any)) { q.onPanic = fn }

// Now returns the simulation time of the last RunDue call.
func (q *Queue) Now() time.Duration { return q.now }

// Len returns the number of timeouts not yet fired or dropped.
func (q *Queue) Len() int { return len(q.pending) }

// Schedule arranges for fn to run once delay has elapsed. Negative delays
// are treated as zero. A timeout scheduled from inside a firing callback
// never runs in the same RunDue call.
func (q *Queue) Schedule(fn func(), delay time.Duration) Handle {
	if delay < 0 {
		delay = 0
	}
	q.nextID++
	e := &entry{handle: q.nextID, fireAt: q.now + delay, fn: fn}
	heap.Push(&q.heap, e)
	q.pending[e.handle] = e
	return e.handle
}

// Kill cancels h. Killing before the fire tick guarantees the callback never
// runs; killing an already fired or unknown handle is a no-op. Reports
// whether a pending timeout was cancelled.
func (q *Queue) Kill(h Handle) bool {
	e, ok := q.pending[h]
	if !ok {
		return false
	}
	e.killed = true
	delete(q.pending, h)
	return true
}

// Pending reports whether h is still waiting to fire.
func (q *Queue) Pending(h Handle) bool {
	_, ok := q.pending[h]
	return ok
}

// RunDue advances the clock to now and fires every due, non-killed timeout
// in fire-time order. Killed entries are dropped as they surface. Returns
// the number of callbacks invoked.
func (q *Queue) RunDue(now time.Duration) int {
	if now > q.now {
		q.now = now
	}
	q.firing = true
	q.cutoff = q.nextID
	defer func() { q.firing = false }()

	fired := 0
	var deferred []*entry
	for q.heap.Len() > 0 {
		top := q.heap[0]
		if top.fireAt > q.now {
			break
		}
		heap.Pop(&q.heap)
		if top.killed {
			continue
		}
		if top.handle > q.cutoff {
			deferred = append(deferred, top)
			continue
		}
		delete(q.pending, top.handle)
		q.call(top)
		fired++
	}
	for _, e := range deferred {
		heap.Push(&q.heap, e)
	}
	return fired
}

func (q *Queue) call(e *entry) {
	defer func() {
		if rec := recover(); rec != nil && q.onPanic != nil {
			q.onPanic(e.handle, rec)
		}
	}()
	e.fn()
}

// Clear drops every pending timeout.
func (q *Queue) Clear() {
	q.heap = q.heap[:0]
	clear(q.pending)
}
