package timeout

import (
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

func TestQueueFiresInOrder(t *testing.T) {
	q := NewQueue()
	var order []int
	q.Schedule(func() { order = append(order, 2) }, 200*time.Millisecond)
	q.Schedule(func() { order = append(order, 1) }, 100*time.Millisecond)
	q.Schedule(func() { order = append(order, 3) }, 200*time.Millisecond)

	testutil.AssertEqual(t, "none due", q.RunDue(50*time.Millisecond), 0)
	testutil.AssertEqual(t, "first", q.RunDue(100*time.Millisecond), 1)
	testutil.AssertEqual(t, "rest", q.RunDue(250*time.Millisecond), 2)
	testutil.AssertEqual(t, "len", len(order), 3)
	for i, v := range order {
		testutil.AssertEqual(t, "order", v, i+1)
	}
	testutil.AssertEqual(t, "drained", q.Len(), 0)
}

func TestQueueKillBeforeFire(t *testing.T) {
	q := NewQueue()
	fired := false
	h := q.Schedule(func() { fired = true }, 50*time.Millisecond)

	// Past the fire time but not yet run: kill still wins.
	testutil.AssertEqual(t, "killed", q.Kill(h), true)
	q.RunDue(time.Second)
	testutil.AssertEqual(t, "never fired", fired, false)
}

func TestQueueKillAfterFireIsNoop(t *testing.T) {
	q := NewQueue()
	count := 0
	h := q.Schedule(func() { count++ }, 0)
	q.RunDue(0)
	testutil.AssertEqual(t, "fired", count, 1)
	testutil.AssertEqual(t, "kill noop", q.Kill(h), false)
	q.RunDue(time.Second)
	testutil.AssertEqual(t, "fired once", count, 1)
}

func TestQueueKillFromSiblingCallback(t *testing.T) {
	q := NewQueue()
	fired := false
	var victim Handle
	q.Schedule(func() { q.Kill(victim) }, 10*time.Millisecond)
	victim = q.Schedule(func() { fired = true }, 10*time.Millisecond)

	q.RunDue(10 * time.Millisecond)
	testutil.AssertEqual(t, "sibling killed", fired, false)
}

func TestQueueRescheduleFromCallbackWaitsForNextRun(t *testing.T) {
	q := NewQueue()
	runs := 0
	var tick func()
	tick = func() {
		runs++
		q.Schedule(tick, 0)
	}
	q.Schedule(tick, 0)

	q.RunDue(0)
	testutil.AssertEqual(t, "one per run", runs, 1)
	q.RunDue(50 * time.Millisecond)
	testutil.AssertEqual(t, "second run", runs, 2)
}

func TestQueuePanicIsContained(t *testing.T) {
	q := NewQueue()
	var panicked []Handle
	q.OnPanic(func(h Handle, rec any) {
		panicked = append(panicked, h)
		testutil.AssertEqual(t, "recovered value", rec, "bad crate")
	})
	fired := false
	bad := q.Schedule(func() { panic("bad crate") }, 10*time.Millisecond)
	q.Schedule(func() { fired = true }, 10*time.Millisecond)

	testutil.AssertEqual(t, "both invoked", q.RunDue(10*time.Millisecond), 2)
	testutil.AssertEqual(t, "later still fired", fired, true)
	testutil.AssertEqual(t, "reported", panicked, []Handle{bad})
	testutil.AssertEqual(t, "drained", q.Len(), 0)

	// Without a handler the panic is still swallowed.
	q.OnPanic(nil)
	q.Schedule(func() { panic("again") }, 0)
	testutil.AssertEqual(t, "no handler", q.RunDue(20*time.Millisecond), 1)
}
