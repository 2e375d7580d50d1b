package system

import (
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

type recorder struct {
	phase Phase
	name  string
	log   *[]string
}

func (r recorder) Phase() Phase { return r.phase }
func (r recorder) Update(time.Duration) {
	*r.log = append(*r.log, r.name)
}

func TestRunnerPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseRoundCheck, "round", &log})
	r.Register(recorder{PhaseSync, "sync", &log})
	r.Register(recorder{PhaseTimeouts, "timeouts", &log})
	r.Register(recorder{PhaseSync, "sync2", &log})
	r.Register(recorder{PhaseInput, "input", &log})

	r.Tick(100 * time.Millisecond)
	want := []string{"input", "timeouts", "sync", "sync2", "round"}
	testutil.AssertEqual(t, "len", len(log), len(want))
	for i := range want {
		testutil.AssertEqual(t, "step", log[i], want[i])
	}
}

func TestRunnerTickPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recorder{PhaseInput, "input", &log})
	r.Register(recorder{PhaseUpdate, "update", &log})

	r.TickPhase(PhaseInput, 0)
	testutil.AssertEqual(t, "len", len(log), 1)
	testutil.AssertEqual(t, "only input", log[0], "input")
	testutil.AssertEqual(t, "phase name", PhaseCollision.String(), "collision")
}
