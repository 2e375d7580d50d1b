package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
	timings [PhaseRoundCheck + 1]time.Duration
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once and records how long each phase took.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	clear(r.timings[:])
	for _, s := range r.systems {
		start := time.Now()
		s.Update(dt)
		if p := s.Phase(); p >= 0 && int(p) < len(r.timings) {
			r.timings[p] += time.Since(start)
		}
	}
}

// TickPhase runs only the systems of one phase. The instance uses it to
// drain inbound packets while a round is ending.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// PhaseTime returns the wall time spent in phase during the last Tick.
func (r *Runner) PhaseTime(p Phase) time.Duration {
	if p < 0 || int(p) >= len(r.timings) {
		return 0
	}
	return r.timings[p]
}

// Len returns the number of registered systems.
func (r *Runner) Len() int { return len(r.systems) }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
