package system

import (
	"time"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/sim"
)

// TimeoutSystem fires due timeouts against the instance clock. Phase 1.
type TimeoutSystem struct {
	inst *sim.Instance
}

func NewTimeoutSystem(inst *sim.Instance) *TimeoutSystem {
	return &TimeoutSystem{inst: inst}
}

func (s *TimeoutSystem) Phase() coresys.Phase { return coresys.PhaseTimeouts }

func (s *TimeoutSystem) Update(_ time.Duration) {
	s.inst.Timeouts.RunDue(s.inst.Now())
}
