package system

import (
	"time"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/sim"
)

// CleanupSystem recycles ids removed this tick and resets the per-tick
// buffers. Phase 7 (Cleanup).
type CleanupSystem struct {
	inst *sim.Instance
}

func NewCleanupSystem(inst *sim.Instance) *CleanupSystem {
	return &CleanupSystem{inst: inst}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.inst.World.FlushRemoved()
	s.inst.World.ResetTick()
	s.inst.Bus.Reset()
}
