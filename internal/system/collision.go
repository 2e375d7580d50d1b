package system

import (
	"time"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/sim"
)

// CollisionSystem hands the tick's movement to the instance's collision
// resolver. Phase 3 (Collision).
type CollisionSystem struct {
	inst *sim.Instance
}

func NewCollisionSystem(inst *sim.Instance) *CollisionSystem {
	return &CollisionSystem{inst: inst}
}

func (s *CollisionSystem) Phase() coresys.Phase { return coresys.PhaseCollision }

func (s *CollisionSystem) Update(dt time.Duration) {
	if s.inst.Resolver != nil {
		s.inst.Resolver.Resolve(s.inst.World, dt)
	}
}
