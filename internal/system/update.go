package system

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/sim"
	"github.com/survarena/server/internal/world"
)

// updateOrder is the order entity kinds self-update in.
var updateOrder = []world.Kind{
	world.KindPlayer,
	world.KindProjectile,
	world.KindSmoke,
	world.KindAirdrop,
}

// UpdateSystem runs every entity's self-update. Phase 2 (Update).
// A fault in one entity is logged and contained; the rest of the tick
// carries on.
type UpdateSystem struct {
	inst   *sim.Instance
	log    *zap.Logger
	update func(id ecs.EntityID, dt time.Duration) error
	faults int
}

func NewUpdateSystem(inst *sim.Instance, log *zap.Logger) *UpdateSystem {
	return &UpdateSystem{inst: inst, log: log, update: inst.World.UpdateEntity}
}

func (s *UpdateSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

// Faults returns how many entity updates failed since start.
func (s *UpdateSystem) Faults() int { return s.faults }

func (s *UpdateSystem) Update(dt time.Duration) {
	for _, kind := range updateOrder {
		for _, id := range s.inst.World.IDs(kind) {
			if err := s.safeUpdate(id, dt); err != nil {
				s.fault(id, kind, err)
			}
		}
	}
}

func (s *UpdateSystem) safeUpdate(id ecs.EntityID, dt time.Duration) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return s.update(id, dt)
}

// fault logs a failed update and takes the entity out of play. Players are
// killed so their session can spectate; anything else is removed.
func (s *UpdateSystem) fault(id ecs.EntityID, kind world.Kind, err error) {
	s.faults++
	s.log.Error("entity update failed",
		zap.Uint32("entity", uint32(id)),
		zap.Stringer("kind", kind),
		zap.Error(err),
	)
	if kind == world.KindPlayer {
		s.inst.World.KillPlayer(id, 0)
		return
	}
	s.inst.World.Remove(id)
}
