package system

import (
	"slices"
	"time"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/gas"
	"github.com/survarena/server/internal/sim"
	"github.com/survarena/server/internal/world"
)

// GasSystem advances the safe zone once the round has started and damages
// every player the grid finds outside it. Phase 4 (Gas).
type GasSystem struct {
	inst *sim.Instance
}

func NewGasSystem(inst *sim.Instance) *GasSystem {
	return &GasSystem{inst: inst}
}

func (s *GasSystem) Phase() coresys.Phase { return coresys.PhaseGas }

func (s *GasSystem) Update(dt time.Duration) {
	g := s.inst.Gas
	if s.inst.Started() && s.inst.Lifecycle() == sim.Running {
		g.Tick(dt)
	}
	if g.State() == gas.Inactive {
		return
	}
	st := s.inst.World
	ids := st.Grid().QueryOutsideCircle(g.Circle(), world.AnyLayer)
	slices.Sort(ids)
	for _, id := range ids {
		e, _, ok := st.Player(id)
		if !ok || e.Dead {
			continue
		}
		if dmg := g.ScaledDamage(e.Pos) * dt.Seconds(); dmg > 0 {
			st.Damage(id, dmg, 0)
		}
	}
}
