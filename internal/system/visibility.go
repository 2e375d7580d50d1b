package system

import (
	"time"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/gas"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/sim"
	"github.com/survarena/server/internal/viewer"
)

// VisibilitySystem dispatches the tick's events, refreshes each viewer's
// scalars and sends every viewer at most one update. Phase 5 (Sync).
// The grid is only read here.
type VisibilitySystem struct {
	inst  *sim.Instance
	store *net.SessionStore

	gasInfo viewer.GasInfo
	gasSet  bool
	sent    int
}

func NewVisibilitySystem(inst *sim.Instance, store *net.SessionStore) *VisibilitySystem {
	return &VisibilitySystem{inst: inst, store: store}
}

func (s *VisibilitySystem) Phase() coresys.Phase { return coresys.PhaseSync }

// Sent returns how many updates were queued since start.
func (s *VisibilitySystem) Sent() int { return s.sent }

func (s *VisibilitySystem) Update(_ time.Duration) {
	s.inst.Bus.DispatchAll()
	s.refreshScalars()
	s.inst.Viewers.SyncAll(s.inst.World, s.inst.Tick(), func(v *viewer.Viewer, u *viewer.Update) {
		sess := s.store.Get(v.SessionID)
		if sess == nil {
			return
		}
		w := packet.NewWriter()
		u.Encode(w)
		sess.Send(w.Bytes())
		s.sent++
	})
}

// refreshScalars pushes the latest per-viewer values. Viewers only flag
// the fields whose value actually changed.
func (s *VisibilitySystem) refreshScalars() {
	g := s.inst.Gas
	if circles, _ := g.TakeDirty(); circles || !s.gasSet {
		s.gasInfo = gasInfo(g)
		s.gasSet = true
	}
	ratio := g.CompletionRatio()
	alive := s.inst.World.AlivePlayers()
	st := s.inst.World

	s.inst.Viewers.Each(func(v *viewer.Viewer) {
		v.SetAlive(alive)
		v.SetGas(s.gasInfo)
		v.SetGasRatio(ratio)
		if v.Player == 0 {
			return
		}
		if _, p, ok := st.Player(v.Player); ok {
			v.SetHealth(p.Health)
			v.SetBoost(p.Boost)
			v.SetKills(p.Kills)
			return
		}
		v.SetHealth(0)
	})
}

func gasInfo(g *gas.Machine) viewer.GasInfo {
	cur, tgt := g.Circle(), g.Target()
	return viewer.GasInfo{
		State:     byte(g.State()),
		Stage:     g.StageIndex(),
		Pos:       cur.Pos,
		Rad:       cur.Rad,
		Target:    tgt.Pos,
		TargetRad: tgt.Rad,
		Duration:  g.StageDuration().Seconds(),
	}
}
