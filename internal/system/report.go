package system

import (
	"time"

	"github.com/survarena/server/internal/cluster"
	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/sim"
)

// Reporter publishes instance status. *cluster.Node implements it and
// throttles to one report per second.
type Reporter interface {
	PublishReport(r cluster.Report) bool
}

// ReportSystem offers a status report to the cluster every tick. Runs in
// the RoundCheck phase so lifecycle changes go out on the tick they happen.
type ReportSystem struct {
	inst     *sim.Instance
	store    *net.SessionStore
	reporter Reporter
}

func NewReportSystem(inst *sim.Instance, store *net.SessionStore, reporter Reporter) *ReportSystem {
	return &ReportSystem{inst: inst, store: store, reporter: reporter}
}

func (s *ReportSystem) Phase() coresys.Phase { return coresys.PhaseRoundCheck }

func (s *ReportSystem) Update(_ time.Duration) {
	rs := s.inst.RoundState()
	s.reporter.PublishReport(cluster.Report{
		Instance: s.inst.ID.String(),
		Mode:     s.inst.Mode,
		State:    s.inst.Lifecycle().String(),
		Alive:    rs.Alive,
		Players:  rs.Joined,
		Sessions: s.store.Count(),
		Tick:     rs.Tick,
	})
}
