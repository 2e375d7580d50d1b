package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/handler"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/sim"
)

// RoundCheckSystem evaluates the win condition after the tick's buffers
// are reset and announces the end of the round. Phase 8 (RoundCheck).
type RoundCheckSystem struct {
	inst  *sim.Instance
	store *net.SessionStore
	log   *zap.Logger
}

func NewRoundCheckSystem(inst *sim.Instance, store *net.SessionStore, log *zap.Logger) *RoundCheckSystem {
	s := &RoundCheckSystem{inst: inst, store: store, log: log}
	inst.OnEnd(s.gameOver)
	return s
}

func (s *RoundCheckSystem) Phase() coresys.Phase { return coresys.PhaseRoundCheck }

func (s *RoundCheckSystem) Update(_ time.Duration) {
	s.inst.EvaluateRound()
}

// gameOver tells every session its final rank and who won.
func (s *RoundCheckSystem) gameOver(res sim.Result) {
	s.store.ForEach(func(sess *net.Session) {
		rank, kills := 0, 0
		if rec, ok := s.inst.Player(sess.ID); ok {
			rank, kills = rec.Rank, rec.Kills
		}
		sess.Send(handler.BuildGameOver(rank, kills, res.WinnerID, res.Winner))
		sess.FlushOutput()
		if sess.State() == packet.StatePlaying {
			sess.SetState(packet.StateSpectating)
		}
	})
	s.log.Info("game over sent", zap.Int("sessions", s.store.Count()))
}
