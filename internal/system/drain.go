package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/survarena/server/internal/core/system"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/sim"
	"github.com/survarena/server/internal/world"
)

// DrainSystem clears the dirty tracker after every viewer has been served
// and pushes buffered packets to the session writers. Phase 6 (Drain).
type DrainSystem struct {
	inst  *sim.Instance
	store *net.SessionStore
	log   *zap.Logger
	last  world.DirtyBatch
}

func NewDrainSystem(inst *sim.Instance, store *net.SessionStore, log *zap.Logger) *DrainSystem {
	return &DrainSystem{inst: inst, store: store, log: log}
}

func (s *DrainSystem) Phase() coresys.Phase { return coresys.PhaseDrain }

// Last returns the batch drained on the previous tick.
func (s *DrainSystem) Last() world.DirtyBatch { return s.last }

func (s *DrainSystem) Update(_ time.Duration) {
	s.last = s.inst.World.Dirty().Drain()
	if !s.last.Empty() {
		s.log.Debug("dirty drained",
			zap.Uint64("tick", s.inst.Tick()),
			zap.Int("full", len(s.last.Full)),
			zap.Int("partial", len(s.last.Partial)),
		)
	}
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
