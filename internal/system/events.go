package system

import (
	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/event"
	"github.com/survarena/server/internal/sim"
)

// subscribeEvents logs the match feed. Handlers run during the Sync phase.
func subscribeEvents(inst *sim.Instance, log *zap.Logger) {
	event.Subscribe(inst.Bus, func(e event.PlayerKilled) {
		log.Info("player killed",
			zap.Uint32("victim", uint32(e.Victim)),
			zap.Uint32("killer", uint32(e.Killer)),
			zap.Int("alive", e.Alive),
		)
	})
	event.Subscribe(inst.Bus, func(e event.AirdropSummoned) {
		log.Info("airdrop summoned",
			zap.Uint32("entity", uint32(e.EntityID)),
			zap.Float64("x", e.Pos.X),
			zap.Float64("y", e.Pos.Y),
		)
	})
	event.Subscribe(inst.Bus, func(e event.AirdropLanded) {
		log.Info("airdrop landed", zap.Uint32("crate", uint32(e.Crate)))
	})
	event.Subscribe(inst.Bus, func(e event.ObstacleDestroyed) {
		log.Debug("obstacle destroyed",
			zap.Uint32("entity", uint32(e.EntityID)),
			zap.Float64("x", e.Pos.X),
			zap.Float64("y", e.Pos.Y),
		)
	})
	event.Subscribe(inst.Bus, func(e event.PlayerLeft) {
		log.Debug("player left match",
			zap.Uint32("entity", uint32(e.EntityID)),
			zap.Uint64("session", e.SessionID),
		)
	})
}
