package handler

import (
	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
)

// HandleSpectate processes C_SPECTATE: [target D]. Zero cycles to the next
// alive player. A session still controlling a live player keeps playing.
func HandleSpectate(sess *net.Session, r *packet.Reader, deps *Deps) {
	target := ecs.EntityID(r.ReadDU())
	if r.Err() != nil {
		return
	}
	if rec, ok := deps.Inst.Player(sess.ID); ok && rec.Alive {
		return
	}
	if err := deps.Inst.Spectate(sess.ID, target); err != nil {
		deps.Log.Debug("spectate refused", zap.Uint64("session", sess.ID), zap.Error(err))
		return
	}
	sess.SetState(packet.StateSpectating)
}
