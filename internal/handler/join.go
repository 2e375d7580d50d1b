package handler

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/sim"
)

const defaultName = "Player"

// HandleJoin processes C_JOIN: [name S]. Spawns the session's player and
// answers with S_JOINED. A match that is already ending answers with a kick.
func HandleJoin(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := r.ReadS()
	if r.Err() != nil {
		return
	}
	name = cleanName(name, deps.MaxNameLen)

	id, err := deps.Inst.Join(sess.ID, name)
	switch {
	case err == nil:
	case errors.Is(err, sim.ErrNotRunning), errors.Is(err, sim.ErrStopped):
		sess.Kick(packet.KickRoundOver)
		return
	case errors.Is(err, ecs.ErrPoolExhausted):
		deps.Log.Warn("instance full, join refused", zap.Uint64("session", sess.ID))
		sess.Kick(packet.KickFull)
		return
	default:
		deps.Log.Info("join refused", zap.Uint64("session", sess.ID), zap.Error(err))
		return
	}

	sess.Name = name
	sess.SetState(packet.StatePlaying)
	sendJoined(sess, id, deps.Inst.World.Width(), deps.Inst.World.Height())
	deps.Log.Info("player joined",
		zap.Uint64("session", sess.ID),
		zap.String("name", name),
		zap.Uint32("entity", uint32(id)),
	)
}

// HandleLeave processes C_LEAVE. The player forfeits and the session drops
// back to the lobby state.
func HandleLeave(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Inst.Leave(sess.ID)
	sess.SetState(packet.StateConnected)
	deps.Log.Info("player left", zap.Uint64("session", sess.ID), zap.String("name", sess.Name))
}

// cleanName strips control characters, trims and truncates to limit runes.
func cleanName(name string, limit int) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > limit {
		name = string([]rune(name)[:limit])
	}
	if name == "" {
		return defaultName
	}
	return name
}
