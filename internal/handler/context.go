package handler

import (
	"go.uber.org/zap"

	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/sim"
)

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Inst *sim.Instance
	Log  *zap.Logger
	// MaxNameLen bounds player names in runes.
	MaxNameLen int
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	if deps.MaxNameLen <= 0 {
		deps.MaxNameLen = 16
	}
	inMatch := []packet.SessionState{packet.StatePlaying, packet.StateSpectating}
	anyState := []packet.SessionState{packet.StateConnected, packet.StatePlaying, packet.StateSpectating}

	reg.Register(packet.C_OPCODE_JOIN,
		[]packet.SessionState{packet.StateConnected},
		func(sess any, r *packet.Reader) {
			HandleJoin(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_INPUT,
		[]packet.SessionState{packet.StatePlaying},
		func(sess any, r *packet.Reader) {
			HandleInput(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_SPECTATE, anyState,
		func(sess any, r *packet.Reader) {
			HandleSpectate(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_PING, anyState,
		func(sess any, r *packet.Reader) {
			HandlePing(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_LEAVE, inMatch,
		func(sess any, r *packet.Reader) {
			HandleLeave(sess.(*net.Session), r, deps)
		},
	)
}
