package handler

import (
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/world"
)

// HandleInput processes C_INPUT: [seq D][move vec][aim vec][shoot C].
// Commands older than the last applied sequence number are dropped.
func HandleInput(sess *net.Session, r *packet.Reader, deps *Deps) {
	in := world.Input{
		Seq:   r.ReadDU(),
		Move:  r.ReadVec(),
		Aim:   r.ReadVec(),
		Shoot: r.ReadBool(),
	}
	if r.Err() != nil {
		return
	}
	deps.Inst.SetInput(sess.ID, in)
}

// HandlePing processes C_PING: [stamp D] and answers S_PONG.
func HandlePing(sess *net.Session, r *packet.Reader, deps *Deps) {
	stamp := r.ReadDU()
	if r.Err() != nil {
		return
	}
	sendPong(sess, stamp, deps.Inst.Tick())
}
