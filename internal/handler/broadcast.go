package handler

import (
	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
)

// sendJoined sends S_JOINED: the player's entity id and the map size.
func sendJoined(sess *net.Session, id ecs.EntityID, mapW, mapH float64) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_JOINED)
	w.WriteDU(uint32(id))
	w.WriteF(mapW)
	w.WriteF(mapH)
	sess.Send(w.Bytes())
}

// sendPong echoes the client's ping stamp with the current tick.
func sendPong(sess *net.Session, stamp uint32, tick uint64) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_PONG)
	w.WriteDU(stamp)
	w.WriteDU(uint32(tick))
	sess.Send(w.Bytes())
}

// BuildGameOver builds S_GAMEOVER. rank is zero for sessions that never
// played.
func BuildGameOver(rank int, kills int, winner ecs.EntityID, winnerName string) []byte {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GAMEOVER)
	w.WriteH(uint16(rank))
	w.WriteH(uint16(kills))
	w.WriteDU(uint32(winner))
	w.WriteS(winnerName)
	return w.Bytes()
}
