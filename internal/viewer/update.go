package viewer

import (
	"encoding/binary"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/world"
)

// Update is the single per-tick message for one viewer.
type Update struct {
	Tick    uint64
	Added   []world.EntityPayload // full records, first time this viewer sees them
	Removed []ecs.EntityID
	Partial []world.EntityPayload
	Full    []world.EntityPayload // full records of already known entities
	Fields  Field
	Scalars Scalars
}

// Empty reports whether there is nothing to send.
func (u *Update) Empty() bool {
	return len(u.Added) == 0 && len(u.Removed) == 0 &&
		len(u.Partial) == 0 && len(u.Full) == 0 && u.Fields == 0
}

// Encode writes the update as an S_OPCODE_UPDATE packet:
//
//	[op][tick u32][fields u16][scalars...]
//	[n u16][added blob...][n u16][removed u32...][n u16][full blob...][n u16][partial blob...]
func (u *Update) Encode(w *packet.Writer) {
	w.WriteC(packet.S_OPCODE_UPDATE)
	w.WriteDU(uint32(u.Tick))
	w.WriteH(uint16(u.Fields))
	s := &u.Scalars
	if u.Fields&FieldHealth != 0 {
		w.WriteF(s.Health)
	}
	if u.Fields&FieldBoost != 0 {
		w.WriteF(s.Boost)
	}
	if u.Fields&FieldKills != 0 {
		w.WriteH(uint16(s.Kills))
	}
	if u.Fields&FieldAlive != 0 {
		w.WriteH(uint16(s.Alive))
	}
	if u.Fields&FieldGas != 0 {
		w.WriteC(s.Gas.State)
		w.WriteC(byte(s.Gas.Stage))
		w.WriteVec(s.Gas.Pos)
		w.WriteF(s.Gas.Rad)
		w.WriteVec(s.Gas.Target)
		w.WriteF(s.Gas.TargetRad)
		w.WriteF(s.Gas.Duration)
	}
	if u.Fields&FieldGasRatio != 0 {
		w.WriteUnit(s.GasRatio)
	}
	if u.Fields&FieldSpectate != 0 {
		w.WriteDU(uint32(s.Spectate))
	}

	writePayloads(w, u.Added)
	w.WriteH(uint16(len(u.Removed)))
	for _, id := range u.Removed {
		w.WriteDU(uint32(id))
	}
	writePayloads(w, u.Full)
	writePayloads(w, u.Partial)
}

func writePayloads(w *packet.Writer, list []world.EntityPayload) {
	w.WriteH(uint16(len(list)))
	for _, p := range list {
		w.WriteBlob(p.Data)
	}
}

// DecodeUpdate parses an S_OPCODE_UPDATE packet. Payload records are kept
// opaque; their ids are read from the first four bytes.
func DecodeUpdate(data []byte) (*Update, error) {
	r := packet.NewReader(data)
	u := &Update{Tick: uint64(r.ReadDU()), Fields: Field(r.ReadH())}
	s := &u.Scalars
	if u.Fields&FieldHealth != 0 {
		s.Health = r.ReadF()
	}
	if u.Fields&FieldBoost != 0 {
		s.Boost = r.ReadF()
	}
	if u.Fields&FieldKills != 0 {
		s.Kills = int(r.ReadH())
	}
	if u.Fields&FieldAlive != 0 {
		s.Alive = int(r.ReadH())
	}
	if u.Fields&FieldGas != 0 {
		s.Gas.State = r.ReadC()
		s.Gas.Stage = int(r.ReadC())
		s.Gas.Pos = r.ReadVec()
		s.Gas.Rad = r.ReadF()
		s.Gas.Target = r.ReadVec()
		s.Gas.TargetRad = r.ReadF()
		s.Gas.Duration = r.ReadF()
	}
	if u.Fields&FieldGasRatio != 0 {
		s.GasRatio = float64(r.ReadC()) / 255
	}
	if u.Fields&FieldSpectate != 0 {
		s.Spectate = ecs.EntityID(r.ReadDU())
	}
	u.Added = readPayloads(r)
	n := int(r.ReadH())
	for i := 0; i < n && r.Err() == nil; i++ {
		u.Removed = append(u.Removed, ecs.EntityID(r.ReadDU()))
	}
	u.Full = readPayloads(r)
	u.Partial = readPayloads(r)
	if r.Err() != nil {
		return nil, r.Err()
	}
	return u, nil
}

func readPayloads(r *packet.Reader) []world.EntityPayload {
	n := int(r.ReadH())
	var out []world.EntityPayload
	for i := 0; i < n && r.Err() == nil; i++ {
		b := r.ReadBlob()
		if len(b) < 4 {
			continue
		}
		id := ecs.EntityID(binary.LittleEndian.Uint32(b))
		out = append(out, world.EntityPayload{ID: id, Data: b})
	}
	return out
}
