package world

import (
	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/net/packet"
)

// encode is the DirtyTracker's EncodeFunc.
//
// Full record:    [id u32][kind u8][layer u8][dead u8][pos][hitbox][kind fields]
// Partial record: [id u32][pos][kind partial fields]
func (s *State) encode(id ecs.EntityID, full bool, w *packet.Writer) bool {
	e, ok := s.Get(id)
	if !ok {
		return false
	}
	w.WriteDU(uint32(id))
	if full {
		w.WriteC(byte(e.Kind))
		w.WriteC(byte(e.Layer))
		w.WriteBool(e.Dead)
	}
	w.WriteVec(e.Pos)
	if full {
		w.WriteBool(e.Hitbox.Round)
		if e.Hitbox.Round {
			w.WriteF(e.Hitbox.Radius)
		} else {
			w.WriteVec(e.Hitbox.Half)
		}
	}

	switch e.Kind {
	case KindPlayer:
		p, ok := s.players.Get(id)
		if !ok {
			return false
		}
		if full {
			w.WriteS(p.Name)
			w.WriteS(p.Skin)
			w.WriteS(p.Weapon)
		}
		w.WriteVec(p.Dir)
		w.WriteUnit(p.Health / p.MaxHealth)
	case KindProjectile:
		pr, ok := s.projectiles.Get(id)
		if !ok {
			return false
		}
		if full {
			w.WriteDU(uint32(pr.Owner))
			w.WriteVec(pr.Vel)
		}
	case KindLoot:
		l, ok := s.loot.Get(id)
		if !ok {
			return false
		}
		if full {
			w.WriteS(l.Item)
			w.WriteH(uint16(min(l.Count, 0xffff)))
		}
	case KindObstacle:
		o, ok := s.obstacles.Get(id)
		if !ok {
			return false
		}
		if full {
			w.WriteS(o.Type)
			w.WriteBool(o.Destructible)
			w.WriteBool(o.Collidable)
		}
		if o.MaxHealth > 0 {
			w.WriteUnit(o.Health / o.MaxHealth)
		} else {
			w.WriteUnit(1)
		}
	case KindSmoke:
		sm, ok := s.smokes.Get(id)
		if !ok {
			return false
		}
		if full {
			w.WriteF(sm.Radius)
		}
	case KindAirdrop:
		a, ok := s.airdrops.Get(id)
		if !ok {
			return false
		}
		w.WriteUnit(a.Progress())
	case KindDeadBody:
		b, ok := s.bodies.Get(id)
		if !ok {
			return false
		}
		if full {
			w.WriteDU(uint32(b.Victim))
			w.WriteS(b.Name)
		}
	default:
		return false
	}
	return true
}
