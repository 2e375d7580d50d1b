package world

import (
	"slices"
	"time"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
)

// Resolver consumes the grid after self-update and applies hit and damage
// side effects. Richer ballistics plug in here.
type Resolver interface {
	Resolve(s *State, dt time.Duration)
}

// Consumables heal on pickup; everything else goes to the player's items.
var Consumables = map[string]float64{
	"bandage":   15,
	"healthkit": 100,
}

// DefaultResolver handles projectile hits, player/obstacle separation and
// loot pickup.
type DefaultResolver struct{}

func (DefaultResolver) Resolve(s *State, _ time.Duration) {
	var buf []ecs.EntityID
	for _, id := range s.IDs(KindProjectile) {
		buf = resolveProjectile(s, id, buf[:0])
	}
	for _, id := range s.IDs(KindPlayer) {
		buf = resolvePlayer(s, id, buf[:0])
	}
}

func resolveProjectile(s *State, id ecs.EntityID, buf []ecs.EntityID) []ecs.EntityID {
	e, pr, ok := s.Projectile(id)
	if !ok {
		return buf
	}
	shape := e.Shape()
	buf = s.grid.QueryAppend(buf, shape, AnyLayer)
	slices.SortFunc(buf, func(a, b ecs.EntityID) int {
		ea, _ := s.Get(a)
		eb, _ := s.Get(b)
		return cmpDist(e.Pos, ea, eb)
	})
	for _, other := range buf {
		if other == id || other == pr.Owner {
			continue
		}
		o, ok := s.Get(other)
		if !ok || o.Dead || !geom.SameLayer(e.Layer, o.Layer) {
			continue
		}
		switch o.Kind {
		case KindPlayer:
		case KindObstacle:
			if ob, ok := s.obstacles.Get(other); !ok || !ob.Collidable {
				continue
			}
		default:
			continue
		}
		if !geom.Overlap(shape, o.Shape()) {
			continue
		}
		s.Damage(other, pr.Damage, pr.Owner)
		s.Remove(id)
		return buf
	}
	return buf
}

func resolvePlayer(s *State, id ecs.EntityID, buf []ecs.EntityID) []ecs.EntityID {
	e, p, ok := s.Player(id)
	if !ok || e.Dead {
		return buf
	}
	buf = s.grid.QueryAppend(buf, e.Bounds(), AnyLayer)
	slices.Sort(buf)
	body := geom.Circle{Pos: e.Pos, Rad: e.Hitbox.Radius}
	for _, other := range buf {
		o, ok := s.Get(other)
		if !ok || other == id || !geom.SameLayer(e.Layer, o.Layer) {
			continue
		}
		switch o.Kind {
		case KindObstacle:
			ob, _ := s.obstacles.Get(other)
			if ob == nil || !ob.Collidable {
				continue
			}
			if push, hit := body.Separation(o.Shape()); hit {
				body.Pos = body.Pos.Add(push)
			}
		case KindLoot:
			l, _ := s.loot.Get(other)
			if l == nil || !geom.Overlap(body, o.Shape()) {
				continue
			}
			if heal, ok := Consumables[l.Item]; ok {
				s.Heal(id, heal*float64(l.Count))
			} else {
				if p.Items == nil {
					p.Items = make(map[string]int)
				}
				p.Items[l.Item] += l.Count
				s.dirty.MarkFull(id)
			}
			s.Remove(other)
		case KindPlayer, KindProjectile, KindSmoke, KindAirdrop, KindDeadBody:
		}
	}
	if body.Pos != e.Pos {
		s.Move(id, body.Pos)
	}
	return buf
}

func cmpDist(from geom.Vec2, a, b *Entity) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	da, db := from.DistSq(a.Pos), from.DistSq(b.Pos)
	switch {
	case da < db:
		return -1
	case da > db:
		return 1
	default:
		return int(a.ID) - int(b.ID)
	}
}
