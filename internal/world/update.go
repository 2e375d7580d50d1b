package world

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
)

// UpdateEntity runs the self-update of one entity for a tick of dt. Kinds
// without behaviour are no-ops. Callers isolate panics per entity.
func (s *State) UpdateEntity(id ecs.EntityID, dt time.Duration) error {
	e, ok := s.Get(id)
	if !ok {
		return nil
	}
	switch e.Kind {
	case KindPlayer:
		p, ok := s.players.Get(id)
		if !ok {
			return fmt.Errorf("player %d: missing payload", id)
		}
		return s.updatePlayer(e, p, dt)
	case KindProjectile:
		pr, ok := s.projectiles.Get(id)
		if !ok {
			return fmt.Errorf("projectile %d: missing payload", id)
		}
		s.updateProjectile(e, pr, dt)
	case KindSmoke:
		sm, ok := s.smokes.Get(id)
		if !ok {
			return fmt.Errorf("smoke %d: missing payload", id)
		}
		sm.TTL -= dt
		if sm.TTL <= 0 {
			s.Remove(id)
		}
	case KindAirdrop:
		a, ok := s.airdrops.Get(id)
		if !ok {
			return fmt.Errorf("airdrop %d: missing payload", id)
		}
		if a.Elapsed < a.FallTime {
			a.Elapsed = min(a.FallTime, a.Elapsed+dt)
			s.dirty.MarkPartial(id)
		}
	case KindLoot, KindObstacle, KindDeadBody:
	default:
		return fmt.Errorf("entity %d: unknown kind %s", id, e.Kind)
	}
	return nil
}

func (s *State) updatePlayer(e *Entity, p *Player, dt time.Duration) error {
	if e.Dead {
		return nil
	}
	sec := dt.Seconds()
	in := p.Input
	if in.Move.LenSq() > 0 {
		s.Move(e.ID, e.Pos.Add(in.Move.Mul(p.Speed*sec)))
	}
	if in.Aim.LenSq() > 0 {
		s.SetDir(e.ID, in.Aim)
	}
	if p.Cooldown > 0 {
		p.Cooldown -= dt
	}
	if in.Shoot && p.Cooldown <= 0 {
		w := DefaultWeapon
		muzzle := e.Pos.Add(p.Dir.Mul(PlayerRadius + w.BulletRadius))
		_, err := s.SpawnProjectile(e.ID, muzzle, p.Dir, e.Layer, w)
		switch {
		case errors.Is(err, ecs.ErrPoolExhausted):
			// The shot is refused; the shooter keeps playing.
			s.log.Warn("projectile not spawned", zap.Uint32("player", uint32(e.ID)), zap.Error(err))
		case err != nil:
			return fmt.Errorf("player %d fire: %w", e.ID, err)
		}
		p.Cooldown = w.Cooldown
	}
	return nil
}

func (s *State) updateProjectile(e *Entity, pr *Projectile, dt time.Duration) {
	step := pr.Vel.Mul(dt.Seconds())
	next := e.Pos.Add(step)
	pr.Travelled += step.Len()
	if pr.Travelled >= pr.Range || !s.Bounds().Contains(next) {
		s.Remove(e.ID)
		return
	}
	e.Pos = next
	s.grid.Update(e.ID, e.Bounds(), e.Layer)
	s.dirty.MarkPartial(e.ID)
}
