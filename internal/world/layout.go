package world

import (
	"fmt"

	"github.com/survarena/server/internal/data"
	"github.com/survarena/server/internal/geom"
)

// Populate spawns the static obstacles and ground loot of a layout.
func (s *State) Populate(l *data.Layout) error {
	for i, o := range l.Obstacles {
		hb := geom.CircleHitbox(o.Radius)
		if o.Radius <= 0 {
			hb = geom.BoxHitbox(o.Width, o.Height)
		}
		ob := Obstacle{
			Type:         o.Type,
			Health:       o.Health,
			Destructible: o.Health > 0,
			Collidable:   true,
		}
		if _, err := s.SpawnObstacle(ob, geom.V(o.X, o.Y), hb, geom.Layer(o.Layer)); err != nil {
			return fmt.Errorf("layout %q obstacle %d: %w", l.Name, i, err)
		}
	}
	for i, it := range l.Loot {
		if _, err := s.SpawnLoot(it.Item, it.Count, geom.V(it.X, it.Y), geom.Layer(it.Layer)); err != nil {
			return fmt.Errorf("layout %q loot %d: %w", l.Name, i, err)
		}
	}
	return nil
}

// AirdropItems flattens a layout's airdrop table into item names.
func AirdropItems(l *data.Layout) []string {
	var out []string
	for _, it := range l.AirdropLoot {
		for n := max(it.Count, 1); n > 0; n-- {
			out = append(out, it.Item)
		}
	}
	return out
}
