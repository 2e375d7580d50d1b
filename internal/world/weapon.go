package world

import "time"

// Weapon is the firing profile used by player self-update. Weapon and
// inventory logic proper is owned elsewhere; the arena ships one default.
type Weapon struct {
	Name         string
	Cooldown     time.Duration
	BulletSpeed  float64
	BulletRadius float64
	Range        float64
	Damage       float64
}

var DefaultWeapon = Weapon{
	Name:         "m9",
	Cooldown:     250 * time.Millisecond,
	BulletSpeed:  85,
	BulletRadius: 0.2,
	Range:        60,
	Damage:       12,
}
