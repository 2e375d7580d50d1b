package world

import (
	"fmt"
	"time"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
)

// Kind is the discriminant of the entity sum type. Every switch over Kind
// must handle all of them.
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindProjectile
	KindLoot
	KindObstacle
	KindSmoke
	KindAirdrop
	KindDeadBody
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindProjectile:
		return "projectile"
	case KindLoot:
		return "loot"
	case KindObstacle:
		return "obstacle"
	case KindSmoke:
		return "smoke"
	case KindAirdrop:
		return "airdrop"
	case KindDeadBody:
		return "dead_body"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entity holds what every simulated object has. The kind-specific payload
// lives in the State's per-kind table under the same id.
type Entity struct {
	ID     ecs.EntityID
	Kind   Kind
	Pos    geom.Vec2
	Hitbox geom.Hitbox
	Layer  geom.Layer
	Dead   bool

	removed bool // removed this tick, id not yet recycled
}

// Bounds returns the world-space bounding box of the entity.
func (e *Entity) Bounds() geom.Rect { return e.Hitbox.BoundsAt(e.Pos) }

// Shape returns the world-space hitbox shape.
func (e *Entity) Shape() geom.Shape { return e.Hitbox.At(e.Pos) }

// Input is the latest movement/aim command received for a player.
type Input struct {
	Seq   uint32
	Move  geom.Vec2
	Aim   geom.Vec2
	Shoot bool
}

type Player struct {
	Name      string
	SessionID uint64
	Skin      string
	Weapon    string

	Health    float64
	MaxHealth float64
	Boost     float64
	Speed     float64 // units per second
	Dir       geom.Vec2
	Input     Input
	Cooldown  time.Duration
	Kills     int
	Damage    float64 // total dealt
	Items     map[string]int
	JoinedAt  time.Duration
	DiedAt    time.Duration
	Rank      int
}

type Projectile struct {
	Owner     ecs.EntityID
	Vel       geom.Vec2
	Range     float64
	Travelled float64
	Damage    float64
}

type Loot struct {
	Item  string
	Count int
}

type Obstacle struct {
	Type         string
	Health       float64
	MaxHealth    float64
	Destructible bool
	Collidable   bool
	Loot         []string // spilled when destroyed
}

type Smoke struct {
	TTL    time.Duration
	Radius float64
}

type Airdrop struct {
	FallTime time.Duration
	Elapsed  time.Duration
	Loot     []string
}

// Progress returns how far the airdrop has fallen, 0..1.
func (a *Airdrop) Progress() float64 {
	if a.FallTime <= 0 {
		return 1
	}
	return geom.Clamp(float64(a.Elapsed)/float64(a.FallTime), 0, 1)
}

type DeadBody struct {
	Victim ecs.EntityID
	Name   string
}
