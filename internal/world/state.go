package world

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
)

// Options sizes the arena and its id space.
type Options struct {
	Width       float64
	Height      float64
	CellSize    float64
	MaxEntities int
}

// Hooks let the owning instance observe world events without the world
// importing it. Nil hooks are skipped.
type Hooks struct {
	PlayerKilled      func(victim, killer ecs.EntityID, p *Player)
	ObstacleDestroyed func(id ecs.EntityID, pos geom.Vec2)
}

// State is the authoritative arena of one simulation instance: the entity
// tables, the spatial grid and the dirty tracker.
// Accessed only from the instance's tick goroutine: no locks needed.
type State struct {
	log   *zap.Logger
	opts  Options
	ecs   *ecs.World
	grid  *SpatialGrid
	dirty *DirtyTracker
	hooks Hooks
	now   time.Duration

	entities    *ecs.PtrComponentStore[Entity]
	players     *ecs.PtrComponentStore[Player]
	projectiles *ecs.PtrComponentStore[Projectile]
	loot        *ecs.PtrComponentStore[Loot]
	obstacles   *ecs.PtrComponentStore[Obstacle]
	smokes      *ecs.PtrComponentStore[Smoke]
	airdrops    *ecs.PtrComponentStore[Airdrop]
	bodies      *ecs.PtrComponentStore[DeadBody]

	// Per-tick transient lists, cleared by ResetTick.
	created  []ecs.EntityID
	deleted  []ecs.EntityID
	topology bool
}

// NewState validates opts and builds an empty arena.
func NewState(opts Options, log *zap.Logger) (*State, error) {
	grid, err := NewSpatialGrid(opts.Width, opts.Height, opts.CellSize)
	if err != nil {
		return nil, fmt.Errorf("world grid: %w", err)
	}
	s := &State{
		log:         log,
		opts:        opts,
		ecs:         ecs.NewWorld(opts.MaxEntities),
		grid:        grid,
		entities:    ecs.NewPtrComponentStore[Entity](),
		players:     ecs.NewPtrComponentStore[Player](),
		projectiles: ecs.NewPtrComponentStore[Projectile](),
		loot:        ecs.NewPtrComponentStore[Loot](),
		obstacles:   ecs.NewPtrComponentStore[Obstacle](),
		smokes:      ecs.NewPtrComponentStore[Smoke](),
		airdrops:    ecs.NewPtrComponentStore[Airdrop](),
		bodies:      ecs.NewPtrComponentStore[DeadBody](),
		created:     make([]ecs.EntityID, 0, 32),
		deleted:     make([]ecs.EntityID, 0, 32),
	}
	reg := s.ecs.Registry()
	reg.Register(s.entities)
	reg.Register(s.players)
	reg.Register(s.projectiles)
	reg.Register(s.loot)
	reg.Register(s.obstacles)
	reg.Register(s.smokes)
	reg.Register(s.airdrops)
	reg.Register(s.bodies)
	s.dirty = NewDirtyTracker(s.encode)
	return s, nil
}

func (s *State) SetHooks(h Hooks)           { s.hooks = h }
func (s *State) Grid() *SpatialGrid          { return s.grid }
func (s *State) Dirty() *DirtyTracker        { return s.dirty }
func (s *State) Width() float64              { return s.opts.Width }
func (s *State) Height() float64             { return s.opts.Height }
func (s *State) Now() time.Duration          { return s.now }
func (s *State) SetNow(now time.Duration)    { s.now = now }
func (s *State) Created() []ecs.EntityID     { return s.created }
func (s *State) Deleted() []ecs.EntityID     { return s.deleted }
func (s *State) TopologyChanged() bool       { return s.topology }
func (s *State) MarkTopologyChanged()        { s.topology = true }
func (s *State) EntityCount() int            { return s.entities.Len() }
func (s *State) LiveIDs() int                { return s.ecs.Pool().Live() }

// Bounds returns the playable area.
func (s *State) Bounds() geom.Rect {
	return geom.Rect{Max: geom.V(s.opts.Width, s.opts.Height)}
}

// ClampToMap keeps p inside the playable area.
func (s *State) ClampToMap(p geom.Vec2) geom.Vec2 {
	return geom.V(geom.Clamp(p.X, 0, s.opts.Width), geom.Clamp(p.Y, 0, s.opts.Height))
}

// ---------- Spawning ----------

func (s *State) spawn(kind Kind, pos geom.Vec2, hb geom.Hitbox, layer geom.Layer) (*Entity, error) {
	id, err := s.ecs.CreateEntity()
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", kind, err)
	}
	e := &Entity{ID: id, Kind: kind, Pos: s.ClampToMap(pos), Hitbox: hb, Layer: layer}
	if err := s.grid.Insert(id, e.Bounds(), layer); err != nil {
		s.ecs.Pool().Destroy(id)
		return nil, fmt.Errorf("spawn %s: %w", kind, err)
	}
	s.entities.Set(id, e)
	s.created = append(s.created, id)
	return e, nil
}

const (
	PlayerRadius    = 1.0
	PlayerMaxHealth = 100.0
	PlayerSpeed     = 12.0
	LootRadius      = 0.6
	AirdropRadius   = 2.5
)

// SpawnPlayer places a new player controlled by sessionID.
func (s *State) SpawnPlayer(name string, sessionID uint64, pos geom.Vec2) (ecs.EntityID, error) {
	e, err := s.spawn(KindPlayer, pos, geom.CircleHitbox(PlayerRadius), geom.LayerGround)
	if err != nil {
		return 0, err
	}
	s.players.Set(e.ID, &Player{
		Name:      name,
		SessionID: sessionID,
		Skin:      "outfitBase",
		Weapon:    DefaultWeapon.Name,
		Health:    PlayerMaxHealth,
		MaxHealth: PlayerMaxHealth,
		Speed:     PlayerSpeed,
		Dir:       geom.V(1, 0),
		JoinedAt:  s.now,
	})
	return e.ID, nil
}

// SpawnProjectile fires a projectile from pos along dir.
func (s *State) SpawnProjectile(owner ecs.EntityID, pos, dir geom.Vec2, layer geom.Layer, w Weapon) (ecs.EntityID, error) {
	e, err := s.spawn(KindProjectile, pos, geom.CircleHitbox(w.BulletRadius), layer)
	if err != nil {
		return 0, err
	}
	s.projectiles.Set(e.ID, &Projectile{
		Owner:  owner,
		Vel:    dir.Normalize().Mul(w.BulletSpeed),
		Range:  w.Range,
		Damage: w.Damage,
	})
	return e.ID, nil
}

func (s *State) SpawnLoot(item string, count int, pos geom.Vec2, layer geom.Layer) (ecs.EntityID, error) {
	if count <= 0 {
		count = 1
	}
	e, err := s.spawn(KindLoot, pos, geom.CircleHitbox(LootRadius), layer)
	if err != nil {
		return 0, err
	}
	s.loot.Set(e.ID, &Loot{Item: item, Count: count})
	return e.ID, nil
}

// SpawnObstacle places static geometry. Obstacles change what viewers can
// see, so spawning one flags a topology change.
func (s *State) SpawnObstacle(o Obstacle, pos geom.Vec2, hb geom.Hitbox, layer geom.Layer) (ecs.EntityID, error) {
	e, err := s.spawn(KindObstacle, pos, hb, layer)
	if err != nil {
		return 0, err
	}
	if o.MaxHealth == 0 {
		o.MaxHealth = o.Health
	}
	s.obstacles.Set(e.ID, &o)
	s.topology = true
	return e.ID, nil
}

func (s *State) SpawnSmoke(pos geom.Vec2, radius float64, ttl time.Duration, layer geom.Layer) (ecs.EntityID, error) {
	e, err := s.spawn(KindSmoke, pos, geom.CircleHitbox(radius), layer)
	if err != nil {
		return 0, err
	}
	s.smokes.Set(e.ID, &Smoke{TTL: ttl, Radius: radius})
	return e.ID, nil
}

func (s *State) SpawnAirdrop(pos geom.Vec2, fall time.Duration, loot []string) (ecs.EntityID, error) {
	e, err := s.spawn(KindAirdrop, pos, geom.CircleHitbox(AirdropRadius), geom.LayerGround)
	if err != nil {
		return 0, err
	}
	s.airdrops.Set(e.ID, &Airdrop{FallTime: fall, Loot: loot})
	return e.ID, nil
}

func (s *State) SpawnDeadBody(victim ecs.EntityID, name string, pos geom.Vec2, layer geom.Layer) (ecs.EntityID, error) {
	e, err := s.spawn(KindDeadBody, pos, geom.CircleHitbox(PlayerRadius), layer)
	if err != nil {
		return 0, err
	}
	s.bodies.Set(e.ID, &DeadBody{Victim: victim, Name: name})
	return e.ID, nil
}

// Remove takes id out of the grid and the dirty sets and records it in this
// tick's deleted list. The id itself is recycled by FlushRemoved so it can
// not be handed out again within the same tick.
func (s *State) Remove(id ecs.EntityID) {
	e, ok := s.entities.Get(id)
	if !ok || e.removed {
		return
	}
	e.removed = true
	e.Dead = true
	s.grid.Remove(id)
	s.dirty.Forget(id)
	s.deleted = append(s.deleted, id)
	s.ecs.MarkForDestruction(id)
	if e.Kind == KindObstacle {
		s.topology = true
	}
}

// FlushRemoved recycles the ids removed this tick and drops their data.
func (s *State) FlushRemoved() {
	s.ecs.FlushDestroyQueue(nil)
}

// ResetTick clears the per-tick created/deleted lists and topology flag.
func (s *State) ResetTick() {
	s.created = s.created[:0]
	s.deleted = s.deleted[:0]
	s.topology = false
}

// ---------- Lookup ----------

// Get returns the live entity for id.
func (s *State) Get(id ecs.EntityID) (*Entity, bool) {
	e, ok := s.entities.Get(id)
	if !ok || e.removed {
		return nil, false
	}
	return e, true
}

func lookup[T any](s *State, store *ecs.PtrComponentStore[T], id ecs.EntityID) (*Entity, *T, bool) {
	e, ok := s.Get(id)
	if !ok {
		return nil, nil, false
	}
	c, ok := store.Get(id)
	if !ok {
		return nil, nil, false
	}
	return e, c, true
}

func (s *State) Player(id ecs.EntityID) (*Entity, *Player, bool) { return lookup(s, s.players, id) }
func (s *State) Projectile(id ecs.EntityID) (*Entity, *Projectile, bool) {
	return lookup(s, s.projectiles, id)
}
func (s *State) Loot(id ecs.EntityID) (*Entity, *Loot, bool)         { return lookup(s, s.loot, id) }
func (s *State) Obstacle(id ecs.EntityID) (*Entity, *Obstacle, bool) { return lookup(s, s.obstacles, id) }
func (s *State) Smoke(id ecs.EntityID) (*Entity, *Smoke, bool)       { return lookup(s, s.smokes, id) }
func (s *State) Airdrop(id ecs.EntityID) (*Entity, *Airdrop, bool)   { return lookup(s, s.airdrops, id) }
func (s *State) DeadBody(id ecs.EntityID) (*Entity, *DeadBody, bool) { return lookup(s, s.bodies, id) }

// IDs returns the live ids of one kind in ascending order.
func (s *State) IDs(kind Kind) []ecs.EntityID {
	var out []ecs.EntityID
	s.entities.Each(func(id ecs.EntityID, e *Entity) {
		if e.Kind == kind && !e.removed {
			out = append(out, id)
		}
	})
	return out
}

// EachPlayer visits live players in id order.
func (s *State) EachPlayer(fn func(*Entity, *Player)) {
	s.players.Each(func(id ecs.EntityID, p *Player) {
		if e, ok := s.Get(id); ok {
			fn(e, p)
		}
	})
}

// AlivePlayers counts players that are not dead.
func (s *State) AlivePlayers() int {
	n := 0
	s.EachPlayer(func(e *Entity, _ *Player) {
		if !e.Dead {
			n++
		}
	})
	return n
}

// Query returns live entities overlapping shape.
func (s *State) Query(shape geom.Shape, filter LayerFilter) []ecs.EntityID {
	return s.grid.Query(shape, filter)
}

// ---------- Mutation ----------
//
// Every mutation that changes what clients see marks the entity dirty.
// Position and counters go through the partial path, hitbox, layer and
// appearance through the full path.

// Move sets the position of id, clamped to the map.
func (s *State) Move(id ecs.EntityID, pos geom.Vec2) bool {
	e, ok := s.Get(id)
	if !ok {
		return false
	}
	pos = s.ClampToMap(pos)
	if pos == e.Pos {
		return false
	}
	e.Pos = pos
	s.grid.Update(id, e.Bounds(), e.Layer)
	s.dirty.MarkPartial(id)
	return true
}

func (s *State) SetHitbox(id ecs.EntityID, hb geom.Hitbox) {
	e, ok := s.Get(id)
	if !ok {
		return
	}
	e.Hitbox = hb
	s.grid.Update(id, e.Bounds(), e.Layer)
	s.dirty.MarkFull(id)
}

func (s *State) SetLayer(id ecs.EntityID, l geom.Layer) {
	e, ok := s.Get(id)
	if !ok || e.Layer == l {
		return
	}
	e.Layer = l
	s.grid.Update(id, e.Bounds(), l)
	s.dirty.MarkFull(id)
}

// SetInput stores the latest command for a player. Stale sequence numbers
// are ignored.
func (s *State) SetInput(id ecs.EntityID, in Input) bool {
	e, p, ok := s.Player(id)
	if !ok || e.Dead {
		return false
	}
	if in.Seq != 0 && in.Seq <= p.Input.Seq {
		return false
	}
	in.Move = clampUnit(in.Move)
	p.Input = in
	return true
}

func clampUnit(v geom.Vec2) geom.Vec2 {
	if v.LenSq() > 1 {
		return v.Normalize()
	}
	return v
}

func (s *State) SetDir(id ecs.EntityID, dir geom.Vec2) {
	_, p, ok := s.Player(id)
	if !ok {
		return
	}
	dir = dir.Normalize()
	if dir == (geom.Vec2{}) || dir == p.Dir {
		return
	}
	p.Dir = dir
	s.dirty.MarkPartial(id)
}

func (s *State) SetWeapon(id ecs.EntityID, weapon string) {
	_, p, ok := s.Player(id)
	if !ok || p.Weapon == weapon {
		return
	}
	p.Weapon = weapon
	s.dirty.MarkFull(id)
}

func (s *State) SetSkin(id ecs.EntityID, skin string) {
	_, p, ok := s.Player(id)
	if !ok || p.Skin == skin {
		return
	}
	p.Skin = skin
	s.dirty.MarkFull(id)
}

// Heal restores health up to the maximum.
func (s *State) Heal(id ecs.EntityID, amount float64) {
	e, p, ok := s.Player(id)
	if !ok || e.Dead || amount <= 0 {
		return
	}
	h := min(p.MaxHealth, p.Health+amount)
	if h != p.Health {
		p.Health = h
		s.dirty.MarkPartial(id)
	}
}

// Damage applies amount to a player or destructible obstacle and returns
// the damage actually dealt. source may be zero (gas).
func (s *State) Damage(id ecs.EntityID, amount float64, source ecs.EntityID) float64 {
	if amount <= 0 {
		return 0
	}
	e, ok := s.Get(id)
	if !ok || e.Dead {
		return 0
	}
	switch e.Kind {
	case KindPlayer:
		p, _ := s.players.Get(id)
		dealt := min(amount, p.Health)
		p.Health -= dealt
		s.dirty.MarkPartial(id)
		if _, attacker, ok := s.Player(source); ok && source != id {
			attacker.Damage += dealt
		}
		if p.Health <= 0 {
			s.KillPlayer(id, source)
		}
		return dealt
	case KindObstacle:
		o, _ := s.obstacles.Get(id)
		if !o.Destructible {
			return 0
		}
		dealt := min(amount, o.Health)
		o.Health -= dealt
		s.dirty.MarkPartial(id)
		if o.Health <= 0 {
			s.destroyObstacle(e, o)
		}
		return dealt
	case KindProjectile, KindLoot, KindSmoke, KindAirdrop, KindDeadBody:
		return 0
	}
	return 0
}

// KillPlayer marks a player dead, leaves a body behind and removes the
// player entity. killer may be zero.
func (s *State) KillPlayer(id, killer ecs.EntityID) {
	e, p, ok := s.Player(id)
	if !ok || e.Dead {
		return
	}
	e.Dead = true
	p.Health = 0
	p.DiedAt = s.now
	p.Rank = s.AlivePlayers() + 1
	if _, kp, ok := s.Player(killer); ok && killer != id {
		kp.Kills++
	}
	if _, err := s.SpawnDeadBody(id, p.Name, e.Pos, e.Layer); err != nil {
		s.log.Warn("dead body not spawned", zap.Uint32("player", uint32(id)), zap.Error(err))
	}
	s.Remove(id)
	if s.hooks.PlayerKilled != nil {
		s.hooks.PlayerKilled(id, killer, p)
	}
}

func (s *State) destroyObstacle(e *Entity, o *Obstacle) {
	pos, layer := e.Pos, e.Layer
	s.Remove(e.ID)
	for i, item := range o.Loot {
		off := geom.V(float64(i%3-1), float64(i/3%3-1)).Mul(LootRadius * 2)
		if _, err := s.SpawnLoot(item, 1, pos.Add(off), layer); err != nil {
			s.log.Warn("crate loot not spawned", zap.String("item", item), zap.Error(err))
			break
		}
	}
	if s.hooks.ObstacleDestroyed != nil {
		s.hooks.ObstacleDestroyed(e.ID, pos)
	}
}

// LandAirdrop replaces a falling airdrop with a destructible crate holding
// its loot.
func (s *State) LandAirdrop(id ecs.EntityID) (ecs.EntityID, error) {
	e, a, ok := s.Airdrop(id)
	if !ok {
		return 0, fmt.Errorf("land airdrop %d: not found", id)
	}
	pos := e.Pos
	s.Remove(id)
	return s.SpawnObstacle(Obstacle{
		Type:         "airdrop_crate",
		Health:       50,
		Destructible: true,
		Collidable:   true,
		Loot:         a.Loot,
	}, pos, geom.BoxHitbox(4, 4), geom.LayerGround)
}
