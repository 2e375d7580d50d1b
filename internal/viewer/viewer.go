package viewer

import (
	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
)

// Field is one viewer-specific scalar carried in an update only when it
// changed since the last update sent to that viewer.
type Field uint16

const (
	FieldHealth Field = 1 << iota
	FieldBoost
	FieldKills
	FieldAlive
	FieldGas
	FieldGasRatio
	FieldSpectate
)

// GasInfo is the zone description sent to clients when a stage changes.
type GasInfo struct {
	State     byte
	Stage     int
	Pos       geom.Vec2
	Rad       float64
	Target    geom.Vec2
	TargetRad float64
	Duration  float64 // seconds
}

// Scalars holds the last known value of every viewer field.
type Scalars struct {
	Health   float64
	Boost    float64
	Kills    int
	Alive    int
	Gas      GasInfo
	GasRatio float64
	Spectate ecs.EntityID
}

// Viewer is a connected client's server-side view: where it looks and what
// it already knows about.
// Accessed only from the instance's tick goroutine: no locks needed.
type Viewer struct {
	SessionID uint64
	Player    ecs.EntityID // controlled player, zero for pure spectators
	Target    ecs.EntityID // followed entity while spectating

	center geom.Vec2
	layer  geom.Layer

	// Known is the set of entity ids this viewer has received a full
	// record for and not yet been told to remove.
	known map[ecs.EntityID]struct{}

	lastRecompute uint64
	lastCenter    geom.Vec2
	lastLayer     geom.Layer
	synced        bool
	force         bool

	scalars Scalars
	dirty   Field
}

func newViewer(sessionID uint64, player ecs.EntityID, center geom.Vec2) *Viewer {
	return &Viewer{
		SessionID: sessionID,
		Player:    player,
		center:    center,
		known:     make(map[ecs.EntityID]struct{}, 128),
		force:     true,
	}
}

func (v *Viewer) Center() geom.Vec2   { return v.center }
func (v *Viewer) Layer() geom.Layer   { return v.layer }
func (v *Viewer) KnownCount() int     { return len(v.known) }
func (v *Viewer) Scalars() Scalars    { return v.scalars }
func (v *Viewer) DirtyFields() Field  { return v.dirty }
func (v *Viewer) Spectating() bool    { return v.Player == 0 || v.Target != 0 }

// Knows reports whether the viewer currently holds a full record of id.
func (v *Viewer) Knows(id ecs.EntityID) bool {
	_, ok := v.known[id]
	return ok
}

// ForceRecompute makes the next sync re-derive the visible set.
func (v *Viewer) ForceRecompute() { v.force = true }

// Spectate switches the viewer to follow target.
func (v *Viewer) Spectate(target ecs.EntityID) {
	if v.Target == target {
		return
	}
	v.Target = target
	v.force = true
	v.scalars.Spectate = target
	v.dirty |= FieldSpectate
}

// LookAt pins the camera, used by spectators with nothing to follow.
func (v *Viewer) LookAt(p geom.Vec2, l geom.Layer) {
	v.center = p
	v.layer = l
}

// Clear forgets everything, used on disconnect.
func (v *Viewer) Clear() {
	clear(v.known)
	v.dirty = 0
	v.synced = false
}

func (v *Viewer) SetHealth(h float64) {
	if v.scalars.Health != h {
		v.scalars.Health = h
		v.dirty |= FieldHealth
	}
}

func (v *Viewer) SetBoost(b float64) {
	if v.scalars.Boost != b {
		v.scalars.Boost = b
		v.dirty |= FieldBoost
	}
}

func (v *Viewer) SetKills(k int) {
	if v.scalars.Kills != k {
		v.scalars.Kills = k
		v.dirty |= FieldKills
	}
}

func (v *Viewer) SetAlive(n int) {
	if v.scalars.Alive != n {
		v.scalars.Alive = n
		v.dirty |= FieldAlive
	}
}

func (v *Viewer) SetGas(g GasInfo) {
	if v.scalars.Gas != g {
		v.scalars.Gas = g
		v.dirty |= FieldGas
	}
}

func (v *Viewer) SetGasRatio(r float64) {
	if v.scalars.GasRatio != r {
		v.scalars.GasRatio = r
		v.dirty |= FieldGasRatio
	}
}
