package viewer

import (
	"slices"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
	"github.com/survarena/server/internal/world"
)

// Options tunes visibility. View sizes are full extents in world units.
type Options struct {
	ViewWidth      float64
	ViewHeight     float64
	RecomputeEvery uint64  // ticks between forced recomputes
	MoveThreshold  float64 // camera travel that forces a recompute
}

func (o Options) withDefaults() Options {
	if o.ViewWidth <= 0 {
		o.ViewWidth = 96
	}
	if o.ViewHeight <= 0 {
		o.ViewHeight = 64
	}
	if o.RecomputeEvery == 0 {
		o.RecomputeEvery = 8
	}
	if o.MoveThreshold <= 0 {
		o.MoveThreshold = 4
	}
	return o
}

// Manager owns the viewers of one instance and runs their per-tick sync.
type Manager struct {
	opts    Options
	viewers map[uint64]*Viewer
	order   []uint64
	sorted  bool

	// Reused per SyncAll.
	fullIDs    []ecs.EntityID
	partialIDs []ecs.EntityID
	candidates []ecs.EntityID
	next       map[ecs.EntityID]struct{}
}

func NewManager(opts Options) *Manager {
	return &Manager{
		opts:    opts.withDefaults(),
		viewers: make(map[uint64]*Viewer),
		next:    make(map[ecs.EntityID]struct{}, 128),
	}
}

func (m *Manager) Options() Options { return m.opts }
func (m *Manager) Len() int         { return len(m.viewers) }

// Add registers a viewer for sessionID. player may be zero for spectators.
func (m *Manager) Add(sessionID uint64, player ecs.EntityID, center geom.Vec2) *Viewer {
	if v, ok := m.viewers[sessionID]; ok {
		return v
	}
	v := newViewer(sessionID, player, center)
	m.viewers[sessionID] = v
	m.order = append(m.order, sessionID)
	m.sorted = false
	return v
}

// Remove drops a viewer and its visible set.
func (m *Manager) Remove(sessionID uint64) {
	v, ok := m.viewers[sessionID]
	if !ok {
		return
	}
	v.Clear()
	delete(m.viewers, sessionID)
	m.order = slices.DeleteFunc(m.order, func(id uint64) bool { return id == sessionID })
}

func (m *Manager) Get(sessionID uint64) *Viewer {
	return m.viewers[sessionID]
}

// Each visits viewers in session id order.
func (m *Manager) Each(fn func(*Viewer)) {
	if !m.sorted {
		slices.Sort(m.order)
		m.sorted = true
	}
	for _, sid := range m.order {
		fn(m.viewers[sid])
	}
}

// SyncAll builds at most one update per viewer from the current world state.
// It must run after every mutation pass and before the dirty tracker is
// drained; the grid is only read. emit is called for non-empty updates.
func (m *Manager) SyncAll(st *world.State, tick uint64, emit func(*Viewer, *Update)) {
	d := st.Dirty()
	m.fullIDs = append(m.fullIDs[:0], d.FullIDs()...)
	m.partialIDs = append(m.partialIDs[:0], d.PartialIDs()...)
	m.Each(func(v *Viewer) {
		if u := m.sync(v, st, tick); u != nil {
			emit(v, u)
		}
	})
}

// Sync runs the visibility and delta pass for a single viewer.
func (m *Manager) Sync(v *Viewer, st *world.State, tick uint64) *Update {
	d := st.Dirty()
	m.fullIDs = append(m.fullIDs[:0], d.FullIDs()...)
	m.partialIDs = append(m.partialIDs[:0], d.PartialIDs()...)
	return m.sync(v, st, tick)
}

func (m *Manager) sync(v *Viewer, st *world.State, tick uint64) *Update {
	m.follow(v, st)
	u := &Update{Tick: tick}
	d := st.Dirty()

	var added []ecs.EntityID
	if m.needsRecompute(v, st, tick) {
		added = m.recompute(v, st, u)
		v.lastRecompute = tick
		v.lastCenter = v.center
		v.lastLayer = v.layer
		v.force = false
		v.synced = true
	} else {
		added = m.incremental(v, st, u)
	}

	isAdded := func(id ecs.EntityID) bool {
		_, ok := slices.BinarySearch(added, id)
		return ok
	}
	for _, id := range added {
		b, ok := d.FullPayload(id)
		if !ok {
			delete(v.known, id)
			continue
		}
		u.Added = append(u.Added, world.EntityPayload{ID: id, Data: b})
	}
	for _, id := range m.fullIDs {
		if !v.Knows(id) || isAdded(id) {
			continue
		}
		if b, ok := d.FullPayload(id); ok {
			u.Full = append(u.Full, world.EntityPayload{ID: id, Data: b})
		}
	}
	for _, id := range m.partialIDs {
		if !v.Knows(id) || isAdded(id) {
			continue
		}
		if b, ok := d.PartialPayload(id); ok {
			u.Partial = append(u.Partial, world.EntityPayload{ID: id, Data: b})
		}
	}

	if e, p, ok := st.Player(v.Player); ok && !e.Dead {
		v.SetHealth(p.Health)
		v.SetBoost(p.Boost)
		v.SetKills(p.Kills)
	}
	u.Fields = v.dirty
	u.Scalars = v.scalars
	v.dirty = 0

	if u.Empty() {
		return nil
	}
	return u
}

// follow moves the camera onto the controlled player or the spectated
// target, whichever is alive.
func (m *Manager) follow(v *Viewer, st *world.State) {
	for _, id := range [2]ecs.EntityID{v.Player, v.Target} {
		if id == 0 {
			continue
		}
		if e, ok := st.Get(id); ok && !e.Dead {
			v.center = e.Pos
			v.layer = e.Layer
			return
		}
	}
}

func (m *Manager) needsRecompute(v *Viewer, st *world.State, tick uint64) bool {
	switch {
	case !v.synced, v.force, st.TopologyChanged():
		return true
	case tick-v.lastRecompute >= m.opts.RecomputeEvery:
		return true
	case v.layer != v.lastLayer:
		return true
	case v.center.DistSq(v.lastCenter) >= m.opts.MoveThreshold*m.opts.MoveThreshold:
		return true
	}
	return false
}

func (m *Manager) viewRect(v *Viewer) geom.Rect {
	return geom.RectAround(v.center, m.opts.ViewWidth/2, m.opts.ViewHeight/2)
}

// recompute re-derives the visible set from the grid and diffs it against
// the known set. Returns the newly added ids in ascending order.
func (m *Manager) recompute(v *Viewer, st *world.State, u *Update) []ecs.EntityID {
	m.candidates = st.Grid().QueryAppend(m.candidates[:0], m.viewRect(v), world.VisibleFromLayer(v.layer))
	clear(m.next)
	for _, id := range m.candidates {
		m.next[id] = struct{}{}
	}

	for id := range v.known {
		if _, still := m.next[id]; !still {
			u.Removed = append(u.Removed, id)
			delete(v.known, id)
		}
	}
	slices.Sort(u.Removed)

	var added []ecs.EntityID
	for _, id := range m.candidates {
		if _, known := v.known[id]; !known {
			added = append(added, id)
			v.known[id] = struct{}{}
		}
	}
	slices.Sort(added)
	return added
}

// incremental handles this tick's deletions and creations without a full
// grid query; movement in and out of view waits for the next recompute.
func (m *Manager) incremental(v *Viewer, st *world.State, u *Update) []ecs.EntityID {
	for _, id := range st.Deleted() {
		if _, known := v.known[id]; known {
			u.Removed = append(u.Removed, id)
			delete(v.known, id)
		}
	}
	rect := m.viewRect(v)
	var added []ecs.EntityID
	for _, id := range st.Created() {
		e, ok := st.Get(id)
		if !ok || v.Knows(id) {
			continue
		}
		if !geom.VisibleFrom(v.layer, e.Layer) || !e.Bounds().Intersects(rect) {
			continue
		}
		added = append(added, id)
		v.known[id] = struct{}{}
	}
	slices.Sort(u.Removed)
	slices.Sort(added)
	return added
}
