package viewer

import (
	"testing"

	"github.com/pixil98/go-testutil"
	"go.uber.org/zap"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/world"
)

func newTestWorld(t *testing.T) *world.State {
	t.Helper()
	st, err := world.NewState(world.Options{Width: 400, Height: 400, CellSize: 16}, zap.NewNop())
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	return st
}

// endTick mirrors the tail of the tick pipeline: drain, reset, recycle.
func endTick(st *world.State) {
	st.Dirty().Drain()
	st.FlushRemoved()
	st.ResetTick()
}

func ids(list []world.EntityPayload) map[ecs.EntityID]bool {
	out := make(map[ecs.EntityID]bool, len(list))
	for _, p := range list {
		out[p.ID] = true
	}
	return out
}

func TestFirstSyncAddsVisibleEntities(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	near, _ := st.SpawnLoot("ammo", 1, geom.V(110, 100), geom.LayerGround)
	_, _ = st.SpawnLoot("ammo", 1, geom.V(300, 300), geom.LayerGround)
	bunker, _ := st.SpawnLoot("ammo", 1, geom.V(105, 105), geom.LayerBunker)

	v := m.Add(1, me, geom.V(100, 100))
	u := m.Sync(v, st, 1)
	if u == nil {
		t.Fatal("expected an update")
	}
	got := ids(u.Added)
	testutil.AssertEqual(t, "added count", len(got), 2)
	testutil.AssertEqual(t, "self", got[me], true)
	testutil.AssertEqual(t, "near", got[near], true)
	testutil.AssertEqual(t, "occluded by layer", got[bunker], false)
	testutil.AssertEqual(t, "health field", u.Fields&FieldHealth != 0, true)
}

func TestFullBeforePartial(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	v := m.Add(1, me, geom.V(100, 100))
	m.Sync(v, st, 1)
	endTick(st)

	// Spawned and moved in the same tick: the viewer gets only the full record.
	other, _ := st.SpawnPlayer("other", 2, geom.V(105, 100))
	st.Move(other, geom.V(106, 100))
	st.SetSkin(other, "outfitGold")
	u := m.Sync(v, st, 2)
	testutil.AssertEqual(t, "added", ids(u.Added)[other], true)
	testutil.AssertEqual(t, "no partial", ids(u.Partial)[other], false)
	testutil.AssertEqual(t, "no duplicate full", ids(u.Full)[other], false)
	endTick(st)

	// Next tick it is known, so a move is a partial.
	st.Move(other, geom.V(107, 100))
	u = m.Sync(v, st, 3)
	testutil.AssertEqual(t, "partial now", ids(u.Partial)[other], true)
	testutil.AssertEqual(t, "not re-added", ids(u.Added)[other], false)
	endTick(st)

	// Full dirt on a known entity uses the full path only.
	st.Move(other, geom.V(108, 100))
	st.SetWeapon(other, "mp5")
	u = m.Sync(v, st, 4)
	testutil.AssertEqual(t, "full", ids(u.Full)[other], true)
	testutil.AssertEqual(t, "full wins over partial", ids(u.Partial)[other], false)
}

func TestPartialNeverSentForUnknownEntity(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40, RecomputeEvery: 8})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	far, _ := st.SpawnPlayer("far", 2, geom.V(200, 100))
	v := m.Add(1, me, geom.V(100, 100))
	m.Sync(v, st, 1)
	endTick(st)

	// far walks into view; until the viewer recomputes it must not receive
	// partials for it, and when it does it gets the full record.
	seenFull := false
	for tick := uint64(2); tick < 20; tick++ {
		st.Move(far, geom.V(130-float64(tick)*2, 100))
		u := m.Sync(v, st, tick)
		if u != nil {
			if ids(u.Partial)[far] && !seenFull {
				t.Fatalf("tick %d: partial before full", tick)
			}
			if ids(u.Added)[far] {
				seenFull = true
			}
		}
		endTick(st)
	}
	testutil.AssertEqual(t, "eventually added", seenFull, true)
}

func TestRecomputeWithoutMovementHasNoChurn(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40, RecomputeEvery: 8})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	for i := 0; i < 5; i++ {
		_, _ = st.SpawnLoot("ammo", 1, geom.V(95+float64(i)*3, 102), geom.LayerGround)
	}
	v := m.Add(1, me, geom.V(100, 100))
	first := m.Sync(v, st, 1)
	testutil.AssertEqual(t, "initial", len(first.Added), 6)
	endTick(st)

	for tick := uint64(2); tick <= 10; tick++ {
		u := m.Sync(v, st, tick)
		if u != nil {
			testutil.AssertEqual(t, "no adds", len(u.Added), 0)
			testutil.AssertEqual(t, "no removes", len(u.Removed), 0)
		}
		endTick(st)
	}
	testutil.AssertEqual(t, "recomputed", v.lastRecompute, uint64(9))
	testutil.AssertEqual(t, "known", v.KnownCount(), 6)
}

func TestDeletedEntityRemovedImmediately(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	loot, _ := st.SpawnLoot("ammo", 1, geom.V(104, 100), geom.LayerGround)
	v := m.Add(1, me, geom.V(100, 100))
	m.Sync(v, st, 1)
	endTick(st)

	st.Remove(loot)
	u := m.Sync(v, st, 2)
	testutil.AssertEqual(t, "removed count", len(u.Removed), 1)
	testutil.AssertEqual(t, "removed id", u.Removed[0], loot)
	testutil.AssertEqual(t, "forgotten", v.Knows(loot), false)
}

func TestLeavingViewIsRemovedOnRecompute(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40, MoveThreshold: 4})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	loot, _ := st.SpawnLoot("ammo", 1, geom.V(110, 100), geom.LayerGround)
	v := m.Add(1, me, geom.V(100, 100))
	m.Sync(v, st, 1)
	endTick(st)

	st.Move(me, geom.V(60, 100)) // beyond the move threshold
	u := m.Sync(v, st, 2)
	testutil.AssertEqual(t, "removed", len(u.Removed), 1)
	testutil.AssertEqual(t, "loot", u.Removed[0], loot)
}

func TestLayerChangeOccludes(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	loot, _ := st.SpawnLoot("ammo", 1, geom.V(104, 100), geom.LayerGround)
	v := m.Add(1, me, geom.V(100, 100))
	m.Sync(v, st, 1)
	endTick(st)

	st.SetLayer(me, geom.LayerBunker)
	u := m.Sync(v, st, 2)
	testutil.AssertEqual(t, "occluded", len(u.Removed), 1)
	testutil.AssertEqual(t, "id", u.Removed[0], loot)
}

func TestScalarsOnlyWhenChanged(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	v := m.Add(1, me, geom.V(100, 100))
	v.SetAlive(3)
	u := m.Sync(v, st, 1)
	testutil.AssertEqual(t, "alive sent", u.Fields&FieldAlive != 0, true)
	endTick(st)

	v.SetAlive(3)
	u = m.Sync(v, st, 2)
	if u != nil {
		testutil.AssertEqual(t, "alive omitted", u.Fields&FieldAlive, Field(0))
	}

	st.Damage(me, 10, 0)
	u = m.Sync(v, st, 3)
	testutil.AssertEqual(t, "health sent", u.Fields&FieldHealth != 0, true)
	testutil.AssertEqual(t, "health value", u.Scalars.Health, 90.0)
}

func TestSpectateFollowsTarget(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{ViewWidth: 40, ViewHeight: 40})
	target, _ := st.SpawnPlayer("t", 2, geom.V(300, 300))
	v := m.Add(9, 0, geom.V(0, 0))
	v.Spectate(target)

	u := m.Sync(v, st, 1)
	testutil.AssertEqual(t, "camera", v.Center(), geom.V(300, 300))
	testutil.AssertEqual(t, "target added", ids(u.Added)[target], true)
	testutil.AssertEqual(t, "spectate field", u.Scalars.Spectate, target)
}

func TestSyncAllOnePerViewer(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{})
	a, _ := st.SpawnPlayer("a", 1, geom.V(100, 100))
	b, _ := st.SpawnPlayer("b", 2, geom.V(110, 100))
	m.Add(1, a, geom.V(100, 100))
	m.Add(2, b, geom.V(110, 100))

	counts := map[uint64]int{}
	before := st.Dirty().Encodes()
	m.SyncAll(st, 1, func(v *Viewer, _ *Update) { counts[v.SessionID]++ })
	testutil.AssertEqual(t, "viewer 1", counts[1], 1)
	testutil.AssertEqual(t, "viewer 2", counts[2], 1)
	// Both viewers see both players; each full record is encoded once.
	testutil.AssertEqual(t, "encodes", st.Dirty().Encodes()-before, 2)

	m.Remove(2)
	testutil.AssertEqual(t, "len", m.Len(), 1)
}

func TestUpdateEncodeDecode(t *testing.T) {
	st := newTestWorld(t)
	m := NewManager(Options{})
	me, _ := st.SpawnPlayer("me", 1, geom.V(100, 100))
	v := m.Add(1, me, geom.V(100, 100))
	v.SetGas(GasInfo{State: 2, Stage: 1, Rad: 80, TargetRad: 50, Duration: 5})
	v.SetGasRatio(0.4)
	u := m.Sync(v, st, 7)

	w := packet.NewWriter()
	u.Encode(w)
	testutil.AssertEqual(t, "opcode", w.Bytes()[0], packet.S_OPCODE_UPDATE)

	got, err := DecodeUpdate(w.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	testutil.AssertEqual(t, "tick", got.Tick, uint64(7))
	testutil.AssertEqual(t, "fields", got.Fields, u.Fields)
	testutil.AssertEqual(t, "gas", got.Scalars.Gas, u.Scalars.Gas)
	testutil.AssertEqual(t, "added", len(got.Added), 1)
	testutil.AssertEqual(t, "added id", got.Added[0].ID, me)
}
