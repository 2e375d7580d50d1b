package world

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/pixil98/go-testutil"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
)

func newTestGrid(t *testing.T, size, cell float64) *SpatialGrid {
	t.Helper()
	g, err := NewSpatialGrid(size, size, cell)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	return g
}

func idSet(ids []ecs.EntityID) map[ecs.EntityID]bool {
	out := make(map[ecs.EntityID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func TestSpatialGridRejectsBadCellSize(t *testing.T) {
	_, err := NewSpatialGrid(100, 100, 0)
	if !errors.Is(err, ErrInvalidCellSize) {
		t.Fatalf("expected ErrInvalidCellSize, got %v", err)
	}
}

func TestSpatialGridInsertMoveScenario(t *testing.T) {
	g := newTestGrid(t, 100, 10)
	hb := geom.CircleHitbox(1)
	id := ecs.EntityID(1)

	if err := g.Insert(id, hb.BoundsAt(geom.V(0, 0)), geom.LayerGround); err != nil {
		t.Fatalf("insert: %v", err)
	}
	cells := g.CellsOf(id)
	testutil.AssertEqual(t, "cell count", len(cells), 1)
	testutil.AssertEqual(t, "cell", cells[0], CellCoord{0, 0})

	g.Update(id, hb.BoundsAt(geom.V(15, 15)), geom.LayerGround)
	cells = g.CellsOf(id)
	testutil.AssertEqual(t, "moved cell count", len(cells), 1)
	testutil.AssertEqual(t, "moved cell", cells[0], CellCoord{1, 1})
	testutil.AssertEqual(t, "old cell empty", len(g.CellMembers(CellCoord{0, 0})), 0)
}

func TestSpatialGridDuplicateInsert(t *testing.T) {
	g := newTestGrid(t, 100, 10)
	b := geom.CircleHitbox(1).BoundsAt(geom.V(5, 5))
	if err := g.Insert(1, b, geom.LayerGround); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := g.Insert(1, b, geom.LayerGround)
	if !errors.Is(err, ErrAlreadyInGrid) {
		t.Fatalf("expected ErrAlreadyInGrid, got %v", err)
	}
	testutil.AssertEqual(t, "single membership", len(g.CellMembers(CellCoord{0, 0})), 1)
}

func TestSpatialGridSpanningEntityDeduplicated(t *testing.T) {
	g := newTestGrid(t, 100, 10)
	// 4x4 box centred on a cell corner touches four cells.
	_ = g.Insert(1, geom.BoxHitbox(4, 4).BoundsAt(geom.V(10, 10)), geom.LayerGround)
	testutil.AssertEqual(t, "cells", len(g.CellsOf(1)), 4)

	got := g.Query(geom.Rect{Min: geom.V(0, 0), Max: geom.V(30, 30)}, AnyLayer)
	testutil.AssertEqual(t, "dedup", len(got), 1)

	g.Remove(1)
	testutil.AssertEqual(t, "removed", g.Has(1), false)
	testutil.AssertEqual(t, "no cells", len(g.CellsOf(1)), 0)
	g.Remove(1) // no-op
}

func TestSpatialGridClampsOutOfBounds(t *testing.T) {
	g := newTestGrid(t, 100, 10)
	_ = g.Insert(1, geom.CircleHitbox(1).BoundsAt(geom.V(-50, 500)), geom.LayerGround)
	cells := g.CellsOf(1)
	testutil.AssertEqual(t, "cells", len(cells), 1)
	testutil.AssertEqual(t, "clamped", cells[0], CellCoord{0, 9})
}

func TestSpatialGridLayerFilter(t *testing.T) {
	g := newTestGrid(t, 100, 10)
	_ = g.Insert(1, geom.CircleHitbox(1).BoundsAt(geom.V(5, 5)), geom.LayerGround)
	_ = g.Insert(2, geom.CircleHitbox(1).BoundsAt(geom.V(6, 6)), geom.LayerBunker)
	_ = g.Insert(3, geom.CircleHitbox(1).BoundsAt(geom.V(7, 7)), geom.LayerBunkerStairs)
	area := geom.Rect{Min: geom.V(0, 0), Max: geom.V(20, 20)}

	testutil.AssertEqual(t, "any", len(g.Query(area, AnyLayer)), 3)

	exact := idSet(g.Query(area, OnLayer(geom.LayerBunker)))
	testutil.AssertEqual(t, "exact count", len(exact), 1)
	testutil.AssertEqual(t, "exact bunker", exact[2], true)

	vis := idSet(g.Query(area, VisibleFromLayer(geom.LayerGround)))
	testutil.AssertEqual(t, "visible count", len(vis), 2)
	testutil.AssertEqual(t, "ground", vis[1], true)
	testutil.AssertEqual(t, "stairs", vis[3], true)
}

// Property: after any sequence of updates, a query returns E iff E's latest
// bounds overlap the query rect.
func TestSpatialGridMembershipProperty(t *testing.T) {
	g := newTestGrid(t, 200, 16)
	rng := rand.New(rand.NewSource(7))
	bounds := make(map[ecs.EntityID]geom.Rect)

	for i := 1; i <= 60; i++ {
		id := ecs.EntityID(i)
		b := geom.CircleHitbox(1 + rng.Float64()*6).BoundsAt(geom.V(rng.Float64()*200, rng.Float64()*200))
		_ = g.Insert(id, b, geom.LayerGround)
		bounds[id] = b
	}
	for step := 0; step < 300; step++ {
		id := ecs.EntityID(1 + rng.Intn(60))
		b := geom.BoxHitbox(2+rng.Float64()*10, 2+rng.Float64()*10).BoundsAt(geom.V(rng.Float64()*200, rng.Float64()*200))
		g.Update(id, b, geom.LayerGround)
		bounds[id] = b

		q := geom.RectAround(geom.V(rng.Float64()*200, rng.Float64()*200), 5+rng.Float64()*40, 5+rng.Float64()*40)
		got := idSet(g.Query(q, AnyLayer))
		for eid, eb := range bounds {
			if got[eid] != eb.Intersects(q) {
				t.Fatalf("step %d: entity %d query=%v overlap=%v", step, eid, got[eid], eb.Intersects(q))
			}
		}
	}
}

func TestSpatialGridQueryOutsideCircle(t *testing.T) {
	g := newTestGrid(t, 100, 10)
	_ = g.Insert(1, geom.CircleHitbox(1).BoundsAt(geom.V(50, 50)), geom.LayerGround)
	_ = g.Insert(2, geom.CircleHitbox(1).BoundsAt(geom.V(5, 5)), geom.LayerGround)
	_ = g.Insert(3, geom.CircleHitbox(1).BoundsAt(geom.V(75, 50)), geom.LayerGround)

	out := idSet(g.QueryOutsideCircle(geom.Circle{Pos: geom.V(50, 50), Rad: 30}, AnyLayer))
	testutil.AssertEqual(t, "count", len(out), 1)
	testutil.AssertEqual(t, "far entity", out[2], true)
}

func TestSpatialGridStats(t *testing.T) {
	g := newTestGrid(t, 100, 10)
	_ = g.Insert(1, geom.CircleHitbox(1).BoundsAt(geom.V(5, 5)), geom.LayerGround)
	_ = g.Insert(2, geom.CircleHitbox(1).BoundsAt(geom.V(6, 5)), geom.LayerGround)
	st := g.Stats()
	testutil.AssertEqual(t, "cells", st.Cells, 100)
	testutil.AssertEqual(t, "occupied", st.OccupiedCells, 1)
	testutil.AssertEqual(t, "max", st.MaxPerCell, 2)
}
