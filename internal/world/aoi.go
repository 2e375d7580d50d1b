package world

import (
	"errors"
	"fmt"
	"math"

	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
)

// SpatialGrid is a uniform-cell index over all live entities, used for
// visibility, collision candidates and gas membership tests.
// Accessed only from the game loop goroutine: no locks. Mutations happen in
// the update/collision phases; the sync phase only queries.

var (
	ErrInvalidCellSize = errors.New("grid cell size must be positive")
	ErrAlreadyInGrid   = errors.New("entity already in grid")
)

// CellCoord addresses one grid cell.
type CellCoord struct {
	X int
	Y int
}

type cellRange struct {
	minX, minY, maxX, maxY int
}

func (r cellRange) contains(x, y int) bool {
	return x >= r.minX && x <= r.maxX && y >= r.minY && y <= r.maxY
}

type gridEntry struct {
	bounds geom.Rect
	layer  geom.Layer
	cells  cellRange
	mark   uint32
}

// LayerFilter narrows a query to entities on particular layers.
type LayerFilter struct {
	mode  uint8
	layer geom.Layer
}

const (
	filterAny uint8 = iota
	filterExact
	filterVisible
)

// AnyLayer matches every entity.
var AnyLayer = LayerFilter{}

// OnLayer matches entities exactly on l.
func OnLayer(l geom.Layer) LayerFilter { return LayerFilter{mode: filterExact, layer: l} }

// VisibleFromLayer matches entities on l or on a layer adjacent to it.
func VisibleFromLayer(l geom.Layer) LayerFilter { return LayerFilter{mode: filterVisible, layer: l} }

func (f LayerFilter) match(l geom.Layer) bool {
	switch f.mode {
	case filterExact:
		return l == f.layer
	case filterVisible:
		return geom.VisibleFrom(f.layer, l)
	default:
		return true
	}
}

type SpatialGrid struct {
	cellSize float64
	cols     int
	rows     int
	width    float64
	height   float64
	cells    []map[ecs.EntityID]struct{} // lazily allocated
	counts   []int32
	entries  map[ecs.EntityID]*gridEntry
	stamp    uint32
}

// NewSpatialGrid creates a grid covering [0,width]x[0,height].
func NewSpatialGrid(width, height, cellSize float64) (*SpatialGrid, error) {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		return nil, ErrInvalidCellSize
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid size %gx%g must be positive", width, height)
	}
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &SpatialGrid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		width:    width,
		height:   height,
		cells:    make([]map[ecs.EntityID]struct{}, cols*rows),
		counts:   make([]int32, cols*rows),
		entries:  make(map[ecs.EntityID]*gridEntry, 512),
	}, nil
}

func (g *SpatialGrid) CellSize() float64 { return g.cellSize }
func (g *SpatialGrid) Len() int          { return len(g.entries) }

// toCell converts one coordinate to a cell index, clamping out-of-bounds
// values onto the border cells.
func (g *SpatialGrid) toCell(v float64, n int) int {
	if math.IsNaN(v) {
		return 0
	}
	c := int(math.Floor(v / g.cellSize))
	if c < 0 {
		return 0
	}
	if c >= n {
		return n - 1
	}
	return c
}

func (g *SpatialGrid) rangeFor(r geom.Rect) cellRange {
	return cellRange{
		minX: g.toCell(r.Min.X, g.cols),
		minY: g.toCell(r.Min.Y, g.rows),
		maxX: g.toCell(r.Max.X, g.cols),
		maxY: g.toCell(r.Max.Y, g.rows),
	}
}

func (g *SpatialGrid) addTo(x, y int, id ecs.EntityID) {
	idx := y*g.cols + x
	cell := g.cells[idx]
	if cell == nil {
		cell = make(map[ecs.EntityID]struct{}, 4)
		g.cells[idx] = cell
	}
	cell[id] = struct{}{}
	g.counts[idx]++
}

func (g *SpatialGrid) removeFrom(x, y int, id ecs.EntityID) {
	idx := y*g.cols + x
	cell := g.cells[idx]
	if cell == nil {
		return
	}
	if _, ok := cell[id]; ok {
		delete(cell, id)
		g.counts[idx]--
	}
}

// Insert registers id with the given hitbox bounds. Inserting an id that is
// already present is a caller error.
func (g *SpatialGrid) Insert(id ecs.EntityID, bounds geom.Rect, layer geom.Layer) error {
	if _, ok := g.entries[id]; ok {
		return fmt.Errorf("insert %d: %w", id, ErrAlreadyInGrid)
	}
	e := &gridEntry{bounds: bounds, layer: layer, cells: g.rangeFor(bounds)}
	for y := e.cells.minY; y <= e.cells.maxY; y++ {
		for x := e.cells.minX; x <= e.cells.maxX; x++ {
			g.addTo(x, y, id)
		}
	}
	g.entries[id] = e
	return nil
}

// Remove drops id from every cell it occupies. No-op when absent.
func (g *SpatialGrid) Remove(id ecs.EntityID) {
	e, ok := g.entries[id]
	if !ok {
		return
	}
	for y := e.cells.minY; y <= e.cells.maxY; y++ {
		for x := e.cells.minX; x <= e.cells.maxX; x++ {
			g.removeFrom(x, y, id)
		}
	}
	delete(g.entries, id)
}

// Update moves id to new bounds/layer. Only the cells that differ between the
// old and new range are touched; an absent id is inserted.
func (g *SpatialGrid) Update(id ecs.EntityID, bounds geom.Rect, layer geom.Layer) {
	e, ok := g.entries[id]
	if !ok {
		_ = g.Insert(id, bounds, layer)
		return
	}
	next := g.rangeFor(bounds)
	if next != e.cells {
		old := e.cells
		for y := old.minY; y <= old.maxY; y++ {
			for x := old.minX; x <= old.maxX; x++ {
				if !next.contains(x, y) {
					g.removeFrom(x, y, id)
				}
			}
		}
		for y := next.minY; y <= next.maxY; y++ {
			for x := next.minX; x <= next.maxX; x++ {
				if !old.contains(x, y) {
					g.addTo(x, y, id)
				}
			}
		}
		e.cells = next
	}
	e.bounds = bounds
	e.layer = layer
}

// Has reports whether id is registered.
func (g *SpatialGrid) Has(id ecs.EntityID) bool {
	_, ok := g.entries[id]
	return ok
}

// CellsOf returns the cells currently recording id.
func (g *SpatialGrid) CellsOf(id ecs.EntityID) []CellCoord {
	e, ok := g.entries[id]
	if !ok {
		return nil
	}
	out := make([]CellCoord, 0, 4)
	for y := e.cells.minY; y <= e.cells.maxY; y++ {
		for x := e.cells.minX; x <= e.cells.maxX; x++ {
			if _, in := g.cells[y*g.cols+x][id]; in {
				out = append(out, CellCoord{X: x, Y: y})
			}
		}
	}
	return out
}

// CellMembers returns the ids recorded in cell c.
func (g *SpatialGrid) CellMembers(c CellCoord) []ecs.EntityID {
	if c.X < 0 || c.Y < 0 || c.X >= g.cols || c.Y >= g.rows {
		return nil
	}
	cell := g.cells[c.Y*g.cols+c.X]
	out := make([]ecs.EntityID, 0, len(cell))
	for id := range cell {
		out = append(out, id)
	}
	return out
}

func (g *SpatialGrid) nextStamp() uint32 {
	g.stamp++
	if g.stamp == 0 {
		for _, e := range g.entries {
			e.mark = 0
		}
		g.stamp = 1
	}
	return g.stamp
}

// Query returns every entity whose bounds overlap shape and that passes the
// layer filter, deduplicated across cells. Order is unspecified.
func (g *SpatialGrid) Query(shape geom.Shape, filter LayerFilter) []ecs.EntityID {
	return g.QueryAppend(nil, shape, filter)
}

// QueryAppend is Query appending into buf.
func (g *SpatialGrid) QueryAppend(buf []ecs.EntityID, shape geom.Shape, filter LayerFilter) []ecs.EntityID {
	r := g.rangeFor(shape.Bounds())
	stamp := g.nextStamp()
	for y := r.minY; y <= r.maxY; y++ {
		for x := r.minX; x <= r.maxX; x++ {
			for id := range g.cells[y*g.cols+x] {
				e := g.entries[id]
				if e.mark == stamp {
					continue
				}
				e.mark = stamp
				if !filter.match(e.layer) || !shape.OverlapsRect(e.bounds) {
					continue
				}
				buf = append(buf, id)
			}
		}
	}
	return buf
}

// QueryOutsideCircle returns entities whose bounds centre lies outside c.
// Cells fully inside the circle are skipped without touching their members.
func (g *SpatialGrid) QueryOutsideCircle(c geom.Circle, filter LayerFilter) []ecs.EntityID {
	var out []ecs.EntityID
	stamp := g.nextStamp()
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			idx := y*g.cols + x
			if g.counts[idx] == 0 {
				continue
			}
			cellRect := geom.Rect{
				Min: geom.V(float64(x)*g.cellSize, float64(y)*g.cellSize),
				Max: geom.V(float64(x+1)*g.cellSize, float64(y+1)*g.cellSize),
			}
			if c.ContainsRect(cellRect) {
				continue
			}
			for id := range g.cells[idx] {
				e := g.entries[id]
				if e.mark == stamp {
					continue
				}
				e.mark = stamp
				if filter.match(e.layer) && !c.Contains(e.bounds.Center()) {
					out = append(out, id)
				}
			}
		}
	}
	return out
}

// GridStats summarizes occupancy for diagnostics.
type GridStats struct {
	Cells         int
	OccupiedCells int
	Entities      int
	MaxPerCell    int
	AvgPerCell    float64
}

func (g *SpatialGrid) Stats() GridStats {
	st := GridStats{Cells: len(g.cells), Entities: len(g.entries)}
	total := 0
	for _, n := range g.counts {
		if n == 0 {
			continue
		}
		st.OccupiedCells++
		total += int(n)
		if int(n) > st.MaxPerCell {
			st.MaxPerCell = int(n)
		}
	}
	if st.OccupiedCells > 0 {
		st.AvgPerCell = float64(total) / float64(st.OccupiedCells)
	}
	return st
}
