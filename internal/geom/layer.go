package geom

// Layer is a logical floor. Bit 0 selects ground (0) or underground (1);
// bit 1 marks a stair/transition layer that can see both floors.
type Layer int8

const (
	LayerGround       Layer = 0
	LayerBunker       Layer = 1
	LayerGroundStairs Layer = 2
	LayerBunkerStairs Layer = 3
)

func (l Layer) floor() Layer  { return l & 1 }
func (l Layer) stairs() bool { return l&2 != 0 }

// SameLayer reports whether two entities occupy the same floor, or either
// of them is on a transition layer.
func SameLayer(a, b Layer) bool {
	return a.floor() == b.floor() || (a.stairs() && b.stairs())
}

// VisibleFrom reports whether an entity on obj can be seen by a viewer on
// view. Entities on stairs are visible from both floors.
func VisibleFrom(view, obj Layer) bool {
	if view.floor() == obj.floor() {
		return true
	}
	return view.stairs() || obj.stairs()
}
