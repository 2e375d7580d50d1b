package geom

import (
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestCircleOverlapsRect(t *testing.T) {
	tests := map[string]struct {
		c   Circle
		r   Rect
		exp bool
	}{
		"centre inside":    {Circle{V(5, 5), 1}, Rect{V(0, 0), V(10, 10)}, true},
		"touching edge":    {Circle{V(12, 5), 2}, Rect{V(0, 0), V(10, 10)}, true},
		"corner gap":       {Circle{V(12, 12), 2}, Rect{V(0, 0), V(10, 10)}, false},
		"far away":         {Circle{V(100, 100), 5}, Rect{V(0, 0), V(10, 10)}, false},
		"rect inside disc": {Circle{V(5, 5), 50}, Rect{V(0, 0), V(10, 10)}, true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "overlap", tt.c.OverlapsRect(tt.r), tt.exp)
		})
	}
}

func TestCircleContainsRect(t *testing.T) {
	c := Circle{V(0, 0), 10}
	testutil.AssertEqual(t, "small", c.ContainsRect(Rect{V(-1, -1), V(1, 1)}), true)
	testutil.AssertEqual(t, "corner out", c.ContainsRect(Rect{V(0, 0), V(8, 8)}), false)
}

func TestHitboxBounds(t *testing.T) {
	b := CircleHitbox(2).BoundsAt(V(10, 10))
	testutil.AssertEqual(t, "min x", b.Min.X, 8.0)
	testutil.AssertEqual(t, "max y", b.Max.Y, 12.0)

	b = BoxHitbox(4, 2).BoundsAt(V(0, 0))
	testutil.AssertEqual(t, "box min x", b.Min.X, -2.0)
	testutil.AssertEqual(t, "box max y", b.Max.Y, 1.0)
}

func TestLayerVisibility(t *testing.T) {
	tests := []struct {
		view, obj Layer
		exp       bool
	}{
		{LayerGround, LayerGround, true},
		{LayerGround, LayerBunker, false},
		{LayerBunker, LayerGround, false},
		{LayerGround, LayerBunkerStairs, true},
		{LayerGroundStairs, LayerBunker, true},
		{LayerBunker, LayerBunkerStairs, true},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, "visible", VisibleFrom(tt.view, tt.obj), tt.exp)
	}
	testutil.AssertEqual(t, "same stairs", SameLayer(LayerGroundStairs, LayerBunkerStairs), true)
	testutil.AssertEqual(t, "different floors", SameLayer(LayerGround, LayerBunker), false)
}

func TestNormalizeZero(t *testing.T) {
	n := Vec2{}.Normalize()
	testutil.AssertEqual(t, "x", n.X, 0.0)
	testutil.AssertEqual(t, "y", n.Y, 0.0)
}

func TestCircleSeparation(t *testing.T) {
	c := Circle{V(0, 0), 1}

	push, hit := c.Separation(Circle{V(1.5, 0), 1})
	testutil.AssertEqual(t, "circle hit", hit, true)
	testutil.AssertEqual(t, "circle push x", push.X, -0.5)

	_, hit = c.Separation(Circle{V(3, 0), 1})
	testutil.AssertEqual(t, "circle miss", hit, false)

	push, hit = c.Separation(Rect{V(0.5, -5), V(10, 5)})
	testutil.AssertEqual(t, "rect edge hit", hit, true)
	testutil.AssertEqual(t, "rect edge push", push.X, -0.5)

	push, hit = Circle{V(1, 0), 1}.Separation(Rect{V(0, -5), V(10, 5)})
	testutil.AssertEqual(t, "inside hit", hit, true)
	testutil.AssertEqual(t, "inside push", push.X, -2.0)
}

func TestOverlap(t *testing.T) {
	testutil.AssertEqual(t, "circle circle", Overlap(Circle{V(0, 0), 1}, Circle{V(1.5, 0), 1}), true)
	testutil.AssertEqual(t, "rect circle", Overlap(Rect{V(0, 0), V(1, 1)}, Circle{V(3, 3), 1}), false)
	testutil.AssertEqual(t, "rect rect", Overlap(Rect{V(0, 0), V(2, 2)}, Rect{V(1, 1), V(3, 3)}), true)
}
