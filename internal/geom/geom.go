package geom

import "math"

// Vec2 is a point or direction in world units.
type Vec2 struct {
	X float64
	Y float64
}

func V(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (v Vec2) Add(o Vec2) Vec2       { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2       { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Mul(s float64) Vec2    { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Dot(o Vec2) float64    { return v.X*o.X + v.Y*o.Y }
func (v Vec2) LenSq() float64        { return v.X*v.X + v.Y*v.Y }
func (v Vec2) Len() float64          { return math.Sqrt(v.LenSq()) }
func (v Vec2) DistSq(o Vec2) float64 { return v.Sub(o).LenSq() }
func (v Vec2) Dist(o Vec2) float64   { return v.Sub(o).Len() }

// Normalize returns the unit vector of v, or the zero vector when v is zero.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l < 1e-9 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Lerp interpolates a toward b by t in [0,1].
func Lerp(a, b, t float64) float64 { return a + (b-a)*t }

// LerpVec interpolates component-wise.
func LerpVec(a, b Vec2, t float64) Vec2 {
	return Vec2{Lerp(a.X, b.X, t), Lerp(a.Y, b.Y, t)}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Rect is an axis-aligned box with Min <= Max on both axes.
type Rect struct {
	Min Vec2
	Max Vec2
}

// RectAround builds a rect centred on c with the given half extents.
func RectAround(c Vec2, halfW, halfH float64) Rect {
	return Rect{Min: Vec2{c.X - halfW, c.Y - halfH}, Max: Vec2{c.X + halfW, c.Y + halfH}}
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }
func (r Rect) Center() Vec2 {
	return Vec2{(r.Min.X + r.Max.X) / 2, (r.Min.Y + r.Max.Y) / 2}
}

// Intersects reports whether two boxes overlap. Touching edges count.
func (r Rect) Intersects(o Rect) bool {
	return r.Min.X <= o.Max.X && r.Max.X >= o.Min.X &&
		r.Min.Y <= o.Max.Y && r.Max.Y >= o.Min.Y
}

// Contains reports whether p lies inside r (edges inclusive).
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Translate moves the rect by d.
func (r Rect) Translate(d Vec2) Rect {
	return Rect{Min: r.Min.Add(d), Max: r.Max.Add(d)}
}

// Circle is a disc in world units.
type Circle struct {
	Pos Vec2
	Rad float64
}

// Contains reports whether p is inside or on the circle.
func (c Circle) Contains(p Vec2) bool {
	return c.Pos.DistSq(p) <= c.Rad*c.Rad
}

// ContainsRect reports whether every corner of r is inside the circle.
func (c Circle) ContainsRect(r Rect) bool {
	return c.Contains(r.Min) && c.Contains(r.Max) &&
		c.Contains(Vec2{r.Min.X, r.Max.Y}) && c.Contains(Vec2{r.Max.X, r.Min.Y})
}

// Bounds returns the circle's bounding box.
func (c Circle) Bounds() Rect {
	return RectAround(c.Pos, c.Rad, c.Rad)
}

// Shape is anything that can be tested against a rect for broad-phase
// queries and has a bounding box.
type Shape interface {
	Bounds() Rect
	OverlapsRect(r Rect) bool
}

// Bounds makes Rect satisfy Shape.
func (r Rect) Bounds() Rect { return r }

// OverlapsRect makes Rect satisfy Shape.
func (r Rect) OverlapsRect(o Rect) bool { return r.Intersects(o) }

// OverlapsRect tests the circle against a box using the closest point.
func (c Circle) OverlapsRect(r Rect) bool {
	closest := Vec2{Clamp(c.Pos.X, r.Min.X, r.Max.X), Clamp(c.Pos.Y, r.Min.Y, r.Max.Y)}
	return c.Pos.DistSq(closest) <= c.Rad*c.Rad
}

// Overlaps tests two circles.
func (c Circle) Overlaps(o Circle) bool {
	r := c.Rad + o.Rad
	return c.Pos.DistSq(o.Pos) <= r*r
}

// Hitbox is an entity collision shape expressed relative to the entity
// position. Exactly one of Rect or Radius is meaningful, selected by Round.
type Hitbox struct {
	Round  bool
	Radius float64
	Half   Vec2 // half extents when !Round
}

// CircleHitbox returns a round hitbox.
func CircleHitbox(r float64) Hitbox { return Hitbox{Round: true, Radius: r} }

// BoxHitbox returns an axis-aligned box hitbox with the given size.
func BoxHitbox(w, h float64) Hitbox { return Hitbox{Half: Vec2{w / 2, h / 2}} }

// At places the hitbox at pos and returns the world-space shape.
func (h Hitbox) At(pos Vec2) Shape {
	if h.Round {
		return Circle{Pos: pos, Rad: h.Radius}
	}
	return RectAround(pos, h.Half.X, h.Half.Y)
}

// BoundsAt returns the world-space bounding box of the hitbox at pos.
func (h Hitbox) BoundsAt(pos Vec2) Rect {
	if h.Round {
		return RectAround(pos, h.Radius, h.Radius)
	}
	return RectAround(pos, h.Half.X, h.Half.Y)
}

// RandomPointInCircle maps two uniform samples in [0,1) to a point inside c.
func RandomPointInCircle(c Circle, u1, u2 float64) Vec2 {
	r := c.Rad * math.Sqrt(u1)
	a := u2 * 2 * math.Pi
	return Vec2{c.Pos.X + r*math.Cos(a), c.Pos.Y + r*math.Sin(a)}
}

// Overlap reports whether two shapes intersect.
func Overlap(a, b Shape) bool {
	if c, ok := a.(Circle); ok {
		if o, ok := b.(Circle); ok {
			return c.Overlaps(o)
		}
		return c.OverlapsRect(b.Bounds())
	}
	return b.OverlapsRect(a.Bounds())
}

// Separation returns the smallest translation that moves c out of o, and
// whether the two overlap at all.
func (c Circle) Separation(o Shape) (Vec2, bool) {
	switch s := o.(type) {
	case Circle:
		d := c.Pos.Sub(s.Pos)
		dist := d.Len()
		pen := c.Rad + s.Rad - dist
		if pen <= 0 {
			return Vec2{}, false
		}
		if dist < 1e-9 {
			return Vec2{pen, 0}, true
		}
		return d.Mul(pen / dist), true
	case Rect:
		if s.Contains(c.Pos) {
			// Centre inside: leave through the nearest edge.
			left, right := c.Pos.X-s.Min.X, s.Max.X-c.Pos.X
			down, up := c.Pos.Y-s.Min.Y, s.Max.Y-c.Pos.Y
			switch m := min(left, right, down, up); m {
			case left:
				return Vec2{-(left + c.Rad), 0}, true
			case right:
				return Vec2{right + c.Rad, 0}, true
			case down:
				return Vec2{0, -(down + c.Rad)}, true
			default:
				return Vec2{0, up + c.Rad}, true
			}
		}
		closest := Vec2{Clamp(c.Pos.X, s.Min.X, s.Max.X), Clamp(c.Pos.Y, s.Min.Y, s.Max.Y)}
		d := c.Pos.Sub(closest)
		dist := d.Len()
		if dist >= c.Rad {
			return Vec2{}, false
		}
		return d.Mul((c.Rad - dist) / dist), true
	}
	return Vec2{}, false
}
