// Package geo holds the planar geometry and raster grid primitives shared by
// the pipeline stages. Coordinates are map units with Y increasing north.
package geo

import "math"

// Point is a position in map coordinates.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned extent in map coordinates.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Empty reports whether the extent covers no area.
func (r Rect) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

// Width returns the horizontal span of the extent.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical span of the extent.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Intersect returns the overlap of two extents.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		MinX: math.Max(r.MinX, o.MinX),
		MinY: math.Max(r.MinY, o.MinY),
		MaxX: math.Min(r.MaxX, o.MaxX),
		MaxY: math.Min(r.MaxY, o.MaxY),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// ContainsRect reports whether o lies entirely inside r, within eps.
func (r Rect) ContainsRect(o Rect, eps float64) bool {
	return o.MinX >= r.MinX-eps && o.MinY >= r.MinY-eps &&
		o.MaxX <= r.MaxX+eps && o.MaxY <= r.MaxY+eps
}

// ContainsPoint reports whether p lies inside or on the extent.
func (r Rect) ContainsPoint(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Ring is a closed sequence of vertices. The closing edge from the last
// vertex back to the first is implicit.
type Ring []Point

// SignedArea returns the shoelace area of the ring; positive for
// counter-clockwise winding.
func (rg Ring) SignedArea() float64 {
	if len(rg) < 3 {
		return 0
	}
	var sum float64
	for i := range rg {
		j := (i + 1) % len(rg)
		sum += rg[i].X*rg[j].Y - rg[j].X*rg[i].Y
	}
	return sum / 2
}

// Bounds returns the extent of the ring.
func (rg Ring) Bounds() Rect {
	if len(rg) == 0 {
		return Rect{}
	}
	b := Rect{MinX: rg[0].X, MinY: rg[0].Y, MaxX: rg[0].X, MaxY: rg[0].Y}
	for _, p := range rg[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Polygon is one exterior ring followed by zero or more hole rings.
type Polygon struct {
	Rings []Ring
}

// NewRect returns a rectangular polygon covering the extent.
func NewRect(r Rect) Polygon {
	return Polygon{Rings: []Ring{{
		{r.MinX, r.MinY}, {r.MaxX, r.MinY}, {r.MaxX, r.MaxY}, {r.MinX, r.MaxY},
	}}}
}

// Area returns the polygon area with holes subtracted.
func (p Polygon) Area() float64 {
	if len(p.Rings) == 0 {
		return 0
	}
	area := math.Abs(p.Rings[0].SignedArea())
	for _, hole := range p.Rings[1:] {
		area -= math.Abs(hole.SignedArea())
	}
	if area < 0 {
		return 0
	}
	return area
}

// Bounds returns the extent of the exterior ring.
func (p Polygon) Bounds() Rect {
	if len(p.Rings) == 0 {
		return Rect{}
	}
	return p.Rings[0].Bounds()
}

// ContainsPoint applies the even-odd rule across all rings, so points inside
// a hole are outside the polygon.
func (p Polygon) ContainsPoint(pt Point) bool {
	inside := false
	for _, ring := range p.Rings {
		for i := range ring {
			j := (i + len(ring) - 1) % len(ring)
			pi, pj := ring[i], ring[j]
			if (pi.Y > pt.Y) != (pj.Y > pt.Y) {
				x := pi.X + (pt.Y-pi.Y)*(pj.X-pi.X)/(pj.Y-pi.Y)
				if pt.X < x {
					inside = !inside
				}
			}
		}
	}
	return inside
}

// Coordinates returns the rings as [x,y] pairs for serialization.
func (p Polygon) Coordinates() [][][2]float64 {
	out := make([][][2]float64, len(p.Rings))
	for i, ring := range p.Rings {
		coords := make([][2]float64, len(ring))
		for j, pt := range ring {
			coords[j] = [2]float64{pt.X, pt.Y}
		}
		out[i] = coords
	}
	return out
}

// FromCoordinates rebuilds a polygon from serialized ring coordinates.
func FromCoordinates(coords [][][2]float64) Polygon {
	rings := make([]Ring, len(coords))
	for i, rc := range coords {
		ring := make(Ring, len(rc))
		for j, c := range rc {
			ring[j] = Point{X: c[0], Y: c[1]}
		}
		rings[i] = ring
	}
	return Polygon{Rings: rings}
}
