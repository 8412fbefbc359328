// Package geometry provides the point and quadrilateral math shared by document
// detection and cropping.
package geometry

import (
	"image"
	"math"
	"sort"
)

// Corner indices into a Quad.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Point is a 2D position in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// FromImagePoint converts an integer image point.
func FromImagePoint(p image.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

// ImagePoint rounds p to the nearest integer pixel.
func (p Point) ImagePoint() image.Point {
	return image.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Scale multiplies both coordinates by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Quad is a quadrilateral stored as [topLeft, topRight, bottomRight, bottomLeft].
type Quad [4]Point

// OrderCorners returns the four points in canonical winding order.
//
// Points are sorted by Y (then X), the first two form the top edge and the
// last two the bottom edge, and each pair is ordered left to right. The result
// does not depend on the order of the input points.
func OrderCorners(pts [4]Point) Quad {
	sorted := pts
	sort.Slice(sorted[:], func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	top := [2]Point{sorted[0], sorted[1]}
	bottom := [2]Point{sorted[2], sorted[3]}
	if top[1].X < top[0].X {
		top[0], top[1] = top[1], top[0]
	}
	if bottom[1].X < bottom[0].X {
		bottom[0], bottom[1] = bottom[1], bottom[0]
	}

	return Quad{top[0], top[1], bottom[1], bottom[0]}
}

// QuadFromImagePoints orders four integer points into a Quad.
// It returns false unless exactly four points are given.
func QuadFromImagePoints(pts []image.Point) (Quad, bool) {
	if len(pts) != 4 {
		return Quad{}, false
	}
	var in [4]Point
	for i, p := range pts {
		in[i] = FromImagePoint(p)
	}
	return OrderCorners(in), true
}

// Points returns the corners as a slice.
func (q Quad) Points() []Point {
	return q[:]
}

// ImagePoints returns the corners rounded to integer pixels.
func (q Quad) ImagePoints() []image.Point {
	out := make([]image.Point, len(q))
	for i, p := range q {
		out[i] = p.ImagePoint()
	}
	return out
}

// Area returns the absolute polygon area of the quad.
func (q Quad) Area() float64 {
	return PolygonArea(q[:])
}

// IsConvex reports whether the quad is a convex, non-self-intersecting polygon.
func (q Quad) IsConvex() bool {
	return IsConvex(q[:])
}

// Bounds returns the axis-aligned bounding box of the quad.
func (q Quad) Bounds() Rect {
	return BoundingBox(q[:])
}

// Scale multiplies every corner by f.
func (q Quad) Scale(f float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = p.Scale(f)
	}
	return out
}

// OutputSize returns the size of the rectangle a perspective warp of q maps to:
// the longer of the two horizontal edges by the longer of the two vertical edges.
func (q Quad) OutputSize() (width, height int) {
	top := q[TopLeft].Dist(q[TopRight])
	bottom := q[BottomLeft].Dist(q[BottomRight])
	left := q[TopLeft].Dist(q[BottomLeft])
	right := q[TopRight].Dist(q[BottomRight])

	return int(math.Round(math.Max(top, bottom))), int(math.Round(math.Max(left, right)))
}

// PolygonArea returns the absolute area of a simple polygon (shoelace formula).
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

// IsConvex reports whether the closed polygon turns the same way at every
// vertex. Collinear (zero-turn) vertices and self-intersecting outlines fail.
func IsConvex(pts []Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}

	sign := 0
	for i := 0; i < n; i++ {
		a, b, c := pts[i], pts[(i+1)%n], pts[(i+2)%n]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		switch {
		case cross > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case cross < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		default:
			return false
		}
	}

	// A polygon whose turns all agree can still wind more than once; the
	// total turning of a simple convex outline is exactly one revolution.
	var turning float64
	for i := 0; i < n; i++ {
		a, b, c := pts[i], pts[(i+1)%n], pts[(i+2)%n]
		in := math.Atan2(b.Y-a.Y, b.X-a.X)
		out := math.Atan2(c.Y-b.Y, c.X-b.X)
		d := out - in
		for d <= -math.Pi {
			d += 2 * math.Pi
		}
		for d > math.Pi {
			d -= 2 * math.Pi
		}
		turning += d
	}
	return math.Abs(math.Abs(turning)-2*math.Pi) < 1e-6
}

// Rect is an axis-aligned rectangle with float coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// BoundingBox returns [min(x), min(y), max(x)-min(x), max(y)-min(y)] over pts.
func BoundingBox(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// AspectRatio returns W/H, or 0 for a zero-height rect.
func (r Rect) AspectRatio() float64 {
	if r.H == 0 {
		return 0
	}
	return r.W / r.H
}

// ImageRect rounds r to an integer image.Rectangle.
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)),
		int(math.Round(r.Y+r.H)),
	)
}
