// Package geom provides the small set of planar geometry primitives shared by
// the layout, scene and reference-graph packages.
//
// All coordinates are in model units (unscaled pixels) with the origin at the
// top-left corner and y growing downward, matching SVG and most widget
// toolkits. Values are plain structs and safe to copy.
package geom

import "math"

// Point is a location in model space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p with both coordinates multiplied by f.
func (p Point) Scale(f float64) Point { return Point{p.X * f, p.Y * f} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Size is an intrinsic (preferred) width and height.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Valid reports whether neither dimension is negative or NaN.
func (s Size) Valid() bool { return s.W >= 0 && s.H >= 0 }

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// R is shorthand for constructing a Rect.
func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// Min returns the top-left corner.
func (r Rect) Min() Point { return Point{r.X, r.Y} }

// Max returns the bottom-right corner.
func (r Rect) Max() Point { return Point{r.X + r.W, r.Y + r.H} }

// Size returns the rectangle's dimensions.
func (r Rect) Size() Size { return Size{r.W, r.H} }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

// LeftCenter returns the midpoint of the left edge.
func (r Rect) LeftCenter() Point { return Point{r.X, r.Y + r.H/2} }

// RightCenter returns the midpoint of the right edge.
func (r Rect) RightCenter() Point { return Point{r.X + r.W, r.Y + r.H/2} }

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect { return Rect{r.X + dx, r.Y + dy, r.W, r.H} }

// MoveTo returns r with its top-left corner at p.
func (r Rect) MoveTo(p Point) Rect { return Rect{p.X, p.Y, r.W, r.H} }

// Contains reports whether p lies inside r (edges inclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Union returns the smallest rectangle containing both r and s.
// The zero Rect acts as the identity so unions can be accumulated.
func (r Rect) Union(s Rect) Rect {
	if r == (Rect{}) {
		return s
	}
	if s == (Rect{}) {
		return r
	}
	x0, y0 := math.Min(r.X, s.X), math.Min(r.Y, s.Y)
	x1, y1 := math.Max(r.X+r.W, s.X+s.W), math.Max(r.Y+r.H, s.Y+s.H)
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// SegmentDist returns the distance from p to the segment a–b.
func SegmentDist(p, a, b Point) float64 {
	d := b.Sub(a)
	l2 := d.X*d.X + d.Y*d.Y
	if l2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*d.X + (p.Y-a.Y)*d.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(a.Add(d.Scale(t)))
}
