// Package geom holds the screen-space value types shared by the sensor,
// the behavior state machine and the renderer frames.
package geom

import "math"

// Point is a position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Clamp returns the point of r closest to p. An empty rect clamps to its origin.
func (r Rect) Clamp(p Point) Point {
	if r.Empty() {
		return Point{X: r.X, Y: r.Y}
	}
	return Point{
		X: math.Min(math.Max(p.X, r.X), r.X+r.W),
		Y: math.Min(math.Max(p.Y, r.Y), r.Y+r.H),
	}
}

func (r Rect) Center() Point { return Point{X: r.X + r.W/2, Y: r.Y + r.H/2} }

// TopCenter is the middle of the top edge, where a pet perches on a window.
func (r Rect) TopCenter() Point { return Point{X: r.X + r.W/2, Y: r.Y} }

func Distance(a, b Point) float64 { return math.Hypot(b.X-a.X, b.Y-a.Y) }

// MoveToward steps from toward to by at most step pixels. It reports
// whether the destination was reached.
func MoveToward(from, to Point, step float64) (Point, bool) {
	d := Distance(from, to)
	if d <= step || d == 0 {
		return to, true
	}
	if step <= 0 {
		return from, false
	}
	k := step / d
	return Point{X: from.X + (to.X-from.X)*k, Y: from.Y + (to.Y-from.Y)*k}, false
}

// StopShort returns the point on the segment from→to that lies gap pixels
// before to. When from is already within gap, from is returned.
func StopShort(from, to Point, gap float64) Point {
	d := Distance(from, to)
	if d <= gap {
		return from
	}
	k := (d - gap) / d
	return Point{X: from.X + (to.X-from.X)*k, Y: from.Y + (to.Y-from.Y)*k}
}
