// Package world provides the flat 2D plane agents and shops live on.
// Coordinates are unbounded reals; Bounds only limits where random
// wander targets and seeded entities are drawn.
package world

import "math"

// Reference world size used by the observer client.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Bounds is the rectangle [0,Width) × [0,Height) used for random placement.
type Bounds struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// DefaultBounds returns the 800×600 reference plane.
func DefaultBounds() Bounds {
	return Bounds{Width: DefaultWidth, Height: DefaultHeight}
}

// Distance returns the Euclidean distance between two points.
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// RandomPoint draws an integer-valued point inside b using r.
// Two draws are consumed per call, X first.
func (b Bounds) RandomPoint(r interface{ Float64() float64 }) (x, y float64) {
	x = math.Floor(r.Float64() * b.Width)
	y = math.Floor(r.Float64() * b.Height)
	return x, y
}
