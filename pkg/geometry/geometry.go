// Package geometry provides the axis-aligned rectangle tests shared by the
// slicing strategies.
package geometry

import (
	"image"
	"math"

	"github.com/menta2k/sprite-extractor/pkg/types"
)

// Rect is an axis-aligned box with floating-point coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FromSprite converts a sprite rectangle.
func FromSprite(r types.SpriteRect) Rect {
	return Rect{X: float64(r.X), Y: float64(r.Y), Width: float64(r.Width), Height: float64(r.Height)}
}

// FromBox converts a drag box, normalizing negative extents.
func FromBox(b types.Box) Rect {
	b = b.Normalize()
	return Rect{X: b.X, Y: b.Y, Width: b.W, Height: b.H}
}

// FromImageRect converts an image.Rectangle.
func FromImageRect(r image.Rectangle) Rect {
	return Rect{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())}
}

// Right returns the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Overlaps reports a strict intersection with positive area. Rectangles that
// only share an edge or a corner do not overlap.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.Width && r.X+r.Width > o.X &&
		r.Y < o.Y+o.Height && r.Y+r.Height > o.Y
}

// Within reports whether r lies entirely inside [0,w]×[0,h].
func (r Rect) Within(w, h float64) bool {
	return r.X >= 0 && r.Y >= 0 && r.Right() <= w && r.Bottom() <= h
}

// Overlaps is the strict AABB test on sprite rectangles.
func Overlaps(a, b types.SpriteRect) bool {
	return a.X < b.X+b.Width && a.X+a.Width > b.X &&
		a.Y < b.Y+b.Height && a.Y+a.Height > b.Y
}

// Within reports whether r is fully contained in the image bounds.
func Within(r types.SpriteRect, dims types.Dimensions) bool {
	return r.X >= 0 && r.Y >= 0 && r.Right() <= dims.Width && r.Bottom() <= dims.Height
}

// Round rounds to the nearest integer with halves going up (-2.5 gives -2).
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Expand grows every side of r by p. Negative p shrinks it.
func Expand(r image.Rectangle, p int) image.Rectangle {
	return image.Rectangle{
		Min: image.Point{X: r.Min.X - p, Y: r.Min.Y - p},
		Max: image.Point{X: r.Max.X + p, Y: r.Max.Y + p},
	}
}
