// Package viewport maps between screen and image coordinates under pan and zoom.
package viewport

import (
	"github.com/menta2k/sprite-extractor/pkg/types"
)

const (
	// ZoomStep is the multiplicative change applied per wheel tick.
	ZoomStep = 1.1
	// MinScale and MaxScale bound the zoom level.
	MinScale = 0.1
	MaxScale = 20.0
)

// Viewport holds the current pan offset and scale.
type Viewport struct {
	Scale float64     `json:"scale"`
	Pan   types.Point `json:"pan"`
}

// New returns an identity viewport.
func New() *Viewport {
	return &Viewport{Scale: 1}
}

// Reset restores scale 1 and zero pan.
func (v *Viewport) Reset() {
	v.Scale = 1
	v.Pan = types.Point{}
}

// ToImage converts a screen point to image space.
func (v *Viewport) ToImage(screen types.Point) types.Point {
	return types.Point{
		X: (screen.X - v.Pan.X) / v.Scale,
		Y: (screen.Y - v.Pan.Y) / v.Scale,
	}
}

// ToScreen converts an image point to screen space.
func (v *Viewport) ToScreen(img types.Point) types.Point {
	return types.Point{
		X: img.X*v.Scale + v.Pan.X,
		Y: img.Y*v.Scale + v.Pan.Y,
	}
}

// Zoom applies one wheel tick anchored at pointer. A positive direction zooms
// in. Steps that would leave [MinScale, MaxScale] are ignored and Zoom
// returns false.
func (v *Viewport) Zoom(pointer types.Point, direction int) bool {
	if direction == 0 {
		return false
	}
	next := v.Scale / ZoomStep
	if direction > 0 {
		next = v.Scale * ZoomStep
	}
	if next < MinScale || next > MaxScale {
		return false
	}
	v.ZoomTo(pointer, next)
	return true
}

// ZoomTo sets the scale while keeping the image point under pointer fixed.
func (v *Viewport) ZoomTo(pointer types.Point, scale float64) {
	anchor := v.ToImage(pointer)
	v.Scale = scale
	v.Pan = types.Point{
		X: pointer.X - anchor.X*scale,
		Y: pointer.Y - anchor.Y*scale,
	}
}

// PanBy moves the view by a screen-space delta.
func (v *Viewport) PanBy(dx, dy float64) {
	v.Pan.X += dx
	v.Pan.Y += dy
}

// FocusOn centres r in a viewport of the given screen size, keeping the
// current scale.
func (v *Viewport) FocusOn(r types.SpriteRect, screenW, screenH float64) {
	cx := float64(r.X) + float64(r.Width)/2
	cy := float64(r.Y) + float64(r.Height)/2
	v.Pan = types.Point{
		X: screenW/2 - cx*v.Scale,
		Y: screenH/2 - cy*v.Scale,
	}
}

// DragBox converts two screen points into an image-space drag box.
func (v *Viewport) DragBox(start, end types.Point) types.Box {
	a := v.ToImage(start)
	b := v.ToImage(end)
	return types.Box{X: a.X, Y: a.Y, W: b.X - a.X, H: b.Y - a.Y}
}
