// Package manual implements freehand rectangle cutting and the move/resize
// commits applied to finished rectangles.
package manual

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/sprite-extractor/pkg/geometry"
	"github.com/menta2k/sprite-extractor/pkg/registry"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

// ErrLocked is returned when the rectangle's mode has sprite locking enabled.
var ErrLocked = errors.New("manual: sprites are locked")

const (
	// MinDrawSize is the extent a new draw must exceed on both axes.
	MinDrawSize = 2
	// MinResize is the smallest width or height a resize may produce.
	MinResize = 5
)

// Cutter turns press/drag/release gestures into registry rectangles.
type Cutter struct {
	reg      *registry.Registry
	dims     types.Dimensions
	settings types.ManualSettings
	prefix   string

	// Locked reports whether rectangles of a given source are locked.
	Locked func(types.Source) bool

	drawing bool
	box     types.Box
}

// New creates a Cutter writing into reg.
func New(reg *registry.Registry, dims types.Dimensions, settings types.ManualSettings, prefix string) *Cutter {
	if prefix == "" {
		prefix = types.DefaultPrefix
	}
	return &Cutter{reg: reg, dims: dims, settings: settings, prefix: prefix}
}

// SetSettings replaces the manual settings.
func (c *Cutter) SetSettings(s types.ManualSettings) { c.settings = s }

// Settings returns the current manual settings.
func (c *Cutter) Settings() types.ManualSettings { return c.settings }

// SetDimensions updates the image bounds used for partial checks.
func (c *Cutter) SetDimensions(d types.Dimensions) { c.dims = d }

// SetPrefix changes the naming prefix.
func (c *Cutter) SetPrefix(p string) { c.prefix = p }

// Drawing reports whether a gesture is in progress.
func (c *Cutter) Drawing() bool { return c.drawing }

// Begin starts a draw gesture at p (image space).
func (c *Cutter) Begin(p types.Point) {
	c.drawing = true
	c.box = types.Box{X: p.X, Y: p.Y}
}

// Drag updates the live box to end at p and returns it, with the aspect
// ratio constraint applied. Extents keep the sign of the drag direction.
func (c *Cutter) Drag(p types.Point) types.Box {
	if !c.drawing {
		return types.Box{}
	}
	w := p.X - c.box.X
	h := p.Y - c.box.Y
	if c.settings.AspectLocked() {
		w, h = ConstrainAspect(w, h, c.settings.AspectRatioX, c.settings.AspectRatioY)
	}
	c.box.W, c.box.H = w, h
	return c.box
}

// Box returns the live box of the current gesture.
func (c *Cutter) Box() types.Box { return c.box }

// Cancel abandons the current gesture.
func (c *Cutter) Cancel() {
	c.drawing = false
	c.box = types.Box{}
}

// End finalizes the gesture. It reports false when the draw was discarded.
func (c *Cutter) End() (types.SpriteRect, bool) {
	if !c.drawing {
		return types.SpriteRect{}, false
	}
	box := c.box
	c.Cancel()
	return c.Finalize(box)
}

// Finalize normalizes box, applies the size and bounds rules and adds the
// result to the registry selected.
func (c *Cutter) Finalize(box types.Box) (types.SpriteRect, bool) {
	b := box.Normalize()
	if b.W <= MinDrawSize || b.H <= MinDrawSize {
		return types.SpriteRect{}, false
	}
	if !c.settings.AllowPartial {
		if !geometry.FromBox(b).Within(float64(c.dims.Width), float64(c.dims.Height)) {
			return types.SpriteRect{}, false
		}
	}
	rect := types.SpriteRect{
		X:      geometry.Round(b.X),
		Y:      geometry.Round(b.Y),
		Width:  geometry.Round(b.W),
		Height: geometry.Round(b.H),
		Name:   c.reg.NextName(c.prefix),
		Source: types.SourceManual,
	}
	return c.reg.Add(rect), true
}

// ConstrainAspect expands whichever of w, h is too small for the ratio rx:ry.
func ConstrainAspect(w, h float64, rx, ry int) (float64, float64) {
	if rx <= 0 || ry <= 0 {
		return w, h
	}
	ratio := float64(rx) / float64(ry)
	signW, signH := sign(w), sign(h)
	absW, absH := math.Abs(w), math.Abs(h)
	if absW > absH*ratio {
		return absW * signW, absW / ratio * signH
	}
	return absH * ratio * signW, absH * signH
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Resize commits the end of a transform gesture. The node's scale factors are
// folded back into width and height, floored at MinResize.
func (c *Cutter) Resize(id string, x, y, scaleX, scaleY float64) (types.SpriteRect, error) {
	cur, ok := c.reg.Get(id)
	if !ok {
		return types.SpriteRect{}, fmt.Errorf("resize %s: %w", id, registry.ErrNotFound)
	}
	if c.locked(cur.Source) {
		return cur, ErrLocked
	}
	w := max(MinResize, geometry.Round(math.Abs(float64(cur.Width)*scaleX)))
	h := max(MinResize, geometry.Round(math.Abs(float64(cur.Height)*scaleY)))
	nx, ny := geometry.Round(x), geometry.Round(y)
	return c.reg.Update(id, registry.Patch{X: &nx, Y: &ny, Width: &w, Height: &h})
}

// Move commits the end of a drag gesture. With overlap prevention on, a
// MANUAL rectangle that would intersect another MANUAL rectangle is not moved;
// the stored (pre-drag) rectangle is returned with committed=false.
func (c *Cutter) Move(id string, x, y float64) (rect types.SpriteRect, committed bool, err error) {
	cur, ok := c.reg.Get(id)
	if !ok {
		return types.SpriteRect{}, false, fmt.Errorf("move %s: %w", id, registry.ErrNotFound)
	}
	if c.locked(cur.Source) {
		return cur, false, ErrLocked
	}
	nx, ny := geometry.Round(x), geometry.Round(y)

	if c.settings.PreventOverlap && cur.Source == types.SourceManual {
		candidate := cur
		candidate.X, candidate.Y = nx, ny
		for _, other := range c.reg.Visible(types.SourceManual) {
			if other.ID == id {
				continue
			}
			if geometry.Overlaps(candidate, other) {
				return cur, false, nil
			}
		}
	}

	updated, err := c.reg.Update(id, registry.Patch{X: &nx, Y: &ny})
	if err != nil {
		return cur, false, err
	}
	return updated, true, nil
}

func (c *Cutter) locked(src types.Source) bool {
	return c.Locked != nil && c.Locked(src)
}
