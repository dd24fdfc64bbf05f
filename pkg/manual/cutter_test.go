package manual

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/sprite-extractor/pkg/registry"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

func newCutter(settings types.ManualSettings) (*Cutter, *registry.Registry) {
	reg := registry.New()
	return New(reg, types.Dimensions{Width: 200, Height: 100}, settings, "sprite"), reg
}

func draw(c *Cutter, x0, y0, x1, y1 float64) (types.SpriteRect, bool) {
	c.Begin(types.Point{X: x0, Y: y0})
	c.Drag(types.Point{X: x1, Y: y1})
	return c.End()
}

func TestDrawInBounds(t *testing.T) {
	c, reg := newCutter(types.DefaultManualSettings())

	rect, ok := draw(c, 10.4, 20.6, 50.2, 60.5)
	if !ok {
		t.Fatal("Expected draw to be accepted")
	}
	if rect.X != 10 || rect.Y != 21 || rect.Width != 40 || rect.Height != 40 {
		t.Errorf("Unexpected rounded rect %+v", rect)
	}
	if rect.Name != "sprite_1" || rect.Source != types.SourceManual || !rect.Selected {
		t.Errorf("Unexpected metadata %+v", rect)
	}
	if reg.Len() != 1 {
		t.Errorf("Expected exactly one rect, got %d", reg.Len())
	}
}

func TestDrawNormalizesReverseDrag(t *testing.T) {
	c, _ := newCutter(types.DefaultManualSettings())

	rect, ok := draw(c, 80, 90, 20, 30)
	if !ok {
		t.Fatal("Expected reverse draw to be accepted")
	}
	if rect.X != 20 || rect.Y != 30 || rect.Width != 60 || rect.Height != 60 {
		t.Errorf("Expected {20 30 60 60}, got %+v", rect)
	}
}

func TestDrawDiscardsDegenerate(t *testing.T) {
	c, reg := newCutter(types.DefaultManualSettings())

	if _, ok := draw(c, 10, 10, 12, 50); ok {
		t.Error("Expected 2px wide draw to be discarded")
	}
	if _, ok := draw(c, 10, 10, 50, 11); ok {
		t.Error("Expected 1px tall draw to be discarded")
	}
	if reg.Len() != 0 {
		t.Errorf("Expected no rects, got %d", reg.Len())
	}
}

func TestDrawOutOfBounds(t *testing.T) {
	c, reg := newCutter(types.DefaultManualSettings())

	if _, ok := draw(c, 180, 10, 220, 50); ok {
		t.Error("Expected out-of-bounds draw to be rejected without clipping")
	}
	if reg.Len() != 0 {
		t.Fatalf("Expected no rects, got %d", reg.Len())
	}

	s := types.DefaultManualSettings()
	s.AllowPartial = true
	c.SetSettings(s)
	rect, ok := draw(c, 180, -10, 220, 50)
	if !ok {
		t.Fatal("Expected partial draw to be accepted")
	}
	if rect.X != 180 || rect.Y != -10 || rect.Width != 40 || rect.Height != 60 {
		t.Errorf("Expected unclipped rect, got %+v", rect)
	}
}

func TestAspectLock16by9(t *testing.T) {
	s := types.DefaultManualSettings()
	s.MaintainAspectRatio = true
	s.AspectRatioX, s.AspectRatioY = 16, 9
	s.AllowPartial = true
	c, _ := newCutter(s)

	rect, ok := draw(c, 0, 0, 100, 40)
	if !ok {
		t.Fatal("Expected locked draw to be accepted")
	}
	ratio := float64(rect.Width) / float64(rect.Height)
	if math.Abs(ratio-16.0/9.0) > 0.02 {
		t.Errorf("Expected ratio ~1.778, got %f (%dx%d)", ratio, rect.Width, rect.Height)
	}
	if rect.Width != 100 || rect.Height != 56 {
		t.Errorf("Expected 100x56, got %dx%d", rect.Width, rect.Height)
	}
}

func TestConstrainAspectKeepsDirection(t *testing.T) {
	w, h := ConstrainAspect(-30, 90, 2, 1)
	if w != -180 || h != 90 {
		t.Errorf("Expected (-180, 90), got (%f, %f)", w, h)
	}
	w, h = ConstrainAspect(100, -10, 1, 1)
	if w != 100 || h != -100 {
		t.Errorf("Expected (100, -100), got (%f, %f)", w, h)
	}
}

func TestResize(t *testing.T) {
	c, reg := newCutter(types.DefaultManualSettings())
	rect, _ := draw(c, 10, 10, 50, 50)

	got, err := c.Resize(rect.ID, 12.6, 9.2, 1.5, 0.05)
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if got.X != 13 || got.Y != 9 || got.Width != 60 || got.Height != 5 {
		t.Errorf("Expected {13 9 60 5}, got %+v", got)
	}

	got, _ = c.Resize(rect.ID, 13, 9, -2, 1)
	if got.Width != 120 {
		t.Errorf("Expected negative scale to use its magnitude, got width %d", got.Width)
	}

	if _, err := c.Resize("missing", 0, 0, 1, 1); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	_ = reg
}

func TestMovePreventOverlap(t *testing.T) {
	s := types.DefaultManualSettings()
	s.PreventOverlap = true
	c, reg := newCutter(s)

	a, _ := draw(c, 0, 0, 20, 20)
	b, _ := draw(c, 50, 0, 70, 20)

	got, committed, err := c.Move(b.ID, 10.3, 5)
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if committed {
		t.Error("Expected overlapping move to be rolled back")
	}
	if got.X != 50 || got.Y != 0 {
		t.Errorf("Expected original position (50,0), got (%d,%d)", got.X, got.Y)
	}
	if stored, _ := reg.Get(b.ID); stored.X != 50 {
		t.Errorf("Expected stored rect untouched, got X=%d", stored.X)
	}

	got, committed, _ = c.Move(b.ID, 20, 0)
	if !committed || got.X != 20 {
		t.Errorf("Expected edge-touching move to commit, got committed=%v X=%d", committed, got.X)
	}
	_ = a
}

func TestMoveWithoutPreventOverlap(t *testing.T) {
	c, _ := newCutter(types.DefaultManualSettings())
	draw(c, 0, 0, 20, 20)
	b, _ := draw(c, 50, 0, 70, 20)

	got, committed, _ := c.Move(b.ID, 5.5, 5.4)
	if !committed || got.X != 6 || got.Y != 5 {
		t.Errorf("Expected committed move to (6,5), got committed=%v %+v", committed, got)
	}
}

func TestLocked(t *testing.T) {
	c, _ := newCutter(types.DefaultManualSettings())
	rect, _ := draw(c, 0, 0, 20, 20)
	c.Locked = func(src types.Source) bool { return src == types.SourceManual }

	if _, _, err := c.Move(rect.ID, 30, 30); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked from Move, got %v", err)
	}
	if _, err := c.Resize(rect.ID, 0, 0, 2, 2); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked from Resize, got %v", err)
	}
}
