package spriteextractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/menta2k/sprite-extractor/internal/config"
	"github.com/menta2k/sprite-extractor/pkg/export"
	"github.com/menta2k/sprite-extractor/pkg/manual"
	"github.com/menta2k/sprite-extractor/pkg/naming"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

// createTestImage creates a transparent sheet with two opaque sprites:
// 10x10 at (4,4) and 20x16 at (30,4).
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	fill := func(r image.Rectangle) {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetNRGBA(x, y, color.NRGBA{200, 50, 50, 255})
			}
		}
	}
	fill(image.Rect(4, 4, 14, 14))
	fill(image.Rect(30, 4, 50, 20))
	return img
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.PreviewDelay = time.Hour
	s := NewWithOptions(opts)
	t.Cleanup(s.Close)
	if err := s.SetImage(createTestImage(64, 32)); err != nil {
		t.Fatalf("SetImage failed: %v", err)
	}
	return s
}

func TestAutoGenerateNaming(t *testing.T) {
	s := newTestSession(t)
	if err := s.SetMode(types.SourceAuto); err != nil {
		t.Fatal(err)
	}

	for run := 0; run < 2; run++ {
		n, err := s.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if n != 2 {
			t.Fatalf("Expected 2 sprites per run, got %d", n)
		}
	}

	rects := s.AllRects()
	for i, r := range rects {
		want := fmt.Sprintf("sprite_%d", i+1)
		if r.Name != want {
			t.Errorf("Expected %s, got %s", want, r.Name)
		}
		if r.Selected || r.Source != types.SourceAuto {
			t.Errorf("Expected unselected AUTO rect, got %+v", r)
		}
	}
	if rects[0].X != 4 || rects[0].Width != 10 {
		t.Errorf("Expected first sprite at x=4 w=10, got %+v", rects[0])
	}
}

func TestAutoPreviewDebounced(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceAuto)
	if !s.PreviewPending() {
		t.Fatal("Expected entering AUTO to schedule a preview")
	}
	s.WaitPreview()
	if got := len(s.Preview()); got != 2 {
		t.Fatalf("Expected 2 preview candidates, got %d", got)
	}

	auto := s.AutoSettings()
	auto.MinArea = 200
	if err := s.SetAutoSettings(auto); err != nil {
		t.Fatal(err)
	}
	if !s.PreviewPending() {
		t.Fatal("Expected settings change to schedule a preview")
	}
	s.WaitPreview()
	if got := len(s.Preview()); got != 1 {
		t.Errorf("Expected 1 preview candidate above min area, got %d", got)
	}

	auto.AllowPartial = true
	s.SetAutoSettings(auto)
	if s.PreviewPending() {
		t.Error("Expected non-detection setting not to schedule a preview")
	}
}

func TestRefreshPreview(t *testing.T) {
	s := newTestSession(t)
	cands, err := s.RefreshPreview(context.Background())
	if err != nil {
		t.Fatalf("RefreshPreview failed: %v", err)
	}
	if len(cands) != 2 || cands[0].Name != "auto_preview_0" {
		t.Errorf("Expected 2 placeholder-named candidates, got %+v", cands)
	}
}

func TestSetAutoSettingsValidation(t *testing.T) {
	s := newTestSession(t)
	auto := s.AutoSettings()
	auto.Threshold = 255
	if err := s.SetAutoSettings(auto); err == nil {
		t.Error("Expected threshold validation error")
	}
}

func TestGridGenerate(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)

	n, err := s.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 cells of 32x32 on 64x32, got %d", n)
	}
	if len(s.Rects()) != 2 {
		t.Errorf("Expected 2 visible rects in GRID mode, got %d", len(s.Rects()))
	}

	s.SetMode(types.SourceManual)
	if len(s.Rects()) != 0 {
		t.Errorf("Expected no GRID rects visible in MANUAL mode, got %d", len(s.Rects()))
	}
	if len(s.AllRects()) != 2 {
		t.Errorf("Expected 2 rects overall, got %d", len(s.AllRects()))
	}

	plan, err := s.GridPlan()
	if err != nil || plan.Columns != 2 || plan.Rows != 1 {
		t.Errorf("Expected 2x1 plan, got %+v (%v)", plan, err)
	}
}

func TestGridInvalidGeometry(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)
	g := s.GridSettings()
	g.Width = 0
	s.SetGridSettings(g)
	if _, err := s.Generate(context.Background()); err == nil {
		t.Error("Expected invalid geometry error")
	}
	if len(s.AllRects()) != 0 {
		t.Error("Expected nothing inserted")
	}
}

func TestPickBoxRequiresSelect(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)
	box := types.Box{X: 10, Y: 10, W: 30, H: 5}

	if _, err := s.PickBox(box); !errors.Is(err, ErrWrongInteraction) {
		t.Fatalf("Expected ErrWrongInteraction, got %v", err)
	}

	g := s.GridSettings()
	g.InteractionMode = types.InteractSelect
	s.SetGridSettings(g)
	n, err := s.PickBox(box)
	if err != nil {
		t.Fatalf("PickBox failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 cells under the box, got %d", n)
	}
	if len(s.Selected()) != 2 {
		t.Errorf("Expected picked cells selected, got %d", len(s.Selected()))
	}
}

func TestAutoPickBox(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceAuto)
	a := s.AutoSettings()
	a.InteractionMode = types.InteractSelect
	s.SetAutoSettings(a)

	// Touches the first sprite's right edge only, overlaps the second.
	n, err := s.PickBox(types.Box{X: 14, Y: 0, W: 20, H: 10})
	if err != nil {
		t.Fatalf("PickBox failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected only the overlapped sprite, got %d", n)
	}
}

func TestManualCut(t *testing.T) {
	s := newTestSession(t)
	if err := s.BeginCut(types.Point{X: 2, Y: 2}); err != nil {
		t.Fatal(err)
	}
	s.DragCut(types.Point{X: 20, Y: 12})
	r, ok := s.EndCut()
	if !ok {
		t.Fatal("Expected cut to be kept")
	}
	if r.X != 2 || r.Y != 2 || r.Width != 18 || r.Height != 10 {
		t.Errorf("Unexpected rect %+v", r)
	}
	if r.Name != "sprite_1" || !r.Selected || r.Source != types.SourceManual {
		t.Errorf("Expected selected MANUAL sprite_1, got %+v", r)
	}

	if _, err := s.Generate(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported for manual generate, got %v", err)
	}

	s.SetMode(types.SourceGrid)
	if err := s.BeginCut(types.Point{}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported outside MANUAL, got %v", err)
	}
}

func TestLockSprites(t *testing.T) {
	s := newTestSession(t)
	s.BeginCut(types.Point{X: 0, Y: 0})
	s.DragCut(types.Point{X: 10, Y: 10})
	r, _ := s.EndCut()

	m := s.ManualSettings()
	m.LockSprites = true
	s.SetManualSettings(m)

	if _, _, err := s.Move(r.ID, 20, 20); !errors.Is(err, manual.ErrLocked) {
		t.Errorf("Expected ErrLocked on move, got %v", err)
	}
	if _, err := s.Resize(r.ID, 0, 0, 2, 2); !errors.Is(err, manual.ErrLocked) {
		t.Errorf("Expected ErrLocked on resize, got %v", err)
	}
}

func TestSetImageClears(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceAuto)
	s.Generate(context.Background())
	s.Viewport().PanBy(10, 10)

	if err := s.SetImage(createTestImage(32, 32)); err != nil {
		t.Fatal(err)
	}
	if len(s.AllRects()) != 0 {
		t.Errorf("Expected registry cleared, got %d", len(s.AllRects()))
	}
	if len(s.Preview()) != 0 {
		t.Error("Expected preview cleared")
	}
	if s.Viewport().Pan.X != 0 {
		t.Error("Expected viewport reset")
	}
	if d := s.Dimensions(); d.Width != 32 {
		t.Errorf("Expected width 32, got %d", d.Width)
	}
}

func TestNoImage(t *testing.T) {
	s := New()
	defer s.Close()
	if _, err := s.Generate(context.Background()); !errors.Is(err, ErrNoImage) {
		t.Errorf("Expected ErrNoImage, got %v", err)
	}
	if err := s.BeginCut(types.Point{}); !errors.Is(err, ErrNoImage) {
		t.Errorf("Expected ErrNoImage, got %v", err)
	}
	if err := s.SetImage(nil); err == nil {
		t.Error("Expected error for nil image")
	}
}

func TestRenameAndDelete(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)
	s.Generate(context.Background())
	rects := s.AllRects()

	if _, err := s.Rename(rects[0].ID, "  "); err == nil {
		t.Error("Expected error for blank name")
	}
	r, err := s.Rename(rects[0].ID, "floor_tile")
	if err != nil || r.Name != "floor_tile" {
		t.Errorf("Expected rename, got %+v (%v)", r, err)
	}

	s.SelectAll()
	if got := s.DeleteSelected(); got != 2 {
		t.Errorf("Expected 2 deleted, got %d", got)
	}
}

func TestExport(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)
	s.Generate(context.Background())

	var buf bytes.Buffer
	res, err := s.Export(context.Background(), &buf, export.DefaultOptions())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(res.Entries) != 2 || buf.Len() == 0 {
		t.Errorf("Expected 2 exported sprites, got %+v", res)
	}

	th, err := s.Thumbnail(s.AllRects()[0].ID, 16)
	if err != nil || th.Bounds().Dx() != 16 {
		t.Errorf("Expected 16px thumbnail, got %v (%v)", th, err)
	}
}

func TestDebugOverlay(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)
	s.Generate(context.Background())
	out, err := s.DebugOverlay()
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds() != image.Rect(0, 0, 64, 32) {
		t.Errorf("Expected overlay of sheet size, got %v", out.Bounds())
	}
}

func TestFocus(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)
	s.Generate(context.Background())
	id := s.AllRects()[1].ID
	if err := s.Focus(id, 200, 100); err != nil {
		t.Fatal(err)
	}
	// Cell centre (48,16) lands at the screen centre.
	if p := s.Viewport().ToScreen(types.Point{X: 48, Y: 16}); p.X != 100 || p.Y != 50 {
		t.Errorf("Expected centred rect, got %+v", p)
	}
	if err := s.Focus("missing", 1, 1); err == nil {
		t.Error("Expected error for unknown id")
	}
}

type stubNamer struct{}

func (stubNamer) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "", nil
}

func (stubNamer) NameSprites(ctx context.Context, model, prompt string, images []string) ([]string, error) {
	out := make([]string, len(images))
	for i := range out {
		out[i] = fmt.Sprintf("tile_%c", 'a'+i)
	}
	return out, nil
}

func TestAutoName(t *testing.T) {
	s := newTestSession(t)
	s.SetMode(types.SourceGrid)
	s.Generate(context.Background())

	namer := naming.NewNamer(stubNamer{}, "test")
	namer.RateLimit = 0
	n, err := s.AutoName(context.Background(), namer, "floor tiles", false)
	if err != nil {
		t.Fatalf("AutoName failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 renamed, got %d", n)
	}
	if got := s.AllRects()[1].Name; got != "tile_b" {
		t.Errorf("Expected tile_b, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Preferences.Mode = "grid"
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig failed: %v", err)
	}
	if opts.Mode != types.SourceGrid || opts.Engine == nil || opts.PreviewDelay != 300*time.Millisecond {
		t.Errorf("Unexpected options %+v", opts)
	}

	cfg.Preview.Engine = "missing"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("Expected unknown engine error")
	}
}
