package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/menta2k/sprite-extractor/pkg/types"
)

// createTestImage creates a transparent sheet with one opaque square.
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := height / 4; y < height/2; y++ {
		for x := width / 4; x < width/2; x++ {
			img.SetNRGBA(x, y, color.NRGBA{40, 80, 120, 255})
		}
	}
	return img
}

func TestLoadImageFromReader(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(40, 20)); err != nil {
		t.Fatal(err)
	}

	img, err := NewProcessor().LoadImageFromReader(&buf)
	if err != nil {
		t.Fatalf("LoadImageFromReader failed: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Errorf("Expected 40x20, got %v", img.Bounds())
	}

	if _, err := NewProcessor().DecodeImage([]byte("not an image")); err == nil {
		t.Error("Expected error for garbage input")
	}
}

func TestSaveAndLoad(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(32, 32)

	for _, format := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "sheet."+format)
		if err := p.SaveImage(img, path, format, 90, true); err != nil {
			t.Fatalf("SaveImage(%s) failed: %v", format, err)
		}
		loaded, err := p.LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s) failed: %v", format, err)
		}
		if loaded.Bounds().Dx() != 32 {
			t.Errorf("%s: expected width 32, got %d", format, loaded.Bounds().Dx())
		}
	}

	if _, err := p.LoadImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadImageFromURLRejectsScheme(t *testing.T) {
	if _, err := NewProcessor().LoadImageFromURL("ftp://example.com/a.png"); err == nil {
		t.Error("Expected unsupported scheme error")
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "png", 100, 85)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("Invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Invalid PNG: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("Expected 100x50 after resize, got %v", img.Bounds())
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	src := createTestImage(64, 64)
	rects := []types.SpriteRect{
		{X: 10, Y: 10, Width: 20, Height: 20, Source: types.SourceGrid},
		{X: 40, Y: 40, Width: 10, Height: 10, Source: types.SourceAuto, Selected: true},
		{X: 60, Y: -5, Width: 20, Height: 20, Source: types.SourceManual},
	}

	out := p.CreateDebugOverlay(src, SpriteLayers(rects)...).(*image.NRGBA)

	if got := out.NRGBAAt(10, 15); got != GridColor {
		t.Errorf("Expected grid color on left edge, got %v", got)
	}
	if got := out.NRGBAAt(45, 40); got != SelectedColor {
		t.Errorf("Expected selected color on top edge, got %v", got)
	}
	if got := out.NRGBAAt(60, 0); got != ManualColor {
		t.Errorf("Expected clipped manual box drawn, got %v", got)
	}
	if got := out.NRGBAAt(20, 20); got == GridColor {
		t.Error("Expected box interior untouched")
	}
	if src.NRGBAAt(10, 15) == GridColor {
		t.Error("Expected source image untouched")
	}
}

func TestSpriteLayersOrder(t *testing.T) {
	layers := SpriteLayers([]types.SpriteRect{
		{Width: 1, Height: 1, Source: types.SourceAuto, Selected: true},
		{Width: 1, Height: 1, Source: types.SourceManual},
	})
	if len(layers) != 2 {
		t.Fatalf("Expected 2 layers, got %d", len(layers))
	}
	if layers[len(layers)-1].Color != SelectedColor {
		t.Error("Expected selection layer drawn last")
	}
}
