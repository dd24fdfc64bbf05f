// Package vision finds sprite candidates in an image by thresholding an
// intensity channel, merging nearby blobs with a square dilation and taking
// the bounding box of every outer blob.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/menta2k/sprite-extractor/pkg/geometry"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

var (
	// ErrEngineUnavailable is returned when the engine is not ready.
	ErrEngineUnavailable = errors.New("vision: detection engine unavailable")
	// ErrEmptyImage is returned for a nil or zero-sized image.
	ErrEmptyImage = errors.New("vision: empty image")
)

// Channel selects which intensity field is thresholded.
type Channel int

const (
	// ChannelAuto uses alpha when the image carries an alpha channel and
	// luminance otherwise.
	ChannelAuto Channel = iota
	// ChannelAlpha always thresholds alpha.
	ChannelAlpha
	// ChannelLuma always thresholds luminance.
	ChannelLuma
)

// Params control a detection run.
type Params struct {
	Threshold int     `json:"threshold"`
	MinArea   int     `json:"min_area"`
	Margin    int     `json:"margin"`
	Padding   int     `json:"padding"`
	Channel   Channel `json:"channel"`
}

// ParamsFromSettings maps the AUTO settings to detection parameters.
func ParamsFromSettings(s types.AutoSettings) Params {
	return Params{
		Threshold: s.Threshold,
		MinArea:   s.MinArea,
		Margin:    s.Margin,
		Padding:   s.Padding,
	}
}

// Engine produces the raw bounding boxes of the outer blobs of img, before
// padding and area filtering. Boxes are relative to img.Bounds().Min.
type Engine interface {
	Name() string
	Ready() bool
	Detect(ctx context.Context, img image.Image, p Params) ([]image.Rectangle, error)
}

// Detector turns engine output into AUTO candidates.
type Detector struct {
	engine Engine
	logger *slog.Logger
}

// New creates a Detector backed by the pure Go engine.
func New() *Detector {
	return NewWithEngine(NewNativeEngine())
}

// NewWithEngine creates a Detector backed by engine.
func NewWithEngine(engine Engine) *Detector {
	return &Detector{engine: engine, logger: slog.Default()}
}

// WithLogger sets the logger used for engine failures.
func (d *Detector) WithLogger(l *slog.Logger) *Detector {
	if l != nil {
		d.logger = l
	}
	return d
}

// Engine returns the engine in use.
func (d *Detector) Engine() Engine { return d.engine }

// Detect returns unselected AUTO candidates named auto_preview_{i}, where i
// is the index of the blob in engine order. It never fails: an unavailable
// engine, a nil image or an engine error yield no candidates and are logged.
func (d *Detector) Detect(ctx context.Context, img image.Image, p Params) []types.SpriteRect {
	rects, err := d.Boxes(ctx, img, p)
	if err != nil {
		d.logger.Warn("auto detection failed", "engine", d.engine.Name(), "error", err)
		return nil
	}
	return rects
}

// Boxes is Detect with the error exposed.
func (d *Detector) Boxes(ctx context.Context, img image.Image, p Params) ([]types.SpriteRect, error) {
	if d.engine == nil || !d.engine.Ready() {
		return nil, ErrEngineUnavailable
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	raw, err := d.engine.Detect(ctx, img, p)
	if err != nil {
		return nil, fmt.Errorf("%s engine: %w", d.engine.Name(), err)
	}

	var out []types.SpriteRect
	for i, r := range raw {
		r = geometry.Expand(r, p.Padding)
		w, h := r.Dx(), r.Dy()
		if w <= 0 || h <= 0 || w*h < p.MinArea {
			continue
		}
		out = append(out, types.SpriteRect{
			X:      r.Min.X,
			Y:      r.Min.Y,
			Width:  w,
			Height: h,
			Name:   fmt.Sprintf("auto_preview_%d", i),
			Source: types.SourceAuto,
		})
	}
	return out, nil
}
