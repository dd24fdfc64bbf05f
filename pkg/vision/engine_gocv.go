//go:build gocv

package vision

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

func init() {
	RegisterEngine("gocv", func() Engine { return NewGoCVEngine() })
}

// GoCVEngine runs the detection pipeline through OpenCV.
type GoCVEngine struct{}

// NewGoCVEngine creates an OpenCV-backed engine.
func NewGoCVEngine() *GoCVEngine { return &GoCVEngine{} }

// Name implements Engine.
func (e *GoCVEngine) Name() string { return "gocv" }

// Ready implements Engine.
func (e *GoCVEngine) Ready() bool {
	m := gocv.NewMat()
	defer m.Close()
	return m.Ptr() != nil
}

// Detect implements Engine.
func (e *GoCVEngine) Detect(ctx context.Context, img image.Image, p Params) ([]image.Rectangle, error) {
	b := img.Bounds()
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, Intensity(img, p.Channel))
	if err != nil {
		return nil, fmt.Errorf("build intensity mat: %w", err)
	}
	defer src.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(src, &mask, float32(p.Threshold), 255, gocv.ThresholdBinary)

	if p.Margin > 0 {
		size := 2*p.Margin + 1
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: size, Y: size})
		gocv.Dilate(mask, &mask, kernel)
		kernel.Close()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	boxes := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		boxes = append(boxes, gocv.BoundingRect(contours.At(i)))
	}
	return boxes, nil
}
