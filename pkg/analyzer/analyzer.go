package analyzer

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/menta2k/sprite-extractor/pkg/types"
	"github.com/menta2k/sprite-extractor/pkg/vision"
)

// SheetAnalyzer loads sprite sheets and reports what the slicers need to
// know about them.
type SheetAnalyzer struct {
	config Config
}

// Config holds configuration for the sheet analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxImageSize     int
}

// New creates a new SheetAnalyzer with default configuration
func New() *SheetAnalyzer {
	return &SheetAnalyzer{
		config: Config{
			SupportedFormats: []string{"png", "jpg", "jpeg", "gif", "webp"},
			MinImageSize:     1,
			MaxImageSize:     16384,
		},
	}
}

// NewWithConfig creates a new SheetAnalyzer with custom configuration
func NewWithConfig(config Config) *SheetAnalyzer {
	return &SheetAnalyzer{config: config}
}

// LoadImage loads an image from file
func (a *SheetAnalyzer) LoadImage(filepath string) (image.Image, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()
	return a.LoadImageFromReader(file)
}

// LoadImageFromReader loads an image from an io.Reader
func (a *SheetAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	return img, nil
}

// ImageInfo contains what is known about a sheet before slicing.
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	HasAlpha    bool    `json:"has_alpha"`
	// ContentBounds is the smallest rectangle holding every non-transparent
	// pixel, relative to the image origin. It is empty for a fully
	// transparent sheet and the whole image when there is no alpha.
	ContentBounds image.Rectangle `json:"content_bounds"`
}

// Dimensions returns the sheet size.
func (i ImageInfo) Dimensions() types.Dimensions {
	return types.Dimensions{Width: i.Width, Height: i.Height}
}

// GetImageInfo returns basic information about an image
func (a *SheetAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:    width,
		Height:   height,
		Area:     width * height,
		HasAlpha: vision.HasAlpha(img),
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	if info.HasAlpha {
		info.ContentBounds = contentBounds(img)
	} else {
		info.ContentBounds = image.Rect(0, 0, width, height)
	}
	return info
}

func contentBounds(img image.Image) image.Rectangle {
	b := img.Bounds()
	alpha := vision.Intensity(img, vision.ChannelAlpha)
	w := b.Dx()
	var out image.Rectangle
	for i, a := range alpha {
		if a == 0 {
			continue
		}
		x, y := i%w, i/w
		out = out.Union(image.Rect(x, y, x+1, y+1))
	}
	return out
}

func (a *SheetAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *SheetAnalyzer) ValidateImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("no image")
	}
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	if a.config.MaxImageSize > 0 && (bounds.Dx() > a.config.MaxImageSize || bounds.Dy() > a.config.MaxImageSize) {
		return fmt.Errorf("image too large: %dx%d (maximum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MaxImageSize)
	}
	return nil
}
