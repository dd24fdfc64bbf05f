// Package export crops finalized sprite rectangles out of a sheet and writes
// them as individual files, a directory or a ZIP archive with a manifest.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/sprite-extractor/internal/utils"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

// ErrEmptyCrop is returned when a rectangle does not intersect the image.
var ErrEmptyCrop = errors.New("export: rectangle does not intersect the image")

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpg"
	WebP Format = "webp"
)

// ParseFormat accepts png, jpg, jpeg and webp in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png", "":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// Options control encoding and archive layout.
type Options struct {
	Format   Format `json:"format" yaml:"format"`
	Quality  int    `json:"quality" yaml:"quality"`
	Lossless bool   `json:"lossless" yaml:"lossless"`
	// Folder is the directory inside the archive holding the sprites.
	Folder string `json:"folder" yaml:"folder"`
	// Manifest is "json", "yaml" or empty for none.
	Manifest string `json:"manifest" yaml:"manifest"`
}

// DefaultOptions exports PNG files under sprites/ with a JSON manifest.
func DefaultOptions() Options {
	return Options{Format: PNG, Quality: 90, Folder: "sprites", Manifest: "json"}
}

// Entry describes one written sprite.
type Entry struct {
	ID     string       `json:"id" yaml:"id"`
	Name   string       `json:"name" yaml:"name"`
	File   string       `json:"file" yaml:"file"`
	X      int          `json:"x" yaml:"x"`
	Y      int          `json:"y" yaml:"y"`
	Width  int          `json:"width" yaml:"width"`
	Height int          `json:"height" yaml:"height"`
	Source types.Source `json:"source" yaml:"source"`
}

// Skip records a sprite that could not be written.
type Skip struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Reason string `json:"reason" yaml:"reason"`
}

// Result lists what an export wrote and what it skipped.
type Result struct {
	Entries []Entry `json:"entries" yaml:"entries"`
	Skipped []Skip  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Manifest is the document written next to the sprites.
type Manifest struct {
	Image   types.Dimensions `json:"image" yaml:"image"`
	Sprites []Entry          `json:"sprites" yaml:"sprites"`
}

// Crop copies the area of r out of img into a new image of r's size. Parts
// of r outside the image stay transparent.
func Crop(img image.Image, r types.SpriteRect) (*image.NRGBA, error) {
	b := img.Bounds()
	want := image.Rect(b.Min.X+r.X, b.Min.Y+r.Y, b.Min.X+r.Right(), b.Min.Y+r.Bottom())
	inter := want.Intersect(b)
	if inter.Empty() || r.Width <= 0 || r.Height <= 0 {
		return nil, ErrEmptyCrop
	}
	part := imaging.Crop(img, inter)
	if inter == want {
		return part, nil
	}
	canvas := imaging.New(r.Width, r.Height, color.NRGBA{})
	return imaging.Paste(canvas, part, inter.Min.Sub(want.Min)), nil
}

// Thumbnail crops r and fits it into a size×size box with nearest-neighbour
// scaling, keeping pixel art crisp.
func Thumbnail(img image.Image, r types.SpriteRect, size int) (*image.NRGBA, error) {
	c, err := Crop(img, r)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return c, nil
	}
	return imaging.Fit(c, size, size, imaging.NearestNeighbor), nil
}

// Encode writes img in the configured format.
func Encode(w io.Writer, img image.Image, opts Options) error {
	switch opts.Format {
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality(opts)))
	case WebP:
		return webp.Encode(w, img, &webp.Options{Lossless: opts.Lossless, Quality: float32(quality(opts))})
	default:
		return imaging.Encode(w, img, imaging.PNG)
	}
}

// ExportOne crops r and encodes it to w.
func ExportOne(w io.Writer, img image.Image, r types.SpriteRect, opts Options) error {
	c, err := Crop(img, r)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Name, err)
	}
	if err := Encode(w, c, opts); err != nil {
		return fmt.Errorf("encode %s: %w", r.Name, err)
	}
	return nil
}

// sink receives one encoded file per call.
type sink interface {
	create(name string) (io.Writer, func() error, error)
}

// ExportAll writes every rect into a ZIP archive. Sprites that fail to crop
// or encode are skipped and reported; they do not abort the archive.
func ExportAll(ctx context.Context, w io.Writer, img image.Image, rects []types.SpriteRect, opts Options) (Result, error) {
	zw := zip.NewWriter(w)
	res, err := export(ctx, zipSink{zw}, img, rects, opts, opts.Folder)
	if err != nil {
		zw.Close()
		return res, err
	}
	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("finish archive: %w", err)
	}
	return res, nil
}

// ExportDir writes every rect as a file under dir.
func ExportDir(ctx context.Context, dir string, img image.Image, rects []types.SpriteRect, opts Options) (Result, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}
	return export(ctx, dirSink{dir}, img, rects, opts, "")
}

func export(ctx context.Context, out sink, img image.Image, rects []types.SpriteRect, opts Options, folder string) (Result, error) {
	if img == nil {
		return Result{}, errors.New("export: no image")
	}
	if opts.Format == "" {
		opts.Format = PNG
	}

	var res Result
	used := map[string]int{}
	for _, r := range rects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		file := path.Join(folder, FileName(r.Name, string(opts.Format), used))
		if err := writeOne(out, file, img, r, opts); err != nil {
			slog.Warn("sprite skipped", "name", r.Name, "error", err)
			res.Skipped = append(res.Skipped, Skip{ID: r.ID, Name: r.Name, Reason: err.Error()})
			continue
		}
		res.Entries = append(res.Entries, Entry{
			ID: r.ID, Name: r.Name, File: file,
			X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Source: r.Source,
		})
	}

	if opts.Manifest != "" {
		b := img.Bounds()
		m := Manifest{Image: types.Dimensions{Width: b.Dx(), Height: b.Dy()}, Sprites: res.Entries}
		if err := writeManifest(out, m, opts.Manifest); err != nil {
			return res, err
		}
	}
	return res, nil
}

func writeOne(out sink, file string, img image.Image, r types.SpriteRect, opts Options) error {
	c, err := Crop(img, r)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, c, opts); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	w, done, err := out.create(file)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		done()
		return fmt.Errorf("write %s: %w", file, err)
	}
	return done()
}

func writeManifest(out sink, m Manifest, kind string) error {
	var (
		data []byte
		err  error
		name string
	)
	switch strings.ToLower(kind) {
	case "yaml", "yml":
		name = "manifest.yaml"
		data, err = yaml.Marshal(m)
	case "json":
		name = "manifest.json"
		data, err = json.MarshalIndent(m, "", "  ")
	default:
		return fmt.Errorf("unsupported manifest format: %s", kind)
	}
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	w, done, err := out.create(name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		done()
		return fmt.Errorf("write manifest: %w", err)
	}
	return done()
}

// FileName returns a sanitized, unique file name for a sprite. used tracks
// names already handed out.
func FileName(name, ext string, used map[string]int) string {
	base := utils.SanitizeFilename(name)
	if base == "" {
		base = types.DefaultPrefix
	}
	key := strings.ToLower(base)
	used[key]++
	n := used[key]
	if n == 1 {
		return base + "." + ext
	}
	candidate := fmt.Sprintf("%s_%d", base, n)
	for used[strings.ToLower(candidate)] > 0 {
		n++
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	used[key] = n
	used[strings.ToLower(candidate)]++
	return candidate + "." + ext
}

func quality(opts Options) int {
	if opts.Quality <= 0 || opts.Quality > 100 {
		return 90
	}
	return opts.Quality
}

type zipSink struct{ zw *zip.Writer }

func (s zipSink) create(name string) (io.Writer, func() error, error) {
	w, err := s.zw.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("add %s: %w", name, err)
	}
	return w, func() error { return nil }, nil
}

type dirSink struct{ dir string }

func (s dirSink) create(name string) (io.Writer, func() error, error) {
	f, err := os.Create(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
