// Package spriteextractor cuts sprite sheets into named rectangles.
//
// A Session owns one loaded sheet and the list of rectangles cut from it.
// Rectangles come from three strategies that share one registry:
//
//   - MANUAL: freehand press/drag/release cuts with optional aspect lock
//   - GRID: regular cells from a fixed cell size or a row/column count
//   - AUTO: connected regions of the alpha (or luminance) channel
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		spriteextractor "github.com/menta2k/sprite-extractor"
//		"github.com/menta2k/sprite-extractor/pkg/export"
//		"github.com/menta2k/sprite-extractor/pkg/types"
//	)
//
//	func main() {
//		s := spriteextractor.New()
//		defer s.Close()
//
//		if err := s.LoadImage("sheet.png"); err != nil {
//			log.Fatal(err)
//		}
//		if err := s.SetMode(types.SourceAuto); err != nil {
//			log.Fatal(err)
//		}
//		n, err := s.Generate(context.Background())
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("found %d sprites", n)
//
//		f, _ := os.Create("sprites.zip")
//		defer f.Close()
//		if _, err := s.Export(context.Background(), f, export.DefaultOptions()); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// GRID and AUTO support two interaction modes. GENERATE adds every cell or
// detected region at once through Generate. SELECT adds only those under a
// drag box through PickBox, selected.
//
// AUTO keeps a preview of detected regions. Changing AUTO settings schedules
// a debounced recomputation off the caller's goroutine; RefreshPreview and
// WaitPreview give synchronous control.
package spriteextractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/menta2k/sprite-extractor/internal/config"
	"github.com/menta2k/sprite-extractor/pkg/analyzer"
	"github.com/menta2k/sprite-extractor/pkg/export"
	"github.com/menta2k/sprite-extractor/pkg/grid"
	"github.com/menta2k/sprite-extractor/pkg/manual"
	"github.com/menta2k/sprite-extractor/pkg/naming"
	"github.com/menta2k/sprite-extractor/pkg/overlap"
	"github.com/menta2k/sprite-extractor/pkg/preview"
	"github.com/menta2k/sprite-extractor/pkg/processing"
	"github.com/menta2k/sprite-extractor/pkg/registry"
	"github.com/menta2k/sprite-extractor/pkg/types"
	"github.com/menta2k/sprite-extractor/pkg/viewport"
	"github.com/menta2k/sprite-extractor/pkg/vision"
)

// Version of the sprite extractor library
const Version = "1.0.0"

var (
	// ErrNoImage is returned by operations that need a loaded sheet.
	ErrNoImage = errors.New("no image loaded")
	// ErrNotSupported is returned when the active mode has no such operation.
	ErrNotSupported = errors.New("operation not supported in this mode")
	// ErrWrongInteraction is returned by PickBox outside SELECT interaction.
	ErrWrongInteraction = errors.New("box selection requires SELECT interaction mode")
)

// Options configures a Session.
type Options struct {
	Grid   types.GridSettings
	Auto   types.AutoSettings
	Manual types.ManualSettings
	Prefix string
	Mode   types.Source

	// PreviewDelay is the AUTO preview debounce; 0 uses preview.DefaultDelay.
	PreviewDelay time.Duration
	// DiscardStale drops preview results superseded by a newer request.
	DiscardStale bool
	// Engine runs AUTO detection; nil uses the pure Go engine.
	Engine vision.Engine
	Logger *slog.Logger
}

// DefaultOptions returns the editor defaults.
func DefaultOptions() Options {
	return Options{
		Grid:   types.DefaultGridSettings(),
		Auto:   types.DefaultAutoSettings(),
		Manual: types.DefaultManualSettings(),
		Prefix: types.DefaultPrefix,
		Mode:   types.SourceManual,
	}
}

// OptionsFromConfig converts a loaded configuration into session options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mode, err := types.ParseSource(cfg.Preferences.Mode)
	if err != nil {
		return Options{}, err
	}
	engine, err := vision.EngineByName(cfg.Preview.Engine)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Grid:         cfg.Grid,
		Auto:         cfg.Auto,
		Manual:       cfg.Manual,
		Prefix:       cfg.Preferences.Prefix,
		Mode:         mode,
		PreviewDelay: time.Duration(cfg.Preview.DelayMS) * time.Millisecond,
		DiscardStale: cfg.Preview.DiscardStale,
		Engine:       engine,
	}, nil
}

// Session is the editing state for one sprite sheet.
type Session struct {
	mu sync.Mutex

	analyzer  *analyzer.SheetAnalyzer
	proc      *processing.Processor
	reg       *registry.Registry
	resolver  *overlap.Resolver
	cutter    *manual.Cutter
	detector  *vision.Detector
	scheduler *preview.Scheduler
	view      *viewport.Viewport
	logger    *slog.Logger

	img      image.Image
	dims     types.Dimensions
	grid     types.GridSettings
	auto     types.AutoSettings
	prefix   string
	strategy Strategy

	preview       []types.SpriteRect
	previewParams vision.Params
	previewReady  bool
	// previewFloor is the newest scheduler run whose result must be ignored.
	previewFloor uint64
	inflight     map[uint64]vision.Params
}

// New creates a Session with default options.
func New() *Session {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a Session with custom options.
func NewWithOptions(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = types.DefaultPrefix
	}
	mode := opts.Mode
	if !mode.Valid() {
		mode = types.SourceManual
	}

	s := &Session{
		analyzer: analyzer.New(),
		proc:     processing.NewProcessor(),
		reg:      registry.New(),
		view:     viewport.New(),
		logger:   logger,
		grid:     opts.Grid,
		auto:     opts.Auto,
		prefix:   prefix,
		inflight: map[uint64]vision.Params{},
	}
	s.resolver = overlap.New(s.reg, types.Dimensions{}, prefix)
	s.cutter = manual.New(s.reg, types.Dimensions{}, opts.Manual, prefix)
	s.cutter.Locked = s.isLocked

	if opts.Engine != nil {
		s.detector = vision.NewWithEngine(opts.Engine)
	} else {
		s.detector = vision.New()
	}
	s.detector.WithLogger(logger)

	s.scheduler = preview.New(s.detectPreview, s.applyPreview)
	s.scheduler.SetLogger(logger)
	s.scheduler.DiscardStale = opts.DiscardStale
	if opts.PreviewDelay > 0 {
		s.scheduler.Delay = opts.PreviewDelay
	}

	s.reg.SetActiveMode(mode)
	s.strategy = s.strategyFor(mode)
	return s
}

// LoadImage loads a sheet from a file path or http(s) URL and makes it the
// current image.
func (s *Session) LoadImage(source string) error {
	img, err := s.proc.LoadImageSmart(source)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	return s.SetImage(img)
}

// LoadImageFromReader decodes a sheet and makes it the current image.
func (s *Session) LoadImageFromReader(r io.Reader) error {
	img, err := s.proc.LoadImageFromReader(r)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	return s.SetImage(img)
}

// SetImage replaces the sheet. Every rectangle and the AUTO preview are
// discarded and the viewport is reset.
func (s *Session) SetImage(img image.Image) error {
	if err := s.analyzer.ValidateImage(img); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := img.Bounds()
	s.img = img
	s.dims = types.Dimensions{Width: b.Dx(), Height: b.Dy()}
	s.reg.Clear()
	s.resolver.SetDimensions(s.dims)
	s.cutter.SetDimensions(s.dims)
	s.cutter.Cancel()
	s.view.Reset()
	s.resetPreview()
	s.logger.Debug("image set", "width", s.dims.Width, "height", s.dims.Height)

	if s.reg.ActiveMode() == types.SourceAuto {
		s.scheduler.Request()
	}
	return nil
}

// Image returns the current sheet, or nil.
func (s *Session) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Dimensions returns the current sheet size.
func (s *Session) Dimensions() types.Dimensions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dims
}

// Info returns analysis of the current sheet.
func (s *Session) Info() (analyzer.ImageInfo, error) {
	img := s.Image()
	if img == nil {
		return analyzer.ImageInfo{}, ErrNoImage
	}
	return s.analyzer.GetImageInfo(img), nil
}

// Mode returns the active strategy's source.
func (s *Session) Mode() types.Source {
	return s.reg.ActiveMode()
}

// SetMode switches the active strategy. Every selection is cleared and an
// in-progress manual cut is dropped.
func (s *Session) SetMode(mode types.Source) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reg.SetActiveMode(mode)
	s.strategy = s.strategyFor(mode)
	s.cutter.Cancel()
	if mode == types.SourceAuto && s.img != nil {
		s.scheduler.Request()
	}
	return nil
}

// Strategy returns the strategy bound to the active mode.
func (s *Session) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// GridSettings returns the grid settings.
func (s *Session) GridSettings() types.GridSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid
}

// SetGridSettings replaces the grid settings.
func (s *Session) SetGridSettings(g types.GridSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = g
}

// AutoSettings returns the detection settings.
func (s *Session) AutoSettings() types.AutoSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto
}

// SetAutoSettings replaces the detection settings. A change to a detection
// parameter schedules a preview refresh while AUTO is active.
func (s *Session) SetAutoSettings(a types.AutoSettings) error {
	if a.Threshold < 1 || a.Threshold > 254 {
		return fmt.Errorf("threshold must be between 1 and 254, got %d", a.Threshold)
	}
	if a.MinArea < 0 || a.Margin < 0 {
		return fmt.Errorf("min area and margin cannot be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := vision.ParamsFromSettings(a) != vision.ParamsFromSettings(s.auto)
	s.auto = a
	if changed && s.img != nil && s.reg.ActiveMode() == types.SourceAuto {
		s.scheduler.Request()
	}
	return nil
}

// ManualSettings returns the manual cutting settings.
func (s *Session) ManualSettings() types.ManualSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cutter.Settings()
}

// SetManualSettings replaces the manual cutting settings.
func (s *Session) SetManualSettings(m types.ManualSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutter.SetSettings(m)
}

// Prefix returns the naming prefix.
func (s *Session) Prefix() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefix
}

// SetPrefix changes the naming prefix for rectangles created from now on.
func (s *Session) SetPrefix(p string) {
	p = strings.TrimSpace(p)
	if p == "" {
		p = types.DefaultPrefix
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefix = p
	s.resolver.SetPrefix(p)
	s.cutter.SetPrefix(p)
}

// Preview returns a copy of the AUTO preview candidates.
func (s *Session) Preview() []types.SpriteRect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.SpriteRect(nil), s.preview...)
}

// PreviewPending reports whether a debounced preview run has not started.
func (s *Session) PreviewPending() bool {
	return s.scheduler.Pending()
}

// WaitPreview starts any pending preview run now and waits for every run to
// be applied.
func (s *Session) WaitPreview() {
	s.scheduler.Flush()
	s.scheduler.Wait()
}

// RefreshPreview recomputes the AUTO preview on the caller's goroutine.
// Results of scheduled runs started before it are ignored.
func (s *Session) RefreshPreview(ctx context.Context) ([]types.SpriteRect, error) {
	s.mu.Lock()
	img, params := s.img, vision.ParamsFromSettings(s.auto)
	s.mu.Unlock()
	if img == nil {
		return nil, ErrNoImage
	}

	cands := s.detector.Detect(ctx, img, params)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img != img {
		return nil, fmt.Errorf("image replaced during detection")
	}
	s.setPreview(cands, params)
	s.previewFloor = s.scheduler.Latest()
	return append([]types.SpriteRect(nil), cands...), nil
}

// Generate adds every candidate of the active strategy and returns how many
// rectangles were added.
func (s *Session) Generate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0, ErrNoImage
	}
	return s.strategy.GenerateAll(ctx)
}

// PickBox finalizes a drag box. In MANUAL mode it cuts the box; in GRID and
// AUTO it adds the candidates under the box, selected, and requires SELECT
// interaction.
func (s *Session) PickBox(box types.Box) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0, ErrNoImage
	}
	if s.interaction() != types.InteractSelect {
		return 0, ErrWrongInteraction
	}
	return s.strategy.FinalizeSelection(box)
}

// BeginCut starts a manual cut at p, in image space.
func (s *Session) BeginCut(p types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireManual(); err != nil {
		return err
	}
	s.cutter.Begin(p)
	return nil
}

// DragCut updates the live cut box and returns it.
func (s *Session) DragCut(p types.Point) types.Box {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requireManual() != nil {
		return types.Box{}
	}
	return s.cutter.Drag(p)
}

// EndCut finalizes the manual cut. It reports false when the box was
// discarded as degenerate or out of bounds.
func (s *Session) EndCut() (types.SpriteRect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requireManual() != nil {
		return types.SpriteRect{}, false
	}
	return s.cutter.End()
}

// CancelCut drops an in-progress manual cut.
func (s *Session) CancelCut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutter.Cancel()
}

// Move commits the end of a drag gesture. committed is false when overlap
// prevention rolled the move back.
func (s *Session) Move(id string, x, y float64) (rect types.SpriteRect, committed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cutter.Move(id, x, y)
}

// Resize commits the end of a transform gesture.
func (s *Session) Resize(id string, x, y, scaleX, scaleY float64) (types.SpriteRect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cutter.Resize(id, x, y, scaleX, scaleY)
}

// Rename sets a rectangle's name.
func (s *Session) Rename(id, name string) (types.SpriteRect, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.SpriteRect{}, fmt.Errorf("name cannot be empty")
	}
	return s.reg.Update(id, registry.Patch{Name: &name})
}

// Delete removes one rectangle.
func (s *Session) Delete(id string) error {
	return s.reg.Remove(id)
}

// DeleteSelected removes every selected rectangle and returns the count.
func (s *Session) DeleteSelected() int {
	return s.reg.RemoveSelected()
}

// SelectAll selects every rectangle of the active mode.
func (s *Session) SelectAll() {
	s.reg.SelectAll(s.reg.ActiveMode())
}

// Select makes id the only selected rectangle; "" clears the selection.
func (s *Session) Select(id string) bool {
	return s.reg.SelectExclusive(id)
}

// ToggleSelect flips the selection of id.
func (s *Session) ToggleSelect(id string) bool {
	return s.reg.ToggleSelect(id)
}

// Rects returns the rectangles visible in the active mode.
func (s *Session) Rects() []types.SpriteRect {
	return s.reg.Visible(s.reg.ActiveMode())
}

// AllRects returns every rectangle in insertion order.
func (s *Session) AllRects() []types.SpriteRect {
	return s.reg.List()
}

// Selected returns the selected rectangles.
func (s *Session) Selected() []types.SpriteRect {
	return s.reg.Selected()
}

// Viewport returns the pan/zoom transform. It is not safe for concurrent
// use.
func (s *Session) Viewport() *viewport.Viewport {
	return s.view
}

// Focus centres rectangle id in a screen of the given size.
func (s *Session) Focus(id string, screenW, screenH float64) error {
	r, ok := s.reg.Get(id)
	if !ok {
		return fmt.Errorf("focus %s: %w", id, registry.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.FocusOn(r, screenW, screenH)
	return nil
}

// GridOverlay returns the cells a renderer should draw for the current grid
// settings.
func (s *Session) GridOverlay() (grid.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return grid.Overlay{}, ErrNoImage
	}
	return grid.BuildOverlay(s.grid, s.dims)
}

// GridPlan estimates the rows and columns Generate would produce in GRID
// mode.
func (s *Session) GridPlan() (grid.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return grid.Plan{}, ErrNoImage
	}
	return grid.Estimate(s.grid, s.dims)
}

// Export writes every rectangle into a ZIP archive.
func (s *Session) Export(ctx context.Context, w io.Writer, opts export.Options) (export.Result, error) {
	img := s.Image()
	if img == nil {
		return export.Result{}, ErrNoImage
	}
	return export.ExportAll(ctx, w, img, s.reg.List(), opts)
}

// ExportDir writes every rectangle as a file under dir.
func (s *Session) ExportDir(ctx context.Context, dir string, opts export.Options) (export.Result, error) {
	img := s.Image()
	if img == nil {
		return export.Result{}, ErrNoImage
	}
	return export.ExportDir(ctx, dir, img, s.reg.List(), opts)
}

// Thumbnail returns rectangle id scaled to fit a size×size box.
func (s *Session) Thumbnail(id string, size int) (*image.NRGBA, error) {
	img := s.Image()
	if img == nil {
		return nil, ErrNoImage
	}
	r, ok := s.reg.Get(id)
	if !ok {
		return nil, fmt.Errorf("thumbnail %s: %w", id, registry.ErrNotFound)
	}
	return export.Thumbnail(img, r, size)
}

// AutoName asks namer for descriptive names and applies them. With
// selectedOnly, only selected rectangles are renamed. Names of the other
// rectangles that do not follow the prefix pattern seed the naming style.
func (s *Session) AutoName(ctx context.Context, namer *naming.Namer, description string, selectedOnly bool) (int, error) {
	s.mu.Lock()
	img, prefix := s.img, s.prefix
	s.mu.Unlock()
	if img == nil {
		return 0, ErrNoImage
	}

	var targets []types.SpriteRect
	var previous []string
	for _, r := range s.reg.List() {
		if !selectedOnly || r.Selected {
			targets = append(targets, r)
			continue
		}
		if !strings.HasPrefix(r.Name, prefix+"_") {
			previous = append(previous, r.Name)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	names, err := namer.SuggestNames(ctx, img, targets, description, previous)
	renamed := naming.Apply(s.reg, names)
	s.logger.Info("sprites renamed", "renamed", renamed, "requested", len(targets))
	return renamed, err
}

// DebugOverlay draws the grid (in GRID mode), the AUTO preview (in AUTO
// mode) and every rectangle onto a copy of the sheet.
func (s *Session) DebugOverlay() (image.Image, error) {
	s.mu.Lock()
	img := s.img
	mode := s.reg.ActiveMode()
	var layers []processing.OverlayLayer
	switch mode {
	case types.SourceGrid:
		if ov, err := grid.BuildOverlay(s.grid, s.dims); err == nil {
			layers = append(layers, processing.BoxLayer(grid.Rects(ov.Cells), processing.CellColor, 1))
		}
	case types.SourceAuto:
		layers = append(layers, processing.BoxLayer(s.preview, processing.PreviewColor, 1))
	}
	s.mu.Unlock()

	if img == nil {
		return nil, ErrNoImage
	}
	layers = append(layers, processing.SpriteLayers(s.reg.List())...)
	return s.proc.CreateDebugOverlay(img, layers...), nil
}

// Close stops background preview work. The session must not be used after.
func (s *Session) Close() {
	s.scheduler.Stop()
}

func (s *Session) interaction() types.InteractionMode {
	switch s.reg.ActiveMode() {
	case types.SourceGrid:
		return s.grid.InteractionMode
	case types.SourceAuto:
		return s.auto.InteractionMode
	}
	// Manual boxes are always a selection.
	return types.InteractSelect
}

func (s *Session) requireManual() error {
	if s.img == nil {
		return ErrNoImage
	}
	if s.reg.ActiveMode() != types.SourceManual {
		return ErrNotSupported
	}
	return nil
}

// isLocked is called by the cutter with mu held.
func (s *Session) isLocked(src types.Source) bool {
	switch src {
	case types.SourceGrid:
		return s.grid.LockSprites
	case types.SourceAuto:
		return s.auto.LockSprites
	default:
		return s.cutter.Settings().LockSprites
	}
}

// detectPreview runs on a scheduler goroutine.
func (s *Session) detectPreview(ctx context.Context, seq uint64) ([]types.SpriteRect, error) {
	s.mu.Lock()
	img, params := s.img, vision.ParamsFromSettings(s.auto)
	s.inflight[seq] = params
	s.mu.Unlock()
	if img == nil {
		return nil, ErrNoImage
	}
	return s.detector.Detect(ctx, img, params), ctx.Err()
}

func (s *Session) applyPreview(r preview.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	params, ok := s.inflight[r.Seq]
	delete(s.inflight, r.Seq)
	if !ok || r.Seq <= s.previewFloor {
		return
	}
	if r.Err != nil {
		s.logger.Debug("preview run failed", "seq", r.Seq, "error", r.Err)
		return
	}
	s.setPreview(r.Candidates, params)
}

func (s *Session) setPreview(cands []types.SpriteRect, params vision.Params) {
	s.preview = cands
	s.previewParams = params
	s.previewReady = true
}

func (s *Session) resetPreview() {
	s.preview = nil
	s.previewReady = false
	s.previewFloor = s.scheduler.Latest()
}

// ensurePreview computes the preview synchronously when none matches the
// current settings. Caller holds mu.
func (s *Session) ensurePreview(ctx context.Context) error {
	params := vision.ParamsFromSettings(s.auto)
	if s.previewReady && s.previewParams == params {
		return nil
	}
	cands := s.detector.Detect(ctx, s.img, params)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.setPreview(cands, params)
	s.previewFloor = s.scheduler.Latest()
	return nil
}
