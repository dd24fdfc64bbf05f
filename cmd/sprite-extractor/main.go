package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	spriteextractor "github.com/menta2k/sprite-extractor"
	"github.com/menta2k/sprite-extractor/internal/config"
	"github.com/menta2k/sprite-extractor/internal/utils"
	"github.com/menta2k/sprite-extractor/pkg/client"
	"github.com/menta2k/sprite-extractor/pkg/export"
	"github.com/menta2k/sprite-extractor/pkg/llamacpp"
	"github.com/menta2k/sprite-extractor/pkg/naming"
	"github.com/menta2k/sprite-extractor/pkg/ollama"
	"github.com/menta2k/sprite-extractor/pkg/processing"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

func main() {
	var in, outDir, configPath, saveConfig string
	var mode, rects, prefix string
	var zipOut, yes, debug, name bool
	var dbgext, describe string

	flag.StringVar(&in, "in", "", "input sprite sheet path or URL (png/jpg/gif/webp)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&configPath, "config", "", "config file (.json or .yaml); defaults to "+config.GetConfigPath()+" when present")
	flag.StringVar(&saveConfig, "saveconfig", "", "write the effective configuration to this path")

	flag.StringVar(&mode, "mode", "", "extraction mode: manual|grid|auto")
	flag.StringVar(&rects, "rects", "", "manual mode: boxes as x,y,w,h;x,y,w,h")
	flag.StringVar(&prefix, "prefix", "", "naming prefix")
	flag.BoolVar(&zipOut, "zip", true, "write a ZIP archive instead of loose files")
	flag.BoolVar(&yes, "yes", false, "generate very large grids without asking")

	ext := flag.String("ext", "", "sprite format: png|jpg|webp")
	quality := flag.Int("quality", 0, "JPEG/WebP quality (1-100)")
	lossless := flag.Bool("lossless", false, "WebP lossless mode")
	manifest := flag.String("manifest", "", "manifest format: json|yaml|none")

	cell := flag.String("cell", "", "grid: PIXEL cell size WxH")
	cols := flag.Int("cols", 0, "grid: COUNT columns")
	rows := flag.Int("rows", 0, "grid: COUNT rows")
	offX := flag.Int("offx", 0, "grid: x offset")
	offY := flag.Int("offy", 0, "grid: y offset")
	gap := flag.Int("gap", 0, "grid: gap between cells")
	gpad := flag.Int("gpad", 0, "grid: padding around each cell")

	threshold := flag.Int("threshold", 0, "auto: alpha/luminance threshold (1-254)")
	minArea := flag.Int("minarea", 0, "auto: minimum box area")
	margin := flag.Int("margin", 0, "auto: merge distance in pixels")
	apad := flag.Int("apad", 0, "auto: padding around each box")
	engine := flag.String("engine", "", "auto: detection engine (native, or gocv when built with -tags gocv)")
	partial := flag.Bool("partial", false, "keep rectangles reaching outside the image")

	flag.BoolVar(&name, "name", false, "name sprites with a vision model")
	flag.StringVar(&describe, "describe", "", "description of the sheet passed to the naming model")
	backend := flag.String("backend", "", "naming backend: ollama|llamacpp")
	url := flag.String("url", "", "naming server URL")
	model := flag.String("model", "", "naming model")

	flag.BoolVar(&debug, "debug", false, "write a debug overlay image")
	flag.StringVar(&dbgext, "dbgext", "png", "debug overlay format: png|jpg|webp")
	logLevel := flag.String("log", "", "log level: debug|info|warn|error")
	logFile := flag.String("logfile", "", "also write JSON logs to this rotating file")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in sheet.png [-mode manual|grid|auto] [-rects x,y,w,h;...] [-cell 32x32 | -cols N -rows N] [-out outdir] [-zip] [-name -backend ollama|llamacpp]", filepath.Base(os.Args[0]))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Explicit flags override the configuration file.
	var applyErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Preferences.Mode = strings.ToUpper(mode)
		case "prefix":
			cfg.Preferences.Prefix = prefix
		case "ext":
			cfg.Export.Format = export.Format(strings.ToLower(*ext))
		case "quality":
			cfg.Export.Quality = *quality
		case "lossless":
			cfg.Export.Lossless = *lossless
		case "manifest":
			cfg.Export.Manifest = strings.TrimSuffix(*manifest, "none")
		case "cell":
			w, h, err := parseSize(*cell)
			if err != nil {
				applyErr = err
				return
			}
			cfg.Grid.CalculationMode = types.CalcPixel
			cfg.Grid.Width, cfg.Grid.Height = w, h
		case "cols":
			cfg.Grid.CalculationMode = types.CalcCount
			cfg.Grid.Columns = *cols
		case "rows":
			cfg.Grid.CalculationMode = types.CalcCount
			cfg.Grid.Rows = *rows
		case "offx":
			cfg.Grid.OffsetX = *offX
		case "offy":
			cfg.Grid.OffsetY = *offY
		case "gap":
			cfg.Grid.Gap = *gap
		case "gpad":
			cfg.Grid.Padding = *gpad
		case "threshold":
			cfg.Auto.Threshold = *threshold
		case "minarea":
			cfg.Auto.MinArea = *minArea
		case "margin":
			cfg.Auto.Margin = *margin
		case "apad":
			cfg.Auto.Padding = *apad
		case "engine":
			cfg.Preview.Engine = *engine
		case "partial":
			cfg.Grid.AllowPartial = *partial
			cfg.Auto.AllowPartial = *partial
			cfg.Manual.AllowPartial = *partial
		case "backend":
			cfg.Naming.Backend = *backend
		case "url":
			cfg.Naming.URL = *url
		case "model":
			cfg.Naming.Model = *model
		case "log":
			cfg.Logging.Level = *logLevel
		case "logfile":
			cfg.Logging.File = *logFile
		}
	})
	if applyErr != nil {
		log.Fatal(applyErr)
	}
	// The CLI always generates; box picking needs an interactive surface.
	cfg.Grid.InteractionMode = types.InteractGenerate
	cfg.Auto.InteractionMode = types.InteractGenerate
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	cleanup, err := initLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if saveConfig != "" {
		if err := cfg.SaveToFile(saveConfig); err != nil {
			slog.Error("save config failed", "error", err)
		} else {
			slog.Info("wrote config", "path", saveConfig)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, in, outDir, rects, zipOut, yes, name, describe, debug, dbgext); err != nil {
		slog.Error("sprite extraction failed", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, in, outDir, rects string, zipOut, yes, name bool, describe string, debug bool, dbgext string) error {
	opts, err := spriteextractor.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = slog.Default()
	session := spriteextractor.NewWithOptions(opts)
	defer session.Close()

	if !isURL(in) && !utils.IsImageFile(in) {
		slog.Warn("input does not have an image extension", "path", in)
	}
	if err := session.LoadImage(in); err != nil {
		return err
	}
	dims := session.Dimensions()
	slog.Info("loaded sheet", "source", in, "width", dims.Width, "height", dims.Height, "mode", session.Mode())

	added, err := extract(ctx, session, rects, yes)
	if err != nil {
		return err
	}
	slog.Info("extracted sprites", "added", added)
	if added == 0 {
		return errors.New("no sprites found")
	}

	if name {
		namer, err := newNamer(cfg.Naming)
		if err != nil {
			return err
		}
		namer.Progress = func(done, total int) {
			slog.Info("naming progress", "done", done, "total", total)
		}
		if _, err := session.AutoName(ctx, namer, describe, false); err != nil {
			return fmt.Errorf("naming: %w", err)
		}
	}

	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}

	var res export.Result
	if zipOut {
		zipPath := utils.OutputPath(baseName(in), outDir, "_sprites", "zip")
		f, err := os.Create(zipPath)
		if err != nil {
			return err
		}
		res, err = session.Export(ctx, f, cfg.Export)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if info, err := os.Stat(zipPath); err == nil {
			slog.Info("wrote archive", "path", zipPath, "size", utils.FormatFileSize(info.Size()))
		}
	} else {
		res, err = session.ExportDir(ctx, outDir, cfg.Export)
		if err != nil {
			return err
		}
	}
	for _, s := range res.Skipped {
		slog.Warn("sprite skipped", "name", s.Name, "reason", s.Reason)
	}
	fmt.Printf("exported %d sprites (%d skipped)\n", len(res.Entries), len(res.Skipped))

	if debug {
		overlay, err := session.DebugOverlay()
		if err != nil {
			return err
		}
		path := utils.OutputPath(baseName(in), outDir, "_debug", strings.ToLower(dbgext))
		if err := processing.NewProcessor().SaveImage(overlay, path, dbgext, 92, false); err != nil {
			slog.Warn("debug overlay save failed", "error", err)
		} else {
			slog.Info("wrote debug overlay", "path", path)
		}
	}
	return nil
}

func extract(ctx context.Context, session *spriteextractor.Session, rects string, yes bool) (int, error) {
	switch session.Mode() {
	case types.SourceManual:
		boxes, err := parseBoxes(rects)
		if err != nil {
			return 0, err
		}
		if len(boxes) == 0 {
			return 0, errors.New("manual mode needs -rects")
		}
		total := 0
		for _, b := range boxes {
			n, err := session.PickBox(b)
			if err != nil {
				return total, err
			}
			if n == 0 {
				slog.Warn("box discarded", "box", b)
			}
			total += n
		}
		return total, nil

	case types.SourceGrid:
		plan, err := session.GridPlan()
		if err != nil {
			return 0, err
		}
		slog.Info("grid plan", "cell_width", plan.CellWidth, "cell_height", plan.CellHeight, "columns", plan.Columns, "rows", plan.Rows)
		if plan.NeedsConfirm() && !yes {
			return 0, fmt.Errorf("grid of %dx%d cells is very large; rerun with -yes", plan.Columns, plan.Rows)
		}
	}

	start := time.Now()
	n, err := session.Generate(ctx)
	slog.Debug("generate finished", "elapsed", time.Since(start))
	return n, err
}

func newNamer(cfg config.NamingConfig) (*naming.Namer, error) {
	var c client.VisionClient
	var err error
	switch cfg.Backend {
	case "ollama":
		c, err = ollama.NewClient(cfg.URL)
	case "llamacpp":
		c, err = llamacpp.NewClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Backend, err)
	}
	n := naming.NewNamer(c, cfg.Model).WithLogger(slog.Default())
	if cfg.BatchSize > 0 {
		n.BatchSize = cfg.BatchSize
	}
	n.RateLimit = time.Duration(cfg.RateLimitMS) * time.Millisecond
	return n, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default(), nil
		}
	}
	return config.LoadFromFile(path)
}

// parseSize parses "32x32" or "32".
func parseSize(s string) (int, int, error) {
	ws, hs, found := strings.Cut(strings.ToLower(s), "x")
	w, err := strconv.Atoi(strings.TrimSpace(ws))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cell size %q", s)
	}
	if !found {
		return w, w, nil
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cell size %q", s)
	}
	return w, h, nil
}

// parseBoxes parses "x,y,w,h;x,y,w,h".
func parseBoxes(s string) ([]types.Box, error) {
	var out []types.Box
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("invalid box %q (want x,y,w,h)", part)
		}
		var v [4]float64
		for i, f := range fields {
			n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid box %q: %w", part, err)
			}
			v[i] = n
		}
		out = append(out, types.Box{X: v[0], Y: v[1], W: v[2], H: v[3]})
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func baseName(in string) string {
	if isURL(in) {
		if i := strings.LastIndex(in, "/"); i >= 0 && i < len(in)-1 {
			return strings.SplitN(in[i+1:], "?", 2)[0]
		}
		return "sheet"
	}
	return in
}
