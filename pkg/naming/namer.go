// Package naming asks a vision model for descriptive sprite names, a batch
// of crops at a time.
package naming

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/menta2k/sprite-extractor/pkg/client"
	"github.com/menta2k/sprite-extractor/pkg/export"
	"github.com/menta2k/sprite-extractor/pkg/processing"
	"github.com/menta2k/sprite-extractor/pkg/registry"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

const (
	DefaultBatchSize   = 10
	DefaultContextSize = 20
	DefaultRateLimit   = 6 * time.Second
	DefaultDescription = "Game sprites"
)

// SimpleTestPrompt checks that the model can see images at all.
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// Namer generates names for sprite rectangles.
type Namer struct {
	client client.VisionClient
	model  string
	proc   *processing.Processor
	logger *slog.Logger

	// BatchSize is the number of crops sent per request.
	BatchSize int
	// ContextSize is how many earlier names are quoted back to the model.
	ContextSize int
	// RateLimit is the minimum spacing between requests.
	RateLimit time.Duration
	// Progress, when set, is called after every batch.
	Progress func(done, total int)

	mu          sync.Mutex
	lastRequest time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewNamer creates a namer using the given backend and model.
func NewNamer(c client.VisionClient, model string) *Namer {
	return &Namer{
		client:      c,
		model:       model,
		proc:        processing.NewProcessor(),
		logger:      slog.Default(),
		BatchSize:   DefaultBatchSize,
		ContextSize: DefaultContextSize,
		RateLimit:   DefaultRateLimit,
		sleep:       sleepCtx,
	}
}

// WithLogger sets the logger used for skipped batches.
func (n *Namer) WithLogger(l *slog.Logger) *Namer {
	if l != nil {
		n.logger = l
	}
	return n
}

// TestVision checks the model can see a single image.
func (n *Namer) TestVision(ctx context.Context, imageB64 string) (string, error) {
	return n.client.SimpleQuery(ctx, n.model, SimpleTestPrompt, imageB64)
}

// BuildPrompt returns the instruction sent alongside count images.
func BuildPrompt(count int, description string, previous []string) string {
	if strings.TrimSpace(description) == "" {
		description = DefaultDescription
	}
	var b strings.Builder
	b.WriteString("You are a game asset naming assistant.\n")
	fmt.Fprintf(&b, "I will provide %d sprite images.\n", count)
	fmt.Fprintf(&b, "Name them based on this description: %q.", description)
	if len(previous) > 0 {
		fmt.Fprintf(&b, "\nPreviously generated names (maintain consistency with this style): %s.", strings.Join(previous, ", "))
	}
	b.WriteString("\nReturn a JSON array of strings, where each string is a name for the corresponding image in order.")
	b.WriteString("\nUse snake_case or camelCase as appropriate for game assets.")
	b.WriteString("\nKeep names concise but descriptive.")
	return b.String()
}

// SuggestNames returns a name per rect id. previous seeds the style context.
// A batch that fails is logged and skipped; its rects get no name. Only a
// cancelled context aborts the run.
func (n *Namer) SuggestNames(ctx context.Context, img image.Image, rects []types.SpriteRect, description string, previous []string) (map[string]string, error) {
	if img == nil {
		return nil, fmt.Errorf("no image loaded")
	}
	batchSize := n.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	results := make(map[string]string, len(rects))
	history := append([]string(nil), previous...)
	done := 0

	for start := 0; start < len(rects); start += batchSize {
		batch := rects[start:min(start+batchSize, len(rects))]
		if err := n.wait(ctx); err != nil {
			return results, err
		}

		valid, images := n.encodeBatch(img, batch)
		if len(images) > 0 {
			prompt := BuildPrompt(len(images), description, n.recent(history))
			names, err := n.client.NameSprites(ctx, n.model, prompt, images)
			if err != nil {
				if ctx.Err() != nil {
					return results, ctx.Err()
				}
				n.logger.Warn("naming batch failed", "first", start, "size", len(batch), "error", err)
			}
			for i, name := range names {
				if i >= len(valid) {
					break
				}
				if name = strings.TrimSpace(name); name == "" {
					continue
				}
				results[valid[i].ID] = name
				history = append(history, name)
			}
		}

		done += len(batch)
		if n.Progress != nil {
			n.Progress(done, len(rects))
		}
	}
	return results, nil
}

func (n *Namer) encodeBatch(img image.Image, batch []types.SpriteRect) ([]types.SpriteRect, []string) {
	valid := make([]types.SpriteRect, 0, len(batch))
	images := make([]string, 0, len(batch))
	for _, r := range batch {
		crop, err := export.Crop(img, r)
		if err != nil {
			continue
		}
		b64, err := n.proc.PrepareImageForModel(crop, "png", 0, 0)
		if err != nil {
			n.logger.Warn("sprite encode failed", "id", r.ID, "error", err)
			continue
		}
		valid = append(valid, r)
		images = append(images, b64)
	}
	return valid, images
}

func (n *Namer) recent(history []string) []string {
	size := n.ContextSize
	if size <= 0 || len(history) <= size {
		return history
	}
	return history[len(history)-size:]
}

// wait enforces RateLimit between consecutive requests.
func (n *Namer) wait(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.lastRequest.IsZero() && n.RateLimit > 0 {
		if d := n.RateLimit - time.Since(n.lastRequest); d > 0 {
			if err := n.sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n.lastRequest = time.Now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply writes suggested names into the registry and returns how many
// rectangles were renamed. Ids no longer present are ignored.
func Apply(reg *registry.Registry, names map[string]string) int {
	renamed := 0
	for id, name := range names {
		if _, err := reg.Update(id, registry.Patch{Name: &name}); err == nil {
			renamed++
		}
	}
	return renamed
}
