package naming

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/sprite-extractor/pkg/registry"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

type stubClient struct {
	prompts []string
	counts  []int
	failOn  int
	calls   int
}

func (s *stubClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "a sprite", nil
}

func (s *stubClient) NameSprites(ctx context.Context, model, prompt string, images []string) ([]string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.counts = append(s.counts, len(images))
	if s.calls == s.failOn {
		return nil, errors.New("model overloaded")
	}
	names := make([]string, len(images))
	for i := range images {
		names[i] = fmt.Sprintf("item_%d_%d", s.calls, i)
	}
	return names, nil
}

// createTestImage creates an opaque sheet.
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	return img
}

func makeRects(n int) []types.SpriteRect {
	rects := make([]types.SpriteRect, n)
	for i := range rects {
		rects[i] = types.SpriteRect{ID: fmt.Sprintf("r%d", i), X: (i % 8) * 8, Y: (i / 8) * 8, Width: 8, Height: 8}
	}
	return rects
}

func newTestNamer(c *stubClient) *Namer {
	n := NewNamer(c, "test-model")
	n.RateLimit = 0
	return n
}

func TestSuggestNamesBatches(t *testing.T) {
	c := &stubClient{}
	n := newTestNamer(c)
	var progress []int
	n.Progress = func(done, total int) { progress = append(progress, done) }

	names, err := n.SuggestNames(context.Background(), createTestImage(64, 64), makeRects(23), "", nil)
	if err != nil {
		t.Fatalf("SuggestNames failed: %v", err)
	}
	if c.calls != 3 {
		t.Errorf("Expected 3 batches, got %d", c.calls)
	}
	if c.counts[0] != 10 || c.counts[2] != 3 {
		t.Errorf("Expected batch sizes 10,10,3, got %v", c.counts)
	}
	if len(names) != 23 {
		t.Errorf("Expected 23 names, got %d", len(names))
	}
	if names["r10"] != "item_2_0" {
		t.Errorf("Expected r10 named by second batch, got %q", names["r10"])
	}
	if len(progress) != 3 || progress[2] != 23 {
		t.Errorf("Unexpected progress %v", progress)
	}
	if !strings.Contains(c.prompts[0], `"Game sprites"`) {
		t.Errorf("Expected default description in prompt, got %q", c.prompts[0])
	}
}

func TestSuggestNamesContext(t *testing.T) {
	c := &stubClient{}
	n := newTestNamer(c)
	n.BatchSize = 5
	n.ContextSize = 3

	prev := []string{"old_a", "old_b"}
	if _, err := n.SuggestNames(context.Background(), createTestImage(64, 64), makeRects(10), "coins", prev); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(c.prompts[0], "old_a, old_b") {
		t.Errorf("Expected previous names in first prompt, got %q", c.prompts[0])
	}
	// Second prompt quotes only the last three names.
	if strings.Contains(c.prompts[1], "old_b") || !strings.Contains(c.prompts[1], "item_1_2, item_1_3, item_1_4") {
		t.Errorf("Expected trimmed context, got %q", c.prompts[1])
	}
}

func TestSuggestNamesSkipsFailedBatch(t *testing.T) {
	c := &stubClient{failOn: 1}
	n := newTestNamer(c)
	names, err := n.SuggestNames(context.Background(), createTestImage(64, 64), makeRects(15), "", nil)
	if err != nil {
		t.Fatalf("Expected failed batch to be skipped, got %v", err)
	}
	if len(names) != 5 {
		t.Errorf("Expected 5 names from the second batch, got %d", len(names))
	}
	if _, ok := names["r0"]; ok {
		t.Error("Expected no name for rects in the failed batch")
	}
}

func TestSuggestNamesSkipsOutsideRects(t *testing.T) {
	c := &stubClient{}
	n := newTestNamer(c)
	rects := []types.SpriteRect{
		{ID: "out", X: 500, Y: 500, Width: 8, Height: 8},
		{ID: "in", Width: 8, Height: 8},
	}
	names, err := n.SuggestNames(context.Background(), createTestImage(16, 16), rects, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.counts[0] != 1 || names["in"] != "item_1_0" {
		t.Errorf("Expected only the in-bounds crop named, got %v", names)
	}
}

func TestRateLimit(t *testing.T) {
	c := &stubClient{}
	n := newTestNamer(c)
	n.BatchSize = 1
	n.RateLimit = time.Minute
	var waits []time.Duration
	n.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	if _, err := n.SuggestNames(context.Background(), createTestImage(16, 16), makeRects(3), "", nil); err != nil {
		t.Fatal(err)
	}
	if len(waits) != 2 {
		t.Fatalf("Expected 2 waits between 3 requests, got %d", len(waits))
	}
	if waits[0] <= 0 || waits[0] > time.Minute {
		t.Errorf("Unexpected wait %v", waits[0])
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestNamer(&stubClient{}).SuggestNames(ctx, createTestImage(16, 16), makeRects(2), "", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestApply(t *testing.T) {
	reg := registry.New()
	added := reg.Add(types.SpriteRect{ID: "a", Name: "sprite_1", Width: 4, Height: 4, Source: types.SourceManual})
	n := Apply(reg, map[string]string{added.ID: "hero_idle", "missing": "x"})
	if n != 1 {
		t.Errorf("Expected 1 rename, got %d", n)
	}
	if got, _ := reg.Get(added.ID); got.Name != "hero_idle" {
		t.Errorf("Expected hero_idle, got %s", got.Name)
	}
}
