package spriteextractor

import (
	"context"

	"github.com/menta2k/sprite-extractor/pkg/grid"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

// Strategy is the behavior of one extraction mode. Methods are called with
// the session lock held.
type Strategy interface {
	// Source is the mode this strategy serves.
	Source() types.Source
	// ComputeCandidates returns the rectangles Generate would add, unnamed.
	ComputeCandidates(ctx context.Context) ([]types.SpriteRect, error)
	// FinalizeSelection adds what lies under box and returns the count.
	FinalizeSelection(box types.Box) (int, error)
	// GenerateAll adds every candidate and returns the count.
	GenerateAll(ctx context.Context) (int, error)
}

func (s *Session) strategyFor(mode types.Source) Strategy {
	switch mode {
	case types.SourceGrid:
		return gridStrategy{s}
	case types.SourceAuto:
		return autoStrategy{s}
	default:
		return manualStrategy{s}
	}
}

type manualStrategy struct{ s *Session }

func (manualStrategy) Source() types.Source { return types.SourceManual }

func (manualStrategy) ComputeCandidates(context.Context) ([]types.SpriteRect, error) {
	return nil, nil
}

func (m manualStrategy) FinalizeSelection(box types.Box) (int, error) {
	if _, ok := m.s.cutter.Finalize(box); ok {
		return 1, nil
	}
	return 0, nil
}

func (manualStrategy) GenerateAll(context.Context) (int, error) {
	return 0, ErrNotSupported
}

type gridStrategy struct{ s *Session }

func (gridStrategy) Source() types.Source { return types.SourceGrid }

func (g gridStrategy) ComputeCandidates(context.Context) ([]types.SpriteRect, error) {
	cells, err := grid.Cells(g.s.grid, g.s.dims)
	if err != nil {
		return nil, err
	}
	return grid.Rects(cells), nil
}

func (g gridStrategy) FinalizeSelection(box types.Box) (int, error) {
	added, err := grid.Pick(g.s.resolver, g.s.grid, box)
	return len(added), err
}

func (g gridStrategy) GenerateAll(context.Context) (int, error) {
	added, err := grid.Generate(g.s.resolver, g.s.grid)
	return len(added), err
}

type autoStrategy struct{ s *Session }

func (autoStrategy) Source() types.Source { return types.SourceAuto }

func (a autoStrategy) ComputeCandidates(ctx context.Context) ([]types.SpriteRect, error) {
	if err := a.s.ensurePreview(ctx); err != nil {
		return nil, err
	}
	return append([]types.SpriteRect(nil), a.s.preview...), nil
}

func (a autoStrategy) FinalizeSelection(box types.Box) (int, error) {
	if err := a.s.ensurePreview(context.Background()); err != nil {
		return 0, err
	}
	added := a.s.resolver.Pick(box, a.s.preview, types.SourceAuto, a.s.auto.AllowPartial)
	return len(added), nil
}

func (a autoStrategy) GenerateAll(ctx context.Context) (int, error) {
	if err := a.s.ensurePreview(ctx); err != nil {
		return 0, err
	}
	added := a.s.resolver.Materialize(a.s.preview, types.SourceAuto, a.s.auto.AllowPartial)
	return len(added), nil
}
