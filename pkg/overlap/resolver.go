// Package overlap turns candidate rectangles into registry entries, either
// all at once (generate) or through a box selection (pick).
package overlap

import (
	"github.com/menta2k/sprite-extractor/pkg/geometry"
	"github.com/menta2k/sprite-extractor/pkg/registry"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

// Resolver materializes candidates into a registry.
type Resolver struct {
	reg    *registry.Registry
	dims   types.Dimensions
	prefix string
}

// New creates a Resolver.
func New(reg *registry.Registry, dims types.Dimensions, prefix string) *Resolver {
	if prefix == "" {
		prefix = types.DefaultPrefix
	}
	return &Resolver{reg: reg, dims: dims, prefix: prefix}
}

// SetDimensions updates the image bounds.
func (r *Resolver) SetDimensions(d types.Dimensions) { r.dims = d }

// Dimensions returns the image bounds in use.
func (r *Resolver) Dimensions() types.Dimensions { return r.dims }

// SetPrefix changes the naming prefix.
func (r *Resolver) SetPrefix(p string) { r.prefix = p }

// Prefix returns the naming prefix.
func (r *Resolver) Prefix() string { return r.prefix }

// Materialize inserts every candidate unselected. Without allowPartial,
// candidates reaching outside the image are dropped whole.
func (r *Resolver) Materialize(candidates []types.SpriteRect, src types.Source, allowPartial bool) []types.SpriteRect {
	return r.commit(r.filter(candidates, allowPartial), src, false)
}

// Pick inserts, selected, every candidate that strictly overlaps box.
// Candidates that only touch the box along an edge are not picked.
func (r *Resolver) Pick(box types.Box, candidates []types.SpriteRect, src types.Source, allowPartial bool) []types.SpriteRect {
	return r.commit(r.filter(Hits(box, candidates), allowPartial), src, true)
}

// Hits returns the candidates strictly overlapping box.
func Hits(box types.Box, candidates []types.SpriteRect) []types.SpriteRect {
	sel := geometry.FromBox(box)
	var out []types.SpriteRect
	for _, c := range candidates {
		if sel.Overlaps(geometry.FromSprite(c)) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) filter(candidates []types.SpriteRect, allowPartial bool) []types.SpriteRect {
	if allowPartial {
		return candidates
	}
	var out []types.SpriteRect
	for _, c := range candidates {
		if geometry.Within(c, r.dims) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) commit(accepted []types.SpriteRect, src types.Source, selected bool) []types.SpriteRect {
	if len(accepted) == 0 {
		return nil
	}
	names := r.reg.NameSequence(r.prefix)
	batch := make([]types.SpriteRect, len(accepted))
	for i, c := range accepted {
		batch[i] = types.SpriteRect{
			ID:       registry.NewID(),
			X:        c.X,
			Y:        c.Y,
			Width:    c.Width,
			Height:   c.Height,
			Name:     names.Next(),
			Source:   src,
			Selected: selected,
		}
	}
	return r.reg.AddBatch(batch)
}
