// Package registry holds the canonical list of finalized sprite rectangles.
//
// A Registry is owned by one editing session and passed to every strategy
// that produces rectangles. It also tracks the active mode so that the
// selection invariant (only rectangles of the active mode may be selected)
// is enforced here rather than by each caller.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/menta2k/sprite-extractor/pkg/types"
)

// ErrNotFound is returned when an id does not name a stored rectangle.
var ErrNotFound = errors.New("registry: rectangle not found")

// Patch lists the fields to change in Update. Nil fields are left alone.
type Patch struct {
	X      *int
	Y      *int
	Width  *int
	Height *int
	Name   *string
}

// Registry is the single source of truth for finalized rectangles.
type Registry struct {
	mu     sync.RWMutex
	rects  []types.SpriteRect
	active types.Source
}

// New creates an empty registry with MANUAL as the active mode.
func New() *Registry {
	return &Registry{active: types.SourceManual}
}

// NewID returns a random opaque identifier.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// ActiveMode returns the mode whose rectangles are visible and selectable.
func (r *Registry) ActiveMode() types.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActiveMode switches the active mode and clears every selection flag.
func (r *Registry) SetActiveMode(mode types.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = mode
	r.deselectAll()
}

// Add deselects all existing rectangles and appends rect selected.
func (r *Registry) Add(rect types.SpriteRect) types.SpriteRect {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deselectAll()
	if rect.ID == "" {
		rect.ID = NewID()
	}
	rect.Selected = rect.Source == r.active
	r.rects = append(r.rects, rect)
	return rect
}

// AddBatch deselects all existing rectangles and appends the batch. Each
// element keeps its own Selected flag unless it belongs to another mode.
func (r *Registry) AddBatch(rects []types.SpriteRect) []types.SpriteRect {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deselectAll()
	added := make([]types.SpriteRect, 0, len(rects))
	for _, rect := range rects {
		if rect.ID == "" {
			rect.ID = NewID()
		}
		if rect.Source != r.active {
			rect.Selected = false
		}
		added = append(added, rect)
	}
	r.rects = append(r.rects, added...)
	return added
}

// Update applies patch to the rectangle with the given id.
func (r *Registry) Update(id string, patch Patch) (types.SpriteRect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return types.SpriteRect{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	rect := &r.rects[i]
	if patch.X != nil {
		rect.X = *patch.X
	}
	if patch.Y != nil {
		rect.Y = *patch.Y
	}
	if patch.Width != nil {
		rect.Width = *patch.Width
	}
	if patch.Height != nil {
		rect.Height = *patch.Height
	}
	if patch.Name != nil {
		rect.Name = *patch.Name
	}
	return *rect, nil
}

// Remove deletes one rectangle.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	r.rects = append(r.rects[:i], r.rects[i+1:]...)
	return nil
}

// Clear deletes every rectangle.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rects = nil
}

// SelectExclusive selects exactly the rectangle with id, or none when id is
// empty. A rectangle outside the active mode cannot be selected; the call
// still clears the previous selection and returns false.
func (r *Registry) SelectExclusive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	selected := false
	for i := range r.rects {
		on := id != "" && r.rects[i].ID == id && r.rects[i].Source == r.active
		r.rects[i].Selected = on
		selected = selected || on
	}
	return selected
}

// ToggleSelect flips one selection flag and leaves the others untouched.
func (r *Registry) ToggleSelect(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 || r.rects[i].Source != r.active {
		return false
	}
	r.rects[i].Selected = !r.rects[i].Selected
	return true
}

// SelectAll selects every rectangle whose source equals mode. Others keep
// their flag.
func (r *Registry) SelectAll(mode types.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode != r.active {
		return
	}
	for i := range r.rects {
		if r.rects[i].Source == mode {
			r.rects[i].Selected = true
		}
	}
}

// RemoveSelected drops every selected rectangle and returns how many went.
func (r *Registry) RemoveSelected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rects[:0]
	removed := 0
	for _, rect := range r.rects {
		if rect.Selected {
			removed++
			continue
		}
		kept = append(kept, rect)
	}
	r.rects = kept
	return removed
}

// Get returns a copy of one rectangle.
func (r *Registry) Get(id string) (types.SpriteRect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(id)
	if i < 0 {
		return types.SpriteRect{}, false
	}
	return r.rects[i], true
}

// List returns a copy of all rectangles in insertion order.
func (r *Registry) List() []types.SpriteRect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.SpriteRect, len(r.rects))
	copy(out, r.rects)
	return out
}

// Visible returns the rectangles whose source equals mode.
func (r *Registry) Visible(mode types.Source) []types.SpriteRect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.SpriteRect
	for _, rect := range r.rects {
		if rect.Source == mode {
			out = append(out, rect)
		}
	}
	return out
}

// Selected returns the selected rectangles.
func (r *Registry) Selected() []types.SpriteRect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.SpriteRect
	for _, rect := range r.rects {
		if rect.Selected {
			out = append(out, rect)
		}
	}
	return out
}

// Len returns the number of stored rectangles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rects)
}

// CountPrefix counts rectangles whose name starts with prefix.
func (r *Registry) CountPrefix(prefix string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rect := range r.rects {
		if strings.HasPrefix(rect.Name, prefix) {
			n++
		}
	}
	return n
}

// NextName returns prefix_{n+1} where n is CountPrefix(prefix).
func (r *Registry) NextName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, r.CountPrefix(prefix)+1)
}

// NameSequence counts existing names once and hands out consecutive names
// for one batch. Later renames are not tracked, so names are unique within
// a batch but not guaranteed across the registry.
func (r *Registry) NameSequence(prefix string) *NameSequence {
	return &NameSequence{prefix: prefix, next: r.CountPrefix(prefix) + 1}
}

// NameSequence yields prefix_k, prefix_k+1, ...
type NameSequence struct {
	prefix string
	next   int
}

// Next returns the next name in the sequence.
func (s *NameSequence) Next() string {
	name := fmt.Sprintf("%s_%d", s.prefix, s.next)
	s.next++
	return name
}

func (r *Registry) index(id string) int {
	for i := range r.rects {
		if r.rects[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) deselectAll() {
	for i := range r.rects {
		r.rects[i].Selected = false
	}
}
