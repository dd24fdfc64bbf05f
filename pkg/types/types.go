package types

import (
	"fmt"
	"strings"
)

// Source records which extraction strategy produced a rectangle. The same
// values double as the editor's active mode.
type Source string

const (
	SourceManual Source = "MANUAL"
	SourceGrid   Source = "GRID"
	SourceAuto   Source = "AUTO"
)

// Sources lists every strategy in display order.
func Sources() []Source {
	return []Source{SourceManual, SourceGrid, SourceAuto}
}

// Valid reports whether s is one of the known strategies.
func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceGrid, SourceAuto:
		return true
	}
	return false
}

// ParseSource parses a mode name case-insensitively.
func ParseSource(v string) (Source, error) {
	s := Source(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown mode %q (use manual, grid or auto)", v)
	}
	return s, nil
}

// CalculationMode selects how grid cell size is derived.
type CalculationMode string

const (
	CalcPixel CalculationMode = "PIXEL"
	CalcCount CalculationMode = "COUNT"
)

// InteractionMode selects whether grid/auto produce everything at once or
// only what the user boxes.
type InteractionMode string

const (
	InteractGenerate InteractionMode = "GENERATE"
	InteractSelect   InteractionMode = "SELECT"
)

// SpriteRect is a finalized rectangle in image space.
type SpriteRect struct {
	ID       string `json:"id" yaml:"id"`
	X        int    `json:"x" yaml:"x"`
	Y        int    `json:"y" yaml:"y"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	Name     string `json:"name" yaml:"name"`
	Source   Source `json:"source" yaml:"source"`
	Selected bool   `json:"selected,omitempty" yaml:"selected,omitempty"`
}

// Right returns the exclusive right edge.
func (r SpriteRect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r SpriteRect) Bottom() int { return r.Y + r.Height }

// Area returns the area of the rectangle
func (r SpriteRect) Area() int {
	return r.Width * r.Height
}

// Dimensions is the size of the loaded image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether no image is loaded.
func (d Dimensions) Empty() bool {
	return d.Width <= 0 || d.Height <= 0
}

// Point is a position in screen or image space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is a drag rectangle in image space. W and H may be negative while a
// gesture is in progress.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Normalize returns the box with a top-left origin and non-negative extents.
func (b Box) Normalize() Box {
	if b.W < 0 {
		b.X += b.W
		b.W = -b.W
	}
	if b.H < 0 {
		b.Y += b.H
		b.H = -b.H
	}
	return b
}

// GridSettings configures the grid slicer.
type GridSettings struct {
	CalculationMode CalculationMode `json:"calculation_mode" yaml:"calculation_mode"`
	Width           int             `json:"width" yaml:"width"`
	Height          int             `json:"height" yaml:"height"`
	Columns         int             `json:"columns" yaml:"columns"`
	Rows            int             `json:"rows" yaml:"rows"`
	OffsetX         int             `json:"offset_x" yaml:"offset_x"`
	OffsetY         int             `json:"offset_y" yaml:"offset_y"`
	Gap             int             `json:"gap" yaml:"gap"`
	Padding         int             `json:"padding" yaml:"padding"`
	AllowPartial    bool            `json:"allow_partial" yaml:"allow_partial"`
	InteractionMode InteractionMode `json:"interaction_mode" yaml:"interaction_mode"`
	LockSprites     bool            `json:"lock_sprites" yaml:"lock_sprites"`
}

// AutoSettings configures automatic detection.
type AutoSettings struct {
	Threshold       int             `json:"threshold" yaml:"threshold"`
	MinArea         int             `json:"min_area" yaml:"min_area"`
	Margin          int             `json:"margin" yaml:"margin"`
	Padding         int             `json:"padding" yaml:"padding"`
	AllowPartial    bool            `json:"allow_partial" yaml:"allow_partial"`
	InteractionMode InteractionMode `json:"interaction_mode" yaml:"interaction_mode"`
	LockSprites     bool            `json:"lock_sprites" yaml:"lock_sprites"`
}

// ManualSettings configures freehand cutting.
type ManualSettings struct {
	MaintainAspectRatio bool `json:"maintain_aspect_ratio" yaml:"maintain_aspect_ratio"`
	AspectRatioX        int  `json:"aspect_ratio_x" yaml:"aspect_ratio_x"`
	AspectRatioY        int  `json:"aspect_ratio_y" yaml:"aspect_ratio_y"`
	PreventOverlap      bool `json:"prevent_overlap" yaml:"prevent_overlap"`
	AllowPartial        bool `json:"allow_partial" yaml:"allow_partial"`
	LockSprites         bool `json:"lock_sprites" yaml:"lock_sprites"`
}

// AspectLocked reports whether the ratio constraint applies.
func (m ManualSettings) AspectLocked() bool {
	return m.MaintainAspectRatio && m.AspectRatioX > 0 && m.AspectRatioY > 0
}

// DefaultPrefix is the naming prefix used when none is configured.
const DefaultPrefix = "sprite"

// DefaultGridSettings returns the grid defaults.
func DefaultGridSettings() GridSettings {
	return GridSettings{
		CalculationMode: CalcPixel,
		Width:           32,
		Height:          32,
		Columns:         4,
		Rows:            4,
		InteractionMode: InteractGenerate,
	}
}

// DefaultAutoSettings returns the detection defaults.
func DefaultAutoSettings() AutoSettings {
	return AutoSettings{
		Threshold:       10,
		MinArea:         100,
		InteractionMode: InteractGenerate,
	}
}

// DefaultManualSettings returns the manual cutting defaults.
func DefaultManualSettings() ManualSettings {
	return ManualSettings{
		AspectRatioX: 1,
		AspectRatioY: 1,
	}
}
