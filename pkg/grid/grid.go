// Package grid computes regular grid cells over an image, either from a fixed
// cell size (PIXEL) or from a row/column count (COUNT).
package grid

import (
	"errors"
	"math"

	"github.com/menta2k/sprite-extractor/pkg/geometry"
	"github.com/menta2k/sprite-extractor/pkg/overlap"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

var (
	// ErrInvalidGeometry is returned when the settings yield a non-positive
	// cell size or step.
	ErrInvalidGeometry = errors.New("grid: invalid cell geometry")
	// ErrNoImage is returned when no image dimensions are known.
	ErrNoImage = errors.New("grid: no image loaded")
)

const (
	// ConfirmThreshold is the row or column count above which a caller
	// should ask before generating.
	ConfirmThreshold = 1000
	// MaxOverlayCells caps the cells returned by BuildOverlay.
	MaxOverlayCells = 5000
	// MaxCells caps PIXEL-mode generation.
	MaxCells = 1_000_000
)

// Cell is one grid slot. X/Y/Width/Height is the padded sprite box.
type Cell struct {
	Row    int `json:"row"`
	Col    int `json:"col"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the cell into an unnamed GRID candidate.
func (c Cell) Rect() types.SpriteRect {
	return types.SpriteRect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height, Source: types.SourceGrid}
}

// CellSize returns the unpadded cell size. COUNT mode divides the space left
// after the offset and gaps; it returns (0, 0) when rows/columns or the image
// are unset.
func CellSize(s types.GridSettings, dims types.Dimensions) (int, int) {
	if s.CalculationMode != types.CalcCount {
		return s.Width, s.Height
	}
	if s.Columns <= 0 || s.Rows <= 0 || dims.Empty() {
		return 0, 0
	}
	w := floorDiv(dims.Width-s.OffsetX-s.Gap*(s.Columns-1), s.Columns)
	h := floorDiv(dims.Height-s.OffsetY-s.Gap*(s.Rows-1), s.Rows)
	return w, h
}

// Plan summarizes a generation before it runs.
type Plan struct {
	CellWidth  int
	CellHeight int
	Columns    int
	Rows       int
}

// NeedsConfirm reports whether the grid is large enough to warrant asking.
func (p Plan) NeedsConfirm() bool {
	return p.Columns > ConfirmThreshold || p.Rows > ConfirmThreshold
}

// Estimate returns the plan for s without generating cells.
func Estimate(s types.GridSettings, dims types.Dimensions) (Plan, error) {
	w, h := CellSize(s, dims)
	if w <= 0 || h <= 0 {
		return Plan{}, ErrInvalidGeometry
	}
	p := Plan{CellWidth: w, CellHeight: h, Columns: s.Columns, Rows: s.Rows}
	if s.CalculationMode != types.CalcCount {
		p.Columns = floorDiv(dims.Width-s.OffsetX, w+s.Gap)
		p.Rows = floorDiv(dims.Height-s.OffsetY, h+s.Gap)
	}
	return p, nil
}

// Cells returns the cells a full generation would produce, row-major.
//
// COUNT mode emits exactly rows×columns cells with no bounds check. PIXEL
// mode walks while the cell origin is inside the image (extended by one cell
// when AllowPartial) and, without AllowPartial, skips cells crossing the
// right or bottom edge.
func Cells(s types.GridSettings, dims types.Dimensions) ([]Cell, error) {
	if dims.Empty() {
		return nil, ErrNoImage
	}
	w, h := CellSize(s, dims)
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidGeometry
	}

	var out []Cell
	if s.CalculationMode == types.CalcCount {
		for r := 0; r < s.Rows; r++ {
			for c := 0; c < s.Columns; c++ {
				if cell, ok := makeCell(s, w, h, r, c); ok {
					out = append(out, cell)
				}
			}
		}
		return out, nil
	}

	if w+s.Gap <= 0 || h+s.Gap <= 0 {
		return nil, ErrInvalidGeometry
	}
	limitX, limitY := dims.Width, dims.Height
	if s.AllowPartial {
		limitX += w
		limitY += h
	}
	for r := 0; ; r++ {
		y := s.OffsetY + r*(h+s.Gap)
		if y >= limitY {
			break
		}
		for c := 0; ; c++ {
			x := s.OffsetX + c*(w+s.Gap)
			if x >= limitX {
				break
			}
			if !s.AllowPartial && (x+w > dims.Width || y+h > dims.Height) {
				continue
			}
			if cell, ok := makeCell(s, w, h, r, c); ok {
				out = append(out, cell)
				if len(out) >= MaxCells {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

// CellsInBox returns the cells whose padded box strictly overlaps the drag
// box. Indices come from the grid geometry and may fall outside the
// configured rows/columns.
func CellsInBox(s types.GridSettings, dims types.Dimensions, box types.Box) ([]Cell, error) {
	w, h := CellSize(s, dims)
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidGeometry
	}
	stepX, stepY := float64(w+s.Gap), float64(h+s.Gap)
	if stepX <= 0 || stepY <= 0 {
		return nil, ErrInvalidGeometry
	}

	sel := geometry.FromBox(box)
	startCol := int(math.Floor((sel.X - float64(s.OffsetX)) / stepX))
	endCol := int(math.Floor((sel.Right() - float64(s.OffsetX)) / stepX))
	startRow := int(math.Floor((sel.Y - float64(s.OffsetY)) / stepY))
	endRow := int(math.Floor((sel.Bottom() - float64(s.OffsetY)) / stepY))

	var out []Cell
	for r := startRow; r <= endRow; r++ {
		for c := startCol; c <= endCol; c++ {
			cell, ok := makeCell(s, w, h, r, c)
			if !ok {
				continue
			}
			if sel.Overlaps(geometry.FromSprite(cell.Rect())) {
				out = append(out, cell)
			}
		}
	}
	return out, nil
}

// Overlay is what a renderer needs to draw the grid.
type Overlay struct {
	CellWidth  int    `json:"cell_width"`
	CellHeight int    `json:"cell_height"`
	OffsetX    int    `json:"offset_x"`
	OffsetY    int    `json:"offset_y"`
	Gap        int    `json:"gap"`
	Cells      []Cell `json:"cells"`
	Truncated  bool   `json:"truncated"`
}

// BuildOverlay returns the overlay cells. Unlike Cells, both modes skip
// cells crossing the image edge when AllowPartial is off, and the list stops
// at MaxOverlayCells.
func BuildOverlay(s types.GridSettings, dims types.Dimensions) (Overlay, error) {
	w, h := CellSize(s, dims)
	if w <= 0 || h <= 0 || dims.Empty() {
		return Overlay{}, ErrInvalidGeometry
	}
	ov := Overlay{CellWidth: w, CellHeight: h, OffsetX: s.OffsetX, OffsetY: s.OffsetY, Gap: s.Gap}

	cols, rows := s.Columns, s.Rows
	if s.CalculationMode != types.CalcCount {
		if w+s.Gap <= 0 || h+s.Gap <= 0 {
			return Overlay{}, ErrInvalidGeometry
		}
		extra := 0
		if s.AllowPartial {
			extra = 1
		}
		cols = floorDiv(dims.Width-s.OffsetX, w+s.Gap) + extra
		rows = floorDiv(dims.Height-s.OffsetY, h+s.Gap) + extra
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x := s.OffsetX + c*(w+s.Gap)
			y := s.OffsetY + r*(h+s.Gap)
			if !s.AllowPartial && (x+w > dims.Width || y+h > dims.Height) {
				continue
			}
			cell, ok := makeCell(s, w, h, r, c)
			if !ok {
				continue
			}
			if len(ov.Cells) >= MaxOverlayCells {
				ov.Truncated = true
				return ov, nil
			}
			ov.Cells = append(ov.Cells, cell)
		}
	}
	return ov, nil
}

// Generate inserts every cell into the registry behind res as unselected
// GRID rectangles.
func Generate(res *overlap.Resolver, s types.GridSettings) ([]types.SpriteRect, error) {
	cells, err := Cells(s, res.Dimensions())
	if err != nil {
		return nil, err
	}
	// Cells has already applied the mode's bounds rule.
	return res.Materialize(Rects(cells), types.SourceGrid, true), nil
}

// Pick inserts, selected, the cells under the drag box.
func Pick(res *overlap.Resolver, s types.GridSettings, box types.Box) ([]types.SpriteRect, error) {
	cells, err := CellsInBox(s, res.Dimensions(), box)
	if err != nil {
		return nil, err
	}
	return res.Pick(box, Rects(cells), types.SourceGrid, s.AllowPartial), nil
}

// Rects converts cells into unnamed GRID candidates.
func Rects(cells []Cell) []types.SpriteRect {
	out := make([]types.SpriteRect, len(cells))
	for i, c := range cells {
		out[i] = c.Rect()
	}
	return out
}

// makeCell shrinks the cell at row, col by the padding on every side. ok is
// false when nothing is left.
func makeCell(s types.GridSettings, w, h, row, col int) (Cell, bool) {
	x := s.OffsetX + col*(w+s.Gap)
	y := s.OffsetY + row*(h+s.Gap)
	cell := Cell{
		Row:    row,
		Col:    col,
		X:      x + s.Padding,
		Y:      y + s.Padding,
		Width:  w - 2*s.Padding,
		Height: h - 2*s.Padding,
	}
	return cell, cell.Width > 0 && cell.Height > 0
}

func floorDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
