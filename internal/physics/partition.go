package physics

import (
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// Partition is a fixed-size uniform grid of body ids. Cells are square with a
// power-of-two side measured in whole units. Bodies are bucketed into every
// cell their bounds overlap; parts outside the grid are dropped.
// Accessed only from the simulation goroutine, no locks.
type Partition struct {
	origin    fixed.Vector2d
	cellShift uint
	width     int
	height    int
	cells     [][]ecs.EntityID
}

// NewPartition builds a width x height grid whose cell (0, 0) starts at origin.
func NewPartition(origin fixed.Vector2d, cellShift uint, width, height int) *Partition {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Partition{
		origin:    origin,
		cellShift: cellShift,
		width:     width,
		height:    height,
		cells:     make([][]ecs.EntityID, width*height),
	}
}

func (p *Partition) Width() int  { return p.width }
func (p *Partition) Height() int { return p.height }

// CellSize is the side of one cell in fixed-point units.
func (p *Partition) CellSize() fixed.Fixed { return fixed.One << p.cellShift }

// toCell floors a world coordinate into a cell coordinate.
func (p *Partition) toCell(v, origin fixed.Fixed) int {
	return int((v - origin) >> (fixed.Shift + p.cellShift))
}

// CellOf returns the cell holding pos, and whether it lies inside the grid.
func (p *Partition) CellOf(pos fixed.Vector2d) (cx, cy int, ok bool) {
	cx = p.toCell(pos.X, p.origin.X)
	cy = p.toCell(pos.Y, p.origin.Y)
	return cx, cy, p.InBounds(cx, cy)
}

func (p *Partition) InBounds(cx, cy int) bool {
	return cx >= 0 && cy >= 0 && cx < p.width && cy < p.height
}

// Cell returns the ids bucketed in a cell, ascending. Out of range yields nil.
func (p *Partition) Cell(cx, cy int) []ecs.EntityID {
	if !p.InBounds(cx, cy) {
		return nil
	}
	return p.cells[cy*p.width+cx]
}

// Clear empties every cell, keeping capacity.
func (p *Partition) Clear() {
	for i := range p.cells {
		p.cells[i] = p.cells[i][:0]
	}
}

// cellRange clips a bounding box to the grid. ok is false when the box lies
// entirely outside.
func (p *Partition) cellRange(min, max fixed.Vector2d) (x0, y0, x1, y1 int, ok bool) {
	x0 = p.toCell(min.X, p.origin.X)
	y0 = p.toCell(min.Y, p.origin.Y)
	x1 = p.toCell(max.X, p.origin.X)
	y1 = p.toCell(max.Y, p.origin.Y)
	if x1 < 0 || y1 < 0 || x0 >= p.width || y0 >= p.height {
		return 0, 0, 0, 0, false
	}
	x0, y0 = maxInt(x0, 0), maxInt(y0, 0)
	x1, y1 = minInt(x1, p.width-1), minInt(y1, p.height-1)
	return x0, y0, x1, y1, true
}

// Insert buckets id into every cell overlapped by the box. Inserting in
// ascending id order keeps every cell sorted.
func (p *Partition) Insert(id ecs.EntityID, min, max fixed.Vector2d) {
	x0, y0, x1, y1, ok := p.cellRange(min, max)
	if !ok {
		return
	}
	for cy := y0; cy <= y1; cy++ {
		row := cy * p.width
		for cx := x0; cx <= x1; cx++ {
			p.cells[row+cx] = append(p.cells[row+cx], id)
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
