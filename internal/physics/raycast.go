package physics

import (
	"math/bits"

	"github.com/l1jgo/lockstep/internal/fixed"
)

// Raycast visits every body whose shape intersects the segment from start to
// end. Cells are walked with an integer supercover traversal; each body is
// reported once, in cell-visit order and ascending id within a cell. The walk
// stops at the first cell outside the grid. Returning false from fn stops it
// early.
func (w *World) Raycast(start, end fixed.Vector2d, fn func(*Body) bool) {
	if w.dirty {
		w.Rebuild()
	}
	d := end.Sub(start)
	w.stamp++
	w.traverse(start, end, func(cx, cy int) bool {
		for _, id := range w.partition.Cell(cx, cy) {
			b := w.body(id)
			if b == nil || b.stamp == w.stamp {
				continue
			}
			b.stamp = w.stamp
			if segmentHits(start, d, b) && !fn(b) {
				return false
			}
		}
		return true
	})
}

// RaycastHeight is Raycast with a vertical filter: the ray climbs linearly
// from startHeight to endHeight, and a body is reported only when the ray's
// height where it reaches the body's near edge falls inside its height range.
func (w *World) RaycastHeight(start, end fixed.Vector2d, startHeight, endHeight fixed.Fixed, fn func(*Body) bool) {
	total := start.Distance(end)
	var slope fixed.Fixed
	if total > 0 {
		slope = fixed.Div(endHeight-startHeight, total)
	}
	w.Raycast(start, end, func(b *Body) bool {
		h := startHeight + fixed.Mul(b.ClosestDistance(start), slope)
		if !b.ContainsHeight(h) {
			return true
		}
		return fn(b)
	})
}

// traverse visits the cells crossed by the segment in order. When the segment
// passes exactly through a cell corner both side cells are visited before the
// diagonal one.
func (w *World) traverse(start, end fixed.Vector2d, visit func(cx, cy int) bool) {
	p := w.partition
	shift := fixed.Shift + p.cellShift
	cs := uint64(p.CellSize())

	sx, sy := start.X-p.origin.X, start.Y-p.origin.Y
	ex, ey := end.X-p.origin.X, end.Y-p.origin.Y
	cx, cy := int(sx>>shift), int(sy>>shift)
	tx, ty := int(ex>>shift), int(ey>>shift)

	stepX, adx, nx := axisSetup(sx, ex, cx, cs)
	stepY, ady, ny := axisSetup(sy, ey, cy, cs)

	steps := absInt(tx-cx) + absInt(ty-cy)
	for i := 0; i <= steps; i++ {
		if !p.InBounds(cx, cy) || !visit(cx, cy) {
			return
		}
		if cx == tx && cy == ty {
			return
		}
		switch order(stepX, stepY, nx, ny, adx, ady) {
		case -1:
			cx += stepX
			nx += cs
		case 1:
			cy += stepY
			ny += cs
		default:
			if !p.InBounds(cx+stepX, cy) || !visit(cx+stepX, cy) {
				return
			}
			if !p.InBounds(cx, cy+stepY) || !visit(cx, cy+stepY) {
				return
			}
			cx += stepX
			cy += stepY
			nx += cs
			ny += cs
			i++
		}
	}
}

// axisSetup returns the step direction, the absolute extent of the segment on
// the axis and the distance from the start to the first cell boundary.
func axisSetup(s, e fixed.Fixed, c int, cs uint64) (step int, extent, next uint64) {
	switch {
	case e > s:
		return 1, uint64(e - s), uint64(fixed.Fixed(c+1)*fixed.Fixed(cs) - s)
	case e < s:
		return -1, uint64(s - e), uint64(s - fixed.Fixed(c)*fixed.Fixed(cs))
	}
	return 0, 0, 0
}

// order compares the segment parameters of the next x and y boundaries,
// nx/adx against ny/ady, by cross multiplication in 128 bits. It returns -1
// when x comes first, 1 when y does and 0 at a corner.
func order(stepX, stepY int, nx, ny, adx, ady uint64) int {
	if stepX == 0 {
		return 1
	}
	if stepY == 0 {
		return -1
	}
	lh, ll := bits.Mul64(nx, ady)
	rh, rl := bits.Mul64(ny, adx)
	switch {
	case lh < rh || (lh == rh && ll < rl):
		return -1
	case lh > rh || (lh == rh && ll > rl):
		return 1
	}
	return 0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// segmentHits tests the segment start + t*d, t in [0, One], against a body.
func segmentHits(start, d fixed.Vector2d, b *Body) bool {
	switch b.Shape {
	case ShapeCircle:
		m := b.Position.Sub(start)
		var t fixed.Fixed
		if dd := d.Dot(d); dd > 0 {
			t = fixed.Clamp(fixed.Div(m.Dot(d), dd), 0, fixed.One)
		}
		closest := start.Add(d.Scale(t))
		return closest.SqrDistance(b.Position) <= fixed.Mul(b.Radius, b.Radius)
	case ShapeBox:
		tmin, tmax := fixed.Fixed(0), fixed.One
		if !slab(start.X, d.X, b.Position.X-b.HalfWidth, b.Position.X+b.HalfWidth, &tmin, &tmax) {
			return false
		}
		return slab(start.Y, d.Y, b.Position.Y-b.HalfHeight, b.Position.Y+b.HalfHeight, &tmin, &tmax)
	}
	return false
}

// slab clips [tmin, tmax] against one axis of a box.
func slab(s, d, lo, hi fixed.Fixed, tmin, tmax *fixed.Fixed) bool {
	if d == 0 {
		return s >= lo && s <= hi
	}
	t1, t2 := fixed.Div(lo-s, d), fixed.Div(hi-s, d)
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	*tmin = fixed.Max(*tmin, t1)
	*tmax = fixed.Min(*tmax, t2)
	return *tmin <= *tmax
}
