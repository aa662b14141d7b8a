package physics

import "github.com/l1jgo/lockstep/internal/fixed"

// contact is the result of a narrow-phase test: the unit normal pointing
// from a to b and how deep the shapes overlap.
type contact struct {
	normal fixed.Vector2d
	depth  fixed.Fixed
}

// collide runs the narrow phase for two bodies whose shapes are defined.
func collide(a, b *Body) (contact, bool) {
	switch {
	case a.Shape == ShapeCircle && b.Shape == ShapeCircle:
		return circleCircle(a, b)
	case a.Shape == ShapeBox && b.Shape == ShapeBox:
		return boxBox(a, b)
	case a.Shape == ShapeCircle && b.Shape == ShapeBox:
		return circleBox(a, b)
	case a.Shape == ShapeBox && b.Shape == ShapeCircle:
		c, ok := circleBox(b, a)
		c.normal = c.normal.Neg()
		return c, ok
	}
	return contact{}, false
}

func circleCircle(a, b *Body) (contact, bool) {
	d := b.Position.Sub(a.Position)
	r := a.Radius + b.Radius
	sqr := d.SqrMagnitude()
	if sqr >= fixed.Mul(r, r) {
		return contact{}, false
	}
	dist := fixed.Sqrt(sqr)
	if dist == 0 {
		// coincident centers separate along +X
		return contact{normal: fixed.Right, depth: r}, true
	}
	return contact{normal: d.Div(dist), depth: r - dist}, true
}

func boxBox(a, b *Body) (contact, bool) {
	d := b.Position.Sub(a.Position)
	ox := a.HalfWidth + b.HalfWidth - fixed.Abs(d.X)
	if ox <= 0 {
		return contact{}, false
	}
	oy := a.HalfHeight + b.HalfHeight - fixed.Abs(d.Y)
	if oy <= 0 {
		return contact{}, false
	}
	if ox <= oy {
		n := fixed.Right
		if d.X < 0 {
			n = fixed.Left
		}
		return contact{normal: n, depth: ox}, true
	}
	n := fixed.Up
	if d.Y < 0 {
		n = fixed.Down
	}
	return contact{normal: n, depth: oy}, true
}

// circleBox treats a as the circle and b as the box.
func circleBox(a, b *Body) (contact, bool) {
	local := a.Position.Sub(b.Position)
	closest := fixed.Vector2d{
		X: fixed.Clamp(local.X, -b.HalfWidth, b.HalfWidth),
		Y: fixed.Clamp(local.Y, -b.HalfHeight, b.HalfHeight),
	}
	if closest == local {
		// center inside the box: push out through the nearest face
		ox := b.HalfWidth - fixed.Abs(local.X)
		oy := b.HalfHeight - fixed.Abs(local.Y)
		if ox <= oy {
			n := fixed.Left
			if local.X < 0 {
				n = fixed.Right
			}
			return contact{normal: n, depth: ox + a.Radius}, true
		}
		n := fixed.Down
		if local.Y < 0 {
			n = fixed.Up
		}
		return contact{normal: n, depth: oy + a.Radius}, true
	}
	d := local.Sub(closest)
	sqr := d.SqrMagnitude()
	if sqr >= fixed.Mul(a.Radius, a.Radius) {
		return contact{}, false
	}
	dist := fixed.Sqrt(sqr)
	if dist == 0 {
		return contact{}, false
	}
	// d points from the box surface to the circle; the normal runs a to b
	return contact{normal: d.Div(dist).Neg(), depth: a.Radius - dist}, true
}

// resolve pushes overlapping bodies apart along the contact normal. Two
// movable bodies split the correction; otherwise the movable one takes all.
func resolve(a, b *Body, c contact) {
	push := c.normal.Scale(c.depth)
	switch {
	case a.Immovable:
		b.Position.AddInPlace(push)
	case b.Immovable:
		a.Position.AddInPlace(push.Neg())
	default:
		half := c.normal.Scale(c.depth / 2)
		a.Position.AddInPlace(half.Neg())
		b.Position.AddInPlace(push.Sub(half))
	}
}
