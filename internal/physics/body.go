// Package physics implements the uniform-grid broad phase, the collision pair
// cache, contact resolution and integer raycasts over simulated bodies.
package physics

import (
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// Shape selects the narrow-phase test for a body. Boxes are axis aligned.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeCircle
	ShapeBox
)

// NoOwner marks a body that no agent owns.
const NoOwner = -1

// Body is one simulated object. Position and Velocity are mutated by the
// world during the physics phase and by gameplay code in the simulate phase.
type Body struct {
	Position fixed.Vector2d
	Rotation fixed.Rotation
	// Velocity is applied once per physics step.
	Velocity fixed.Vector2d

	Shape      Shape
	Radius     fixed.Fixed
	HalfWidth  fixed.Fixed
	HalfHeight fixed.Fixed

	Layer     uint8
	Immovable bool
	Trigger   bool

	HeightMin fixed.Fixed
	HeightMax fixed.Fixed

	// Owner is the global id of the agent driving this body, or NoOwner.
	Owner int

	id     ecs.EntityID
	active bool
	stamp  uint32
}

// NewCircle returns a movable circle body.
func NewCircle(pos fixed.Vector2d, radius fixed.Fixed) *Body {
	return &Body{Position: pos, Rotation: fixed.Radian0, Shape: ShapeCircle, Radius: radius, Owner: NoOwner}
}

// NewBox returns a movable axis-aligned box body.
func NewBox(pos fixed.Vector2d, halfWidth, halfHeight fixed.Fixed) *Body {
	return &Body{
		Position:   pos,
		Rotation:   fixed.Radian0,
		Shape:      ShapeBox,
		HalfWidth:  halfWidth,
		HalfHeight: halfHeight,
		Owner:      NoOwner,
	}
}

// ID is valid only while the body is assimilated.
func (b *Body) ID() ecs.EntityID { return b.id }

// Active reports whether the body is part of a world.
func (b *Body) Active() bool { return b.active }

// Bounds returns the axis-aligned box enclosing the body.
func (b *Body) Bounds() (min, max fixed.Vector2d) {
	var hx, hy fixed.Fixed
	switch b.Shape {
	case ShapeCircle:
		hx, hy = b.Radius, b.Radius
	case ShapeBox:
		hx, hy = b.HalfWidth, b.HalfHeight
	}
	return fixed.Vector2d{X: b.Position.X - hx, Y: b.Position.Y - hy},
		fixed.Vector2d{X: b.Position.X + hx, Y: b.Position.Y + hy}
}

// HeightOverlaps reports whether the two vertical ranges intersect.
func (b *Body) HeightOverlaps(o *Body) bool {
	return b.HeightMin <= o.HeightMax && o.HeightMin <= b.HeightMax
}

// ContainsHeight reports whether h falls in the body's vertical range.
func (b *Body) ContainsHeight(h fixed.Fixed) bool {
	return h >= b.HeightMin && h <= b.HeightMax
}

// ClosestDistance is the distance from p to the near edge of the body, zero
// when p lies inside it.
func (b *Body) ClosestDistance(p fixed.Vector2d) fixed.Fixed {
	switch b.Shape {
	case ShapeCircle:
		return fixed.Max(p.Distance(b.Position)-b.Radius, 0)
	case ShapeBox:
		near := fixed.Vector2d{
			X: fixed.Clamp(p.X, b.Position.X-b.HalfWidth, b.Position.X+b.HalfWidth),
			Y: fixed.Clamp(p.Y, b.Position.Y-b.HalfHeight, b.Position.Y+b.HalfHeight),
		}
		return p.Distance(near)
	}
	return p.Distance(b.Position)
}
