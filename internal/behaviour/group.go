// Package behaviour holds the built-in gameplay hooks: group movement, the
// mover that follows it and the spawner.
package behaviour

import (
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/core/event"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// MinGroupSize is the smallest group that may move in formation.
const MinGroupSize = 3

// MovementType is how a group decided to move.
type MovementType uint8

const (
	MoveGroup MovementType = iota
	MoveGroupIndividual
	MoveIndividual
)

func (t MovementType) String() string {
	switch t {
	case MoveGroup:
		return "Group"
	case MoveGroupIndividual:
		return "GroupIndividual"
	case MoveIndividual:
		return "Individual"
	}
	return "Unknown"
}

// Stop distances are multiples of the mover's radius.
const (
	DirectStop      = fixed.One / 4
	GroupDirectStop = fixed.One
	FormationStop   = fixed.Half
)

// GroupProcessed tells a mover where its group sent it.
type GroupProcessed struct {
	GlobalID    ecs.EntityID
	Order       uint32
	Destination fixed.Vector2d
	Type        MovementType
	StopFactor  fixed.Fixed
}

// Arrived is emitted when a mover reaches its destination.
type Arrived struct {
	GlobalID    ecs.EntityID
	Destination fixed.Vector2d
}

// MovementGroup gathers the movers selected by one move command and decides,
// once, whether they travel in formation or each on its own.
type MovementGroup struct {
	ID          ecs.EntityID
	Destination fixed.Vector2d
	Type        MovementType

	movers     []*Mover
	position   fixed.Vector2d
	direction  fixed.Vector2d
	radius     fixed.Fixed
	calculated bool
}

func (g *MovementGroup) reset(dest fixed.Vector2d) {
	g.Destination = dest
	g.Type = MoveIndividual
	g.movers = g.movers[:0]
	g.position = fixed.Zero
	g.direction = fixed.Zero
	g.radius = 0
	g.calculated = false
}

// Len is the number of movers still in the group.
func (g *MovementGroup) Len() int { return len(g.movers) }

// Radius is the spread measured when the group was processed.
func (g *MovementGroup) Radius() fixed.Fixed { return g.radius }

func (g *MovementGroup) add(m *Mover) {
	if m.group != nil {
		m.group.remove(m)
	}
	m.group = g
	g.movers = append(g.movers, m)
}

// remove keeps the join order of the remaining movers.
func (g *MovementGroup) remove(m *Mover) {
	for i, o := range g.movers {
		if o == m {
			copy(g.movers[i:], g.movers[i+1:])
			g.movers[len(g.movers)-1] = nil
			g.movers = g.movers[:len(g.movers)-1]
			break
		}
	}
	if m.group == g {
		m.group = nil
	}
}

// process picks the movement type and posts a GroupProcessed message per mover.
func (g *MovementGroup) process(bus *event.Bus) {
	n := len(g.movers)
	if n == 0 {
		return
	}
	if n < MinGroupSize {
		g.dispatch(bus, MoveIndividual, DirectStop)
		return
	}

	var sum fixed.Vector2d
	var size fixed.Fixed
	for _, m := range g.movers {
		sum.AddInPlace(m.position())
		size += m.collisionSize()
	}
	g.position = sum.DivInt(int64(n))
	avg := size / fixed.Fixed(n)

	var biggest fixed.Fixed
	for _, m := range g.movers {
		if d := m.position().SqrDistance(g.position); d > biggest {
			biggest = d
			g.radius = fixed.Sqrt(d)
		}
	}
	if g.radius == 0 {
		g.dispatch(bus, MoveGroupIndividual, GroupDirectStop)
		return
	}

	expected := fixed.Mul(fixed.Mul(fixed.Mul(avg, avg), 2*fixed.One), fixed.FromInt(n))
	spread := fixed.Mul(g.radius, g.radius)
	if spread > expected || g.position.FastDistance(g.Destination) < g.radius*g.radius {
		g.dispatch(bus, MoveGroupIndividual, GroupDirectStop)
		return
	}

	g.Type = MoveGroup
	g.direction = g.Destination.Sub(g.position)
	for _, m := range g.movers {
		m.post(bus, m.position().Add(g.direction), MoveGroup, FormationStop)
	}
}

func (g *MovementGroup) dispatch(bus *event.Bus, t MovementType, stop fixed.Fixed) {
	g.Type = t
	for _, m := range g.movers {
		m.post(bus, g.Destination, t, stop)
	}
}
