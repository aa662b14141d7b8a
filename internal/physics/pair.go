package physics

import "github.com/l1jgo/lockstep/internal/core/ecs"

// PairKey is symmetric: the lower id always comes first.
func PairKey(a, b ecs.EntityID) int {
	if a > b {
		a, b = b, a
	}
	return int(a)*MaxSimObjects + int(b)
}

// Pair is the cached collision state of two bodies. It is created the first
// time their bounds share a cell and kept while they keep sharing one. It is
// deactivated when the bodies drift apart or either leaves simulation.
type Pair struct {
	A, B ecs.EntityID
	Key  int

	// Begins and Ends count contact transitions over the pair's lifetime.
	Begins int
	Ends   int

	active    bool
	inContact bool
	checked   int
	touched   int
}

func newPair(a, b ecs.EntityID) *Pair {
	if a > b {
		a, b = b, a
	}
	return &Pair{A: a, B: b, Key: PairKey(a, b), active: true, checked: -1, touched: -1}
}

// Active is false once the pair has been released.
func (p *Pair) Active() bool { return p.active }

// InContact reports whether the bodies overlapped on the last check.
func (p *Pair) InContact() bool { return p.inContact }

// Involves reports whether id is one of the two bodies.
func (p *Pair) Involves(id ecs.EntityID) bool { return p.A == id || p.B == id }

// Deactivate releases contact state. A deactivated pair is never reused.
func (p *Pair) Deactivate() {
	p.active = false
	p.inContact = false
}
