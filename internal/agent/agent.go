package agent

import (
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/determinism"
	"github.com/l1jgo/lockstep/internal/fixed"
	"github.com/l1jgo/lockstep/internal/physics"
)

// TypeDef describes one agent type. Instances of a type are pooled by Code.
type TypeDef struct {
	Code       string
	Radius     fixed.Fixed
	Speed      fixed.Fixed
	Layer      uint8
	Immovable  bool
	Trigger    bool
	HeightMin  fixed.Fixed
	HeightMax  fixed.Fixed
	Behaviours []string
}

// Agent is one simulated unit. Identities are only valid while the agent is
// owned by a controller; a pooled agent holds none.
type Agent struct {
	Code string
	// TypeIndex is dense per type and survives pooling.
	TypeIndex int

	GlobalID   ecs.EntityID
	LocalID    ecs.EntityID
	Controller *Controller

	Body *physics.Body
	// Speed is the distance covered per frame at full throttle.
	Speed    fixed.Fixed
	Tunables *determinism.Tunables

	def        *TypeDef
	behaviours []Behaviour
	active     bool
	spawns     int
}

func newAgent(def *TypeDef, index int, factories []BehaviourFactory) *Agent {
	a := &Agent{
		Code:      def.Code,
		TypeIndex: index,
		Speed:     def.Speed,
		Tunables:  determinism.NewTunables(),
		def:       def,
	}
	body := physics.NewCircle(fixed.Zero, def.Radius)
	if def.Radius == 0 {
		body.Shape = physics.ShapeNone
	}
	body.Layer = def.Layer
	body.Immovable = def.Immovable
	body.Trigger = def.Trigger
	body.HeightMin = def.HeightMin
	body.HeightMax = def.HeightMax
	a.Body = body

	a.Tunables.RegisterInt64("speed", &a.Speed)
	a.Tunables.RegisterInt64("radius", &a.Body.Radius)

	a.behaviours = make([]Behaviour, 0, len(factories))
	for _, f := range factories {
		b := f()
		b.Setup(a)
		a.behaviours = append(a.behaviours, b)
	}
	return a
}

// Active reports whether the agent is in simulation.
func (a *Agent) Active() bool { return a.active }

// Spawns counts how many times this instance has been activated.
func (a *Agent) Spawns() int { return a.spawns }

func (a *Agent) Def() *TypeDef { return a.def }

func (a *Agent) Position() fixed.Vector2d { return a.Body.Position }
func (a *Agent) Rotation() fixed.Rotation { return a.Body.Rotation }

func (a *Agent) Behaviours() []Behaviour { return a.behaviours }

// initialize resets simulation state for a fresh activation.
func (a *Agent) initialize(pos fixed.Vector2d, rot fixed.Rotation) {
	a.Tunables.ResetAll()
	a.Body.Position = pos
	a.Body.Rotation = rot
	a.Body.Velocity = fixed.Zero
	a.active = true
	a.spawns++
	for _, b := range a.behaviours {
		b.Initialize()
	}
}

func (a *Agent) simulate() {
	for _, b := range a.behaviours {
		b.Simulate()
	}
}

func (a *Agent) lateSimulate() {
	for _, b := range a.behaviours {
		b.LateSimulate()
	}
}

func (a *Agent) execute(cmd *command.Command) {
	for _, b := range a.behaviours {
		b.Execute(cmd)
	}
}

func (a *Agent) deactivate() {
	for _, b := range a.behaviours {
		b.Deactivate()
	}
	a.active = false
}

// initializeInfluence publishes the agent to proximity scans under its
// current global id.
func (a *Agent) initializeInfluence() { a.Body.Owner = int(a.GlobalID) }

func (a *Agent) deactivateInfluence() { a.Body.Owner = physics.NoOwner }
