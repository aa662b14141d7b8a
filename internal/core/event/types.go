package event

import "github.com/l1jgo/lockstep/internal/core/ecs"

// Messages shared by the simulation packages. Gameplay packages define their
// own alongside their behaviours.

// AgentCreated is emitted when an agent enters simulation.
type AgentCreated struct {
	GlobalID   ecs.EntityID
	Controller uint8
	Code       string
}

// AgentDestroyed is emitted when an agent leaves simulation.
type AgentDestroyed struct {
	GlobalID  ecs.EntityID
	Code      string
	Immediate bool
}

// GameStarted is emitted once, when the first influence frame merges.
type GameStarted struct {
	Frame int
}
