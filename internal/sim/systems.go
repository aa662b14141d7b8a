package sim

import (
	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/core/event"
	coresys "github.com/l1jgo/lockstep/internal/core/system"
	"github.com/l1jgo/lockstep/internal/physics"
)

// EventSystem delivers last frame's messages. Phase 1 (Events).
type EventSystem struct {
	bus *event.Bus
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *EventSystem) Update(_ int) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// AgentSystem runs helpers and agents. Phase 2 (Simulate).
type AgentSystem struct {
	registry *agent.Registry
}

func (s *AgentSystem) Phase() coresys.Phase { return coresys.PhaseSimulate }
func (s *AgentSystem) Update(_ int)         { s.registry.Simulate() }

// PhysicsSystem integrates velocities and resolves contacts. Phase 3 (Physics).
type PhysicsSystem struct {
	world *physics.World
}

func (s *PhysicsSystem) Phase() coresys.Phase { return coresys.PhasePhysics }
func (s *PhysicsSystem) Update(_ int)         { s.world.Step() }

// LateSystem runs post-physics agent logic. Phase 4 (LateSimulate).
type LateSystem struct {
	registry *agent.Registry
}

func (s *LateSystem) Phase() coresys.Phase { return coresys.PhaseLateSimulate }
func (s *LateSystem) Update(_ int)         { s.registry.LateSimulate() }

// HashSystem records the frame's state hash. Phase 5 (Persist).
type HashSystem struct {
	sim *Simulation
}

func (s *HashSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *HashSystem) Update(frame int) {
	h := s.sim.StateHash()
	s.sim.lastHash = h
	s.sim.Monitor.Record(frame, h)
}

// CleanupSystem returns deferred destroys to their pools. Phase 6 (Cleanup).
type CleanupSystem struct {
	registry *agent.Registry
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }
func (s *CleanupSystem) Update(_ int)         { s.registry.FlushDestroyed() }
