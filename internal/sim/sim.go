// Package sim wires one complete simulation: registries, physics, messages,
// random stream, hash monitor and scheduler. Several can coexist in one
// process.
package sim

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/behaviour"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/event"
	coresys "github.com/l1jgo/lockstep/internal/core/system"
	"github.com/l1jgo/lockstep/internal/determinism"
	"github.com/l1jgo/lockstep/internal/lockstep"
	"github.com/l1jgo/lockstep/internal/physics"
)

// Options configures a Simulation.
type Options struct {
	Scheduler   lockstep.Config
	Agents      agent.Options
	Physics     physics.Config
	Seed        uint64
	HashHistory int
	InboxSize   int
	LocalPeer   uint8
	// Limiter throttles local input; nil disables throttling.
	Limiter *rate.Limiter
}

// Simulation owns every registry of one match.
type Simulation struct {
	log  *zap.Logger
	opts Options

	Bus       *event.Bus
	Physics   *physics.World
	Registry  *agent.Registry
	Random    *determinism.Random
	Monitor   *determinism.Monitor
	Runner    *coresys.Runner
	Inbox     *lockstep.Inbox
	Scheduler *lockstep.Scheduler
	Groups    *behaviour.MoveGroupHelper
	Spawner   *behaviour.SpawnHelper

	running  bool
	lastHash int32
}

func New(opts Options, log *zap.Logger) *Simulation {
	if opts.HashHistory <= 0 {
		opts.HashHistory = 128
	}
	s := &Simulation{
		log:    log,
		opts:   opts,
		Bus:    event.NewBus(),
		Random: determinism.NewRandom(opts.Seed),
		Runner: coresys.NewRunner(),
	}
	s.Physics = physics.NewWorld(opts.Physics, log.With(zap.String("component", "physics")))
	s.Registry = agent.NewRegistry(opts.Agents, s.Physics, s.Bus, log.With(zap.String("component", "agents")))
	s.Monitor = determinism.NewMonitor(opts.HashHistory, log)
	s.Inbox = lockstep.NewInbox(opts.InboxSize, opts.LocalPeer, opts.Limiter, log)

	s.Groups = behaviour.NewMoveGroupHelper(s.Registry, s.Bus, log)
	s.Spawner = behaviour.NewSpawnHelper(s.Registry, log)
	behaviour.Install(s.Registry, s.Groups, s.Spawner)

	s.Runner.Register(&EventSystem{bus: s.Bus})
	s.Runner.Register(&AgentSystem{registry: s.Registry})
	s.Runner.Register(&PhysicsSystem{world: s.Physics})
	s.Runner.Register(&LateSystem{registry: s.Registry})
	s.Runner.Register(&HashSystem{sim: s})
	s.Runner.Register(&CleanupSystem{registry: s.Registry})

	s.Scheduler = lockstep.NewScheduler(opts.Scheduler, s.Runner, s.Registry, s.Inbox, log.With(zap.String("component", "scheduler")))
	s.Scheduler.OnGameStart = s.Registry.GameStart
	return s
}

// RegisterTypes adds agent types in order.
func (s *Simulation) RegisterTypes(defs []agent.TypeDef) error {
	for _, def := range defs {
		if err := s.Registry.RegisterType(def); err != nil {
			return err
		}
	}
	return nil
}

// Initialize starts a fresh match with controllers controllers. Every peer
// must call it with the same arguments.
func (s *Simulation) Initialize(controllers int) error {
	if s.running {
		s.Deactivate()
	}
	s.Physics.Reset()
	s.Bus.Reset()
	s.Registry.Initialize()
	s.Random.Seed(s.opts.Seed)
	s.Scheduler.Initialize()
	s.lastHash = 0
	for i := 0; i < controllers; i++ {
		if _, err := s.Registry.NewController(); err != nil {
			return fmt.Errorf("initialize controller %d: %w", i, err)
		}
	}
	s.running = true
	s.log.Info("對局初始化完成",
		zap.Int("controllers", controllers),
		zap.Uint64("seed", s.opts.Seed),
		zap.Int("participants", s.Scheduler.Config().Participants),
	)
	return nil
}

// Deactivate ends the match and pools every agent.
func (s *Simulation) Deactivate() {
	s.Registry.Deactivate()
	s.Bus.Reset()
	s.running = false
}

// Step attempts one frame; false means paused, stalled or failed.
func (s *Simulation) Step() bool { return s.Scheduler.Tick() }

// Deliver hands a remote peer's serialized batch to the scheduler. Safe from
// any goroutine.
func (s *Simulation) Deliver(ctx context.Context, payload []byte) error {
	return s.Inbox.Deliver(ctx, payload)
}

// Submit queues local input. Safe from any goroutine.
func (s *Simulation) Submit(cmd *command.Command) error { return s.Inbox.Submit(cmd) }

// StateHash folds the current state into one value.
func (s *Simulation) StateHash() int32 {
	return determinism.StateHash(s.Random, s.Registry)
}

// LastHash is the hash recorded at the end of the last frame.
func (s *Simulation) LastHash() int32 { return s.lastHash }

// FrameCount is the number of simulated frames.
func (s *Simulation) FrameCount() int { return s.Scheduler.FrameCount() }

// Err is the first fatal error; the simulation no longer advances once set.
func (s *Simulation) Err() error { return s.Scheduler.Err() }

// ReportHash compares a peer's hash for frame with ours.
func (s *Simulation) ReportHash(frame int, peer uint8, hash int32) (match, known bool) {
	return s.Monitor.Compare(frame, peer, hash)
}

// Snapshot dumps the authoritative state for desync diagnostics.
func (s *Simulation) Snapshot() *determinism.Snapshot {
	snap := &determinism.Snapshot{
		Frame:     s.FrameCount(),
		Hash:      s.StateHash(),
		RandState: s.Random.State(),
		Agents:    make([]determinism.AgentState, 0, s.Registry.Len()),
	}
	s.Registry.Each(func(a *agent.Agent) {
		pos, rot := a.Position(), a.Rotation()
		snap.Agents = append(snap.Agents, determinism.AgentState{
			GlobalID:   uint16(a.GlobalID),
			LocalID:    uint16(a.LocalID),
			Controller: a.Controller.ID,
			Code:       a.Code,
			X:          pos.X,
			Y:          pos.Y,
			Cos:        rot.Cos,
			Sin:        rot.Sin,
			Tunables:   a.Tunables.Hash(),
		})
	})
	return snap
}
