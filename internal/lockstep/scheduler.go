// Package lockstep advances the simulation one fixed frame at a time, only
// when every participant's input for the next influence frame is in hand.
package lockstep

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/command"
	coresys "github.com/l1jgo/lockstep/internal/core/system"
	"github.com/l1jgo/lockstep/internal/fixed"
)

const (
	DefaultFrameRate           = 32
	DefaultInfluenceResolution = 2
)

// State is the scheduler's position within a tick.
type State uint8

const (
	StateAwaitInput State = iota
	StateMergeCommands
	StateSimulateEntities
	StateSimulatePhysics
	StateLateSimulate
)

func (s State) String() string {
	switch s {
	case StateAwaitInput:
		return "AwaitInput"
	case StateMergeCommands:
		return "MergeCommands"
	case StateSimulateEntities:
		return "SimulateEntities"
	case StateSimulatePhysics:
		return "SimulatePhysics"
	case StateLateSimulate:
		return "LateSimulate"
	}
	return "Unknown"
}

// Executor consumes merged commands. Err reports a fatal error raised while
// executing or simulating.
type Executor interface {
	Execute(cmd *command.Command)
	Err() error
}

// FrameSink receives every merged influence frame, batches in peer order.
type FrameSink interface {
	MergedFrame(frame int32, batches []*command.Batch)
}

// Config holds the scheduler settings.
type Config struct {
	FrameRate           int
	InfluenceResolution int
	// InputDelay is how many influence frames local input is scheduled ahead.
	InputDelay   int
	Participants int
	// Spectate publishes no local batches; every peer's input arrives
	// through Deliver. Used to replay journaled matches.
	Spectate bool
}

func (c *Config) normalize() {
	if c.FrameRate <= 0 {
		c.FrameRate = DefaultFrameRate
	}
	if c.InfluenceResolution <= 0 {
		c.InfluenceResolution = DefaultInfluenceResolution
	}
	if c.InputDelay < 0 {
		c.InputDelay = 0
	}
	if c.InputDelay >= MaxFrameLead {
		c.InputDelay = MaxFrameLead - 1
	}
	if c.Participants <= 0 {
		c.Participants = 1
	}
}

// Scheduler drives the runner through the sub-phases of each frame. All
// methods except those on the Inbox must be called from one goroutine.
type Scheduler struct {
	cfg    Config
	log    *zap.Logger
	runner *coresys.Runner
	exec   Executor
	inbox  *Inbox
	buffer *FrameBuffer

	// Outbound receives each serialized local batch for the transport.
	Outbound func(payload []byte)
	// OnGameStart runs before the first influence frame is merged.
	OnGameStart func(frame int)

	sinks []FrameSink

	state          State
	influenceCount int
	influenceFrame int
	frameCount     int
	localNext      int32
	stalled        bool
	pauseCount     int
	playRate       fixed.Fixed
	err            error
}

func NewScheduler(cfg Config, runner *coresys.Runner, exec Executor, inbox *Inbox, log *zap.Logger) *Scheduler {
	cfg.normalize()
	s := &Scheduler{
		cfg:    cfg,
		log:    log,
		runner: runner,
		exec:   exec,
		inbox:  inbox,
		buffer: NewFrameBuffer(cfg.Participants),
	}
	s.Initialize()
	return s
}

// AddSink registers a FrameSink.
func (s *Scheduler) AddSink(sink FrameSink) { s.sinks = append(s.sinks, sink) }

// Initialize restarts at frame zero. Queued input and the pause stack are
// dropped and the play rate returns to one.
func (s *Scheduler) Initialize() {
	s.buffer.Reset()
	s.inbox.reset()
	s.state = StateAwaitInput
	s.influenceCount = 0
	s.influenceFrame = 0
	s.frameCount = 0
	s.localNext = 0
	s.stalled = true
	s.pauseCount = 0
	s.playRate = fixed.One
	s.err = nil
}

// Tick attempts one simulation frame and reports whether it ran.
func (s *Scheduler) Tick() bool {
	if s.err != nil {
		return false
	}
	s.drain()
	if s.err != nil {
		return false
	}
	if s.pauseCount > 0 {
		return false
	}

	if s.influenceCount == 0 {
		if err := s.flushLocal(); err != nil {
			s.fail(err)
			return false
		}
		if !s.buffer.Ready() {
			if !s.stalled {
				s.log.Debug("等待輸入",
					zap.Int32("influence_frame", s.buffer.Next()),
					zap.Uint8s("missing", s.buffer.Missing()),
				)
			}
			s.stalled = true
			s.state = StateAwaitInput
			return false
		}
		s.stalled = false
		s.influenceCount = s.cfg.InfluenceResolution - 1
		if s.influenceFrame == 0 && s.OnGameStart != nil {
			s.OnGameStart(s.frameCount)
		}
		s.merge()
		s.influenceFrame++
	} else {
		s.influenceCount--
	}
	if s.stalled || s.err != nil {
		return false
	}

	frame := s.frameCount
	s.runner.TickPhase(coresys.PhaseInput, frame)
	s.runner.TickPhase(coresys.PhaseEvents, frame)
	s.state = StateSimulateEntities
	s.runner.TickPhase(coresys.PhaseSimulate, frame)
	s.state = StateSimulatePhysics
	s.runner.TickPhase(coresys.PhasePhysics, frame)
	s.state = StateLateSimulate
	s.runner.TickPhase(coresys.PhaseLateSimulate, frame)
	s.runner.TickPhase(coresys.PhasePersist, frame)
	s.runner.TickPhase(coresys.PhaseCleanup, frame)
	s.frameCount++
	s.state = StateAwaitInput

	if err := s.exec.Err(); err != nil {
		s.fail(err)
	}
	return true
}

// merge executes the next influence frame's commands, peer by peer.
func (s *Scheduler) merge() {
	s.state = StateMergeCommands
	frame := s.buffer.Next()
	batches := s.buffer.Pop()
	for _, b := range batches {
		for _, cmd := range b.Commands {
			s.exec.Execute(cmd)
		}
	}
	for _, sink := range s.sinks {
		sink.MergedFrame(frame, batches)
	}
	if err := s.exec.Err(); err != nil {
		s.fail(err)
	}
}

// drain moves delivered batches into the frame buffer. Malformed payloads
// are fatal; stale and duplicate batches are dropped.
func (s *Scheduler) drain() {
	s.inbox.drain(func(data []byte) {
		if s.err != nil {
			return
		}
		b, err := command.DecodeBatch(data)
		if err != nil {
			s.fail(err)
			return
		}
		s.accept(b)
	})
}

func (s *Scheduler) accept(b *command.Batch) {
	if err := s.buffer.Add(b); err != nil {
		s.log.Warn("丟棄批次", zap.Int32("frame", b.Frame), zap.Uint8("peer", b.Peer), zap.Error(err))
	}
}

// flushLocal publishes local batches up to the next frame plus the input
// delay. Queued input goes to the last of them; frames in between still get
// an empty batch so peers can advance.
func (s *Scheduler) flushLocal() error {
	if s.cfg.Spectate {
		return nil
	}
	target := s.buffer.Next() + int32(s.cfg.InputDelay)
	for s.localNext <= target {
		payload := s.inbox.flush(s.localNext, s.localNext == target)
		b, err := command.DecodeBatch(payload)
		if err != nil {
			return err
		}
		s.accept(b)
		if s.Outbound != nil {
			s.Outbound(payload)
		}
		s.localNext++
	}
	return nil
}

func (s *Scheduler) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.log.Error("模擬發生致命錯誤，停止推進",
		zap.Int("frame", s.frameCount),
		zap.Int("influence_frame", s.influenceFrame),
		zap.Error(err),
	)
}

// Err returns the latched fatal error.
func (s *Scheduler) Err() error { return s.err }

// Pause pushes onto the pause stack. Paused ticks do nothing at all.
func (s *Scheduler) Pause() { s.pauseCount++ }

// Unpause pops the pause stack. Extra calls are ignored.
func (s *Scheduler) Unpause() {
	if s.pauseCount > 0 {
		s.pauseCount--
	}
}

func (s *Scheduler) Paused() bool  { return s.pauseCount > 0 }
func (s *Scheduler) Stalled() bool { return s.stalled }
func (s *Scheduler) State() State  { return s.state }

// FrameCount is the number of simulated frames.
func (s *Scheduler) FrameCount() int { return s.frameCount }

// InfluenceFrameCount is the number of merged influence frames.
func (s *Scheduler) InfluenceFrameCount() int { return s.influenceFrame }

// GameStarted reports whether the first influence frame has merged.
func (s *Scheduler) GameStarted() bool { return s.influenceFrame > 0 }

// Buffer exposes the pending batches.
func (s *Scheduler) Buffer() *FrameBuffer { return s.buffer }

// Config returns the normalized settings.
func (s *Scheduler) Config() Config { return s.cfg }

var errPlayRate = errors.New("lockstep: play rate must be positive")

// SetPlayRate changes how fast frames are presented. Simulation arithmetic
// is unaffected.
func (s *Scheduler) SetPlayRate(rate fixed.Fixed) error {
	if rate <= 0 {
		return errPlayRate
	}
	s.playRate = rate
	return nil
}

func (s *Scheduler) PlayRate() fixed.Fixed { return s.playRate }

// BaseInterval is the wall time of one frame at play rate one.
func (s *Scheduler) BaseInterval() time.Duration {
	return time.Second / time.Duration(s.cfg.FrameRate)
}

// TickInterval is the wall time between ticks at the current play rate.
func (s *Scheduler) TickInterval() time.Duration {
	return time.Duration(fixed.MulDiv(fixed.Fixed(s.BaseInterval()), fixed.One, s.playRate))
}
