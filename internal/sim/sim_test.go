package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/behaviour"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/determinism"
	"github.com/l1jgo/lockstep/internal/fixed"
	"github.com/l1jgo/lockstep/internal/lockstep"
	"github.com/l1jgo/lockstep/internal/physics"
)

var testTypes = []agent.TypeDef{
	{Code: "scout", Radius: fixed.Half, Speed: fixed.One, Behaviours: []string{"mover"}},
	{Code: "tower", Radius: fixed.One, Immovable: true},
}

func newSim(t *testing.T, seed uint64) *Simulation {
	t.Helper()
	s := New(Options{
		Scheduler: lockstep.Config{InfluenceResolution: 1},
		Physics: physics.Config{
			Origin:    fixed.VecInt(-128, -128),
			CellShift: 3,
			Width:     32,
			Height:    32,
		},
		Seed: seed,
	}, zap.NewNop())
	if err := s.RegisterTypes(testTypes); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(2); err != nil {
		t.Fatal(err)
	}
	return s
}

func script(frame int) []*command.Command {
	switch frame {
	case 0:
		return []*command.Command{
			behaviour.SpawnCommand(0, "scout", 3, fixed.VecInt(0, 0)),
			behaviour.SpawnCommand(1, "tower", 1, fixed.VecInt(6, 1)),
		}
	case 1:
		return []*command.Command{behaviour.MoveCommand(0, fixed.VecInt(12, 2), 0, 1, 2)}
	}
	return nil
}

// run advances s until it has simulated frames frames, feeding the script.
func run(t *testing.T, s *Simulation, frames int) {
	t.Helper()
	for f := s.FrameCount(); f < frames; f++ {
		for _, c := range script(f) {
			if err := s.Submit(c); err != nil {
				t.Fatal(err)
			}
		}
		if !s.Step() {
			t.Fatalf("frame %d did not advance: %v", f, s.Err())
		}
	}
}

func TestIndependentSimulationsAgree(t *testing.T) {
	a := newSim(t, 42)
	b := newSim(t, 42)
	run(t, a, 3)
	run(t, b, 3)
	if a.FrameCount() != 3 || b.FrameCount() != 3 {
		t.Fatalf("frames a=%d b=%d", a.FrameCount(), b.FrameCount())
	}
	if a.StateHash() != b.StateHash() || a.LastHash() != b.LastHash() {
		t.Errorf("hash a=%d b=%d", a.StateHash(), b.StateHash())
	}
	if a.Registry.Len() != 4 {
		t.Errorf("agents = %d, want 4", a.Registry.Len())
	}

	run(t, a, 24)
	run(t, b, 24)
	if a.StateHash() != b.StateHash() {
		t.Error("simulations diverged while moving")
	}
	if d := determinism.Diff(a.Snapshot(), b.Snapshot()); len(d) != 0 {
		t.Errorf("snapshot diff = %v", d)
	}
}

func TestSeedChangesHash(t *testing.T) {
	a := newSim(t, 1)
	b := newSim(t, 2)
	run(t, a, 1)
	run(t, b, 1)
	if a.StateHash() == b.StateHash() {
		t.Error("different seeds produced the same hash")
	}
}

func TestHashIgnoresInternalLayout(t *testing.T) {
	a := newSim(t, 7)
	b := newSim(t, 7)

	// churn b's pools and arrays before building the same state
	ctrl, _ := b.Registry.Controller(1)
	var junk []*agent.Agent
	for i := 0; i < 10; i++ {
		j, err := ctrl.CreateAgent("tower", fixed.VecInt(i*3, 20), fixed.Radian0)
		if err != nil {
			t.Fatal(err)
		}
		junk = append(junk, j)
	}
	for i := len(junk) - 1; i >= 0; i-- {
		b.Registry.DestroyAgent(junk[i], true)
	}

	for _, s := range []*Simulation{a, b} {
		c, _ := s.Registry.Controller(0)
		for i := 0; i < 3; i++ {
			if _, err := c.CreateAgent("scout", fixed.VecInt(i, i), fixed.Radian0); err != nil {
				t.Fatal(err)
			}
		}
	}
	if a.StateHash() != b.StateHash() {
		t.Errorf("hash a=%d b=%d", a.StateHash(), b.StateHash())
	}
}

func TestDesyncReported(t *testing.T) {
	s := newSim(t, 3)
	var got []determinism.Desync
	s.Monitor.OnDesync(func(d determinism.Desync) { got = append(got, d) })
	run(t, s, 2)
	h, ok := s.Monitor.Local(1)
	if !ok || h != s.LastHash() {
		t.Fatalf("frame 1 hash not recorded")
	}
	if match, known := s.ReportHash(1, 1, h); !match || !known {
		t.Error("matching hash reported as desync")
	}
	if match, _ := s.ReportHash(1, 1, h+1); match || len(got) != 1 || got[0].Frame != 1 {
		t.Errorf("desyncs = %v", got)
	}
}

func TestInvalidSpawnStopsSimulation(t *testing.T) {
	s := newSim(t, 9)
	if err := s.Submit(behaviour.SpawnCommand(0, "dragon", 1, fixed.Zero)); err != nil {
		t.Fatal(err)
	}
	s.Step()
	if s.Err() == nil {
		t.Fatal("invalid code not fatal")
	}
	frames := s.FrameCount()
	if s.Step() || s.FrameCount() != frames {
		t.Error("advanced after fatal error")
	}

	if err := s.Initialize(1); err != nil {
		t.Fatal(err)
	}
	if s.Err() != nil || s.FrameCount() != 0 || s.Registry.Len() != 0 {
		t.Errorf("reinitialize kept state: err=%v frames=%d agents=%d", s.Err(), s.FrameCount(), s.Registry.Len())
	}
}

type journal struct {
	frames []ReplayFrame
}

func (j *journal) MergedFrame(frame int32, batches []*command.Batch) {
	j.frames = append(j.frames, ReplayFrame{Frame: frame, Batches: batches})
}

func TestReplayReproducesHashes(t *testing.T) {
	live := newSim(t, 11)
	rec := &journal{}
	live.Scheduler.AddSink(rec)
	hashes := map[int32]int32{}
	for f := 0; f < 16; f++ {
		run(t, live, f+1)
		hashes[int32(f)] = live.LastHash()
	}

	replay := New(Options{
		Scheduler: lockstep.Config{InfluenceResolution: 1, Spectate: true},
		Physics:   live.opts.Physics,
		Seed:      11,
	}, zap.NewNop())
	if err := replay.RegisterTypes(testTypes); err != nil {
		t.Fatal(err)
	}
	if err := replay.Initialize(2); err != nil {
		t.Fatal(err)
	}
	res, err := Replay(context.Background(), replay, rec.frames, hashes)
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 16 || res.Checked != 16 || res.FirstMismatch != -1 {
		t.Errorf("replay = %+v", res)
	}
	if replay.StateHash() != live.StateHash() {
		t.Error("replayed state differs from live state")
	}

	// two peers per frame through a single-slot inbox
	narrow := New(Options{
		Scheduler: lockstep.Config{InfluenceResolution: 1, Spectate: true},
		Physics:   live.opts.Physics,
		Seed:      11,
		InboxSize: 1,
	}, zap.NewNop())
	narrow.RegisterTypes(testTypes)
	narrow.Initialize(2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err = Replay(ctx, narrow, rec.frames, hashes)
	if err != nil || res.Frames != 16 || res.FirstMismatch != -1 {
		t.Errorf("single-slot inbox replay = %+v, %v", res, err)
	}

	hashes[5]++
	again := New(replay.opts, zap.NewNop())
	again.RegisterTypes(testTypes)
	again.Initialize(2)
	res, err = Replay(context.Background(), again, rec.frames, hashes)
	if err != nil || res.FirstMismatch != 5 {
		t.Errorf("tampered replay = %+v, %v", res, err)
	}

	if _, err := Replay(context.Background(), newSim(t, 11), rec.frames, hashes); !errors.Is(err, ErrNotSpectating) {
		t.Errorf("live replay err = %v", err)
	}
}
