package behaviour

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/event"
	"github.com/l1jgo/lockstep/internal/fixed"
	"github.com/l1jgo/lockstep/internal/physics"
)

type harness struct {
	t       *testing.T
	reg     *agent.Registry
	phys    *physics.World
	bus     *event.Bus
	groups  *MoveGroupHelper
	ctrl    *agent.Controller
	decided []GroupProcessed
	arrived []Arrived
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	phys := physics.NewWorld(physics.Config{
		Origin:    fixed.VecInt(-256, -256),
		CellShift: 3,
		Width:     64,
		Height:    64,
	}, log)
	phys.IgnoreLayerCollision(1, 1, true)
	bus := event.NewBus()
	reg := agent.NewRegistry(agent.Options{}, phys, bus, log)
	groups := NewMoveGroupHelper(reg, bus, log)
	Install(reg, groups, NewSpawnHelper(reg, log))
	if err := reg.RegisterType(agent.TypeDef{
		Code:       "soldier",
		Radius:     fixed.Half,
		Speed:      fixed.FromInt(2),
		Layer:      1,
		Behaviours: []string{"mover"},
	}); err != nil {
		t.Fatal(err)
	}
	reg.Initialize()
	ctrl, err := reg.NewController()
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{t: t, reg: reg, phys: phys, bus: bus, groups: groups, ctrl: ctrl}
	event.Subscribe(bus, func(m GroupProcessed) { h.decided = append(h.decided, m) })
	event.Subscribe(bus, func(m Arrived) { h.arrived = append(h.arrived, m) })
	return h
}

// tick runs one frame in scheduler order.
func (h *harness) tick(cmds ...*command.Command) {
	for _, c := range cmds {
		h.reg.Execute(c)
	}
	h.bus.SwapBuffers()
	h.bus.DispatchAll()
	h.reg.Simulate()
	h.phys.Step()
	h.reg.LateSimulate()
	h.reg.FlushDestroyed()
}

func (h *harness) spawnAt(positions ...fixed.Vector2d) []*Mover {
	h.t.Helper()
	movers := make([]*Mover, 0, len(positions))
	for _, p := range positions {
		a, err := h.ctrl.CreateAgent("soldier", p, fixed.Radian0)
		if err != nil {
			h.t.Fatal(err)
		}
		m, ok := agent.Find[*Mover](a)
		if !ok {
			h.t.Fatal("mover behaviour missing")
		}
		movers = append(movers, m)
	}
	return movers
}

func (h *harness) move(dest fixed.Vector2d, movers ...*Mover) *command.Command {
	ids := make([]uint16, 0, len(movers))
	for _, m := range movers {
		ids = append(ids, uint16(m.Agent.LocalID))
	}
	return MoveCommand(h.ctrl.ID, dest, ids...)
}

func TestGroupDecision(t *testing.T) {
	cases := []struct {
		name      string
		positions []fixed.Vector2d
		dest      fixed.Vector2d
		want      MovementType
	}{
		{"pair moves individually", []fixed.Vector2d{fixed.VecInt(0, 0), fixed.VecInt(1, 0)}, fixed.VecInt(40, 40), MoveIndividual},
		{"tight trio keeps formation", []fixed.Vector2d{fixed.VecInt(0, 0), fixed.VecInt(1, 0), fixed.VecInt(0, 1)}, fixed.VecInt(40, 40), MoveGroup},
		{"spread trio", []fixed.Vector2d{fixed.VecInt(0, 0), fixed.VecInt(30, 0), fixed.VecInt(0, 30)}, fixed.VecInt(40, 40), MoveGroupIndividual},
		{"destination inside group", []fixed.Vector2d{fixed.VecInt(0, 0), fixed.VecInt(1, 0), fixed.VecInt(0, 1)}, fixed.Vec(fixed.Half, fixed.Half), MoveGroupIndividual},
		{"stacked trio", []fixed.Vector2d{fixed.VecInt(5, 5), fixed.VecInt(5, 5), fixed.VecInt(5, 5)}, fixed.VecInt(40, 40), MoveGroupIndividual},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t)
			movers := h.spawnAt(c.positions...)
			h.tick(h.move(c.dest, movers...))
			h.tick()
			if len(h.decided) != len(movers) {
				t.Fatalf("decisions = %d, want %d", len(h.decided), len(movers))
			}
			for i, d := range h.decided {
				if d.Type != c.want {
					t.Errorf("mover %d type = %v, want %v", i, d.Type, c.want)
				}
				if !movers[i].Moving() {
					t.Errorf("mover %d not moving", i)
				}
			}
		})
	}
}

func TestFormationKeepsOffsets(t *testing.T) {
	h := newHarness(t)
	movers := h.spawnAt(fixed.VecInt(0, 0), fixed.VecInt(1, 0), fixed.VecInt(0, 1))
	dest := fixed.VecInt(40, 40)
	h.tick(h.move(dest, movers...))
	h.tick()

	center := fixed.Vec(fixed.One/3, fixed.One/3)
	want := dest.Sub(center)
	starts := []fixed.Vector2d{fixed.VecInt(0, 0), fixed.VecInt(1, 0), fixed.VecInt(0, 1)}
	for i, m := range movers {
		if got := m.Destination().Sub(starts[i]); got != want {
			t.Errorf("mover %d offset = %v, want %v", i, got, want)
		}
		if !m.Formation() {
			t.Errorf("mover %d not in formation", i)
		}
	}
}

func TestIndividualMoveArrives(t *testing.T) {
	h := newHarness(t)
	movers := h.spawnAt(fixed.VecInt(0, 0), fixed.VecInt(0, 3))
	dest := fixed.VecInt(10, 0)
	h.tick(h.move(dest, movers...))
	for i := 0; i < 20 && len(h.arrived) < 2; i++ {
		h.tick()
	}
	if len(h.arrived) != 2 {
		t.Fatalf("arrivals = %d, want 2", len(h.arrived))
	}
	for i, m := range movers {
		if m.Moving() || m.Group() != nil {
			t.Errorf("mover %d still moving=%v grouped=%v", i, m.Moving(), m.Group() != nil)
		}
		if d := m.Agent.Position().Distance(dest); d > fixed.One/8 {
			t.Errorf("mover %d stopped %d away", i, d)
		}
		if m.Agent.Body.Velocity != fixed.Zero {
			t.Errorf("mover %d velocity = %v", i, m.Agent.Body.Velocity)
		}
	}
	h.tick()
	if h.groups.ActiveGroups() != 0 {
		t.Errorf("active groups = %d after arrival", h.groups.ActiveGroups())
	}
}

func TestStopLeavesGroup(t *testing.T) {
	h := newHarness(t)
	movers := h.spawnAt(fixed.VecInt(0, 0), fixed.VecInt(1, 0), fixed.VecInt(0, 1))
	h.tick(h.move(fixed.VecInt(100, 0), movers...))
	h.tick()
	g := movers[0].Group()
	if g == nil || g.Len() != 3 {
		t.Fatal("movers not grouped")
	}

	stop := command.New(h.ctrl.ID, command.InputStop)
	stop.Select(uint16(movers[1].Agent.LocalID))
	h.tick(stop)
	if movers[1].Moving() || movers[1].Group() != nil {
		t.Error("stopped mover still travelling")
	}
	if g.Len() != 2 || !movers[0].Moving() || !movers[2].Moving() {
		t.Errorf("group len = %d", g.Len())
	}
}

func TestStaleDecisionIgnored(t *testing.T) {
	h := newHarness(t)
	movers := h.spawnAt(fixed.VecInt(0, 0))
	first := fixed.VecInt(20, 0)
	second := fixed.VecInt(0, 20)
	h.tick(h.move(first, movers...))
	h.tick(h.move(second, movers...))
	if movers[0].Moving() {
		t.Fatal("mover followed a superseded group")
	}
	h.tick()
	if !movers[0].Moving() || movers[0].Destination() != second {
		t.Errorf("destination = %v, want %v", movers[0].Destination(), second)
	}
	if h.groups.ActiveGroups() != 1 {
		t.Errorf("active groups = %d, want 1", h.groups.ActiveGroups())
	}
}

func TestMoveWithoutPositionCreatesNoGroup(t *testing.T) {
	h := newHarness(t)
	movers := h.spawnAt(fixed.VecInt(0, 0))
	cmd := command.New(h.ctrl.ID, command.InputMove)
	cmd.Select(uint16(movers[0].Agent.LocalID))
	h.tick(cmd)
	if movers[0].Group() != nil || h.groups.ActiveGroups() != 0 {
		t.Error("unpositioned move created a group")
	}
}

func TestSpawner(t *testing.T) {
	h := newHarness(t)
	h.tick(SpawnCommand(h.ctrl.ID, "soldier", 3, fixed.VecInt(4, 4)))
	if h.ctrl.AgentCount() != 3 {
		t.Fatalf("agents = %d, want 3", h.ctrl.AgentCount())
	}
	var xs []fixed.Fixed
	h.ctrl.Each(func(a *agent.Agent) { xs = append(xs, a.Position().X) })
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			t.Errorf("spawn row not increasing: %v", xs)
		}
	}

	// only the global controller may spawn
	c := SpawnCommand(h.ctrl.ID, "soldier", 1, fixed.Zero)
	c.ControllerID = h.ctrl.ID
	h.tick(c)
	h.tick(SpawnCommand(200, "soldier", 1, fixed.Zero))
	if h.reg.Len() != 3 || h.reg.Err() != nil {
		t.Errorf("agents = %d err = %v", h.reg.Len(), h.reg.Err())
	}

	h.tick(SpawnCommand(h.ctrl.ID, "dragon", 1, fixed.Zero))
	if !errors.Is(h.reg.Err(), agent.ErrInvalidCode) {
		t.Errorf("err = %v, want ErrInvalidCode", h.reg.Err())
	}
}

func TestDestroyedMoverLeavesGroup(t *testing.T) {
	h := newHarness(t)
	movers := h.spawnAt(fixed.VecInt(0, 0), fixed.VecInt(1, 0), fixed.VecInt(0, 1))
	h.tick(h.move(fixed.VecInt(50, 0), movers...))
	g := movers[0].Group()
	h.reg.DestroyAgent(movers[2].Agent, false)
	if g.Len() != 2 {
		t.Errorf("group len = %d after destroy", g.Len())
	}
	h.reg.Deactivate()
	if h.groups.ActiveGroups() != 0 {
		t.Errorf("active groups = %d after deactivate", h.groups.ActiveGroups())
	}
}
