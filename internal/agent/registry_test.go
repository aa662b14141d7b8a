package agent

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/core/event"
	"github.com/l1jgo/lockstep/internal/fixed"
	"github.com/l1jgo/lockstep/internal/physics"
)

// recorder counts the hooks it sees.
type recorder struct {
	BaseBehaviour
	inits, deacts int
	executed      []command.InputCode
}

func (r *recorder) Initialize()                  { r.inits++ }
func (r *recorder) Deactivate()                  { r.deacts++ }
func (r *recorder) Execute(cmd *command.Command) { r.executed = append(r.executed, cmd.Input) }

type spyHelper struct {
	BaseHelper
	seen []uint8
}

func (h *spyHelper) ListenInput() []command.InputCode { return []command.InputCode{command.InputSpawn} }
func (h *spyHelper) Execute(cmd *command.Command)     { h.seen = append(h.seen, cmd.ControllerID) }

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	phys := physics.NewWorld(physics.Config{
		Origin:    fixed.VecInt(-256, -256),
		CellShift: 3,
		Width:     64,
		Height:    64,
	}, zap.NewNop())
	r := NewRegistry(opts, phys, event.NewBus(), zap.NewNop())
	r.RegisterBehaviour("recorder", func() Behaviour { return &recorder{} })
	if err := r.RegisterType(TypeDef{
		Code:       "worker",
		Radius:     fixed.Half,
		Speed:      fixed.FromInt(2),
		Behaviours: []string{"recorder"},
	}); err != nil {
		t.Fatal(err)
	}
	return r
}

func mustController(t *testing.T, r *Registry) *Controller {
	t.Helper()
	c, err := r.NewController()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func spawn(t *testing.T, c *Controller, x int) *Agent {
	t.Helper()
	a, err := c.CreateAgent("worker", fixed.VecInt(x, 0), fixed.Radian0)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestCreateAgentInvalidCode(t *testing.T) {
	r := newTestRegistry(t, Options{})
	c := mustController(t, r)
	if _, err := c.CreateAgent("dragon", fixed.Zero, fixed.Radian0); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("err = %v, want ErrInvalidCode", err)
	}
	if err := r.RegisterType(TypeDef{Code: "ghost", Behaviours: []string{"nope"}}); !errors.Is(err, ErrUnknownBehaviour) {
		t.Errorf("err = %v, want ErrUnknownBehaviour", err)
	}
}

func TestIdentityReuseNoDuplicates(t *testing.T) {
	r := newTestRegistry(t, Options{})
	c := mustController(t, r)
	const n = 40
	agents := make([]*Agent, 0, n)
	for i := 0; i < n; i++ {
		agents = append(agents, spawn(t, c, i))
	}
	for i := 0; i < n; i += 2 {
		r.DestroyAgent(agents[i], true)
	}
	for i := 0; i < n/2; i++ {
		spawn(t, c, 100+i)
	}

	globals := map[ecs.EntityID]bool{}
	locals := map[ecs.EntityID]bool{}
	r.Each(func(a *Agent) {
		if globals[a.GlobalID] || locals[a.LocalID] {
			t.Fatalf("duplicate id: global %d local %d", a.GlobalID, a.LocalID)
		}
		globals[a.GlobalID] = true
		locals[a.LocalID] = true
	})
	if len(globals) != n || r.Len() != n || c.AgentCount() != n {
		t.Errorf("live = %d, registry = %d, controller = %d", len(globals), r.Len(), c.AgentCount())
	}
}

func TestPoolingResetsState(t *testing.T) {
	r := newTestRegistry(t, Options{})
	c := mustController(t, r)
	a := spawn(t, c, 1)
	a.Speed = fixed.FromInt(9)
	rec, ok := Find[*recorder](a)
	if !ok {
		t.Fatal("recorder behaviour missing")
	}

	r.DestroyAgent(a, true)
	if a.Active() || a.Body.Active() || rec.deacts != 1 {
		t.Fatalf("destroy left agent active=%v body=%v deacts=%d", a.Active(), a.Body.Active(), rec.deacts)
	}
	if _, ok := r.TryGetAgent(0); ok {
		t.Error("destroyed agent still resolvable")
	}

	b := spawn(t, c, 2)
	if b != a || b.TypeIndex != 0 || b.Spawns() != 2 || rec.inits != 2 {
		t.Errorf("pool miss: same=%v index=%d spawns=%d inits=%d", b == a, b.TypeIndex, b.Spawns(), rec.inits)
	}
	if b.Speed != fixed.FromInt(2) || b.Position() != fixed.VecInt(2, 0) {
		t.Errorf("reactivated agent kept stale state: speed=%d pos=%v", b.Speed, b.Position())
	}
}

func TestDeferredDestroyReturnsAtFlush(t *testing.T) {
	r := newTestRegistry(t, Options{})
	c := mustController(t, r)
	a := spawn(t, c, 1)
	r.DestroyAgent(a, false)
	if r.Len() != 0 || c.AgentCount() != 0 {
		t.Fatal("identities not retired at destroy")
	}
	b := spawn(t, c, 1)
	if b == a || b.TypeIndex != 1 {
		t.Fatal("deferred agent reused before flush")
	}
	r.FlushDestroyed()
	r.DestroyAgent(b, true)
	if got := spawn(t, c, 1); got != b {
		t.Error("LIFO pool did not return the most recent instance")
	}
	if got := spawn(t, c, 1); got != a {
		t.Error("flushed agent not reused")
	}
}

func TestChangeController(t *testing.T) {
	r := newTestRegistry(t, Options{})
	red := mustController(t, r)
	blue := mustController(t, r)
	spawn(t, red, 0)
	a := spawn(t, red, 1)
	red.AddToSelection(a)

	if err := r.ChangeController(a, blue); err != nil {
		t.Fatal(err)
	}
	if a.Controller != blue || a.LocalID != 0 || red.AgentCount() != 1 || blue.AgentCount() != 1 {
		t.Errorf("controller=%d local=%d", a.Controller.ID, a.LocalID)
	}
	if red.Selection().Contains(1) {
		t.Error("old selection still holds the agent")
	}
	if a.Body.Owner != int(a.GlobalID) {
		t.Errorf("influence owner = %d, want %d", a.Body.Owner, a.GlobalID)
	}

	if err := r.ChangeController(a, nil); err != nil {
		t.Fatal(err)
	}
	if a.Controller != nil || blue.AgentCount() != 0 || a.Body.Owner != physics.NoOwner {
		t.Error("nil controller did not detach")
	}
}

func TestExecuteDispatch(t *testing.T) {
	r := newTestRegistry(t, Options{})
	helper := &spyHelper{}
	r.AddHelper(helper)
	c := mustController(t, r)
	a0 := spawn(t, c, 0)
	a1 := spawn(t, c, 1)
	rec0, _ := Find[*recorder](a0)
	rec1, _ := Find[*recorder](a1)

	move := command.New(c.ID, command.InputMove)
	move.Select(1)
	move.Select(77) // never allocated
	r.Execute(move)
	if len(rec0.executed) != 0 || len(rec1.executed) != 1 {
		t.Fatalf("selected dispatch: %v %v", rec0.executed, rec1.executed)
	}

	// no selection field: previous selection applies
	r.Execute(command.New(c.ID, command.InputStop))
	if len(rec1.executed) != 2 || rec1.executed[1] != command.InputStop {
		t.Errorf("previous selection not used: %v", rec1.executed)
	}

	global := command.New(command.GlobalController, command.InputSpawn)
	r.Execute(global)
	r.Execute(command.New(c.ID, command.InputSpawn))
	if len(helper.seen) != 2 || helper.seen[0] != command.GlobalController {
		t.Errorf("helper saw %v", helper.seen)
	}
	if len(rec1.executed) != 3 {
		t.Errorf("global command reached agents: %v", rec1.executed)
	}
	r.Execute(command.New(42, command.InputMove))
}

func TestAllegianceAndScan(t *testing.T) {
	r := newTestRegistry(t, Options{})
	red := mustController(t, r)
	blue := mustController(t, r)
	if red.GetAllegiance(red) != Friendly || red.GetAllegiance(blue) != Neutral || blue.GetAllegiance(red) != Neutral {
		t.Fatal("default allegiances wrong")
	}
	red.SetAllegiance(blue, Enemy)
	if blue.GetAllegiance(red) != Neutral {
		t.Error("allegiance became symmetric")
	}

	mine := spawn(t, red, 0)
	theirs := spawn(t, blue, 3)
	spawn(t, blue, 50)

	var enemies []*Agent
	r.Scan(fixed.Zero, fixed.FromInt(10), red, Enemy, func(a *Agent) { enemies = append(enemies, a) })
	if len(enemies) != 1 || enemies[0] != theirs {
		t.Errorf("enemy scan = %d agents", len(enemies))
	}
	var all []*Agent
	r.Scan(fixed.Zero, fixed.FromInt(10), nil, All, func(a *Agent) { all = append(all, a) })
	if len(all) != 2 || all[0] != mine {
		t.Errorf("unfiltered scan = %d agents", len(all))
	}
}

func TestCapacityErrors(t *testing.T) {
	r := newTestRegistry(t, Options{MaxGlobalAgents: 3, MaxLocalAgents: 2})
	red := mustController(t, r)
	blue := mustController(t, r)
	spawn(t, red, 0)
	spawn(t, red, 1)
	if _, err := red.CreateAgent("worker", fixed.Zero, fixed.Radian0); !errors.Is(err, ErrCapacity) {
		t.Errorf("local exhaustion err = %v", err)
	}
	spawn(t, blue, 2)
	if _, err := blue.CreateAgent("worker", fixed.Zero, fixed.Radian0); !errors.Is(err, ErrCapacity) {
		t.Errorf("global exhaustion err = %v", err)
	}

	for len(r.Controllers()) < MaxControllers {
		mustController(t, r)
	}
	if _, err := r.NewController(); !errors.Is(err, ErrTooManyControllers) {
		t.Errorf("controller limit err = %v", err)
	}
}

func TestDeactivateDestroysAll(t *testing.T) {
	r := newTestRegistry(t, Options{})
	c := mustController(t, r)
	for i := 0; i < 5; i++ {
		spawn(t, c, i)
	}
	r.Deactivate()
	if r.Len() != 0 || c.AgentCount() != 0 {
		t.Errorf("agents left: %d", r.Len())
	}
	r.Initialize()
	if len(r.Controllers()) != 0 {
		t.Error("Initialize kept controllers")
	}
}

func TestChangeControllerFailureIsFatal(t *testing.T) {
	cases := []struct {
		name string
		// setup returns the agent to move and its destination
		setup   func(t *testing.T, r *Registry) (*Agent, *Controller)
		wantErr error
		// registry size after the failed move
		wantLen int
	}{
		{
			name: "target identity space exhausted",
			setup: func(t *testing.T, r *Registry) (*Agent, *Controller) {
				red := mustController(t, r)
				blue := mustController(t, r)
				a := spawn(t, red, 0)
				if _, err := blue.CreateAgent("worker", fixed.Vec(fixed.Half, 0), fixed.Radian0); err != nil {
					t.Fatal(err)
				}
				r.physics.Step()
				if r.physics.PairCount() != 1 {
					t.Fatalf("pairs = %d before move", r.physics.PairCount())
				}
				return a, blue
			},
			wantErr: ErrCapacity,
			wantLen: 1,
		},
		{
			name: "destroyed agent",
			setup: func(t *testing.T, r *Registry) (*Agent, *Controller) {
				red := mustController(t, r)
				blue := mustController(t, r)
				a := spawn(t, red, 0)
				r.DestroyAgent(a, true)
				return a, blue
			},
			wantErr: ErrInactive,
			wantLen: 0,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newTestRegistry(t, Options{MaxLocalAgents: 1})
			a, next := c.setup(t, r)
			rec, _ := Find[*recorder](a)

			err := r.ChangeController(a, next)
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("err = %v, want %v", err, c.wantErr)
			}
			if !errors.Is(r.Err(), c.wantErr) {
				t.Errorf("latched err = %v", r.Err())
			}
			if a.Active() || a.Body.Active() || a.Controller != nil {
				t.Errorf("agent active=%v body=%v controller=%v", a.Active(), a.Body.Active(), a.Controller)
			}
			if a.Body.Owner != physics.NoOwner {
				t.Errorf("influence owner = %d", a.Body.Owner)
			}
			if rec.deacts != 1 {
				t.Errorf("deactivated %d times", rec.deacts)
			}
			if r.Len() != c.wantLen || next.AgentCount() != c.wantLen {
				t.Errorf("registry = %d, target = %d, want %d", r.Len(), next.AgentCount(), c.wantLen)
			}
			if r.physics.Len() != c.wantLen || r.physics.PairCount() != 0 {
				t.Errorf("bodies = %d, pairs = %d", r.physics.Len(), r.physics.PairCount())
			}
		})
	}
}
