package determinism

import (
	"testing"

	"github.com/l1jgo/lockstep/internal/fixed"
	"go.uber.org/zap"
)

func TestRandomIsReproducible(t *testing.T) {
	a, b := NewRandom(1234), NewRandom(1234)
	for i := 0; i < 100; i++ {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("draw %d: %d != %d", i, x, y)
		}
	}
	peek := a.Peek(1000)
	if got := a.Range(1000); got != peek {
		t.Errorf("Range after Peek = %d, want %d", got, peek)
	}
	for i := 0; i < 1000; i++ {
		if v := a.Range(7); v < 0 || v >= 7 {
			t.Fatalf("Range(7) = %d", v)
		}
	}
	if NewRandom(0).State() == 0 {
		t.Error("zero seed left the generator stuck")
	}
}

type agentList []struct {
	pos fixed.Vector2d
	rot fixed.Rotation
}

func (l agentList) EachHashed(fn func(fixed.Vector2d, fixed.Rotation)) {
	for _, a := range l {
		fn(a.pos, a.rot)
	}
}

func TestStateHashDependsOnStateOnly(t *testing.T) {
	state := agentList{
		{fixed.VecInt(1, 2), fixed.Radian0},
		{fixed.VecInt(-5, 7), fixed.RotationFromAngle(fixed.HalfPi)},
		{fixed.VecInt(0, 3), fixed.Radian0},
	}
	copyState := append(agentList(nil), state...)

	h1 := StateHash(NewRandom(9), state)
	h2 := StateHash(NewRandom(9), copyState)
	if h1 != h2 {
		t.Fatalf("equal state hashed differently: %d vs %d", h1, h2)
	}

	swapped := agentList{state[1], state[0], state[2]}
	if StateHash(NewRandom(9), swapped) == h1 {
		t.Error("swapping two agents did not change the hash")
	}
	if StateHash(NewRandom(10), state) == h1 {
		t.Error("different seed produced the same hash")
	}

	rng := NewRandom(9)
	before := rng.State()
	StateHash(rng, state)
	if rng.State() != before {
		t.Error("StateHash advanced the random stream")
	}
}

func TestMonitorReportsDesync(t *testing.T) {
	m := NewMonitor(4, zap.NewNop())
	var got []Desync
	m.OnDesync(func(d Desync) { got = append(got, d) })

	for f := 0; f < 6; f++ {
		m.Record(f, int32(f*10))
	}
	if _, known := m.Compare(1, 2, 10); known {
		t.Error("frame 1 should have left history")
	}
	if match, known := m.Compare(5, 2, 50); !match || !known {
		t.Error("matching hash reported as mismatch")
	}
	if match, known := m.Compare(4, 2, 41); match || !known {
		t.Error("mismatch not detected")
	}
	if len(got) != 1 || got[0] != (Desync{Frame: 4, Peer: 2, Local: 40, Remote: 41}) {
		t.Errorf("desyncs = %+v", got)
	}
	if _, known := m.Compare(9, 2, 0); known {
		t.Error("future frame compared")
	}
}

func TestSnapshotRoundTripAndDiff(t *testing.T) {
	s := &Snapshot{Frame: 12, Hash: -7, RandState: 99, Agents: []AgentState{
		{GlobalID: 0, Code: "worker", X: 1 << 16},
		{GlobalID: 3, Code: "tank", Y: -5},
	}}
	b, err := s.Encode()
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(Diff(s, back)) != 0 || back.Frame != 12 || back.RandState != 99 {
		t.Fatalf("round trip changed snapshot: %+v", back)
	}

	back.Agents[1].Y = 0
	back.Agents = append(back.Agents, AgentState{GlobalID: 8})
	diff := Diff(s, back)
	if len(diff) != 2 || diff[0] != 3 || diff[1] != 8 {
		t.Errorf("Diff = %v", diff)
	}
}

func TestTunablesResetToBase(t *testing.T) {
	type unit struct {
		speed   fixed.Fixed
		armor   int
		cloaked bool
	}
	u := unit{speed: fixed.FromInt(3), armor: 2}
	tun := NewTunables()
	tun.RegisterInt64("speed", &u.speed)
	tun.RegisterInt("armor", &u.armor)
	tun.RegisterBool("cloaked", &u.cloaked)

	base := tun.Hash()
	tun.Set("speed", fixed.FromInt(5))
	u.armor = 9
	tun.Set("cloaked", 1)
	if !u.cloaked || u.speed != fixed.FromInt(5) {
		t.Fatal("Set did not reach the field")
	}
	if tun.Hash() == base {
		t.Error("hash ignored changes")
	}

	tun.ResetAll()
	if u != (unit{speed: fixed.FromInt(3), armor: 2}) || tun.Hash() != base {
		t.Errorf("ResetAll left %+v", u)
	}
	if tun.Set("missing", 1) {
		t.Error("Set accepted an unknown name")
	}
}
