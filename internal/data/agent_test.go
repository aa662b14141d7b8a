package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/l1jgo/lockstep/internal/fixed"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want fixed.Fixed
	}{
		{"0", 0},
		{"3", fixed.FromInt(3)},
		{"-2", fixed.FromInt(-2)},
		{"0.5", fixed.Half},
		{".25", fixed.One / 4},
		{"-1.25", -(fixed.One + fixed.One/4)},
		{"+7.75", fixed.FromInt(7) + 3*fixed.One/4},
		{"0.1", 6553},
	}
	for _, c := range cases {
		got, err := ParseDecimal(c.in)
		if err != nil {
			t.Errorf("ParseDecimal(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseDecimal(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	for _, bad := range []string{"", "abc", "1.x", "-"} {
		if _, err := ParseDecimal(bad); err == nil {
			t.Errorf("ParseDecimal(%q) accepted", bad)
		}
	}
}

const sampleTable = `
types:
  - code: scout
    radius: 0.5
    speed: 0.25
    behaviours: [mover]
  - code: wall
    radius: 2
    immovable: true
    layer: 3
    height_max: 4
spawns:
  - controller: 0
    code: scout
    count: 4
    x: -10
    y: 2.5
`

func writeTable(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent_types.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAgentTable(t *testing.T) {
	table, err := LoadAgentTable(writeTable(t, sampleTable))
	if err != nil {
		t.Fatal(err)
	}
	if table.Count() != 2 {
		t.Fatalf("count = %d", table.Count())
	}
	defs := table.TypeDefs()
	if defs[0].Code != "scout" || defs[1].Code != "wall" {
		t.Errorf("order = %s, %s", defs[0].Code, defs[1].Code)
	}
	scout := table.Get("scout")
	if scout == nil || fixed.Fixed(scout.Radius) != fixed.Half || fixed.Fixed(scout.Speed) != fixed.One/4 {
		t.Errorf("scout = %+v", scout)
	}
	if wall := defs[1]; !wall.Immovable || wall.Layer != 3 || wall.HeightMax != fixed.FromInt(4) {
		t.Errorf("wall = %+v", wall)
	}
	spawns := table.Spawns()
	if len(spawns) != 1 || spawns[0].Count != 4 || spawns[0].Position() != fixed.Vec(fixed.FromInt(-10), fixed.FromInt(5)/2) {
		t.Errorf("spawns = %+v", spawns)
	}
	if table.Get("dragon") != nil {
		t.Error("unknown code resolved")
	}
}

func TestLoadAgentTableErrors(t *testing.T) {
	cases := map[string]string{
		"duplicate":     "types:\n  - code: a\n  - code: a\n",
		"empty code":    "types:\n  - radius: 1\n",
		"bad decimal":   "types:\n  - code: a\n    radius: wide\n",
		"unknown spawn": "types:\n  - code: a\nspawns:\n  - code: b\n",
	}
	for name, body := range cases {
		if _, err := LoadAgentTable(writeTable(t, body)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
	_, err := LoadAgentTable(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read agent_types") {
		t.Errorf("missing file err = %v", err)
	}
}
