package data

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// Decimal is a fixed-point value written in YAML as a plain decimal
// ("0.5", "3", "-1.25"). It is parsed from the text, never through float64,
// so every peer loads identical bits.
type Decimal fixed.Fixed

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a decimal", node.Line)
	}
	v, err := ParseDecimal(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Decimal(v)
	return nil
}

// ParseDecimal converts decimal text to fixed point, truncating digits beyond
// the format's precision toward zero.
func ParseDecimal(s string) (fixed.Fixed, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid decimal %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	v := fixed.Fixed(w) << fixed.Shift
	if len(frac) > 9 {
		frac = frac[:9]
	}
	if frac != "" {
		num, err := strconv.ParseUint(frac, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		den := int64(1)
		for range frac {
			den *= 10
		}
		v += fixed.MulDiv(fixed.Fixed(num), fixed.One, den)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// AgentTemplate is one agent type as written in the YAML table.
type AgentTemplate struct {
	Code       string   `yaml:"code"`
	Radius     Decimal  `yaml:"radius"`
	Speed      Decimal  `yaml:"speed"` // units per frame
	Layer      uint8    `yaml:"layer"`
	Immovable  bool     `yaml:"immovable"`
	Trigger    bool     `yaml:"trigger"`
	HeightMin  Decimal  `yaml:"height_min"`
	HeightMax  Decimal  `yaml:"height_max"`
	Behaviours []string `yaml:"behaviours"`
}

// TypeDef converts the template for the registry.
func (t *AgentTemplate) TypeDef() agent.TypeDef {
	return agent.TypeDef{
		Code:       t.Code,
		Radius:     fixed.Fixed(t.Radius),
		Speed:      fixed.Fixed(t.Speed),
		Layer:      t.Layer,
		Immovable:  t.Immovable,
		Trigger:    t.Trigger,
		HeightMin:  fixed.Fixed(t.HeightMin),
		HeightMax:  fixed.Fixed(t.HeightMax),
		Behaviours: t.Behaviours,
	}
}

// InitialSpawn places agents when a match starts.
type InitialSpawn struct {
	Controller uint8   `yaml:"controller"`
	Code       string  `yaml:"code"`
	Count      int32   `yaml:"count"`
	X          Decimal `yaml:"x"`
	Y          Decimal `yaml:"y"`
}

// Position returns the spawn origin.
func (s *InitialSpawn) Position() fixed.Vector2d {
	return fixed.Vec(fixed.Fixed(s.X), fixed.Fixed(s.Y))
}

type agentTypesFile struct {
	Types  []AgentTemplate `yaml:"types"`
	Spawns []InitialSpawn  `yaml:"spawns"`
}

// AgentTable holds agent templates in file order. Order matters: it is the
// registration order and so part of the shared setup.
type AgentTable struct {
	templates []AgentTemplate
	byCode    map[string]int
	spawns    []InitialSpawn
}

// LoadAgentTable loads agent types and initial spawns from a YAML file.
func LoadAgentTable(path string) (*AgentTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent_types: %w", err)
	}
	var f agentTypesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agent_types: %w", err)
	}
	t := &AgentTable{
		templates: f.Types,
		byCode:    make(map[string]int, len(f.Types)),
		spawns:    f.Spawns,
	}
	for i := range f.Types {
		code := f.Types[i].Code
		if code == "" {
			return nil, fmt.Errorf("agent_types entry %d: empty code", i)
		}
		if _, dup := t.byCode[code]; dup {
			return nil, fmt.Errorf("agent_types: duplicate code %q", code)
		}
		t.byCode[code] = i
	}
	for i, s := range f.Spawns {
		if _, ok := t.byCode[s.Code]; !ok {
			return nil, fmt.Errorf("agent_types spawn %d: unknown code %q", i, s.Code)
		}
	}
	return t, nil
}

// Get returns a template by code, or nil if not found.
func (t *AgentTable) Get(code string) *AgentTemplate {
	i, ok := t.byCode[code]
	if !ok {
		return nil
	}
	return &t.templates[i]
}

// Count returns the number of loaded templates.
func (t *AgentTable) Count() int {
	return len(t.templates)
}

// TypeDefs returns every template in file order.
func (t *AgentTable) TypeDefs() []agent.TypeDef {
	out := make([]agent.TypeDef, 0, len(t.templates))
	for i := range t.templates {
		out = append(out, t.templates[i].TypeDef())
	}
	return out
}

// Spawns returns the initial spawn list.
func (t *AgentTable) Spawns() []InitialSpawn {
	return t.spawns
}
