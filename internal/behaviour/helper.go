package behaviour

import (
	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/core/event"
)

// maxGroups bounds concurrently active movement groups.
const maxGroups = 4096

// MoveGroupHelper creates one movement group per positioned move command.
// Movers selected by the command join the group it created last, since
// helpers run before agents for the same command.
type MoveGroupHelper struct {
	agent.BaseHelper

	log      *zap.Logger
	registry *agent.Registry
	bus      *event.Bus

	ids    *ecs.EntityPool
	active *ecs.DenseStore[*MovementGroup]
	pooled []*MovementGroup
	last   *MovementGroup
}

func NewMoveGroupHelper(reg *agent.Registry, bus *event.Bus, log *zap.Logger) *MoveGroupHelper {
	h := &MoveGroupHelper{
		log:      log,
		registry: reg,
		bus:      bus,
		ids:      ecs.NewEntityPool(maxGroups),
		active:   ecs.NewDenseStore[*MovementGroup](32),
	}
	event.Subscribe(bus, h.route)
	return h
}

func (h *MoveGroupHelper) ListenInput() []command.InputCode {
	return []command.InputCode{command.InputMove}
}

// LastCreated is the group made by the most recent move command.
func (h *MoveGroupHelper) LastCreated() *MovementGroup { return h.last }

// ActiveGroups is the number of groups not yet pooled.
func (h *MoveGroupHelper) ActiveGroups() int { return h.active.Len() }

func (h *MoveGroupHelper) Initialize() {
	h.active.Each(func(_ ecs.EntityID, g *MovementGroup) { h.release(g) })
	h.last = nil
}

func (h *MoveGroupHelper) Execute(cmd *command.Command) {
	if !cmd.Has(command.FieldPosition) {
		h.last = nil
		return
	}
	id, err := h.ids.Create()
	if err != nil {
		h.log.Warn("移動群組已滿，忽略移動命令", zap.Uint8("controller", cmd.ControllerID))
		h.last = nil
		return
	}
	var g *MovementGroup
	if n := len(h.pooled); n > 0 {
		g = h.pooled[n-1]
		h.pooled = h.pooled[:n-1]
	} else {
		g = &MovementGroup{}
	}
	g.reset(cmd.Position())
	g.ID = id
	h.active.Set(id, g)
	h.last = g
}

// LateSimulate processes new groups once and pools groups nobody follows.
func (h *MoveGroupHelper) LateSimulate() {
	h.active.Each(func(_ ecs.EntityID, g *MovementGroup) {
		if !g.calculated {
			g.process(h.bus)
			g.calculated = true
		}
		if len(g.movers) == 0 {
			h.release(g)
		}
	})
	h.last = nil
}

func (h *MoveGroupHelper) Deactivate() {
	h.Initialize()
}

func (h *MoveGroupHelper) release(g *MovementGroup) {
	for _, m := range g.movers {
		m.group = nil
	}
	g.movers = g.movers[:0]
	h.active.Remove(g.ID)
	h.ids.Destroy(g.ID)
	h.pooled = append(h.pooled, g)
}

// route delivers a group decision to the mover it names.
func (h *MoveGroupHelper) route(msg GroupProcessed) {
	a, ok := h.registry.TryGetAgent(msg.GlobalID)
	if !ok {
		return
	}
	if m, ok := agent.Find[*Mover](a); ok {
		m.onGroupProcessed(msg)
	}
}

// NewMover returns a factory for movers bound to this helper.
func (h *MoveGroupHelper) NewMover() agent.BehaviourFactory {
	return func() agent.Behaviour { return &Mover{groups: h} }
}
