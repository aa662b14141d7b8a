package agent

import (
	"fmt"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// Allegiance flags combine; a relation may be several at once.
type Allegiance uint32

const (
	Neutral  Allegiance = 1 << 0
	Friendly Allegiance = 1 << 1
	Enemy    Allegiance = 1 << 2

	All = ^Allegiance(0)
)

// Controller owns a dense local id space and a diplomacy vector toward every
// other controller. Controllers are append-only within a match.
type Controller struct {
	ID uint8

	registry    *Registry
	localIDs    *ecs.EntityPool
	agents      *ecs.DenseStore[*Agent]
	allegiances []Allegiance
	selection   command.Selection
}

func newController(r *Registry, id uint8, maxLocal int) *Controller {
	return &Controller{
		ID:       id,
		registry: r,
		localIDs: ecs.NewEntityPool(maxLocal),
		agents:   ecs.NewDenseStore[*Agent](64),
	}
}

// CreateAgent activates an agent of the given type for this controller.
func (c *Controller) CreateAgent(code string, pos fixed.Vector2d, rot fixed.Rotation) (*Agent, error) {
	return c.registry.CreateAgent(c, code, pos, rot)
}

// SetAllegiance sets how c regards other. The relation is one-sided.
func (c *Controller) SetAllegiance(other *Controller, a Allegiance) {
	for int(other.ID) >= len(c.allegiances) {
		c.allegiances = append(c.allegiances, Neutral)
	}
	c.allegiances[other.ID] = a
}

// GetAllegiance returns how c regards other, Neutral when never set.
func (c *Controller) GetAllegiance(other *Controller) Allegiance {
	if other == nil || int(other.ID) >= len(c.allegiances) {
		return Neutral
	}
	return c.allegiances[other.ID]
}

// Agent looks up an owned agent by local id.
func (c *Controller) Agent(localID ecs.EntityID) (*Agent, bool) {
	return c.agents.Get(localID)
}

// AgentCount is the number of agents currently owned.
func (c *Controller) AgentCount() int { return c.agents.Len() }

// Each visits owned agents in ascending local id.
func (c *Controller) Each(fn func(*Agent)) {
	c.agents.Each(func(_ ecs.EntityID, a *Agent) { fn(a) })
}

func (c *Controller) Selection() *command.Selection { return &c.selection }

func (c *Controller) AddToSelection(a *Agent) bool {
	if a.Controller != c {
		return false
	}
	return c.selection.Add(uint16(a.LocalID))
}

func (c *Controller) RemoveFromSelection(a *Agent) {
	if a.Controller == c {
		c.selection.Remove(uint16(a.LocalID))
	}
}

func (c *Controller) ClearSelection() { c.selection.Clear() }

// Execute applies a command to the selected agents. A command carrying a
// selection replaces the controller's selection first; otherwise the previous
// selection is used. Ids that no longer resolve to an active agent are skipped.
func (c *Controller) Execute(cmd *command.Command) {
	if cmd.Has(command.FieldSelect) {
		c.selection = *cmd.Selection()
	}
	sel := c.selection
	sel.Each(func(localID uint16) {
		if a, ok := c.agents.Get(ecs.EntityID(localID)); ok && a.active {
			a.execute(cmd)
		}
	})
}

func (c *Controller) addAgent(a *Agent) error {
	id, err := c.localIDs.Create()
	if err != nil {
		return fmt.Errorf("controller %d local id: %w", c.ID, ErrCapacity)
	}
	a.LocalID = id
	a.Controller = c
	c.agents.Set(id, a)
	return nil
}

func (c *Controller) removeAgent(a *Agent) {
	c.selection.Remove(uint16(a.LocalID))
	c.agents.Remove(a.LocalID)
	c.localIDs.Destroy(a.LocalID)
	a.Controller = nil
}

func (c *Controller) reset() {
	c.agents.Clear()
	c.localIDs.Reset()
	c.selection.Clear()
}
