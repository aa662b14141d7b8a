package behaviour

import (
	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/event"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// Mover steers its agent's body toward a destination handed out by its
// movement group.
type Mover struct {
	agent.BaseBehaviour

	groups *MoveGroupHelper
	group  *MovementGroup
	order  uint32

	moving      bool
	destination fixed.Vector2d
	stopFactor  fixed.Fixed
	formation   bool
}

// Moving reports whether the mover is travelling.
func (m *Mover) Moving() bool { return m.moving }

// Destination is the current target position.
func (m *Mover) Destination() fixed.Vector2d { return m.destination }

// Group is the movement group the mover belongs to, if any.
func (m *Mover) Group() *MovementGroup { return m.group }

// Formation reports whether the last group decision was a formation move.
func (m *Mover) Formation() bool { return m.formation }

func (m *Mover) position() fixed.Vector2d   { return m.Agent.Body.Position }
func (m *Mover) collisionSize() fixed.Fixed { return m.Agent.Body.Radius }

func (m *Mover) Initialize() {
	m.group = nil
	m.moving = false
	m.destination = fixed.Zero
	m.stopFactor = DirectStop
	m.formation = false
}

// Execute joins the group created for this move command, or stops.
func (m *Mover) Execute(cmd *command.Command) {
	switch cmd.Input {
	case command.InputMove:
		g := m.groups.LastCreated()
		if g == nil {
			return
		}
		m.order++
		g.add(m)
	case command.InputStop:
		m.stop()
	}
}

func (m *Mover) Simulate() {
	if !m.moving {
		return
	}
	body := m.Agent.Body
	delta := m.destination.Sub(body.Position)
	dist := delta.Magnitude()
	if dist <= fixed.Mul(body.Radius, m.stopFactor) || dist == 0 {
		m.arrive()
		return
	}
	step := fixed.Min(m.Agent.Speed, dist)
	dir := delta.Div(dist)
	body.Velocity = dir.Scale(step)
	body.Rotation = fixed.Rotation{Cos: dir.X, Sin: dir.Y}
}

func (m *Mover) Deactivate() {
	if m.group != nil {
		m.group.remove(m)
	}
	m.moving = false
	m.Agent.Body.Velocity = fixed.Zero
}

// post queues the group decision for delivery next frame.
func (m *Mover) post(bus *event.Bus, dest fixed.Vector2d, t MovementType, stop fixed.Fixed) {
	event.Emit(bus, GroupProcessed{
		GlobalID:    m.Agent.GlobalID,
		Order:       m.order,
		Destination: dest,
		Type:        t,
		StopFactor:  stop,
	})
}

// onGroupProcessed starts moving unless the message is from a group the
// mover has since left.
func (m *Mover) onGroupProcessed(msg GroupProcessed) {
	if msg.Order != m.order || m.group == nil {
		return
	}
	m.destination = msg.Destination
	m.stopFactor = msg.StopFactor
	m.formation = msg.Type == MoveGroup
	m.moving = true
}

func (m *Mover) arrive() {
	m.stop()
	event.Emit(m.groups.bus, Arrived{GlobalID: m.Agent.GlobalID, Destination: m.destination})
}

func (m *Mover) stop() {
	m.moving = false
	m.Agent.Body.Velocity = fixed.Zero
	if m.group != nil {
		m.group.remove(m)
	}
}
