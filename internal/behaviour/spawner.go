package behaviour

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// SpawnHelper creates agents on behalf of the global controller. The command
// names the type in Text, the owning controller in GroupID and how many in
// Count; agents are laid out in a row starting at Position.
type SpawnHelper struct {
	agent.BaseHelper

	log      *zap.Logger
	registry *agent.Registry
}

func NewSpawnHelper(reg *agent.Registry, log *zap.Logger) *SpawnHelper {
	return &SpawnHelper{log: log, registry: reg}
}

func (h *SpawnHelper) ListenInput() []command.InputCode {
	return []command.InputCode{command.InputSpawn}
}

func (h *SpawnHelper) Execute(cmd *command.Command) {
	if cmd.ControllerID != command.GlobalController {
		return
	}
	owner, ok := h.registry.Controller(cmd.GroupID())
	if !ok {
		h.log.Warn("生成命令指向未知控制者", zap.Uint8("controller", cmd.GroupID()))
		return
	}
	count := int(cmd.Count())
	if !cmd.Has(command.FieldCount) || count < 1 {
		count = 1
	}
	code := cmd.Text()
	rot := fixed.Radian0
	if cmd.Has(command.FieldRotation) {
		rot = cmd.Rotation()
	}
	pos := cmd.Position()
	for i := 0; i < count; i++ {
		a, err := owner.CreateAgent(code, pos, rot)
		if err != nil {
			h.registry.Fail(fmt.Errorf("spawn %d x %q for controller %d: %w", count, code, owner.ID, err))
			return
		}
		pos.X += a.Body.Radius*2 + fixed.Half
	}
	h.log.Debug("生成代理",
		zap.String("code", code),
		zap.Int("count", count),
		zap.Uint8("controller", owner.ID),
	)
}

// SpawnCommand builds the global command SpawnHelper understands.
func SpawnCommand(controller uint8, code string, count int32, pos fixed.Vector2d) *command.Command {
	c := command.New(command.GlobalController, command.InputSpawn)
	c.SetText(code)
	c.SetGroupID(controller)
	c.SetCount(count)
	c.SetPosition(pos)
	return c
}

// MoveCommand builds a move order for the given local ids.
func MoveCommand(controller uint8, dest fixed.Vector2d, localIDs ...uint16) *command.Command {
	c := command.New(controller, command.InputMove)
	c.SetPosition(dest)
	for _, id := range localIDs {
		c.Select(id)
	}
	return c
}

// Install registers the built-in helpers and the "mover" behaviour.
func Install(reg *agent.Registry, groups *MoveGroupHelper, spawner *SpawnHelper) {
	reg.AddHelper(spawner)
	reg.AddHelper(groups)
	reg.RegisterBehaviour("mover", groups.NewMover())
}
