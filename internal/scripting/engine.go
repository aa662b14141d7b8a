package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/fixed"
)

// ErrNoThink is returned when a bot script does not provide think(ctx).
var ErrNoThink = errors.New("scripting: bot has no think function")

// Engine wraps a single gopher-lua VM running input bots.
// Single-goroutine access only. Bots produce input, never simulation state:
// what they return is serialized and merged like any player's commands.
type Engine struct {
	vm   *lua.LState
	log  *zap.Logger
	bots []*Bot
}

// Bot is one loaded script. Each file must return a table holding a think
// function and, optionally, the controller it plays.
type Bot struct {
	Name       string
	Controller uint8
	module     *lua.LTable
	think      lua.LValue
}

// NewEngine creates a Lua engine and loads every bot in scriptsDir/bots.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(filepath.Join(scriptsDir, "bots")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load bot scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.loadBot(path); err != nil {
			return err
		}
		e.log.Debug("已載入 Lua 腳本", zap.String("file", path))
	}
	return nil
}

func (e *Engine) loadBot(path string) error {
	fn, err := e.vm.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	e.vm.Push(fn)
	if err := e.vm.PCall(0, 1, nil); err != nil {
		return fmt.Errorf("run %s: %w", path, err)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	module, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf("%s: script must return a table", path)
	}
	think := module.RawGetString("think")
	if think.Type() != lua.LTFunction {
		return fmt.Errorf("%s: %w", path, ErrNoThink)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".lua")
	if n := lStr(module, "name"); n != "" {
		name = n
	}
	e.bots = append(e.bots, &Bot{
		Name:       name,
		Controller: uint8(lInt(module, "controller")),
		module:     module,
		think:      think,
	})
	return nil
}

// Bots returns the loaded bots in file name order.
func (e *Engine) Bots() []*Bot { return e.bots }

// AgentView is what a bot sees of one of its agents.
type AgentView struct {
	LocalID uint16
	X, Y    float64
	Moving  bool
}

// ThinkContext is the read-only view passed to think(ctx).
type ThinkContext struct {
	Frame      int
	Controller uint8
	Agents     []AgentView
}

// Think calls the bot's think(ctx) and converts what it returns into
// commands for the bot's controller.
func (e *Engine) Think(b *Bot, ctx ThinkContext) ([]*command.Command, error) {
	t := e.vm.NewTable()
	t.RawSetString("frame", lua.LNumber(ctx.Frame))
	t.RawSetString("controller", lua.LNumber(ctx.Controller))

	agents := e.vm.NewTable()
	for i, a := range ctx.Agents {
		row := e.vm.NewTable()
		row.RawSetString("id", lua.LNumber(a.LocalID))
		row.RawSetString("x", lua.LNumber(a.X))
		row.RawSetString("y", lua.LNumber(a.Y))
		row.RawSetString("moving", lua.LBool(a.Moving))
		agents.RawSetInt(i+1, row)
	}
	t.RawSetString("agents", agents)

	if err := e.vm.CallByParam(lua.P{
		Fn:      b.think,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return nil, fmt.Errorf("bot %s think: %w", b.Name, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil, nil
	}

	var cmds []*command.Command
	for i := 1; i <= rt.Len(); i++ {
		row, ok := rt.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}
		cmd, err := toCommand(b.Controller, row)
		if err != nil {
			e.log.Warn("機器人命令無效，已略過", zap.String("bot", b.Name), zap.Int("index", i), zap.Error(err))
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

var inputNames = map[string]command.InputCode{
	"spawn":  command.InputSpawn,
	"move":   command.InputMove,
	"stop":   command.InputStop,
	"select": command.InputSelect,
}

// toCommand reads one command table. Only the keys present become fields.
func toCommand(controller uint8, row *lua.LTable) (*command.Command, error) {
	var input command.InputCode
	switch v := row.RawGetString("input").(type) {
	case lua.LString:
		code, ok := inputNames[strings.ToLower(string(v))]
		if !ok {
			return nil, fmt.Errorf("unknown input %q", string(v))
		}
		input = code
	case lua.LNumber:
		input = command.InputCode(v)
	default:
		return nil, errors.New("missing input")
	}
	if row.RawGetString("global") == lua.LTrue {
		controller = command.GlobalController
	}
	cmd := command.New(controller, input)

	x, y := row.RawGetString("x"), row.RawGetString("y")
	if x != lua.LNil || y != lua.LNil {
		cmd.SetPosition(fixed.Vec(fixed.FromFloat(float64(lua.LVAsNumber(x))), fixed.FromFloat(float64(lua.LVAsNumber(y)))))
	}
	if v := row.RawGetString("target"); v != lua.LNil {
		cmd.SetTarget(uint16(lua.LVAsNumber(v)))
	}
	if v := row.RawGetString("flag"); v != lua.LNil {
		cmd.SetFlag(lua.LVAsBool(v))
	}
	if v := row.RawGetString("count"); v != lua.LNil {
		cmd.SetCount(int32(lua.LVAsNumber(v)))
	}
	if v := row.RawGetString("group"); v != lua.LNil {
		cmd.SetGroupID(uint8(lua.LVAsNumber(v)))
	}
	if v := row.RawGetString("text"); v != lua.LNil {
		cmd.SetText(lua.LVAsString(v))
	}
	if sel, ok := row.RawGetString("select").(*lua.LTable); ok {
		var s command.Selection
		for i := 1; i <= sel.Len(); i++ {
			if !s.Add(uint16(lua.LVAsNumber(sel.RawGetInt(i)))) {
				return nil, fmt.Errorf("selection id out of range at %d", i)
			}
		}
		cmd.SetSelection(&s)
	}
	return cmd, nil
}

// --- Lua helpers ---

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
