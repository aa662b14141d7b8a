package scripting

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/fixed"
)

func writeBot(t *testing.T, dir, name, body string) {
	t.Helper()
	botDir := filepath.Join(dir, "bots")
	if err := os.MkdirAll(botDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(botDir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

const patrolBot = `
local M = { controller = 1 }
function M.think(ctx)
  if ctx.frame % 2 ~= 0 then return {} end
  local ids = {}
  for _, a in ipairs(ctx.agents) do ids[#ids + 1] = a.id end
  return {
    { input = "move", x = 10.5, y = -2, select = ids },
    { input = "stop" },
    { input = "dance" },
  }
end
return M
`

const spawnBot = `
return {
  name = "spawner",
  think = function(ctx)
    return { { input = "spawn", global = true, text = "scout", count = 2, group = ctx.controller } }
  end,
}
`

func TestThink(t *testing.T) {
	dir := t.TempDir()
	writeBot(t, dir, "a_patrol.lua", patrolBot)
	writeBot(t, dir, "b_spawn.lua", spawnBot)
	writeBot(t, dir, "notes.txt", "not a script")

	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	bots := e.Bots()
	if len(bots) != 2 || bots[0].Name != "a_patrol" || bots[1].Name != "spawner" {
		t.Fatalf("bots = %v", bots)
	}
	patrol := bots[0]
	if patrol.Controller != 1 {
		t.Errorf("controller = %d", patrol.Controller)
	}

	cmds, err := e.Think(patrol, ThinkContext{
		Frame:      4,
		Controller: 1,
		Agents:     []AgentView{{LocalID: 0}, {LocalID: 3, Moving: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 2 {
		t.Fatalf("commands = %d, want 2", len(cmds))
	}
	move := cmds[0]
	if move.Input != command.InputMove || move.ControllerID != 1 {
		t.Errorf("move = %v from %d", move.Input, move.ControllerID)
	}
	if want := fixed.Vec(fixed.FromInt(10)+fixed.Half, fixed.FromInt(-2)); move.Position() != want {
		t.Errorf("position = %v, want %v", move.Position(), want)
	}
	if ids := move.Selection().IDs(); len(ids) != 2 || ids[0] != 0 || ids[1] != 3 {
		t.Errorf("selection = %v", ids)
	}
	if cmds[1].Input != command.InputStop || cmds[1].Has(command.FieldSelect) {
		t.Errorf("stop = %v mask %b", cmds[1].Input, cmds[1].Mask())
	}

	cmds, err = e.Think(patrol, ThinkContext{Frame: 5, Controller: 1})
	if err != nil || len(cmds) != 0 {
		t.Errorf("odd frame: %d commands, err %v", len(cmds), err)
	}

	cmds, err = e.Think(bots[1], ThinkContext{Controller: 0})
	if err != nil || len(cmds) != 1 {
		t.Fatalf("spawn: %d commands, err %v", len(cmds), err)
	}
	spawn := cmds[0]
	if spawn.ControllerID != command.GlobalController || spawn.Text() != "scout" || spawn.Count() != 2 || spawn.GroupID() != 0 {
		t.Errorf("spawn = %+v", spawn)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeBot(t, dir, "lazy.lua", "return { controller = 2 }")
	if _, err := NewEngine(dir, zap.NewNop()); !errors.Is(err, ErrNoThink) {
		t.Errorf("err = %v, want ErrNoThink", err)
	}

	dir = t.TempDir()
	writeBot(t, dir, "number.lua", "return 7")
	if _, err := NewEngine(dir, zap.NewNop()); err == nil {
		t.Error("non-table script accepted")
	}

	e, err := NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("missing bots dir: %v", err)
	}
	defer e.Close()
	if len(e.Bots()) != 0 {
		t.Error("bots loaded from nowhere")
	}
}

func TestThinkRuntimeError(t *testing.T) {
	dir := t.TempDir()
	writeBot(t, dir, "broken.lua", "return { think = function(ctx) error('boom') end }")
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, err := e.Think(e.Bots()[0], ThinkContext{}); err == nil {
		t.Error("runtime error swallowed")
	}
}

func TestLoadLogsEachScript(t *testing.T) {
	dir := t.TempDir()
	writeBot(t, dir, "a_patrol.lua", patrolBot)
	writeBot(t, dir, "b_spawn.lua", spawnBot)

	core, logs := observer.New(zapcore.DebugLevel)
	e, err := NewEngine(dir, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	loaded := logs.FilterMessage("已載入 Lua 腳本").All()
	if len(loaded) != 2 {
		t.Fatalf("load entries = %d", len(loaded))
	}
	if file := loaded[0].ContextMap()["file"]; file != filepath.Join(dir, "bots", "a_patrol.lua") {
		t.Errorf("first file = %v", file)
	}
}
