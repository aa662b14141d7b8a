package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/behaviour"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/config"
	"github.com/l1jgo/lockstep/internal/data"
	"github.com/l1jgo/lockstep/internal/determinism"
	"github.com/l1jgo/lockstep/internal/fixed"
	"github.com/l1jgo/lockstep/internal/lockstep"
	"github.com/l1jgo/lockstep/internal/persist"
	"github.com/l1jgo/lockstep/internal/physics"
	"github.com/l1jgo/lockstep/internal/scripting"
	"github.com/l1jgo/lockstep/internal/sim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(seed uint64, participants int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            lockstepd  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        確定性同步模擬 · 無頭主機          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m種子:\033[0m %d \033[90m(參與者: %d)\033[0m\n\n", seed, participants)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Host ───────────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path("config/lockstep.toml"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Simulation.Seed, cfg.Simulation.Participants)

	// 3. Agent types
	printSection("資料")
	table, err := data.LoadAgentTable(cfg.Data.AgentTypes)
	if err != nil {
		return fmt.Errorf("agent types: %w", err)
	}
	printStat("單位類型", table.Count())
	printStat("初始生成", len(table.Spawns()))
	fmt.Println()

	// 4. Simulation
	printSection("模擬")
	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.CommandsPerSecond), cfg.RateLimit.Burst)
	}
	s := sim.New(simOptions(cfg, limiter), log)
	types := table.TypeDefs()
	if err := s.RegisterTypes(types); err != nil {
		return fmt.Errorf("register types: %w", err)
	}
	if err := s.Initialize(cfg.Simulation.Controllers); err != nil {
		return err
	}
	if err := s.Scheduler.SetPlayRate(fixed.FromFloat(cfg.Simulation.PlayRate)); err != nil {
		return fmt.Errorf("play rate: %w", err)
	}
	loopbackPeers(s, cfg.Simulation.Participants, log)
	for _, sp := range table.Spawns() {
		if err := s.Inbox.Enqueue(behaviour.SpawnCommand(sp.Controller, sp.Code, sp.Count, sp.Position())); err != nil {
			return fmt.Errorf("initial spawn %s: %w", sp.Code, err)
		}
	}
	printStat("控制者", cfg.Simulation.Controllers)
	printOK(fmt.Sprintf("影響幀解析度 %d，輸入延遲 %d", cfg.Simulation.InfluenceResolution, cfg.Simulation.InputDelay))
	fmt.Println()

	// 5. Optional journal
	var rec *persist.Recorder
	if cfg.Database.Enabled {
		printSection("日誌")
		var closeDB func()
		rec, closeDB, err = openJournal(cfg, s, types, log)
		if err != nil {
			return err
		}
		defer closeDB()
		printOK(fmt.Sprintf("對局編號 %d", rec.MatchID()))
		fmt.Println()
	}

	// 6. Optional bots
	var bots *scripting.Engine
	if cfg.Scripting.Enabled {
		bots, err = scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer bots.Close()
		printStat("Lua 機器人", len(bots.Bots()))
		fmt.Println()
	}

	// 7. Loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	interval := s.Scheduler.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	printSection("主機就緒")
	printReady(fmt.Sprintf("模擬迴圈啟動 (tick: %s)", interval))
	fmt.Println()

	lastInfluence := -1
	reportEvery := cfg.Simulation.FrameRate * 10

loop:
	for {
		select {
		case <-ticker.C:
			ran := s.Step()
			interval = retime(ticker, interval, s.Scheduler.TickInterval(), log)
			if !ran {
				if err := s.Err(); err != nil {
					closeJournal(rec, cfg.Database.FlushTimeout, log)
					return err
				}
				continue
			}
			if bots != nil && s.Scheduler.InfluenceFrameCount() != lastInfluence {
				lastInfluence = s.Scheduler.InfluenceFrameCount()
				runBots(bots, s, log)
			}
			frames := s.FrameCount()
			if frames%reportEvery == 0 {
				log.Info("模擬進度",
					zap.Int("frame", frames),
					zap.Int32("hash", s.LastHash()),
					zap.Int("agents", s.Registry.Len()),
					zap.Int("dropped_input", s.Inbox.Dropped()),
				)
			}
			if cfg.Simulation.Frames > 0 && frames >= cfg.Simulation.Frames {
				log.Info("達到設定幀數", zap.Int("frames", frames))
				break loop
			}
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			break loop
		}
	}

	closeJournal(rec, cfg.Database.FlushTimeout, log)
	s.Deactivate()
	log.Info("模擬已停止", zap.Int("frames", s.FrameCount()), zap.Int32("hash", s.LastHash()))
	return nil
}

// retime resets the ticker when the scheduler's interval has moved away from
// cur, for instance after a play rate change, and returns the one in effect.
func retime(t *time.Ticker, cur, next time.Duration, log *zap.Logger) time.Duration {
	if next == cur || next <= 0 {
		return cur
	}
	t.Reset(next)
	log.Info("播放速率變更", zap.Duration("from", cur), zap.Duration("to", next))
	return next
}

func simOptions(cfg *config.Config, limiter *rate.Limiter) sim.Options {
	return sim.Options{
		Scheduler: lockstep.Config{
			FrameRate:           cfg.Simulation.FrameRate,
			InfluenceResolution: cfg.Simulation.InfluenceResolution,
			InputDelay:          cfg.Simulation.InputDelay,
			Participants:        cfg.Simulation.Participants,
		},
		Agents: agent.Options{
			MaxGlobalAgents: cfg.Simulation.MaxGlobalAgents,
			MaxLocalAgents:  cfg.Simulation.MaxLocalAgents,
		},
		Physics: physics.Config{
			Origin:    fixed.VecInt(cfg.Physics.OriginX, cfg.Physics.OriginY),
			CellShift: uint(cfg.Physics.CellShift),
			Width:     cfg.Physics.Width,
			Height:    cfg.Physics.Height,
		},
		Seed:        cfg.Simulation.Seed,
		HashHistory: cfg.Simulation.HashHistory,
		InboxSize:   cfg.Network.InboxSize,
		LocalPeer:   uint8(cfg.Simulation.LocalPeer),
		Limiter:     limiter,
	}
}

// loopbackPeers stands in for a transport: every local batch is answered by
// an empty batch from each other participant for the same frame.
func loopbackPeers(s *sim.Simulation, participants int, log *zap.Logger) {
	local := s.Inbox.Peer()
	s.Scheduler.Outbound = func(payload []byte) {
		b, err := command.DecodeBatch(payload)
		if err != nil {
			return
		}
		// runs on the simulation goroutine, so a full inbox must not block
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		for p := 0; p < participants; p++ {
			if uint8(p) == local {
				continue
			}
			if err := s.Inbox.DeliverBatch(ctx, &command.Batch{Frame: b.Frame, Peer: uint8(p)}); err != nil {
				log.Warn("回送批次失敗", zap.Int32("frame", b.Frame), zap.Int("peer", p), zap.Error(err))
			}
		}
	}
}

func openJournal(cfg *config.Config, s *sim.Simulation, types []agent.TypeDef, log *zap.Logger) (*persist.Recorder, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	printOK("PostgreSQL 連線成功")

	if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	printOK("資料庫遷移完成")

	repo := persist.NewJournalRepo(db)
	matchID, err := repo.CreateMatch(ctx, persist.MatchSettings{
		Seed:                cfg.Simulation.Seed,
		Participants:        cfg.Simulation.Participants,
		Controllers:         cfg.Simulation.Controllers,
		FrameRate:           cfg.Simulation.FrameRate,
		InfluenceResolution: cfg.Simulation.InfluenceResolution,
		InputDelay:          cfg.Simulation.InputDelay,
		MaxGlobalAgents:     cfg.Simulation.MaxGlobalAgents,
		MaxLocalAgents:      cfg.Simulation.MaxLocalAgents,
		Physics:             simOptions(cfg, nil).Physics,
		Types:               types,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	rec := persist.NewRecorder(repo, matchID, cfg.Database.FlushInterval, cfg.Database.FlushTimeout, s.LastHash,
		log.With(zap.String("component", "journal")))
	s.Runner.Register(rec)
	s.Scheduler.AddSink(rec)
	s.Monitor.OnDesync(func(d determinism.Desync) {
		rec.Desync(d, s.Snapshot())
	})
	return rec, db.Close, nil
}

func closeJournal(rec *persist.Recorder, timeout time.Duration, log *zap.Logger) {
	if rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		log.Error("對局日誌封存失敗", zap.Int64("match", rec.MatchID()), zap.Error(err))
	}
}

// runBots lets every bot think once and submits what it returns.
func runBots(engine *scripting.Engine, s *sim.Simulation, log *zap.Logger) {
	for _, b := range engine.Bots() {
		c, ok := s.Registry.Controller(b.Controller)
		if !ok {
			continue
		}
		ctx := scripting.ThinkContext{
			Frame:      s.FrameCount(),
			Controller: b.Controller,
			Agents:     make([]scripting.AgentView, 0, c.AgentCount()),
		}
		c.Each(func(a *agent.Agent) {
			pos := a.Position()
			view := scripting.AgentView{
				LocalID: uint16(a.LocalID),
				X:       fixed.ToFloat(pos.X),
				Y:       fixed.ToFloat(pos.Y),
			}
			if m, ok := agent.Find[*behaviour.Mover](a); ok {
				view.Moving = m.Moving()
			}
			ctx.Agents = append(ctx.Agents, view)
		})

		cmds, err := engine.Think(b, ctx)
		if err != nil {
			log.Warn("機器人執行失敗", zap.String("bot", b.Name), zap.Error(err))
			continue
		}
		for _, cmd := range cmds {
			if err := s.Submit(cmd); err != nil && !errors.Is(err, lockstep.ErrThrottled) {
				log.Warn("機器人命令提交失敗", zap.String("bot", b.Name), zap.Error(err))
			}
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.File == "" {
		return zapCfg.Build()
	}

	// rolling file sink; colour codes stay on the console encoder only
	encCfg := zapCfg.EncoderConfig
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(lj), zapCfg.Level)
	return zap.New(core), nil
}
