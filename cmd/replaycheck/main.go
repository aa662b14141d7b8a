// replaycheck re-simulates a journaled match and reports the first frame
// whose state hash differs from the recorded one.
//
//	replaycheck -match 12 [-config config/lockstep.toml]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/config"
	"github.com/l1jgo/lockstep/internal/lockstep"
	"github.com/l1jgo/lockstep/internal/persist"
	"github.com/l1jgo/lockstep/internal/sim"
)

func main() {
	fs := flag.NewFlagSet("replaycheck", flag.ExitOnError)
	cfgPath := fs.String("config", config.Path("config/lockstep.toml"), "config file with the [database] section")
	matchID := fs.Int64("match", 0, "journaled match id")
	verbose := fs.Bool("v", false, "debug logging")
	_ = fs.Parse(os.Args[1:])

	if *matchID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: replaycheck -match <id> [-config path] [-v]")
		os.Exit(2)
	}
	ok, err := run(*cfgPath, *matchID, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(3)
	}
}

func run(cfgPath string, matchID int64, verbose bool) (bool, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}
	zapCfg := zap.NewDevelopmentConfig()
	if !verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := zapCfg.Build()
	if err != nil {
		return false, err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dbCfg := cfg.Database
	dbCfg.Enabled = true // reading the journal does not depend on the host recording it
	db, err := persist.NewDB(ctx, dbCfg, log)
	if err != nil {
		return false, fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	repo := persist.NewJournalRepo(db)

	match, err := repo.LoadMatch(ctx, matchID)
	if err != nil {
		return false, err
	}
	frames, err := repo.LoadFrames(ctx, matchID)
	if err != nil {
		return false, err
	}
	hashes, err := repo.LoadHashes(ctx, matchID)
	if err != nil {
		return false, err
	}
	desyncs, err := repo.LoadDesyncs(ctx, matchID)
	if err != nil {
		return false, err
	}
	log.Info("載入對局日誌",
		zap.Int64("match", matchID),
		zap.Int("influence_frames", len(frames)),
		zap.Int("hashes", len(hashes)),
		zap.Int("desyncs", len(desyncs)),
	)

	ok := true
	if match.Digest != nil {
		same, err := persist.VerifyDigest(frames, match.Digest)
		if err != nil {
			return false, err
		}
		if !same {
			log.Error("輸入摘要不符，日誌可能不完整", zap.Int64("match", matchID))
			ok = false
		}
	} else {
		log.Warn("對局尚未封存，略過摘要檢查", zap.Int64("match", matchID))
	}

	s, err := replaySimulation(match.Settings, log)
	if err != nil {
		return false, err
	}
	replay := make([]sim.ReplayFrame, len(frames))
	for i, f := range frames {
		replay[i] = sim.ReplayFrame{Frame: f.Frame, Batches: f.Batches}
	}
	res, err := sim.Replay(ctx, s, replay, hashes)
	if err != nil {
		return false, fmt.Errorf("replay: %w", err)
	}
	if res.FirstMismatch >= 0 {
		log.Error("重播結果與紀錄不一致",
			zap.Int("frame", res.FirstMismatch),
			zap.Int32("expected", res.Expected),
			zap.Int32("actual", res.Actual),
		)
		for _, d := range desyncs {
			if int(d.Frame) <= res.FirstMismatch {
				log.Info("紀錄中的不同步",
					zap.Int32("frame", d.Frame),
					zap.Uint8("peer", d.Peer),
					zap.Int("agents", len(d.Snapshot.Agents)),
				)
			}
		}
		return false, nil
	}
	log.Info("重播一致",
		zap.Int("frames", res.Frames),
		zap.Int("checked", res.Checked),
		zap.Int32("hash", s.LastHash()),
	)
	return ok, nil
}

// replaySimulation rebuilds the recorded setup with a spectating scheduler.
func replaySimulation(set persist.MatchSettings, log *zap.Logger) (*sim.Simulation, error) {
	s := sim.New(sim.Options{
		Scheduler: lockstep.Config{
			FrameRate:           set.FrameRate,
			InfluenceResolution: set.InfluenceResolution,
			InputDelay:          set.InputDelay,
			Participants:        set.Participants,
			Spectate:            true,
		},
		Agents: agent.Options{
			MaxGlobalAgents: set.MaxGlobalAgents,
			MaxLocalAgents:  set.MaxLocalAgents,
		},
		Physics:   set.Physics,
		Seed:      set.Seed,
		InboxSize: set.Participants + 1,
	}, log)
	if err := s.RegisterTypes(set.Types); err != nil {
		return nil, fmt.Errorf("register types: %w", err)
	}
	if err := s.Initialize(set.Controllers); err != nil {
		return nil, err
	}
	return s, nil
}
