package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/config"
)

// ErrJournalDisabled is returned by NewDB when [database] is switched off.
var ErrJournalDisabled = errors.New("persist: journal disabled")

const applicationName = "lockstep-journal"

// DB is the journal's connection pool.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// poolConfig maps the [database] section onto pgxpool settings.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 && int32(cfg.MaxIdleConns) <= pc.MaxConns {
		pc.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return pc, nil
}

// NewDB connects and pings the journal database.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	if !cfg.Enabled {
		return nil, ErrJournalDisabled
	}
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect to journal: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	log.Info("日誌資料庫連線成功",
		zap.Int32("max_conns", pc.MaxConns),
		zap.Int32("min_conns", pc.MinConns),
	)
	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
	db.log.Debug("日誌資料庫連線已關閉")
}
