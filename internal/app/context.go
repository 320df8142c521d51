package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/engine"
	"tally/internal/logger"
	"tally/internal/metrics"
	"tally/internal/migrate"
	"tally/internal/repo"
)

// ResolveConfig picks the active config and makes sure the database holds it.
// A tally.yml in the workspace wins and is written through; otherwise the
// stored config is used, and an empty database is seeded with the defaults.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if fileCfg != nil {
		if err := r.UpsertConfig(ctx, nil, fileCfg); err != nil {
			return nil, fmt.Errorf("store config: %w", err)
		}
		return fileCfg, nil
	}
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg = config.Default()
	if err := r.UpsertConfig(ctx, nil, cfg); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return cfg, nil
}

type Options struct {
	Workspace string
	// LogMode overrides the config's log.mode when set.
	LogMode string
	// Logger, when set, is used as is and LogMode is ignored.
	Logger *logger.Logger
	// Registry receives the ledger metrics; nil leaves them unregistered.
	Registry prometheus.Registerer
}

// Runtime is an opened workspace: database, resolved config and a wired
// engine.
type Runtime struct {
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	Log     *logger.Logger
	Metrics *metrics.Ledger
}

// Open prepares the workspace directory, opens and migrates the database,
// resolves the config and builds the engine.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := ResolveConfig(ctx, opts.Workspace, repo.Repo{DB: conn})
	if err != nil {
		conn.Close()
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		mode := opts.LogMode
		if mode == "" {
			mode = cfg.Log.Mode
		}
		if log, err = logger.New(mode); err != nil {
			conn.Close()
			return nil, fmt.Errorf("logger: %w", err)
		}
	}
	m := &metrics.Ledger{}
	m.Register(opts.Registry)
	return &Runtime{
		DB:      conn,
		Config:  cfg,
		Engine:  engine.New(conn, cfg, log, m),
		Log:     log,
		Metrics: m,
	}, nil
}

func (rt *Runtime) Close() error {
	rt.Log.Sync()
	return rt.DB.Close()
}
