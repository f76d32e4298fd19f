package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"opsportal/internal/actions"
	"opsportal/internal/config"
	"opsportal/internal/db"
	"opsportal/internal/engine"
	"opsportal/internal/gateway"
	"opsportal/internal/logging"
	"opsportal/internal/migrate"
	"opsportal/internal/policy"
)

// Runtime is an opened workspace: database migrated, config loaded, logger
// built. Close releases the database and flushes the logger.
type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Logger    *zap.Logger
	Engine    engine.Engine
}

// Options override what Open would otherwise build itself.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
}

// Open loads portal.yml (or defaults), opens the workspace database and
// applies pending migrations.
func Open(ctx context.Context, workspace string, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(workspace); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = logging.New(cfg.Logging); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Info("migrations applied", zap.Int("count", applied), zap.String("db", db.Path(workspace)))
	}
	return &Runtime{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Logger:    logger,
		Engine:    engine.New(conn, cfg, logger),
	}, nil
}

// Gateway wires the default builders, a shared binder and logged diagnostics.
// Callers should keep one gateway per process so duplicate runs are caught.
func (r *Runtime) Gateway() *gateway.Gateway {
	return &gateway.Gateway{
		Registry:   actions.DefaultRegistry(),
		Binder:     gateway.NewBinder(gateway.LogNotifier{Logger: r.Logger}, r.Logger),
		Visibility: policy.Visibility{Diagnostics: logging.Diagnostics{Logger: r.Logger}},
		Logger:     r.Logger,
	}
}

func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	_ = r.Logger.Sync()
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
