package main

import (
	"context"
	"fmt"
	"time"

	config "github.com/NordCoder/Feedwatch/internal/config/watcher"
	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/repository/bolt"
	"github.com/NordCoder/Feedwatch/internal/repository/file"
	pg "github.com/NordCoder/Feedwatch/internal/repository/postgres"
	"go.uber.org/zap"
)

// storage bundles the persistence picked by storage.driver. history and db
// are only set for postgres.
type storage struct {
	overrides endpoint.OverrideRepo
	states    state.Store
	history   notification.Repo
	db        *pg.DB
	health    func(context.Context) error
	close     func()
}

func initStorage(ctx context.Context, cfg *config.Config, l *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverFile:
		fc := cfg.Storage.File
		l.Info("storage: json files", zap.String("state", fc.StatePath), zap.String("overrides", fc.OverridesPath))
		return &storage{
			overrides: file.NewOverrideStore(fc.OverridesPath),
			states:    file.NewStateStore(fc.StatePath, fc.LegacyTag).WithLogger(l),
			health:    func(context.Context) error { return nil },
			close:     func() {},
		}, nil

	case config.DriverBolt:
		db, err := bolt.Open(cfg.Storage.Bolt.Path, cfg.Storage.Bolt.Timeout)
		if err != nil {
			return nil, fmt.Errorf("bolt open: %w", err)
		}
		l.Info("storage: bolt", zap.String("path", cfg.Storage.Bolt.Path))
		return &storage{
			overrides: bolt.NewOverrideStore(db),
			states:    bolt.NewStateStore(db),
			health:    func(context.Context) error { return nil },
			close:     func() { _ = db.Close() },
		}, nil

	case config.DriverPostgres:
		db, err := pg.NewDB(ctx, cfg.DB, l)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		l.Info("storage: postgres")
		return &storage{
			overrides: pg.NewEndpointRepo(db, pg.NewTransactor(db, l)),
			states:    pg.NewStateRepo(db),
			history:   pg.NewNotificationRepo(db),
			db:        db,
			health: func(ctx context.Context) error {
				hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
				defer cancel()
				return db.Ping(hctx)
			},
			close: db.Close,
		}, nil
	}
	return nil, config.ErrConfig(fmt.Sprintf("unknown storage driver %q", cfg.Storage.Driver))
}
