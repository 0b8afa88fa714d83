package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/config"
	"github.com/bellyrush/marketplace/internal/db"
)

// NewPostgresRepositories wires the sqlx repositories on one connection pool
func NewPostgresRepositories(database *sqlx.DB) *Repositories {
	return &Repositories{
		Accounts: NewAccountRepository(database),
		Menus:    NewMenuRepository(database),
		Orders:   NewOrderRepository(database),
		ping:     database.PingContext,
		close:    func(context.Context) error { return database.Close() },
	}
}

// Open connects the configured driver and returns its repositories
func Open(ctx context.Context, cfg config.Database, log *zap.Logger) (*Repositories, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return NewMemory(), nil

	case config.DriverPostgres:
		pg, err := db.NewPostgres(cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(cfg.Postgres); err != nil {
			_ = pg.Close()
			return nil, err
		}
		repos := NewPostgresRepositories(pg.DB)
		repos.ping = pg.HealthCheck
		return repos, nil

	case config.DriverMongo:
		database, client, err := db.ConnectMongo(ctx, cfg.Mongo, log)
		if err != nil {
			return nil, err
		}
		if err := EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &Repositories{
			Accounts: NewMongoAccounts(database),
			Menus:    NewMongoMenus(database),
			Orders:   NewMongoOrders(database),
			ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:    client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
