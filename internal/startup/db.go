package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whitechapel007/chat-app-pern/internal/config"
	"github.com/whitechapel007/chat-app-pern/internal/store"
	"github.com/whitechapel007/chat-app-pern/internal/store/postgres"
	"github.com/whitechapel007/chat-app-pern/internal/store/sqlite"
)

// ConnectDBWithRetry подключается к Postgres с повторами; при недоступности БД не роняет процесс сразу.
func ConnectDBWithRetry(ctx context.Context, poolCfg *pgxpool.Config, maxWait time.Duration) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := withRetry(ctx, "db connect", maxWait, 2*time.Second, func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		p, err := pgxpool.NewWithConfig(connCtx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(connCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	return pool, err
}

// OpenStore открывает хранилище по cfg.Driver. Для postgres применяются миграции.
// Возвращаемая функция освобождает ресурсы (пул или файл БД).
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, maxWait time.Duration) (store.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return st, func() { st.Close() }, nil
	case config.DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse db config: %w", err)
		}
		if cfg.MaxConnections > 0 {
			poolCfg.MaxConns = int32(cfg.MaxConnections)
		}
		poolCfg.MinConns = 2
		pool, err := ConnectDBWithRetry(ctx, poolCfg, maxWait)
		if err != nil {
			return nil, nil, err
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := postgres.Migrate(migrateCtx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}
