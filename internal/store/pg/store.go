// Package pg abre el pool PostgreSQL compartido por los stores de menú y usuarios.
package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	migrations "github.com/dropDatabas3/sitegate/migrations/postgres"
)

type Options struct {
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

type Store struct{ pool *pgxpool.Pool }

// New crea el pool. No falla si el primer ping falla: la app arranca aunque la
// DB esté caída y /readyz lo reporta.
func New(ctx context.Context, dsn string, opt Options) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if opt.MaxConns > 0 {
		pcfg.MaxConns = opt.MaxConns
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}
	if opt.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = opt.ConnMaxLifetime
		pcfg.MaxConnIdleTime = opt.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: new pool: %w", err)
	}

	log := logger.L().With(logger.Component("store.pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		log.Info("pg pool ready", logger.Any("max_conns", pcfg.MaxConns))
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool para los stores de dominio.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// RunMigrations aplica las migraciones embebidas en orden. Son idempotentes
// (CREATE ... IF NOT EXISTS), así que no se lleva tabla de versiones.
func (s *Store) RunMigrations(ctx context.Context) error {
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("pg: migration %s: %w", name, err)
		}
		logger.L().Info("migration applied", logger.Component("store.pg"), logger.Any("file", name))
	}
	return nil
}
