package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/db"
)

// PostgresStore is the shared-deployment Store backed by a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig tunes the connection pool. Zero fields keep the defaults.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	defaultMaxConns        = 10
	defaultMinConns        = 2
	defaultConnLifetime    = 30 * time.Minute
	defaultConnIdleTime    = 5 * time.Minute
	postgresApplicationTag = "prospect-pipeline"
)

func (pc *PoolConfig) apply(cfg *pgxpool.Config) {
	cfg.MaxConns = defaultMaxConns
	cfg.MinConns = defaultMinConns
	if pc != nil && pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc != nil && pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	cfg.MaxConnLifetime = defaultConnLifetime
	cfg.MaxConnIdleTime = defaultConnIdleTime
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = postgresApplicationTag
	}
}

// NewPostgres connects to connString and pings before returning.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	poolCfg.apply(cfg)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for advisory locking.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Staging() StagingStore       { return &pgStaging{pool: s.pool} }
func (s *PostgresStore) Prospects() ProspectStore    { return &pgProspects{pool: s.pool} }
func (s *PostgresStore) Quarantine() QuarantineStore { return &pgQuarantine{pool: s.pool} }
func (s *PostgresStore) Enrichment() EnrichmentStore { return &pgEnrichment{pool: s.pool} }

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
