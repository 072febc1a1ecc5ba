package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL             string `split_words:"true"`
	MaxConns        int32  `split_words:"true" default:"8"`
	ConnectTimeout  int    `split_words:"true" default:"5"`
	MaxConnIdleTime int    `split_words:"true" default:"300"`
}

// Enabled reports whether a Postgres URL was configured.
func (c *Config) Enabled() bool {
	return c.URL != ""
}

func (c *Config) New(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, err
	}
	if c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}
	cfg.MaxConnIdleTime = time.Duration(c.MaxConnIdleTime) * time.Second
	cfg.ConnConfig.ConnectTimeout = time.Duration(c.ConnectTimeout) * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
