package postgres

import (
	"errors"
	"time"
)

// Config holds the connection pool settings of the analysis store.
type Config struct {
	// DSN is a libpq connection string or URL,
	// e.g. "postgres://tabula:secret@db:5432/tabula?sslmode=require".
	DSN string

	// Pool bounds. Zero values mean 10 max, 2 min.
	MaxConns int32
	MinConns int32

	// MaxConnLifetime recycles connections. Zero means 30 minutes.
	MaxConnLifetime time.Duration

	// MigrateOnStart applies the embedded schema migrations in New.
	MigrateOnStart bool
}

// Validate reports a missing DSN or inverted pool bounds.
func (c Config) Validate() error {
	var errs []error
	if c.DSN == "" {
		errs = append(errs, errors.New("postgres: dsn is required"))
	}
	if c.MaxConns > 0 && c.MinConns > c.MaxConns {
		errs = append(errs, errors.New("postgres: min_conns exceeds max_conns"))
	}
	return errors.Join(errs...)
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
}
