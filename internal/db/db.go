// Package db opens and supervises the service's PostgreSQL and Redis
// connections.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"jobmate/autoapply-service/internal/config"
)

// Connections holds whichever backends the configuration asked for.
// A nil field means that backend is not in use.
type Connections struct {
	SQL   *sql.DB
	Redis *redis.Client
}

// Open connects to PostgreSQL when the storage driver needs it and to Redis
// when the queue or quota backend needs it.
func Open(ctx context.Context, cfg *config.Config) (*Connections, error) {
	c := &Connections{}

	if cfg.Storage.Driver == config.DriverPostgres {
		pg := cfg.Database.Postgres
		conn, err := NewPostgres(ctx, pg.URL, pg.MaxConnections, pg.MaxIdle)
		if err != nil {
			return nil, err
		}
		c.SQL = conn
	}

	if cfg.Queue.Driver == config.DriverRedis || cfg.Quota.Backend == config.DriverRedis {
		rdb, err := NewRedisClient(ctx, cfg.Database.Redis.URL)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Redis = rdb
	}

	return c, nil
}

// Ping checks every open backend.
func (c *Connections) Ping(ctx context.Context) error {
	if c.SQL != nil {
		if err := c.SQL.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases every open backend.
func (c *Connections) Close() error {
	var errs []error
	if c.SQL != nil {
		errs = append(errs, c.SQL.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	return errors.Join(errs...)
}

// NewPostgres opens and verifies a PostgreSQL pool through the pgx
// database/sql driver.
func NewPostgres(ctx context.Context, databaseURL string, maxOpen, maxIdle int) (*sql.DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return conn, nil
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
