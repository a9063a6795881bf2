// Package database centralises sqlx connection helpers.  The driver is
// go-sql-driver/mysql, which also works with MariaDB.
//
// Public entry points:
//
//	BuildDSN(template, password)     – fill the %s slot and normalise flags.
//	Open(ctx, dsn, Pool)             – open, size the pool, and Ping.
//
// Open Pings the database before returning so callers can fail fast during
// bootstrap.  Callers should Close() the returned *sqlx.DB when no longer
// needed.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Pool tunes connection limits.  Zero values use the defaults below.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// Defaults: 15 max open, 5 idle, and a 30-minute connection lifetime.
const (
	DefaultMaxOpen     = 15
	DefaultMaxIdle     = 5
	DefaultMaxLifetime = 30 * time.Minute
)

// ErrBadTemplate is returned when a DSN template lacks exactly one %s.
var ErrBadTemplate = errors.New("database: DSN template must contain exactly one %s")

// BuildDSN injects password into template and forces parseTime=true so
// DATETIME and TIMESTAMP columns scan into time.Time.
func BuildDSN(template, password string) (string, error) {
	if strings.Count(template, "%s") != 1 {
		return "", ErrBadTemplate
	}
	cfg, err := mysql.ParseDSN(fmt.Sprintf(template, password))
	if err != nil {
		return "", fmt.Errorf("database: parse DSN: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Open returns a pinged *sqlx.DB.
func Open(ctx context.Context, dsn string, p Pool) (*sqlx.DB, error) {
	if p.MaxOpen <= 0 {
		p.MaxOpen = DefaultMaxOpen
	}
	if p.MaxIdle <= 0 {
		p.MaxIdle = DefaultMaxIdle
	}
	if p.MaxLifetime <= 0 {
		p.MaxLifetime = DefaultMaxLifetime
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetConnMaxLifetime(p.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return db, nil
}
