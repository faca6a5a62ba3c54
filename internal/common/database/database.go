// Package database provides a dialect-aware, reader/writer-split sqlx
// connection for Crewly's durable stores: the scheduled-message table (C8)
// and the queue-event audit log (A6). sqlite is the zero-config default;
// postgres is available for multi-process deployments via the pgx stdlib
// driver.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" with database/sql
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3" with database/sql

	"github.com/crewly/crewly/internal/common/config"
	"github.com/crewly/crewly/internal/db"
	"github.com/crewly/crewly/internal/db/dialect"
)

// DB wraps a reader/writer-split internal/db.Pool. For sqlite the writer is
// a single WAL connection and the reader is a small pool of read-only
// connections; for postgres both point at the same pgx-backed pool.
type DB struct {
	pool   *db.Pool
	Driver string
}

// Open opens a connection pool for the configured dialect and verifies it
// with a ping against the writer connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = dialect.SQLite3
	}

	var pool *db.Pool
	switch driver {
	case dialect.SQLite3:
		writer, err := db.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite writer: %w", err)
		}
		reader, err := db.OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("open sqlite reader: %w", err)
		}
		pool = db.NewPool(sqlx.NewDb(writer, dialect.SQLite3), sqlx.NewDb(reader, dialect.SQLite3))
	case dialect.PGX:
		conn, err := db.OpenPostgres(cfg.DSN(), 25, 5)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlxConn := sqlx.NewDb(conn, dialect.PGX)
		pool = db.NewPool(sqlxConn, sqlxConn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Writer().PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return &DB{pool: pool, Driver: driver}, nil
}

// Writer returns the handle for INSERT/UPDATE/DELETE and transactions.
func (d *DB) Writer() *sqlx.DB { return d.pool.Writer() }

// Reader returns the handle for SELECT queries, served from a separate
// connection pool so long-running reads never starve the writer.
func (d *DB) Reader() *sqlx.DB { return d.pool.Reader() }

// Close closes both the writer and reader pools.
func (d *DB) Close() error {
	return d.pool.Close()
}

// WithTx runs fn inside a writer transaction, committing on success and
// rolling back on error or panic.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.pool.Writer().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
