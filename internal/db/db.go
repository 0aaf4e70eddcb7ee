// Package db opens the labeller's SQLite database and keeps its schema
// current. Stored labels, scan history and agent settings live there; the
// queries themselves belong to internal/store.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pragmas are applied by the driver to every connection it opens.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

type Option func(*DB)

func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// Open creates the database file if needed and applies pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	d := &DB{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(d)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; SQLite serialises writes anyway and WAL keeps reads cheap.
	conn.SetMaxOpenConns(1)
	d.conn = conn

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn is the handle the stores query through.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

type migration struct {
	name string
	sql  string
}

// migrations lists the embedded schema files in name order.
func migrations() ([]migration, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, migration{name: strings.TrimPrefix(name, "migrations/"), sql: string(body)})
	}
	return out, nil
}

// Applied returns the names of the migrations recorded in the database.
func (d *DB) Applied(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT name FROM _migrations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	all, err := migrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	applied, err := d.Applied(ctx)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	for _, m := range all {
		if done[m.name] {
			continue
		}
		if err := d.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		d.logger.Info("applied migration", "name", m.name)
	}
	return nil
}

// apply runs one migration and records it in the same transaction, so a
// failed file leaves no partial schema behind.
func (d *DB) apply(ctx context.Context, m migration) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", m.name); err != nil {
		return err
	}
	return tx.Commit()
}
