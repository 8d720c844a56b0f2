package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// ApplyMigrations runs every not-yet-applied .sql file from dir in
// lexical order, each inside its own transaction, and records applied
// files in schema_migrations.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return err
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, f := range files {
		name := filepath.Base(f)

		var exists bool
		if e := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename=$1)`, name).Scan(&exists); e != nil {
			return e
		}
		if exists {
			continue
		}

		sqlBytes, e := os.ReadFile(f)
		if e != nil {
			return e
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			return errors.New("empty migration: " + name)
		}

		tx, e := pool.Begin(ctx)
		if e != nil {
			return e
		}
		_, e = tx.Exec(ctx, sqlText)
		if e != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migration %s failed: %w", name, e)
		}
		_, e = tx.Exec(ctx, `INSERT INTO schema_migrations(filename) VALUES($1)`, name)
		if e != nil {
			_ = tx.Rollback(ctx)
			return e
		}
		if e := tx.Commit(ctx); e != nil {
			return e
		}
	}
	return nil
}
