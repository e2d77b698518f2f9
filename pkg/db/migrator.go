package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// MigrationSet names a directory of goose SQL files and the table that tracks them.
type MigrationSet struct {
	FS    fs.FS
	Dir   string
	Table string
}

// Migrate applies every pending migration in set.
func Migrate(ctx context.Context, pool *pgxpool.Pool, set MigrationSet, log *slog.Logger) error {
	// Shares pool connections; closing it would close the pool.
	sqlDB := stdlib.OpenDBFromPool(pool)

	dir := set.Dir
	if dir == "" {
		dir = "."
	}
	table := set.Table
	if table == "" {
		table = "schema_migrations"
	}

	goose.SetBaseFS(mustSub(set.FS, dir))
	goose.SetLogger(&gooseLogger{log: log})
	goose.SetTableName(table)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Mark(errors.Wrap(err, "db: goose dialect"), ErrSetDialect)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return errors.Mark(errors.Wrap(err, "db: migrate up"), ErrApplyMigrations)
	}
	return nil
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	if dir == "." {
		return fsys
	}
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fsys
	}
	return sub
}

type gooseLogger struct {
	log *slog.Logger
}

func (g *gooseLogger) Printf(format string, args ...any) {
	g.log.Info(fmt.Sprintf(format, args...))
}

// Fatalf only logs; goose returns the error to the caller.
func (g *gooseLogger) Fatalf(format string, args ...any) {
	g.log.Error(fmt.Sprintf(format, args...))
}
