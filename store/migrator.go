package store

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// Migration files live in store/migration/{driver}/NNNNN_description.sql and
// carry goose Up/Down annotations. Applied versions are tracked by goose in
// its own version table.

//go:embed migration
var migrationFS embed.FS

// Migrate applies all pending migrations for the driver's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	dialect, dir, err := migrationSource(s.driver.Dialect())
	if err != nil {
		return err
	}
	fsys, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return errors.Wrapf(err, "failed to open migrations for %s", dir)
	}

	provider, err := goose.NewProvider(dialect, s.driver.GetDB(), fsys)
	if err != nil {
		return errors.Wrap(err, "failed to create migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	for _, result := range results {
		slog.Info("applied migration",
			"version", result.Source.Version,
			"path", result.Source.Path,
			"duration", result.Duration)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	slog.Debug("database schema is up to date", "dialect", s.driver.Dialect(), "version", version)
	return nil
}

func migrationSource(dialect string) (goose.Dialect, string, error) {
	switch dialect {
	case "sqlite3":
		return goose.DialectSQLite3, "migration/sqlite", nil
	case "postgres":
		return goose.DialectPostgres, "migration/postgres", nil
	default:
		return "", "", errors.Errorf("unsupported migration dialect: %s", dialect)
	}
}
