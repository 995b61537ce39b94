package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/deppfellow/dbkit/pkg/errs"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	tern "github.com/jackc/tern/v2/migrate"
	"github.com/rs/zerolog"
	migrate "github.com/rubenv/sql-migrate"
)

// Migration engines.
const (
	FormatTern       = "tern"
	FormatSQLMigrate = "sql-migrate"
)

// Default version tables.
const (
	DefaultTernTable       = "schema_version"
	DefaultSQLMigrateTable = "gorp_migrations"
)

// Migrate applies every pending migration and closes its connection
// afterwards.
//
// Postgres uses jackc/tern unless Migrations.Format says otherwise; every
// other dialect uses rubenv/sql-migrate.
func Migrate(ctx context.Context, cfg Config, logger *zerolog.Logger) error {
	return runMigrations(ctx, cfg, logger, 0, false)
}

// Rollback reverts the last steps migrations. steps must be positive.
func Rollback(ctx context.Context, cfg Config, steps int, logger *zerolog.Logger) error {
	if steps <= 0 {
		return errs.NewInvalidInputError("steps must be positive", "INVALID_STEPS", []errs.FieldError{
			{Field: "steps", Error: "must be at least 1"},
		}, nil)
	}
	return runMigrations(ctx, cfg, logger, steps, true)
}

func runMigrations(ctx context.Context, cfg Config, logger *zerolog.Logger, steps int, down bool) error {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	dialect, err := LookupDialect(cfg.Client)
	if err != nil {
		return err
	}

	source, err := migrationSource(cfg.Migrations)
	if err != nil {
		return err
	}

	switch migrationFormat(cfg.Migrations, dialect) {
	case FormatTern:
		if dialect.Name != "postgres" {
			return errs.NewUnsupportedError(fmt.Sprintf("tern migrations are not supported for database type %s", cfg.Client))
		}
		return migrateTern(ctx, cfg, source, logger, steps, down)
	default:
		return migrateSQL(ctx, cfg, dialect, source, logger, steps, down)
	}
}

func migrationFormat(m MigrationsConfig, dialect *Dialect) string {
	if m.Format != "" {
		return m.Format
	}
	if dialect.Name == "postgres" {
		return FormatTern
	}
	return FormatSQLMigrate
}

func migrationSource(m MigrationsConfig) (fs.FS, error) {
	if m.FS != nil {
		return m.FS, nil
	}
	if m.Directory == "" {
		return nil, errs.NewInvalidConfigError("Migrations directory is required", []errs.FieldError{
			{Field: "migrations.directory", Error: "is required"},
		})
	}
	return os.DirFS(m.Directory), nil
}

// migrateTern runs tern on a single pgx connection.
func migrateTern(ctx context.Context, cfg Config, source fs.FS, logger *zerolog.Logger, steps int, down bool) (rerr error) {
	connConfig, err := postgresConnConfig(cfg, nil)
	if err != nil {
		return err
	}

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return fmt.Errorf("connecting for migrations: %w", err)
	}
	defer func() {
		if err := conn.Close(ctx); err != nil {
			rerr = multierror.Append(rerr, fmt.Errorf("closing migration connection: %w", err)).ErrorOrNil()
		}
	}()

	table := cfg.Migrations.TableName
	if table == "" {
		table = DefaultTernTable
	}

	m, err := tern.NewMigrator(ctx, conn, table)
	if err != nil {
		return fmt.Errorf("constructing database migrator: %w", err)
	}

	if err := m.LoadMigrations(source); err != nil {
		return fmt.Errorf("loading database migrations: %w", err)
	}

	from, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("retrieving current database migration version: %w", err)
	}

	if down {
		target := max(from-int32(steps), 0)
		if err := m.MigrateTo(ctx, target); err != nil {
			return err
		}
		logger.Info().Msgf("rolled back database schema, from %d to %d", from, target)
		return nil
	}

	if err := m.Migrate(ctx); err != nil {
		return err
	}

	if from == int32(len(m.Migrations)) {
		logger.Info().Msgf("database schema up to date, version %d", len(m.Migrations))
	} else {
		logger.Info().Msgf("migrated database schema, from %d to %d", from, len(m.Migrations))
	}
	return nil
}

// migrateSQL runs rubenv/sql-migrate on a database/sql handle.
func migrateSQL(ctx context.Context, cfg Config, dialect *Dialect, source fs.FS, logger *zerolog.Logger, steps int, down bool) (rerr error) {
	if dialect.MigrateDialect == "" {
		return errs.NewUnsupportedError(fmt.Sprintf("Migrations are not supported for database type %s", cfg.Client))
	}

	db, err := dialect.Open(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			rerr = multierror.Append(rerr, fmt.Errorf("closing migration connection: %w", err)).ErrorOrNil()
		}
	}()

	return execSQLMigrations(ctx, db, dialect.MigrateDialect, cfg.Migrations.TableName, source, logger, steps, down)
}

func execSQLMigrations(ctx context.Context, db *sql.DB, dialect, table string, source fs.FS, logger *zerolog.Logger, steps int, down bool) error {
	if table == "" {
		table = DefaultSQLMigrateTable
	}

	set := migrate.MigrationSet{TableName: table}
	src := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(source)}

	direction := migrate.Up
	if down {
		direction = migrate.Down
	}

	applied, err := set.ExecMaxContext(ctx, db, dialect, src, direction, steps)
	if err != nil {
		return fmt.Errorf("migration failed after %d migrations: %w", applied, err)
	}

	switch {
	case down:
		logger.Info().Msgf("rolled back %d database migrations", applied)
	case applied == 0:
		logger.Info().Msg("database schema up to date")
	default:
		logger.Info().Msgf("applied %d database migrations", applied)
	}
	return nil
}
