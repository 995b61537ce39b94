// Package database is a thin data-access layer over squirrel and sqlx.
//
// A Database owns one connection handle. Connecting lists the tables of
// the connected schema; From and Table then hand out per-table accessors
// with a small CRUD API:
//
//	db := database.New(database.WithLogger(&logger))
//	if err := db.Connect(ctx, cfg); err != nil {
//		return err
//	}
//	defer db.Disconnect()
//
//	users, err := db.Table("users")
//	if err != nil {
//		return err
//	}
//	rows, err := users.Find(ctx, database.Criteria{"age >=": 18}, &database.Options{Order: "name desc"})
//
// SQL generation, pooling and transaction semantics are left to squirrel,
// database/sql and the drivers (pgx, go-sql-driver/mysql, go-sqlite).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/deppfellow/dbkit/pkg/errs"
	"github.com/jmoiron/sqlx"
)

// pingTimeout bounds a single ping attempt made by Connect.
const pingTimeout = 2 * time.Second

// Database manages one connection handle and the tables it can see.
//
// All methods are safe for concurrent use. Connect and Disconnect are
// serialized: a Disconnect issued while a Connect is acquiring its first
// connection waits for it, so the handle being opened is never leaked.
type Database struct {
	// lifecycle serializes Connect, Disconnect and RefreshTables.
	lifecycle sync.Mutex

	// mu guards the fields below.
	mu      sync.RWMutex
	conn    *sqlx.DB
	dialect *Dialect
	cfg     Config
	tables  []string

	opts *options
}

// New creates a disconnected Database.
func New(opts ...Option) *Database {
	return &Database{opts: newOptions(opts...)}
}

// Connect opens the connection handle and lists the known tables.
//
// Connect is a no-op when the Database is already connected. When listing
// the tables fails the handle is closed again and the Database stays
// disconnected.
func (d *Database) Connect(ctx context.Context, cfg Config) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.IsConnected() {
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	dialect, err := LookupDialect(cfg.Client)
	if err != nil {
		return err
	}

	raw, err := d.open(ctx, cfg, dialect)
	if err != nil {
		return err
	}

	conn := sqlx.NewDb(raw, dialect.DriverName)
	applyPool(conn, cfg.Pool)

	if err := d.ping(ctx, conn, cfg.acquireTimeout()); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	tables, err := listTables(ctx, conn, dialect, cfg)
	if err != nil {
		_ = conn.Close()
		return err
	}

	d.mu.Lock()
	d.conn = conn
	d.dialect = dialect
	d.cfg = cfg
	d.tables = tables
	d.mu.Unlock()

	d.opts.logger.Info().
		Str("client", cfg.Client).
		Int("tables", len(tables)).
		Msg("connected to the database")

	return nil
}

// ConnectURI connects with a connection URI.
//
// postgres:// and postgresql:// URIs are used as they are. The deprecated
// mysql:// and psql:// formats are parsed with ParseURI.
func (d *Database) ConnectURI(ctx context.Context, uri string) error {
	var cfg Config

	switch ParseDatabaseType(uri) {
	case "postgres", "postgresql":
		cfg = Config{Client: "pg", Connection: ConnectionConfig{URL: uri}}
	case "mysql", "psql":
		parsed, err := ParseURI(Config{}, uri)
		if err != nil {
			return err
		}
		cfg = parsed
	default:
		return errs.NewInvalidConfigError("Invalid database type in database URI", []errs.FieldError{
			{Field: "uri", Error: "must start with postgres://, postgresql://, mysql:// or psql://"},
		})
	}

	return d.Connect(ctx, cfg)
}

// Disconnect closes the connection handle and forgets the known tables.
// It is a no-op when the Database is not connected.
func (d *Database) Disconnect() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.dialect = nil
	d.tables = nil
	d.mu.Unlock()

	if conn == nil {
		return nil
	}

	d.opts.logger.Info().Msg("closing database connection pool")
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// From returns an accessor for any table, known or not.
func (d *Database) From(name string) (*Table, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return nil, errs.NewNotConnectedError("The database must be connected to get a table object")
	}
	return newTable(name, d.dialect, d.conn, d.opts.recorder), nil
}

// Table returns an accessor for a table listed on connect.
func (d *Database) Table(name string) (*Table, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.conn == nil {
		return nil, errs.NewNotConnectedError("The database must be connected to get a table object")
	}
	if !slices.Contains(d.tables, name) {
		return nil, errs.NewNotFoundError(fmt.Sprintf("Unknown table %s", name), nil, nil)
	}
	return newTable(name, d.dialect, d.conn, d.opts.recorder), nil
}

// Tables returns the known table names.
func (d *Database) Tables() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.tables)
}

// RefreshTables lists the tables again, e.g. after a migration.
func (d *Database) RefreshTables(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.RLock()
	conn, dialect, cfg := d.conn, d.dialect, d.cfg
	d.mu.RUnlock()

	if conn == nil {
		return errs.NewNotConnectedError("The database must be connected to list tables")
	}

	tables, err := listTables(ctx, conn, dialect, cfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.tables = tables
	d.mu.Unlock()
	return nil
}

// IsConnected reports whether the connection handle is open.
func (d *Database) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn != nil
}

// Client returns the client of the connected config, or "" when
// disconnected.
func (d *Database) Client() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.conn == nil {
		return ""
	}
	return d.cfg.Client
}

// DB returns the underlying handle, or nil when disconnected.
func (d *Database) DB() *sqlx.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn
}

// CloseOnSignal disconnects the Database when one of sigs is received.
// Without sigs it listens for SIGINT and SIGTERM.
//
// The returned stop function stops listening; it is also stopped when ctx
// is done.
func (d *Database) CloseOnSignal(ctx context.Context, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	quit := make(chan struct{})
	go func() {
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			d.opts.logger.Info().Str("signal", sig.String()).Msg("received exit signal, disconnecting")
			if err := d.Disconnect(); err != nil {
				d.opts.logger.Error().Err(err).Msg("failed to disconnect on exit signal")
			}
		case <-ctx.Done():
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
	}
}

func (d *Database) open(ctx context.Context, cfg Config, dialect *Dialect) (*sql.DB, error) {
	if d.opts.opener != nil {
		return d.opts.opener(ctx, cfg)
	}
	if dialect.Open == nil {
		return nil, errs.NewUnsupportedError(fmt.Sprintf("Opening connections is not supported for database type %s", cfg.Client))
	}
	return dialect.Open(ctx, cfg, d.opts.tracers)
}

// ping retries until the database answers or timeout elapses.
func (d *Database) ping(ctx context.Context, conn *sqlx.DB, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout

	return backoff.RetryNotify(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			return conn.PingContext(pingCtx)
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			d.opts.logger.Warn().
				Err(err).
				Dur("retry_in", next).
				Msg("database not reachable yet, retrying")
		},
	)
}

func applyPool(conn *sqlx.DB, pool PoolConfig) {
	if pool.Max > 0 {
		conn.SetMaxOpenConns(pool.Max)
	}
	if pool.Min > 0 {
		conn.SetMaxIdleConns(pool.Min)
	}
	if pool.MaxLifetime > 0 {
		conn.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if pool.MaxIdleTime > 0 {
		conn.SetConnMaxIdleTime(pool.MaxIdleTime)
	}
}

func listTables(ctx context.Context, conn *sqlx.DB, dialect *Dialect, cfg Config) ([]string, error) {
	if dialect.ListTables == nil {
		return nil, errs.NewUnsupportedError(fmt.Sprintf("Listing tables is not supported for database type %s", cfg.Client))
	}

	builder, err := dialect.ListTables(cfg)
	if err != nil {
		return nil, err
	}

	query, args, err := builder.PlaceholderFormat(dialect.Placeholder).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build table listing query: %w", err)
	}

	var tables []string
	if err := sqlx.SelectContext(ctx, conn, &tables, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return normalizeTableNames(tables), nil
}

func normalizeTableNames(tables []string) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
