package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

const usersSchema = `
CREATE TABLE users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	age        INTEGER,
	deleted_at TEXT
);
CREATE TABLE posts (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	title   TEXT NOT NULL
);
`

// sqliteConfig creates an on-disk sqlite database with the test schema.
func sqliteConfig(t *testing.T) Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(usersSchema)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	return Config{
		Client:     "sqlite",
		Connection: ConnectionConfig{Filename: path},
	}
}

// connectSQLite returns a connected Database over a fresh test schema.
func connectSQLite(t *testing.T, opts ...Option) *Database {
	t.Helper()

	db := New(opts...)
	require.NoError(t, db.Connect(t.Context(), sqliteConfig(t)))
	t.Cleanup(func() { _ = db.Disconnect() })
	return db
}

// mockOpener returns an Opener handing out a sqlmock handle with exact
// query matching.
func mockOpener(t *testing.T) (Opener, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	return func(_ context.Context, _ Config) (*sql.DB, error) {
		return raw, nil
	}, mock
}

func seedUsers(t *testing.T, table *Table) {
	t.Helper()

	for _, u := range []Record{
		{"name": "alice", "age": 30},
		{"name": "bob", "age": 25},
		{"name": "carol", "age": 41},
	} {
		_, err := table.Insert(t.Context(), u)
		require.NoError(t, err)
	}
}
