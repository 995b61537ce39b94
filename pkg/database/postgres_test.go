package database

import (
	"os"
	"testing"
	"testing/fstest"

	"github.com/deppfellow/dbkit/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresConfig returns a config for the database in
// DBKIT_TEST_POSTGRES_URL and skips the test when it is unset.
func postgresConfig(t *testing.T) Config {
	t.Helper()

	url := os.Getenv("DBKIT_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("DBKIT_TEST_POSTGRES_URL not set")
	}
	return Config{Client: "pg", Connection: ConnectionConfig{URL: url}}
}

var ternMigrations = fstest.MapFS{
	"001_create_widgets.sql": {Data: []byte(`CREATE TABLE widgets (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	weight     INTEGER,
	deleted_at TIMESTAMPTZ
);

---- create above / drop below ----

DROP TABLE widgets;
`)},
}

func TestPostgres_Integration(t *testing.T) {
	cfg := postgresConfig(t)
	cfg.Migrations.FS = ternMigrations
	cfg.Migrations.TableName = "dbkit_test_schema_version"

	ctx := t.Context()
	require.NoError(t, Migrate(ctx, cfg, nil))
	t.Cleanup(func() { _ = Rollback(ctx, cfg, 1, nil) })

	db := New()
	require.NoError(t, db.Connect(ctx, cfg))
	defer db.Disconnect()

	assert.Contains(t, db.Tables(), "widgets")

	widgets, err := db.Table("widgets")
	require.NoError(t, err)
	require.NoError(t, widgets.Truncate(ctx))

	inserted, err := widgets.Insert(ctx, Record{"name": "sprocket", "weight": 3})
	require.NoError(t, err)
	assert.Equal(t, "sprocket", inserted["name"])

	_, err = widgets.Insert(ctx, Record{"name": "sprocket"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.New(errs.KindConflict, ""))

	count, err := widgets.Count(ctx, Criteria{"weight >": 1}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	updated, err := widgets.Update(ctx, Criteria{"name": "sprocket"}, Record{"weight": 5})
	require.NoError(t, err)
	require.Len(t, updated, 1)

	highest, err := widgets.Max(ctx, nil, "weight")
	require.NoError(t, err)
	assert.EqualValues(t, 5, highest)

	deleted, err := widgets.Destroy(ctx, Criteria{"deleted_at": nil})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
}
