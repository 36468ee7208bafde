package migrate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/migrate.db?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoadMigrationsPairsUpAndDown(t *testing.T) {
	for _, m := range []*Manager{
		NewPostgresManager(nil, zap.NewNop()),
		NewSQLiteManager(nil, zap.NewNop()),
	} {
		migrations, err := m.LoadMigrations()
		require.NoError(t, err)
		require.NotEmpty(t, migrations)

		first := migrations[0]
		assert.Equal(t, 1, first.Version)
		assert.Equal(t, "initial_schema", first.Name)
		assert.Contains(t, first.UpSQL, "CREATE TABLE reports")
		assert.Contains(t, first.DownSQL, "DROP TABLE IF EXISTS reports")
	}
}

func TestSQLiteUpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewSQLiteManager(openSQLite(t), zap.NewNop())

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.NotNil(t, status[0].AppliedAt)
}

func TestSQLiteDownRemovesSchema(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	m := NewSQLiteManager(db, zap.NewNop())

	_, err := m.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Down(ctx))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'reports'").Scan(&count))
	assert.Zero(t, count)

	applied, err := m.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	assert.Error(t, m.Down(ctx))
}
