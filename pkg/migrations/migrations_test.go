package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBringUpToDate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	group, err := BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.Len(t, group.Migrations, 3)

	group, err = BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), group.ID)
}

func TestActiveLocationUniqueness(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := BringUpToDate(ctx, db)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO books (title, page_count, fingerprint) VALUES ('a', 3, 'ffff000000000000')`)
	require.NoError(t, err)

	insert := `INSERT INTO book_locations (book_id, volume_id, base_path, relative_path, status) VALUES (1, 'vol', '/r', 'a.zip', ?)`
	_, err = db.Exec(insert, "active")
	require.NoError(t, err)
	_, err = db.Exec(insert, "missing")
	require.NoError(t, err, "a missing row may share the tuple of an active one")
	_, err = db.Exec(insert, "active")
	require.Error(t, err)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := BringUpToDate(ctx, db)
	require.NoError(t, err)

	group, err := Rollback(ctx, db)
	require.NoError(t, err)
	assert.Len(t, group.Migrations, 3)

	var count int
	err = db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'book_locations'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRollback_NothingApplied(t *testing.T) {
	group, err := Rollback(context.Background(), newTestDB(t))
	require.NoError(t, err)
	assert.Equal(t, int64(0), group.ID)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ms, err := Status(ctx, db)
	require.NoError(t, err)
	assert.Len(t, ms, 3)
	assert.Len(t, ms.Unapplied(), 3)

	_, err = BringUpToDate(ctx, db)
	require.NoError(t, err)
	ms, err = Status(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, ms.Unapplied())
	assert.Len(t, ms.Applied(), 3)
}
