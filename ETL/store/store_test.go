package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/social_metrics/ETL/store"
)

func newTestDB(t *testing.T) *store.DB {
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]store.Dialect{
		"":           store.MySQL,
		"mysql":      store.MySQL,
		"postgres":   store.Postgres,
		"PostgreSQL": store.Postgres,
		"sqlite3":    store.SQLite,
	} {
		got, err := store.DialectFor(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, want, got, driver)
	}

	_, err := store.DialectFor("oracle")
	assert.Error(t, err)
}

func TestRebind_PostgresNumbersPlaceholders(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", store.Postgres.Rebind(q))
	assert.Equal(t, q, store.MySQL.Rebind(q))
	assert.Equal(t, q, store.SQLite.Rebind(q))
}

func TestInsertIgnore_PerDialect(t *testing.T) {
	cols := []string{"platform_name"}
	conflict := []string{"platform_name"}

	assert.Equal(t,
		"INSERT INTO dim_platform (platform_name) VALUES (?) ON DUPLICATE KEY UPDATE platform_name = platform_name",
		store.MySQL.InsertIgnore("dim_platform", cols, conflict))
	assert.Equal(t,
		"INSERT INTO dim_platform (platform_name) VALUES ($1) ON CONFLICT (platform_name) DO NOTHING",
		store.Postgres.InsertIgnore("dim_platform", cols, conflict))
	assert.Equal(t,
		"INSERT INTO dim_platform (platform_name) VALUES (?) ON CONFLICT (platform_name) DO NOTHING",
		store.SQLite.InsertIgnore("dim_platform", cols, conflict))
}

func TestUpsert_PerDialect(t *testing.T) {
	cols := []string{"a", "b", "v"}
	conflict := []string{"a", "b"}
	update := []string{"v"}

	assert.Equal(t,
		"INSERT INTO t (a, b, v) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)",
		store.MySQL.Upsert("t", cols, conflict, update))
	assert.Equal(t,
		"INSERT INTO t (a, b, v) VALUES ($1, $2, $3) ON CONFLICT (a, b) DO UPDATE SET v = excluded.v",
		store.Postgres.Upsert("t", cols, conflict, update))
}

func TestMigrate_IsRepeatable(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM fact_social_metrics").Scan(&n))
	assert.Zero(t, n)
}

func TestIsForeignKeyViolation_SQLite(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Exec(
		"INSERT INTO fact_social_metrics (platform_id, metric_id, report_date, value, updated_at) VALUES (?, ?, ?, ?, ?)",
		42, 43, "2024-01-01", 1.0, time.Now().UTC(),
	)
	require.Error(t, err)
	assert.True(t, store.IsForeignKeyViolation(err))
	assert.False(t, store.IsUnavailable(err))
}

func TestClassify_ClosedDatabaseIsUnavailable(t *testing.T) {
	db, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = store.Classify(db.PingContext(context.Background()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO dim_platform (platform_name) VALUES (?)", "instagram")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM dim_platform").Scan(&n))
	assert.Zero(t, n)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, v := range []any{"2024-01-01", []byte("2024-01-01"), "2024-01-01T00:00:00Z", want} {
		got, err := store.ParseTime(v)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "%v", v)
	}

	_, err := store.ParseTime(42)
	assert.Error(t, err)
}
