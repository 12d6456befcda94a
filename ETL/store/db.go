// Package store wraps the SQL database shared by the bronze, dimension and
// fact tables. It owns the schema, the dialect-specific SQL primitives and
// the classification of driver errors.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB is a database handle bound to its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open opens a connection pool for the given driver and DSN.
// The connection is not verified; call Ping or Migrate afterwards.
func Open(driver, dsn string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}

	if dialect.Name == SQLite.Name {
		// a single connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// OpenSQLite opens a SQLite database with foreign keys enforced.
// Use ":memory:" for an in-memory database.
func OpenSQLite(path string) (*DB, error) {
	return Open(SQLite.Name, path+"?_foreign_keys=on&_busy_timeout=5000")
}

// Q rebinds a '?'-style query for the handle's dialect.
func (db *DB) Q(query string) string {
	return db.Dialect.Rebind(query)
}

// Migrate creates the bronze, gold and audit tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaFor(db.Dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", Classify(err))
		}
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back when
// fn returns an error and committed otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", Classify(err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", Classify(err))
	}
	return nil
}

// schema is written once with type markers that each dialect fills in.
const schema = `
CREATE TABLE IF NOT EXISTS raw_social_metrics (
	id {{pk}},
	source_file VARCHAR(255) NOT NULL,
	row_hash CHAR(64) NOT NULL,
	ingested_at {{ts}} NOT NULL,
	raw_json {{json}} NOT NULL,
	UNIQUE (source_file, row_hash)
);

CREATE TABLE IF NOT EXISTS dim_platform (
	platform_id {{pk}},
	platform_name VARCHAR(255) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS dim_metric (
	metric_id {{pk}},
	metric_name VARCHAR(255) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS fact_social_metrics (
	fact_id {{pk}},
	platform_id BIGINT NOT NULL,
	metric_id BIGINT NOT NULL,
	report_date DATE NOT NULL,
	value {{float}} NOT NULL,
	updated_at {{ts}} NOT NULL,
	UNIQUE (platform_id, metric_id, report_date),
	FOREIGN KEY (platform_id) REFERENCES dim_platform (platform_id),
	FOREIGN KEY (metric_id) REFERENCES dim_metric (metric_id)
);

CREATE TABLE IF NOT EXISTS metric_trend (
	trend_id {{pk}},
	platform_id BIGINT NOT NULL,
	metric_id BIGINT NOT NULL,
	slope {{float}} NOT NULL,
	intercept {{float}} NOT NULL,
	r2 {{float}} NOT NULL,
	points INT NOT NULL,
	period_start DATE NOT NULL,
	period_end DATE NOT NULL,
	computed_at {{ts}} NOT NULL,
	UNIQUE (platform_id, metric_id),
	FOREIGN KEY (platform_id) REFERENCES dim_platform (platform_id),
	FOREIGN KEY (metric_id) REFERENCES dim_metric (metric_id)
);

CREATE TABLE IF NOT EXISTS etl_run_log (
	id {{pk}},
	run_id VARCHAR(64) NOT NULL UNIQUE,
	start_time {{ts}} NOT NULL,
	end_time {{ts}} NULL,
	status VARCHAR(16) NOT NULL,
	files_processed INT NOT NULL DEFAULT 0,
	files_failed INT NOT NULL DEFAULT 0,
	rows_ingested INT NOT NULL DEFAULT 0,
	rows_duplicate INT NOT NULL DEFAULT 0,
	rows_rejected INT NOT NULL DEFAULT 0,
	fact_upserts INT NOT NULL DEFAULT 0,
	error_message TEXT NULL,
	summary_json {{json}} NULL
)`

func schemaFor(d Dialect) []string {
	var r *strings.Replacer
	switch d.Name {
	case MySQL.Name:
		r = strings.NewReplacer(
			"{{pk}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
			"{{ts}}", "DATETIME(6)",
			"{{json}}", "LONGTEXT",
			"{{float}}", "DOUBLE",
		)
	case Postgres.Name:
		r = strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{ts}}", "TIMESTAMPTZ",
			"{{json}}", "TEXT",
			"{{float}}", "DOUBLE PRECISION",
		)
	default:
		r = strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{ts}}", "TIMESTAMP",
			"{{json}}", "TEXT",
			"{{float}}", "REAL",
		)
	}

	var stmts []string
	for _, stmt := range strings.Split(r.Replace(schema), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
