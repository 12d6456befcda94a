// Package load writes the gold layer: dimension rows resolved by name and
// fact rows upserted on their natural key.
package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/transform"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

type dimensionTable struct {
	table    string
	idColumn string
	nameCol  string
}

var dimensionTables = map[models.DimensionKind]dimensionTable{
	models.DimensionPlatform: {table: "dim_platform", idColumn: "platform_id", nameCol: "platform_name"},
	models.DimensionMetric:   {table: "dim_metric", idColumn: "metric_id", nameCol: "metric_name"},
}

// DimensionResolver maps normalized names onto surrogate ids, creating the
// dimension row on first sight. Ids are cached for the resolver's lifetime
// once the store has confirmed them; create one resolver per run.
type DimensionResolver struct {
	db     *store.DB
	logger *utils.ETLLogger

	platforms sync.Map
	metrics   sync.Map

	// serializes get-or-create when the dialect has no atomic upsert
	mu sync.Mutex
}

func NewDimensionResolver(db *store.DB, logger *utils.ETLLogger) *DimensionResolver {
	return &DimensionResolver{db: db, logger: logger}
}

func (r *DimensionResolver) cache(kind models.DimensionKind) *sync.Map {
	if kind == models.DimensionPlatform {
		return &r.platforms
	}
	return &r.metrics
}

// Resolve returns the id of name in the kind's dimension, creating the row if
// needed. Concurrent callers resolving the same name get the same id and
// exactly one row is created.
func (r *DimensionResolver) Resolve(ctx context.Context, kind models.DimensionKind, name string) (int64, error) {
	t, ok := dimensionTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown dimension kind %d", kind)
	}
	name = transform.NormalizeName(name)
	if name == "" {
		return 0, fmt.Errorf("empty %s name", kind)
	}

	cache := r.cache(kind)
	if id, ok := cache.Load(name); ok {
		return id.(int64), nil
	}

	var (
		id  int64
		err error
	)
	if r.db.Dialect.AtomicUpsert {
		id, err = r.insertOrFetch(ctx, t, name)
	} else {
		r.mu.Lock()
		id, err = r.fetchOrInsert(ctx, t, name)
		r.mu.Unlock()
	}
	if err != nil {
		return 0, fmt.Errorf("%w: resolve %s %q: %w", models.ErrDimensionStore, kind, name, store.Classify(err))
	}

	cache.Store(name, id)
	return id, nil
}

// insertOrFetch relies on the unique name constraint: the insert is a no-op
// when the row exists, and the following select sees the winner's row.
func (r *DimensionResolver) insertOrFetch(ctx context.Context, t dimensionTable, name string) (int64, error) {
	insert := r.db.Dialect.InsertIgnore(t.table, []string{t.nameCol}, []string{t.nameCol})
	res, err := r.db.ExecContext(ctx, insert, name)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.logger.Debug("Created %s %q", t.table, name)
	}
	return r.selectID(ctx, t, name)
}

func (r *DimensionResolver) fetchOrInsert(ctx context.Context, t dimensionTable, name string) (int64, error) {
	id, err := r.selectID(ctx, t, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	insert := r.db.Q(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", t.table, t.nameCol))
	if _, err := r.db.ExecContext(ctx, insert, name); err != nil {
		return 0, err
	}
	r.logger.Debug("Created %s %q", t.table, name)
	return r.selectID(ctx, t, name)
}

func (r *DimensionResolver) selectID(ctx context.Context, t dimensionTable, name string) (int64, error) {
	query := r.db.Q(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", t.idColumn, t.table, t.nameCol))
	var id int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// List returns every row of the kind's dimension ordered by name.
func (r *DimensionResolver) List(ctx context.Context, kind models.DimensionKind) ([]models.Dimension, error) {
	t, ok := dimensionTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown dimension kind %d", kind)
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s", t.idColumn, t.nameCol, t.table, t.nameCol))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", models.ErrDimensionStore, kind, store.Classify(err))
	}
	defer rows.Close()

	var dims []models.Dimension
	for rows.Next() {
		var d models.Dimension
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %w", models.ErrDimensionStore, kind, err)
		}
		dims = append(dims, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", models.ErrDimensionStore, kind, store.Classify(err))
	}
	return dims, nil
}
