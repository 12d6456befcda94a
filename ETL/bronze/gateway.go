// Package bronze is the append-only raw store. Rows are kept exactly as
// extracted and identified by (source_file, row_hash); a row that is already
// present is counted as a duplicate and never rewritten.
package bronze

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/store"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

const rawTable = "raw_social_metrics"

var rawColumns = []string{"source_file", "row_hash", "ingested_at", "raw_json"}

// Gateway writes and reads the bronze table.
type Gateway struct {
	db     *store.DB
	logger *utils.ETLLogger
	now    func() time.Time

	insertQuery string
	lookupQuery string
}

func NewGateway(db *store.DB, logger *utils.ETLLogger) *Gateway {
	return &Gateway{
		db:          db,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		insertQuery: db.Dialect.InsertIgnore(rawTable, rawColumns, []string{"source_file", "row_hash"}),
		lookupQuery: db.Q(`SELECT id, ingested_at FROM raw_social_metrics WHERE source_file = ? AND row_hash = ?`),
	}
}

// RowHash is the hex SHA-256 of the canonical JSON encoding of fields.
// encoding/json writes map keys in sorted order, so equal maps hash equally.
// A nil row hashes as an empty object. Non-finite floats are stored as
// their string form ("NaN", "+Inf", "-Inf"), which the cleaner rejects.
func RowHash(fields map[string]any) (string, []byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	payload, err := json.Marshal(jsonSafe(fields))
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode raw row: %w", err)
	}
	return payloadHash(payload), payload, nil
}

func payloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// jsonSafe returns v with every NaN or infinite float replaced by its
// string form. Maps and slices are copied only when something changed.
func jsonSafe(v any) any {
	safe, _ := finite(v)
	return safe
}

func finite(v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return strconv.FormatFloat(t, 'g', -1, 64), true
		}
	case float32:
		if f := float64(t); math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 32), true
		}
	case models.RawFields:
		return finite(map[string]any(t))
	case map[string]any:
		var out map[string]any
		for k, e := range t {
			safe, changed := finite(e)
			if !changed {
				continue
			}
			if out == nil {
				out = make(map[string]any, len(t))
				for k2, e2 := range t {
					out[k2] = e2
				}
			}
			out[k] = safe
		}
		if out != nil {
			return out, true
		}
	case []any:
		var out []any
		for i, e := range t {
			safe, changed := finite(e)
			if !changed {
				continue
			}
			if out == nil {
				out = append([]any(nil), t...)
			}
			out[i] = safe
		}
		if out != nil {
			return out, true
		}
	}
	return v, false
}

type pendingRow struct {
	fields     models.RawFields
	hash       string
	payload    []byte
	ingestedAt time.Time
}

// Ingest appends the rows of one source file. Rows already stored for the
// file, or repeated within rows, count as Duplicate. The whole call commits
// in one transaction. Result.Records holds the distinct rows in extraction
// order, whether newly accepted or stored earlier.
func (g *Gateway) Ingest(ctx context.Context, sourceFile string, rows []map[string]any) (models.IngestResult, error) {
	if sourceFile == "" {
		return models.IngestResult{}, errors.New("bronze ingest: empty source file name")
	}

	// Считаем хеш каждой строки до открытия транзакции
	now := g.now()
	pending := make([]pendingRow, 0, len(rows))
	for i, row := range rows {
		if row == nil {
			// a null element of a JSON table is kept as an empty row
			row = map[string]any{}
		}
		hash, payload, err := RowHash(row)
		if err != nil {
			return models.IngestResult{}, fmt.Errorf("%w: row %d of %s: %v", models.ErrStorage, i, sourceFile, err)
		}
		pending = append(pending, pendingRow{fields: row, hash: hash, payload: payload, ingestedAt: now})
	}

	return g.insert(ctx, sourceFile, pending)
}

func (g *Gateway) insert(ctx context.Context, sourceFile string, rows []pendingRow) (models.IngestResult, error) {
	var result models.IngestResult
	seen := make(map[string]struct{}, len(rows))

	err := g.db.WithTx(ctx, func(tx *sql.Tx) error {
		insert, err := tx.PrepareContext(ctx, g.insertQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare bronze insert: %w", store.Classify(err))
		}
		defer insert.Close()

		lookup, err := tx.PrepareContext(ctx, g.lookupQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare bronze lookup: %w", store.Classify(err))
		}
		defer lookup.Close()

		for _, row := range rows {
			if _, dup := seen[row.hash]; dup {
				result.Duplicate++
				continue
			}
			seen[row.hash] = struct{}{}

			res, err := insert.ExecContext(ctx, sourceFile, row.hash, row.ingestedAt, string(row.payload))
			if err != nil {
				return fmt.Errorf("failed to insert bronze row: %w", store.Classify(err))
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read bronze insert result: %w", store.Classify(err))
			}
			if affected > 0 {
				result.Accepted++
			} else {
				result.Duplicate++
			}

			rec := models.RawRecord{SourceFile: sourceFile, RowHash: row.hash, RawFields: row.fields}
			var ingestedAt any
			if err := lookup.QueryRowContext(ctx, sourceFile, row.hash).Scan(&rec.ID, &ingestedAt); err != nil {
				return fmt.Errorf("failed to read back bronze row: %w", store.Classify(err))
			}
			if rec.IngestedAt, err = store.ParseTime(ingestedAt); err != nil {
				return err
			}
			result.Records = append(result.Records, rec)
		}
		return nil
	})
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("%w: %s: %w", models.ErrStorage, sourceFile, err)
	}

	g.logger.Debug("Bronze %s: %d accepted, %d duplicate", sourceFile, result.Accepted, result.Duplicate)
	return result, nil
}

// Records returns the stored rows of sourceFile in insertion order.
func (g *Gateway) Records(ctx context.Context, sourceFile string) ([]models.RawRecord, error) {
	return g.query(ctx,
		`SELECT id, source_file, row_hash, ingested_at, raw_json FROM raw_social_metrics WHERE source_file = ? ORDER BY id`,
		sourceFile)
}

// SourceFiles lists the distinct source files present in bronze.
func (g *Gateway) SourceFiles(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT DISTINCT source_file FROM raw_social_metrics ORDER BY source_file`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list source files: %w", models.ErrStorage, store.Classify(err))
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, store.Classify(err))
	}
	return files, nil
}

// Count returns the number of bronze rows.
func (g *Gateway) Count(ctx context.Context) (int, error) {
	var n int
	if err := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_social_metrics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrStorage, store.Classify(err))
	}
	return n, nil
}

func (g *Gateway) query(ctx context.Context, query string, args ...any) ([]models.RawRecord, error) {
	rows, err := g.db.QueryContext(ctx, g.db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read bronze: %w", models.ErrStorage, store.Classify(err))
	}
	defer rows.Close()

	var records []models.RawRecord
	for rows.Next() {
		var (
			rec        models.RawRecord
			ingestedAt any
			raw        string
		)
		if err := rows.Scan(&rec.ID, &rec.SourceFile, &rec.RowHash, &ingestedAt, &raw); err != nil {
			return nil, fmt.Errorf("%w: failed to scan bronze row: %w", models.ErrStorage, err)
		}
		if rec.IngestedAt, err = store.ParseTime(ingestedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
		}
		if rec.RawFields, err = decodeFields([]byte(raw)); err != nil {
			return nil, fmt.Errorf("%w: bronze row %d: %w", models.ErrStorage, rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, store.Classify(err))
	}
	return records, nil
}

// decodeFields keeps numbers as json.Number so re-hashing a stored row
// reproduces its row_hash.
func decodeFields(raw []byte) (models.RawFields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields models.RawFields
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode raw_json: %w", err)
	}
	if fields == nil {
		// "null" rows written before nil rows were stored as {}
		fields = models.RawFields{}
	}
	return fields, nil
}
