package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect describes the SQL flavour of the target store: placeholder style
// and the atomic insert-or-ignore / upsert primitives.
type Dialect struct {
	// Name is the configured driver name ("mysql", "postgres", "sqlite3").
	Name string
	// DriverName is the database/sql driver registered for the dialect.
	DriverName string
	// AtomicUpsert reports whether the store offers INSERT ... ON CONFLICT
	// (or ON DUPLICATE KEY) semantics. All bundled dialects do.
	AtomicUpsert bool
}

var (
	// MySQL is the default production dialect.
	MySQL = Dialect{Name: "mysql", DriverName: "mysql", AtomicUpsert: true}
	// Postgres uses the pgx stdlib driver.
	Postgres = Dialect{Name: "postgres", DriverName: "pgx", AtomicUpsert: true}
	// SQLite is used for local runs and tests.
	SQLite = Dialect{Name: "sqlite3", DriverName: "sqlite3", AtomicUpsert: true}
)

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites '?' placeholders into the dialect's placeholder style.
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertIgnore builds an INSERT that silently skips rows violating the
// unique key formed by conflict. RowsAffected is 0 for a skipped row.
func (d Dialect) InsertIgnore(table string, cols, conflict []string) string {
	query := insertPrefix(table, cols)
	if d.Name == MySQL.Name {
		// no-op update: RowsAffected stays 0, FK errors still surface
		query += fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", conflict[0], conflict[0])
	} else {
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
	}
	return d.Rebind(query)
}

// Upsert builds an INSERT that overwrites the update columns when a row
// with the same conflict key already exists.
func (d Dialect) Upsert(table string, cols, conflict, update []string) string {
	query := insertPrefix(table, cols)
	sets := make([]string, 0, len(update))
	if d.Name == MySQL.Name {
		for _, c := range update {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
		query += " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	} else {
		for _, c := range update {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", "))
	}
	return d.Rebind(query)
}

func insertPrefix(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
}
