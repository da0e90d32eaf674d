package sqlstore

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Dialect selects driver specific SQL.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported store driver: %q", driver)
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) schema() string {
	if d == Postgres {
		return postgresSchema
	}
	return sqliteSchema
}

// lockEvents serializes event appends so sequence numbers and the hash chain
// stay gapless. SQLite transactions already start with a write lock.
func (d Dialect) lockEvents() string {
	if d == Postgres {
		return "SELECT pg_advisory_xact_lock(4242017)"
	}
	return ""
}

// rebind converts ? placeholders into the dialect form.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var builder strings.Builder
	builder.Grow(len(query) + 16)
	index := 0
	for _, r := range query {
		if r == '?' {
			index++
			builder.WriteByte('$')
			builder.WriteString(strconv.Itoa(index))
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// dsn appends connection options the store relies on.
func (d Dialect) dsn(dsn string) string {
	if d != SQLite || strings.Contains(dsn, "_txlock") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_txlock=immediate"
}
