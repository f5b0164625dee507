package store

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Name   string
	Driver string // database/sql driver name
	schema string
	dollar bool // $n placeholders instead of ?
}

// SQLite is the default embedded backend (modernc.org/sqlite, no CGO).
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	schema: `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		monitor TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts_id ON events(ts DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_events_monitor ON events(monitor);
	`,
}

// Postgres is the server backend (github.com/lib/pq).
var Postgres = Dialect{
	Name:   "postgres",
	Driver: "postgres",
	dollar: true,
	schema: `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		ts BIGINT NOT NULL,
		monitor TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts_id ON events(ts DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_events_monitor ON events(monitor);
	`,
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite, true
	case "postgres", "postgresql", "pg":
		return Postgres, true
	}
	return Dialect{}, false
}

// rebind rewrites ? placeholders for dialects that number them.
// Queries in this package never contain a literal '?'.
func (d Dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
