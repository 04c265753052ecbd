package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the few places where Postgres and SQLite SQL differ.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "", "postgres", "pgx":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unsupported database driver %q", driver)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
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

// forUpdate is appended to row reads inside a mutation. SQLite serializes
// writers per database, so it needs no row lock clause.
func (d Dialect) forUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}
