package db

import (
	"context"
	"strings"
	"time"
)

// Column types that differ between dialects are written as placeholders.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS users (
	id {{serial}},
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	contact TEXT,
	address TEXT,
	created_at {{timestamp}} NOT NULL
);
CREATE TABLE IF NOT EXISTS shopkeepers (
	id {{serial}},
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	shop_name TEXT NOT NULL UNIQUE,
	address TEXT NOT NULL,
	contact TEXT,
	cost_single_side {{float}} NOT NULL DEFAULT 0,
	cost_both_sides {{float}} NOT NULL DEFAULT 0,
	created_at {{timestamp}} NOT NULL
);
CREATE TABLE IF NOT EXISTS access_tokens (
	token_hash TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	role TEXT NOT NULL,
	rate_limit INTEGER NOT NULL DEFAULT 60,
	expires_at {{timestamp}},
	created_at {{timestamp}} NOT NULL,
	comment TEXT
);
CREATE TABLE IF NOT EXISTS print_requests (
	id {{serial}},
	user_id BIGINT NOT NULL REFERENCES users (id),
	shop_id BIGINT NOT NULL REFERENCES shopkeepers (id),
	total_pages INTEGER NOT NULL,
	print_type TEXT NOT NULL,
	print_side TEXT NOT NULL,
	page_size TEXT NOT NULL,
	copies INTEGER NOT NULL,
	comments TEXT NOT NULL DEFAULT '',
	artifact TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'Pending',
	action TEXT NOT NULL DEFAULT 'Pending',
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_print_requests_shop_status ON print_requests (shop_id, status);
CREATE INDEX IF NOT EXISTS idx_print_requests_user ON print_requests (user_id);
CREATE INDEX IF NOT EXISTS idx_access_tokens_created_at ON access_tokens (created_at);
`

func (d Dialect) schema() []string {
	var r *strings.Replacer
	if d == SQLite {
		r = strings.NewReplacer(
			"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{timestamp}}", "TIMESTAMP",
			"{{float}}", "REAL",
		)
	} else {
		r = strings.NewReplacer(
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{timestamp}}", "TIMESTAMPTZ",
			"{{float}}", "DOUBLE PRECISION",
		)
	}
	var out []string
	for _, stmt := range strings.Split(r.Replace(schemaTemplate), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, ddl := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
