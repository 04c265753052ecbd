package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"printbroker/internal/config"
	"printbroker/internal/domain"
	"printbroker/internal/infra/logging"
)

// DB hands out one *sql.DB per driver and DSN, replacing it when the DSN changes.
type DB struct {
	mu     sync.Mutex
	driver string
	dsn    string
	db     *sql.DB
}

func NewDB() *DB {
	return &DB{}
}

// Get returns the pool for dsn. It does not connect; callers ping when they need to.
func (m *DB) Get(d Dialect, dsn string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	driver := d.DriverName()
	if m.db != nil && m.dsn == dsn && m.driver == driver {
		return m.db, nil
	}
	if m.db != nil {
		_ = m.db.Close()
		m.db = nil
		m.dsn = ""
		m.driver = ""
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		// One writer at a time; avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	m.db = db
	m.dsn = dsn
	m.driver = driver
	return m.db, nil
}

// Close releases the current pool, if any.
func (m *DB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.dsn = ""
	m.driver = ""
	return err
}

// Store is the SQL-backed persistence for accounts, tokens and print requests.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects according to cfg, verifies the connection and ensures the schema exists.
func Open(ctx context.Context, mgr *DB, cfg config.DatabaseConfig) (*Store, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := mgr.Get(d, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d, err)
	}
	if cfg.MaxOpenConns > 0 && d != SQLite {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", d, err)
	}

	s := NewStore(sqlDB, d)
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// NewStore wraps an already opened database.
func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// storageErr classifies driver errors into domain errors. Conflicts reach
// clients, so their driver text is only logged.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if isUniqueViolation(err) {
		logging.Warn("Unique constraint violated", "op", op, "error", err)
		return fmt.Errorf("%s: %w: record already exists", op, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorage, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
