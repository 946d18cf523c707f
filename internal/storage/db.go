// Package storage provides database models and repositories for the voice agent backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// Common errors
var (
	ErrNotFound    = errors.New("record not found")
	ErrUnsupported = errors.New("operation not supported by this driver")
	ErrInvalidCol  = errors.New("column not searchable")
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store wraps a connection pool and rewrites '?' placeholders for the dialect in use.
// Repositories are written once against '?' and run on both drivers.
type Store struct {
	db     *sql.DB
	driver string
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the database for the given driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite3"
	case DriverPostgres:
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// every :memory: connection is its own database
		db.SetMaxOpenConns(1)
	} else if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &Store{db: db, driver: driver}, nil
}

// NewStore wraps an existing pool.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Driver returns the dialect name.
func (s *Store) Driver() string { return s.driver }

// SQL exposes the underlying pool.
func (s *Store) SQL() *sql.DB { return s.db }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// QueryContext runs a query after rebinding placeholders.
func (s *Store) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, rebind(s.driver, query), args...)
}

// QueryRowContext runs a single-row query after rebinding placeholders.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, rebind(s.driver, query), args...)
}

// ExecContext runs a statement after rebinding placeholders.
func (s *Store) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, rebind(s.driver, query), args...)
}

// InTx runs fn inside a transaction, committing on nil error.
func (s *Store) InTx(ctx context.Context, fn func(DB) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&txStore{tx: tx, driver: s.driver}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txStore struct {
	tx     *sql.Tx
	driver string
}

func (t *txStore) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.driver, query), args...)
}

func (t *txStore) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.driver, query), args...)
}

func (t *txStore) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.driver, query), args...)
}

// transactor is implemented by Store; repositories fall back to plain statements without it.
type transactor interface {
	InTx(ctx context.Context, fn func(DB) error) error
}

// rebind rewrites '?' placeholders to '$n' for postgres. Queries in this package
// never contain '?' inside string literals.
func rebind(driver, query string) string {
	if driver != DriverPostgres || !strings.Contains(query, "?") {
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

// TextMatch describes a case-insensitive substring search: a row matches when any
// term is contained in any of the columns.
type TextMatch struct {
	Terms   []string
	Columns []string
	Limit   int
}

// where renders the OR-predicate with one escaped LIKE parameter per term and column.
func (m TextMatch) where(allowed map[string]string) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}

	for _, col := range m.Columns {
		expr, ok := allowed[col]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrInvalidCol, col)
		}
		for _, term := range m.Terms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" {
				continue
			}
			clauses = append(clauses, "LOWER("+expr+`) LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(term)+"%")
		}
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args, nil
}

func (m TextMatch) limit() int {
	if m.Limit <= 0 {
		return 5
	}
	return m.Limit
}

// escapeLike makes LIKE wildcards in user input literal.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func now() time.Time {
	return time.Now().UTC()
}
