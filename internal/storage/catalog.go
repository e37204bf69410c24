// Package storage persists extracted tables and the catalog of committed
// extractions.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Record is one committed extraction.
type Record struct {
	CompanyID  string         `json:"company_id"`
	Year       int            `json:"year"`
	Backend    domain.Backend `json:"backend"`
	TableCount int            `json:"table_count"`
	RunID      string         `json:"run_id"`
	ArtifactID string         `json:"artifact_id"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Key returns the request key of the record.
func (r Record) Key() domain.RequestKey {
	return domain.RequestKey{CompanyID: r.CompanyID, Year: r.Year, Backend: r.Backend}
}

// Dialect selects SQL placeholder syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS extractions (
	company_id  VARCHAR(9)  NOT NULL,
	year        INTEGER     NOT NULL,
	backend     VARCHAR(32) NOT NULL,
	table_count INTEGER     NOT NULL,
	run_id      VARCHAR(64) NOT NULL,
	artifact_id VARCHAR(64) NOT NULL,
	created_at  TIMESTAMP   NOT NULL,
	PRIMARY KEY (company_id, year, backend)
)`

// Catalog stores one row per committed extraction. A row is the commit
// marker: its key exists iff the row does.
type Catalog struct {
	db      DB
	dialect Dialect
}

// NewCatalog wraps an open database.
func NewCatalog(db DB, dialect Dialect) *Catalog {
	return &Catalog{db: db, dialect: dialect}
}

// OpenDB opens the catalog database for driver "sqlite" or "postgres".
func OpenDB(driver, dsn string) (*sql.DB, Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		db, err := sql.Open("sqlite3", dsn+sqliteParams(dsn))
		if err != nil {
			return nil, "", domain.ConfigError("open sqlite catalog", err)
		}
		db.SetMaxOpenConns(1)
		return db, DialectSQLite, nil
	case "postgres", "postgresql":
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, "", domain.ConfigError("open postgres catalog", err)
		}
		return db, DialectPostgres, nil
	default:
		return nil, "", domain.ConfigError(fmt.Sprintf("unsupported database driver %q", driver), nil)
	}
}

func sqliteParams(dsn string) string {
	if strings.Contains(dsn, "?") {
		return ""
	}
	return "?_busy_timeout=5000&_journal_mode=WAL"
}

// EnsureSchema creates the catalog table when missing.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return domain.IOError("create catalog schema", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (c *Catalog) rebind(query string) string {
	if c.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exists reports whether key has a committed extraction.
func (c *Catalog) Exists(ctx context.Context, key domain.RequestKey) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT 1 FROM extractions WHERE company_id = ? AND year = ? AND backend = ?`),
		key.CompanyID, key.Year, string(key.Backend),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.IOError("query catalog", err)
	}
	return true, nil
}

// Get returns the record for key.
func (c *Catalog) Get(ctx context.Context, key domain.RequestKey) (*Record, error) {
	rec := &Record{}
	var backend string
	err := c.db.QueryRowContext(ctx,
		c.rebind(`SELECT company_id, year, backend, table_count, run_id, artifact_id, created_at
			FROM extractions WHERE company_id = ? AND year = ? AND backend = ?`),
		key.CompanyID, key.Year, string(key.Backend),
	).Scan(&rec.CompanyID, &rec.Year, &backend, &rec.TableCount, &rec.RunID, &rec.ArtifactID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(fmt.Sprintf("no extraction for %s", key), nil)
	}
	if err != nil {
		return nil, domain.IOError("query catalog", err)
	}
	rec.Backend = domain.Backend(backend)
	return rec, nil
}

// Commit inserts rec unless its key already exists. It reports whether the
// row was created.
func (c *Catalog) Commit(ctx context.Context, rec Record) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := c.db.ExecContext(ctx,
		c.rebind(`INSERT INTO extractions (company_id, year, backend, table_count, run_id, artifact_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (company_id, year, backend) DO NOTHING`),
		rec.CompanyID, rec.Year, string(rec.Backend), rec.TableCount, rec.RunID, rec.ArtifactID, rec.CreatedAt,
	)
	if err != nil {
		return false, domain.IOError("commit catalog record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.IOError("commit catalog record", err)
	}
	return n == 1, nil
}

// List returns the records of a company ordered by year then backend.
func (c *Catalog) List(ctx context.Context, companyID string) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx,
		c.rebind(`SELECT company_id, year, backend, table_count, run_id, artifact_id, created_at
			FROM extractions WHERE company_id = ? ORDER BY year, backend`),
		companyID,
	)
	if err != nil {
		return nil, domain.IOError("list catalog", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var backend string
		if err := rows.Scan(&rec.CompanyID, &rec.Year, &backend, &rec.TableCount, &rec.RunID, &rec.ArtifactID, &rec.CreatedAt); err != nil {
			return nil, domain.IOError("scan catalog row", err)
		}
		rec.Backend = domain.Backend(backend)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.IOError("list catalog", err)
	}
	return records, nil
}
