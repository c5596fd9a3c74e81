// SQLite report archive.
//
// Information Hiding:
// - SQLite connection management hidden behind Archive
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/report"
)

// SqliteArchive implements Archive in a SQLite database file.
type SqliteArchive struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSqlite opens or creates an archive at path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteArchive, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqliteArchive(db)
}

// NewSqliteInMemory creates an in-memory archive (useful for testing).
func NewSqliteInMemory() (*SqliteArchive, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqliteArchive(db)
}

func newSqliteArchive(db *sql.DB) (*SqliteArchive, error) {
	a := &SqliteArchive{db: db, now: time.Now}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *SqliteArchive) Close() error {
	return a.db.Close()
}

func (a *SqliteArchive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
			conversion_id TEXT PRIMARY KEY,
			converter_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			strategy TEXT NOT NULL,
			score INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			output_format TEXT NOT NULL DEFAULT '',
			output_hash TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			report TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_converter
		ON reports(converter_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_reports_hash
		ON reports(output_hash);
	`

	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save archives rep, replacing an earlier record with the same id.
func (a *SqliteArchive) Save(ctx context.Context, rep *report.Report) (Record, error) {
	r, err := NewRecord(rep, a.now())
	if err != nil {
		return Record{}, err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports
			(conversion_id, converter_id, outcome, strategy, score, attempts,
			 duration_ns, output_format, output_hash, error, created_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ConversionID, r.ConverterID, string(r.Outcome), r.Strategy, r.Score, r.Attempts,
		int64(r.Duration), r.OutputFormat, r.OutputHash, r.Error, r.CreatedAt.UnixNano(), string(r.Report))
	if err != nil {
		return Record{}, fmt.Errorf("failed to save report: %w", err)
	}
	return r, nil
}

const selectRecord = `
	SELECT conversion_id, converter_id, outcome, strategy, score, attempts,
	       duration_ns, output_format, output_hash, error, created_at, report
	FROM reports`

// Get returns the record for id.
func (a *SqliteArchive) Get(ctx context.Context, id string) (Record, error) {
	row := a.db.QueryRowContext(ctx, selectRecord+" WHERE conversion_id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load report: %w", err)
	}
	return r, nil
}

// Resolve expands an id prefix. An exact id wins over longer matches.
func (a *SqliteArchive) Resolve(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrNotFound)
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT conversion_id FROM reports
		WHERE substr(conversion_id, 1, ?) = ?
		ORDER BY length(conversion_id), conversion_id
		LIMIT 2
	`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case len(ids) == 0:
		return "", fmt.Errorf("%w: %q", ErrNotFound, prefix)
	case ids[0] == prefix || len(ids) == 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous: matches %s", prefix, strings.Join(ids, ", "))
	}
}

// List returns matching records, newest first.
func (a *SqliteArchive) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.ConverterID != "" {
		where = append(where, "converter_id = ?")
		args = append(args, filter.ConverterID)
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}

	query := selectRecord
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, conversion_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes id.
func (a *SqliteArchive) Delete(ctx context.Context, id string) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM reports WHERE conversion_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		r        Record
		outcome  string
		duration int64
		created  int64
		raw      string
	)
	err := s.Scan(&r.ConversionID, &r.ConverterID, &outcome, &r.Strategy, &r.Score, &r.Attempts,
		&duration, &r.OutputFormat, &r.OutputHash, &r.Error, &created, &raw)
	if err != nil {
		return Record{}, err
	}
	r.Outcome = model.Outcome(outcome)
	r.Duration = time.Duration(duration)
	r.CreatedAt = time.Unix(0, created).UTC()
	r.Report = []byte(raw)
	return r, nil
}

// Verify SqliteArchive implements Archive
var _ Archive = (*SqliteArchive)(nil)
