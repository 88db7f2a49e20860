// Package storage persists the last fetched record collection to a local
// SQLite file so the dashboard can come up with data before the first live
// fetch completes.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned by LoadSnapshot when no snapshot has been
// written yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot atomically replaces the stored snapshot with the given
// collection, preserving its order.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, records []core.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_records`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_records
			(position, id, provider, date, display_amount, raw_amount,
			 status, type, category, description, currency, link)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		_, err := stmt.ExecContext(ctx, i, rec.ID, rec.Provider, rec.Date,
			rec.DisplayAmount, rec.RawAmount, string(rec.Status),
			string(rec.Type), string(rec.Category), rec.Description,
			rec.Currency, rec.Link)
		if err != nil {
			return fmt.Errorf("insert snapshot record %q: %w", rec.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_meta (key, saved_at) VALUES ('snapshot', ?)
		ON CONFLICT(key) DO UPDATE SET saved_at = excluded.saved_at`,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored collection in its original order plus
// the time it was saved.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) ([]core.Record, time.Time, error) {
	var savedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT saved_at FROM snapshot_meta WHERE key = 'snapshot'`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read snapshot meta: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, date, display_amount, raw_amount,
		       status, type, category, description, currency, link
		FROM snapshot_records
		ORDER BY position`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read snapshot records: %w", err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		var rec core.Record
		var status, docType, category string
		err := rows.Scan(&rec.ID, &rec.Provider, &rec.Date, &rec.DisplayAmount,
			&rec.RawAmount, &status, &docType, &category,
			&rec.Description, &rec.Currency, &rec.Link)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("scan snapshot record: %w", err)
		}
		rec.Status = core.Status(status)
		rec.Type = core.DocType(docType)
		rec.Category = core.Category(category)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("iterate snapshot records: %w", err)
	}

	if records == nil {
		records = []core.Record{}
	}
	return records, savedAt, nil
}
