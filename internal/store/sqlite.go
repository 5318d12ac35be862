package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/ashita-ai/hada/internal/model"
)

// SQLiteBackend persists both halves of the dataset in one SQLite file:
// full records as JSON in `ingredients`, assessments as rows in `assessments`.
// Every save rewrites both tables inside a single transaction.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(path string) (*SQLiteBackend, error) {
	if path == "" {
		path = "hada.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("store: create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// One connection: the Store lock already serializes access, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ingredients (
		key    TEXT PRIMARY KEY,
		record TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, &CorruptStoreError{Path: path, Err: fmt.Errorf("create ingredients table: %w", err)}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS assessments (
		ingredient TEXT NOT NULL,
		concern    TEXT NOT NULL,
		safe       TEXT NOT NULL,
		reason     TEXT NOT NULL,
		PRIMARY KEY (ingredient, concern)
	)`); err != nil {
		_ = db.Close()
		return nil, &CorruptStoreError{Path: path, Err: fmt.Errorf("create assessments table: %w", err)}
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Path() string { return b.path }
func (b *SQLiteBackend) Shape() Shape { return HoldsRecords | HoldsAssessments }
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Load reads both tables into a snapshot. Undecodable record payloads are
// reported as a CorruptStoreError.
func (b *SQLiteBackend) Load(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()

	rows, err := b.db.QueryContext(ctx, `SELECT key, record FROM ingredients ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("store: select ingredients: %w", err)
	}
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("store: scan ingredient: %w", err)
		}
		var row flatRow
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			_ = rows.Close()
			return nil, corrupt(b.path, "ingredient %q: %v", key, err)
		}
		snap.SetRecord(key, row.record())
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("store: iterate ingredients: %w", err)
	}
	_ = rows.Close()

	arows, err := b.db.QueryContext(ctx, `SELECT ingredient, concern, safe, reason FROM assessments ORDER BY ingredient, concern`)
	if err != nil {
		return nil, fmt.Errorf("store: select assessments: %w", err)
	}
	defer func() { _ = arows.Close() }()
	for arows.Next() {
		var ingredient, concern string
		var a model.ConcernAssessment
		if err := arows.Scan(&ingredient, &concern, &a.Safe, &a.Reason); err != nil {
			return nil, fmt.Errorf("store: scan assessment: %w", err)
		}
		snap.SetAssessment(ingredient, model.Concern(concern), a)
	}
	if err := arows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate assessments: %w", err)
	}
	return snap, nil
}

// Save replaces both tables with the contents of snap in one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, snap *Snapshot) (retErr error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ingredients`); err != nil {
		return fmt.Errorf("clear ingredients: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assessments`); err != nil {
		return fmt.Errorf("clear assessments: %w", err)
	}

	insRecord, err := tx.PrepareContext(ctx, `INSERT INTO ingredients(key, record) VALUES(?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare ingredients: %w", err)
	}
	defer func() { _ = insRecord.Close() }()
	insAssessment, err := tx.PrepareContext(ctx, `INSERT INTO assessments(ingredient, concern, safe, reason) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare assessments: %w", err)
	}
	defer func() { _ = insAssessment.Close() }()

	for _, key := range snap.Keys() {
		e := snap.entries[key]
		if e.Record != nil {
			payload, err := json.Marshal(rowFromRecord(*e.Record))
			if err != nil {
				return fmt.Errorf("encode %q: %w", key, err)
			}
			if _, err := insRecord.ExecContext(ctx, key, string(payload)); err != nil {
				return fmt.Errorf("insert %q: %w", key, err)
			}
		}
		for c, a := range e.Assessments {
			if _, err := insAssessment.ExecContext(ctx, key, string(c), a.Safe, a.Reason); err != nil {
				return fmt.Errorf("insert %q/%s: %w", key, c, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
