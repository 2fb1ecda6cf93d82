package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	_ "modernc.org/sqlite"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
    id         TEXT PRIMARY KEY,
    doc        BLOB NOT NULL,
    created_at DATETIME NOT NULL
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from being split across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutResult inserts a result document.
func (s *SQLiteStore) PutResult(ctx context.Context, id string, doc []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (id, doc, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, doc, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// GetResult retrieves a result document by ID.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM results WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return doc, nil
}

// Results pages through the table by id so no query is held open while the
// caller processes an entry.
func (s *SQLiteStore) Results(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		after := ""
		for {
			page, err := s.resultPage(ctx, after)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (s *SQLiteStore) resultPage(ctx context.Context, after string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, doc FROM results WHERE id > ? ORDER BY id LIMIT ?", after, listPageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var page []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Doc); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		page = append(page, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return page, nil
}
