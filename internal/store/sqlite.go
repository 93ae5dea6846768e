package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLite persists the catalog to a single SQLite table as JSON payloads,
// snapshotting the full state after every successful mutation.
type SQLite struct {
	*Memory
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a snapshotting SQLite-backed catalog.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "metaflux.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create models table: %w", err)
	}
	s := &SQLite{Memory: NewMemory(), db: db}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Driver identifies the backend.
func (*SQLite) Driver() Driver { return DriverSQLite }

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) load() error {
	rows, err := s.db.Query(`SELECT payload FROM models`)
	if err != nil {
		return fmt.Errorf("select models: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var records []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.importState(records)
	return nil
}

func (s *SQLite) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.exportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.Exec(`DELETE FROM models`); err != nil {
		retErr = fmt.Errorf("clear models: %w", err)
		return retErr
	}
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err := tx.Exec(`INSERT INTO models(id,payload) VALUES(?,?)`, rec.ID, payload); err != nil {
			retErr = fmt.Errorf("insert %s: %w", rec.ID, err)
			return retErr
		}
	}
	return tx.Commit()
}

// Save upserts the record, then snapshots state to SQLite.
func (s *SQLite) Save(ctx context.Context, rec Record) (Record, error) {
	saved, err := s.Memory.Save(ctx, rec)
	if err != nil {
		return saved, err
	}
	if pErr := s.persist(); pErr != nil {
		return saved, pErr
	}
	return saved, nil
}

// Delete removes the record, then snapshots state to SQLite.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	if err := s.Memory.Delete(ctx, id); err != nil {
		return err
	}
	return s.persist()
}
