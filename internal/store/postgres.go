package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	postgresDriverName = "pgx"
	defaultPostgresDSN = "postgres://localhost/metaflux?sslmode=disable"
)

// Postgres persists the catalog to Postgres while reusing the in-memory
// implementation for the working state.
type Postgres struct {
	*Memory
	db *sql.DB
	mu sync.Mutex
}

// NewPostgres opens a Postgres-backed catalog using the provided DSN
// (falls back to a localhost default). It ensures the snapshot table exists
// and hydrates the working state from any existing snapshot.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open(postgresDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure models table: %w", err)
	}
	s := &Postgres{Memory: NewMemory(), db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Driver identifies the backend.
func (*Postgres) Driver() Driver { return DriverPostgres }

// Close releases the database handle.
func (s *Postgres) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Postgres) DB() *sql.DB { return s.db }

func (s *Postgres) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM models`)
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

func (s *Postgres) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.exportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM models`); err != nil {
		retErr = fmt.Errorf("clear models: %w", err)
		return retErr
	}
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO models(id,payload) VALUES($1,$2)`, rec.ID, payload); err != nil {
			retErr = fmt.Errorf("insert %s: %w", rec.ID, err)
			return retErr
		}
	}
	return tx.Commit()
}

// Save upserts the record, then snapshots state to Postgres.
func (s *Postgres) Save(ctx context.Context, rec Record) (Record, error) {
	saved, err := s.Memory.Save(ctx, rec)
	if err != nil {
		return saved, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		return saved, pErr
	}
	return saved, nil
}

// Delete removes the record, then snapshots state to Postgres.
func (s *Postgres) Delete(ctx context.Context, id string) error {
	if err := s.Memory.Delete(ctx, id); err != nil {
		return err
	}
	return s.persist(ctx)
}
