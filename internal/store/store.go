// Package store keeps a catalog of canonical models with provenance
// metadata. Backends share one contract: the in-memory implementation holds
// the working state, and the database-backed implementations snapshot that
// state as JSON after every successful mutation.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

// Driver identifies a catalog backend.
type Driver string

const (
	// DriverMemory is the in-memory test driver.
	DriverMemory Driver = "memory"
	// DriverSQLite is the embedded SQLite driver.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres is the Postgres driver.
	DriverPostgres Driver = "postgres"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: model not found")

// Record is one cataloged model with its provenance.
type Record struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	SourceFormat core.Format  `json:"source_format,omitempty"`
	SourcePath   string       `json:"source_path,omitempty"`
	Checksum     string       `json:"checksum"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Model        *model.Model `json:"model"`
}

// Store is the catalog contract. Save upserts by record ID and returns the
// stored record with checksum and timestamps filled in; implementations
// never retain references to the caller's model.
type Store interface {
	Save(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Driver() Driver
	Close() error
}

// Checksum computes the canonical content hash of a model: sha256 over its
// JSON form.
func Checksum(m *model.Model) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
