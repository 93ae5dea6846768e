package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Memory is the in-memory catalog used for tests and as the working state of
// the database-backed stores.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemory constructs an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Driver identifies the backend.
func (*Memory) Driver() Driver { return DriverMemory }

// Close is a no-op for the in-memory catalog.
func (*Memory) Close() error { return nil }

// Save upserts the record, computing its checksum and timestamps. The stored
// model is a deep copy of the caller's.
func (s *Memory) Save(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if rec.ID == "" {
		return Record{}, errors.New("store: record id required")
	}
	if rec.Model == nil {
		return Record{}, errors.New("store: record model required")
	}
	sum, err := Checksum(rec.Model)
	if err != nil {
		return Record{}, err
	}
	rec.Checksum = sum
	rec.Model = rec.Model.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if prev, ok := s.records[rec.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.ID] = rec
	return s.cloneRecord(rec), nil
}

// Get returns the record with the given id.
func (s *Memory) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return s.cloneRecord(rec), nil
}

// List returns all records ordered by id.
func (s *Memory) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, s.cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes the record with the given id.
func (s *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *Memory) cloneRecord(rec Record) Record {
	rec.Model = rec.Model.Clone()
	return rec
}

// exportState returns a stable snapshot of all records for persistence.
func (s *Memory) exportState() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, s.cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// importState replaces the working state with the given records.
func (s *Memory) importState(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record, len(records))
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
}
