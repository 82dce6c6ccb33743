// Package history keeps a log of completed generations
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the generation endpoint that produced a record
type Kind string

const (
	KindTestCases         Kind = "testcases"
	KindPyTest            Kind = "pytest"
	KindPyTestRequirement Kind = "pytest_requirement"
)

// DefaultCapacity bounds the in-memory store
const DefaultCapacity = 500

// Record describes one successful generation
type Record struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	Summary    string    `json:"summary"`
	ModuleName string    `json:"module_name,omitempty"`
	Count      int       `json:"count"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRecord creates a record with a fresh ID and timestamp
func NewRecord(kind Kind, summary string) *Record {
	return &Record{
		ID:        uuid.New(),
		Kind:      kind,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists generation records
type Store interface {
	Save(ctx context.Context, r *Record) error
	// List returns up to limit records, newest first
	List(ctx context.Context, limit int) ([]Record, error)
	Close()
}

// MemoryStore is a bounded in-process Store. The oldest records are dropped
// once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
}

// NewMemoryStore creates a memory store holding at most capacity records
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Save appends a record
func (s *MemoryStore) Save(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) >= s.capacity {
		s.records = s.records[1:]
	}
	s.records = append(s.records, *r)
	return nil
}

// List returns up to limit records, newest first. A non-positive limit
// returns everything.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close is a no-op
func (s *MemoryStore) Close() {}
