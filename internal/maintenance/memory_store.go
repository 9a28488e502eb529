package maintenance

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests. A row is a column->value
// map; filters compare time.Time values.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]map[string]any

	// Error overrides per operation, keyed by table (CopyWhere is keyed
	// by the destination table).
	CountErr  map[string]error
	DeleteErr map[string]error
	CopyErr   map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:    make(map[string][]map[string]any),
		CountErr:  make(map[string]error),
		DeleteErr: make(map[string]error),
		CopyErr:   make(map[string]error),
	}
}

// Insert adds a row to a table, creating the table on first use.
func (s *MemoryStore) Insert(table string, row map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], row)
}

// Rows returns the current rows of a table.
func (s *MemoryStore) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.tables[table]))
	copy(out, s.tables[table])
	return out
}

func matches(row map[string]any, f Filter) bool {
	ts, ok := row[f.Column].(time.Time)
	return ok && ts.Before(f.Before)
}

func (s *MemoryStore) CountWhere(_ context.Context, table string, f Filter) (int64, error) {
	if err := s.CountErr[table]; err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.tables[table] {
		if matches(row, f) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteWhere(_ context.Context, table string, f Filter) (int64, error) {
	if err := s.DeleteErr[table]; err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[table][:0]
	var deleted int64
	for _, row := range s.tables[table] {
		if matches(row, f) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return deleted, nil
}

func (s *MemoryStore) CopyWhere(_ context.Context, from, to string, f Filter) (int64, error) {
	if err := s.CopyErr[to]; err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var copied int64
	for _, row := range s.tables[from] {
		if matches(row, f) {
			s.tables[to] = append(s.tables[to], row)
			copied++
		}
	}
	return copied, nil
}

var _ Store = (*MemoryStore)(nil)
