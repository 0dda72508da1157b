// Package memory is a Mirror that keeps rows in process, used when no
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"blackout/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
	seen map[string]int
}

func New() *Store {
	return &Store{seen: make(map[string]int)}
}

// AppendRow stores the row once per event id; a redelivered event returns the
// reference of the first copy.
func (s *Store) AppendRow(_ context.Context, row sheets.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.seen[row.EventID]; ok && row.EventID != "" {
		return ref(i), nil
	}
	s.rows = append(s.rows, row)
	s.seen[row.EventID] = len(s.rows)
	return ref(len(s.rows)), nil
}

// Rows returns a copy of the stored rows in append order.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}

func ref(n int) string {
	return fmt.Sprintf("mem:%d", n)
}

var _ sheets.Mirror = (*Store)(nil)
