// Package memory keeps mirrored activity rows in process, for development
// without spreadsheet credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"walletwise/internal/core"
	"walletwise/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]any
	refs map[string]int
}

var _ sheets.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{refs: map[string]int{}}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, a core.Activity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, sheets.Row(a))
	s.refs[a.Ref.String()] = len(s.rows)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) HasRef(_ context.Context, a core.Activity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refs[a.Ref.String()]
	return ok, nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	copy(out, s.rows)
	return out
}
