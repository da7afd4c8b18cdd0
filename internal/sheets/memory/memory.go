package memory

import (
	"context"
	"fmt"
	"sync"

	"tucano/internal/sheets"
)

// Store keeps mirrored ledgers in memory. It backs tests and runs without
// Google credentials.
type Store struct {
	mu      sync.Mutex
	ledgers map[string][]sheets.Row
	writes  map[string]int
}

var _ sheets.Ledger = (*Store)(nil)

func New() *Store {
	return &Store{ledgers: map[string][]sheets.Row{}, writes: map[string]int{}}
}

// WriteLedger replaces the user's rows and returns a synthetic reference.
func (s *Store) WriteLedger(_ context.Context, uid string, rows []sheets.Row) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("empty user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[uid] = append([]sheets.Row(nil), rows...)
	s.writes[uid]++
	return fmt.Sprintf("mem:%s:%d", uid, s.writes[uid]), nil
}

func (s *Store) ReadLedger(_ context.Context, uid string) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.ledgers[uid]...), nil
}

// Writes reports how many times the user's ledger was written.
func (s *Store) Writes(uid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[uid]
}
