package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"winery/internal/sheets"
)

// Store is an in-process report sheet used in demo mode and tests.
type Store struct {
	mu     sync.Mutex
	rows   []sheets.ReportRow
	writes int
}

var _ interface {
	sheets.ReportWriter
	sheets.ReportReader
} = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// WriteReport upserts the row for its period and returns a synthetic row reference.
func (s *Store) WriteReport(_ context.Context, row sheets.ReportRow) (string, error) {
	if strings.TrimSpace(row.Period) == "" {
		return "", errors.New("report row without period")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	i := slices.IndexFunc(s.rows, func(r sheets.ReportRow) bool { return r.Period == row.Period })
	if i < 0 {
		s.rows = append(s.rows, row)
		i = len(s.rows) - 1
	} else {
		s.rows[i] = row
	}
	return fmt.Sprintf("mem:%d", i+2), nil
}

// ListReports returns rows ordered by period.
func (s *Store) ListReports(_ context.Context) ([]sheets.ReportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.rows)
	slices.SortFunc(out, func(a, b sheets.ReportRow) int { return strings.Compare(a.Period, b.Period) })
	return out, nil
}

// Writes counts WriteReport calls, including overwrites.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
