package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"finfix/internal/sheets"
)

// Exporter keeps exported profile rows in memory, in first-export order.
type Exporter struct {
	mu    sync.Mutex
	order []string
	rows  map[string]sheets.ProfileRow
}

var _ sheets.ProfileExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{rows: map[string]sheets.ProfileRow{}}
}

func (e *Exporter) ExportProfile(_ context.Context, row sheets.ProfileRow) (string, error) {
	if strings.TrimSpace(row.UserID) == "" {
		return "", errors.New("profile row has no user id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rows[row.UserID]; !ok {
		e.order = append(e.order, row.UserID)
	}
	e.rows[row.UserID] = row
	for i, id := range e.order {
		if id == row.UserID {
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	return "", nil
}

// Rows returns the exported rows in the order users were first exported.
func (e *Exporter) Rows() []sheets.ProfileRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sheets.ProfileRow, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rows[id])
	}
	return out
}
