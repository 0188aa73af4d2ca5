package memory

import (
	"context"
	"sort"
	"sync"

	"ledger/internal/sheets"
)

// Mirror keeps rows in memory. It backs local runs without Google credentials.
type Mirror struct {
	mu   sync.Mutex
	rows map[int64]sheets.Row
}

var _ sheets.EntryMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{rows: map[int64]sheets.Row{}}
}

func (m *Mirror) Upsert(ctx context.Context, row sheets.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.EntryID] = row
	return nil
}

func (m *Mirror) Remove(ctx context.Context, entryID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, entryID)
	return nil
}

// Rows returns the mirrored rows ordered by entry id.
func (m *Mirror) Rows() []sheets.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sheets.Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out
}
