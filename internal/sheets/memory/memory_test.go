package memory

import (
	"context"
	"testing"

	"ledger/internal/core"
	"ledger/internal/sheets"
)

func TestMirrorUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	m := New()

	_ = m.Upsert(ctx, sheets.Row{EntryID: 2, Name: "Luz"})
	_ = m.Upsert(ctx, sheets.Row{EntryID: 1, Name: "Aluguel"})
	_ = m.Upsert(ctx, sheets.Row{EntryID: 2, Name: "Energia", Amount: core.Money{Cents: 9900}})

	rows := m.Rows()
	if len(rows) != 2 || rows[0].EntryID != 1 || rows[1].Name != "Energia" {
		t.Fatalf("unexpected rows %+v", rows)
	}

	if err := m.Remove(ctx, 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.Remove(ctx, 99); err != nil {
		t.Fatalf("removing an unknown id should succeed: %v", err)
	}
	if rows := m.Rows(); len(rows) != 1 || rows[0].EntryID != 2 {
		t.Fatalf("unexpected rows after remove %+v", rows)
	}
}

func TestRowValues(t *testing.T) {
	row := sheets.NewRow(core.Entry{
		ID: 7, Name: "Aluguel", Type: core.Expense, Amount: core.Money{Cents: 150050},
		Date: core.NewDate(2024, 3, 1), Paid: true,
	}, "Casa")
	got := row.Values()
	if got[0] != "7" || got[1] != "2024-03-01" || got[3] != "Casa" || got[5] != 1500.5 || got[6] != "Sim" {
		t.Fatalf("unexpected values %v", got)
	}
}
