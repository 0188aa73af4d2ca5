package sheets

import (
	"context"
	"strconv"

	"ledger/internal/core"
)

// Header is the first row of a mirrored sheet.
var Header = []string{"ID", "Data", "Nome", "Categoria", "Tipo", "Valor", "Pago"}

// Row is one entry as it appears in the spreadsheet.
type Row struct {
	EntryID  int64
	Date     string
	Name     string
	Category string
	Type     core.EntryType
	Amount   core.Money
	Paid     bool
}

// NewRow flattens an entry and the name of its category.
func NewRow(e core.Entry, category string) Row {
	return Row{
		EntryID:  e.ID,
		Date:     e.Date.String(),
		Name:     e.Name,
		Category: category,
		Type:     e.Type,
		Amount:   e.Amount,
		Paid:     e.Paid,
	}
}

// Values renders the row as sheet cells. Amounts are decimal numbers so the
// spreadsheet can sum them.
func (r Row) Values() []any {
	paid := "Não"
	if r.Paid {
		paid = "Sim"
	}
	return []any{strconv.FormatInt(r.EntryID, 10), r.Date, r.Name, r.Category, string(r.Type), r.Amount.Float(), paid}
}

// Ports for outbound adapters.
type (
	// EntryMirror keeps a spreadsheet copy of the entries, one row per entry.
	EntryMirror interface {
		// Upsert writes row, replacing the existing row with the same entry id.
		Upsert(ctx context.Context, row Row) error
		// Remove deletes the row of the entry. Unknown ids are not an error.
		Remove(ctx context.Context, entryID int64) error
	}
)
