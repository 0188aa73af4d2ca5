package form

import (
	"strconv"
	"strings"

	"ledger/internal/core"
)

// EntryBinder maps entries onto their field-set. Amounts are edited as
// decimal strings and dates as YYYY-MM-DD.
type EntryBinder struct{}

var _ Binder[core.Entry] = EntryBinder{}

func (EntryBinder) Fields() []FieldDef {
	return []FieldDef{
		{Name: FieldID},
		{Name: "name", Validators: []Validator{Required(), MinLength(2), MaxLength(100)}},
		{Name: "description", Validators: []Validator{MaxLength(500)}},
		{Name: "type", Validators: []Validator{Required(), OneOf(string(core.Expense), string(core.Revenue))}},
		{Name: "amount", Validators: []Validator{Required(), Decimal()}},
		{Name: "date", Validators: []Validator{Required(), ISODate()}},
		{Name: "paid", Validators: []Validator{Boolean()}},
		{Name: "categoryId", Validators: []Validator{Required(), Integer()}},
	}
}

func (EntryBinder) ToFields(e core.Entry) map[string]string {
	amount := ""
	if e.Amount.Cents != 0 {
		amount = e.Amount.String()
	}
	return map[string]string{
		FieldID:       formatID(e.ID),
		"name":        e.Name,
		"description": e.Description,
		"type":        string(e.Type),
		"amount":      amount,
		"date":        e.Date.String(),
		"paid":        strconv.FormatBool(e.Paid),
		"categoryId":  formatID(e.CategoryID),
	}
}

func (EntryBinder) FromFields(fs *FieldSet) (core.Entry, error) {
	id, err := parseID(fs.Value(FieldID))
	if err != nil {
		return core.Entry{}, err
	}
	amount, err := core.ParseMoney(fs.Value("amount"))
	if err != nil {
		return core.Entry{}, err
	}
	date, err := core.ParseDate(fs.Value("date"))
	if err != nil {
		return core.Entry{}, err
	}
	categoryID, err := parseID(fs.Value("categoryId"))
	if err != nil {
		return core.Entry{}, err
	}
	paid := false
	if v := strings.TrimSpace(fs.Value("paid")); v != "" {
		if paid, err = strconv.ParseBool(v); err != nil {
			return core.Entry{}, err
		}
	}
	return core.Entry{
		ID:          id,
		Name:        strings.TrimSpace(fs.Value("name")),
		Description: strings.TrimSpace(fs.Value("description")),
		Type:        core.EntryType(fs.Value("type")),
		Amount:      amount,
		Date:        date,
		Paid:        paid,
		CategoryID:  categoryID,
	}, nil
}

func (EntryBinder) Path() string     { return "entries" }
func (EntryBinder) Label() string    { return "Lançamentos" }
func (EntryBinder) NewTitle() string { return "Cadastro de novo lançamento" }

func (EntryBinder) EditTitle(e core.Entry) string {
	return "Editando lançamento: " + e.Name
}

// NewEntryForm returns a controller for the entry form.
func NewEntryForm(svc Service[core.Entry], nav Navigator, notify Notifier) *Controller[core.Entry] {
	return NewController[core.Entry](svc, EntryBinder{}, nav, notify, nil)
}
