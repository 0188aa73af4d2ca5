package form

import (
	"strconv"
	"strings"

	"ledger/internal/core"
)

// CategoryBinder maps categories onto the {id, name, description} field-set.
type CategoryBinder struct{}

var _ Binder[core.Category] = CategoryBinder{}

func (CategoryBinder) Fields() []FieldDef {
	return []FieldDef{
		{Name: FieldID},
		{Name: "name", Validators: []Validator{Required(), MinLength(2), MaxLength(100)}},
		{Name: "description", Validators: []Validator{MaxLength(500)}},
	}
}

func (CategoryBinder) ToFields(c core.Category) map[string]string {
	return map[string]string{
		FieldID:       formatID(c.ID),
		"name":        c.Name,
		"description": c.Description,
	}
}

func (CategoryBinder) FromFields(fs *FieldSet) (core.Category, error) {
	id, err := parseID(fs.Value(FieldID))
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{
		ID:          id,
		Name:        strings.TrimSpace(fs.Value("name")),
		Description: strings.TrimSpace(fs.Value("description")),
	}, nil
}

func (CategoryBinder) Path() string     { return "categories" }
func (CategoryBinder) Label() string    { return "Categorias" }
func (CategoryBinder) NewTitle() string { return "Cadastro de nova categoria" }

func (CategoryBinder) EditTitle(c core.Category) string {
	return "Editando categoria: " + c.Name
}

// NewCategoryForm returns a controller for the category form.
func NewCategoryForm(svc Service[core.Category], nav Navigator, notify Notifier) *Controller[core.Category] {
	return NewController[core.Category](svc, CategoryBinder{}, nav, notify, nil)
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
