package form

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"ledger/internal/core"
)

// Validator checks a single field value and returns a message, or "" if valid.
type Validator func(value string) string

// FieldDef declares a field and its validators.
type FieldDef struct {
	Name       string
	Validators []Validator
}

// Field is a named value in a FieldSet.
type Field struct {
	Name       string
	Value      string
	validators []Validator
}

// Errors returns every validation message for the field's current value.
func (f *Field) Errors() []string {
	var out []string
	for _, v := range f.validators {
		if msg := v(f.Value); msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

// FieldSet is an ordered group of fields with their validation rules.
type FieldSet struct {
	order  []string
	fields map[string]*Field
}

// NewFieldSet builds an empty field-set from definitions.
func NewFieldSet(defs ...FieldDef) *FieldSet {
	fs := &FieldSet{fields: make(map[string]*Field, len(defs))}
	for _, d := range defs {
		if _, dup := fs.fields[d.Name]; dup {
			continue
		}
		fs.order = append(fs.order, d.Name)
		fs.fields[d.Name] = &Field{Name: d.Name, validators: d.Validators}
	}
	return fs
}

// Set assigns a value to a known field. Unknown names are reported.
func (fs *FieldSet) Set(name, value string) error {
	f, ok := fs.fields[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	f.Value = value
	return nil
}

// Patch assigns the known fields present in values and ignores the rest.
func (fs *FieldSet) Patch(values map[string]string) {
	for name, v := range values {
		if f, ok := fs.fields[name]; ok {
			f.Value = v
		}
	}
}

// Value returns the current value of name, or "" if unknown.
func (fs *FieldSet) Value(name string) string {
	if f, ok := fs.fields[name]; ok {
		return f.Value
	}
	return ""
}

// Values returns a copy of every field value.
func (fs *FieldSet) Values() map[string]string {
	out := make(map[string]string, len(fs.fields))
	for name, f := range fs.fields {
		out[name] = f.Value
	}
	return out
}

// Names returns the field names in declaration order.
func (fs *FieldSet) Names() []string {
	return append([]string(nil), fs.order...)
}

// Errors returns the validation messages per invalid field.
func (fs *FieldSet) Errors() map[string][]string {
	out := map[string][]string{}
	for _, name := range fs.order {
		if errs := fs.fields[name].Errors(); len(errs) > 0 {
			out[name] = errs
		}
	}
	return out
}

// Messages flattens Errors into "field: message" strings in declaration order.
func (fs *FieldSet) Messages() []string {
	errs := fs.Errors()
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool { return fs.index(names[i]) < fs.index(names[j]) })

	var out []string
	for _, name := range names {
		for _, msg := range errs[name] {
			out = append(out, name+": "+msg)
		}
	}
	return out
}

func (fs *FieldSet) index(name string) int {
	for i, n := range fs.order {
		if n == name {
			return i
		}
	}
	return len(fs.order)
}

// Valid reports whether every field passes its validators.
func (fs *FieldSet) Valid() bool {
	for _, name := range fs.order {
		if len(fs.fields[name].Errors()) > 0 {
			return false
		}
	}
	return true
}

// Required rejects blank values.
func Required() Validator {
	return func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "is required"
		}
		return ""
	}
}

// MinLength rejects non-empty values shorter than n runes. Empty values are
// left to Required.
func MinLength(n int) Validator {
	return func(v string) string {
		if v != "" && utf8.RuneCountInString(strings.TrimSpace(v)) < n {
			return fmt.Sprintf("must have at least %d characters", n)
		}
		return ""
	}
}

// MaxLength rejects values longer than n runes.
func MaxLength(n int) Validator {
	return func(v string) string {
		if utf8.RuneCountInString(v) > n {
			return fmt.Sprintf("must have at most %d characters", n)
		}
		return ""
	}
}

// OneOf rejects non-empty values outside allowed.
func OneOf(allowed ...string) Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		for _, a := range allowed {
			if v == a {
				return ""
			}
		}
		return "must be one of " + strings.Join(allowed, ", ")
	}
}

// Decimal rejects non-empty values that are not a positive amount.
func Decimal() Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		if _, err := core.ParseDecimalToCents(v); err != nil {
			return "must be a positive amount"
		}
		return ""
	}
}

// ISODate rejects non-empty values that are not YYYY-MM-DD dates.
func ISODate() Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		if _, err := core.ParseDate(v); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
		return ""
	}
}

// Integer rejects non-empty values that are not positive integers.
func Integer() Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil || n <= 0 {
			return "must be a positive integer"
		}
		return ""
	}
}

// Boolean rejects non-empty values that strconv.ParseBool does not accept.
func Boolean() Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		if _, err := strconv.ParseBool(v); err != nil {
			return "must be true or false"
		}
		return ""
	}
}
