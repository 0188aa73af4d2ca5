package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Expense EntryType = "expense"
	Revenue EntryType = "revenue"
)

// Resource names used in routes and change events.
const (
	CategoriesResource = "categories"
	EntriesResource    = "entries"
)

// MsgCategoryNotFound rejects entries pointing at a missing category.
const MsgCategoryNotFound = "Category not found"

// DateLayout is the wire format of entry dates.
const DateLayout = "2006-01-02"

type (
	// Resource is the minimal contract shared by everything exposed through a
	// CRUD endpoint. A zero identifier means the resource has not been persisted.
	Resource interface {
		Identifier() int64
	}

	// Entity is a Resource that stores can assign identifiers to and validate.
	Entity[T any] interface {
		Resource
		WithID(id int64) T
		Validate() error
	}

	EntryType string

	Category struct {
		ID          int64  `json:"id,omitempty"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}

	Entry struct {
		ID          int64     `json:"id,omitempty"`
		Name        string    `json:"name"`
		Description string    `json:"description,omitempty"`
		Type        EntryType `json:"type"`
		Amount      Money     `json:"amount"`
		Date        Date      `json:"date"`
		Paid        bool      `json:"paid"`
		CategoryID  int64     `json:"categoryId"`
	}

	// ValidationError collects human readable messages about an invalid
	// resource. It maps onto the unprocessable entity response body.
	ValidationError struct {
		Messages []string
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

const (
	nameMinLength        = 2
	nameMaxLength        = 100
	descriptionMaxLength = 500
)

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) add(msg string) {
	e.Messages = append(e.Messages, msg)
}

func (e *ValidationError) orNil() error {
	if len(e.Messages) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a ValidationError from one or more messages.
func NewValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Messages: msgs}
}

func (t EntryType) IsValid() bool {
	return t == Expense || t == Revenue
}

func (c Category) Identifier() int64 { return c.ID }

func (c Category) WithID(id int64) Category {
	c.ID = id
	return c
}

func (c Category) Validate() error {
	verr := &ValidationError{}
	validateName(verr, c.Name)
	if utf8.RuneCountInString(c.Description) > descriptionMaxLength {
		verr.add("Description is too long (max 500 characters)")
	}
	return verr.orNil()
}

func (e Entry) Identifier() int64 { return e.ID }

func (e Entry) WithID(id int64) Entry {
	e.ID = id
	return e
}

func (e Entry) Validate() error {
	verr := &ValidationError{}
	validateName(verr, e.Name)
	if utf8.RuneCountInString(e.Description) > descriptionMaxLength {
		verr.add("Description is too long (max 500 characters)")
	}
	if !e.Type.IsValid() {
		verr.add("Type must be expense or revenue")
	}
	if err := e.Amount.Validate(); err != nil {
		verr.add("Amount must be greater than zero")
	}
	if e.Date.IsZero() {
		verr.add("Date is required")
	}
	if e.CategoryID <= 0 {
		verr.add("Category is required")
	}
	return verr.orNil()
}

func validateName(verr *ValidationError, name string) {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n == 0:
		verr.add("Name is required")
	case n < nameMinLength:
		verr.add("Name is too short (min 2 characters)")
	case n > nameMaxLength:
		verr.add("Name is too long (max 100 characters)")
	}
}

// Date is a calendar day without time of day, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
