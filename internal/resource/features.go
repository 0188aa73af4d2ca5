package resource

import "ledger/internal/core"

const (
	CategoriesPath = "api/categories"
	EntriesPath    = "api/entries"
)

// Categories returns the service for /api/categories.
func Categories(doer Doer, baseURL string, opts ...Option) *Service[core.Category] {
	return New(doer, baseURL, CategoriesPath, DecodeJSON[core.Category](), opts...)
}

// Entries returns the service for /api/entries.
func Entries(doer Doer, baseURL string, opts ...Option) *Service[core.Entry] {
	return New(doer, baseURL, EntriesPath, DecodeJSON[core.Entry](), opts...)
}
