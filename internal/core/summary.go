package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	CategoryID int64
	Name       string
	Amount     Money
}

// Summarize totals the entries of the given type per category, largest first.
// Entries whose category is unknown are grouped under their raw id with an
// empty name.
func Summarize(entries []Entry, categories []Category, kind EntryType) []CategoryAmount {
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	totals := map[int64]int64{}
	for _, e := range entries {
		if e.Type != kind {
			continue
		}
		totals[e.CategoryID] += e.Amount.Cents
	}

	out := make([]CategoryAmount, 0, len(totals))
	for id, cents := range totals {
		out = append(out, CategoryAmount{CategoryID: id, Name: names[id], Amount: Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}
