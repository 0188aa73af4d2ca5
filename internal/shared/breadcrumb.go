// Package shared holds presentational pieces reused by every feature:
// breadcrumbs and the page model front-ends render.
package shared

import "strings"

// Crumb is one breadcrumb item. The last crumb of a trail usually has no link.
type Crumb struct {
	Text string
	Link string
}

// Trail is an ordered breadcrumb.
type Trail []Crumb

// String renders the trail as "Início > Categorias > Cadastro de nova categoria".
func (t Trail) String() string {
	parts := make([]string, 0, len(t)+1)
	parts = append(parts, "Início")
	for _, c := range t {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, " > ")
}

// IsLast reports whether i is the final crumb.
func (t Trail) IsLast(i int) bool {
	return i == len(t)-1
}
