package shared

import (
	"io"
	"text/template"
)

// FieldView is a field name and its current value.
type FieldView struct {
	Name  string
	Value string
}

// Page is the view model of a form page.
type Page struct {
	Title        string
	Breadcrumb   Trail
	Fields       []FieldView
	FieldErrors  []string
	ServerErrors []string
	Submitting   bool
}

var pageTemplate = template.Must(template.New("page").Parse(`{{.Breadcrumb}}
== {{.Title}} ==
{{range .Fields}}  {{printf "%-12s" .Name}} {{.Value}}
{{end}}{{if .FieldErrors}}Campos inválidos:
{{range .FieldErrors}}  - {{.}}
{{end}}{{end}}{{if .ServerErrors}}Erros do servidor:
{{range .ServerErrors}}  - {{.}}
{{end}}{{end}}`))

// RenderPage writes a plain text rendering of p.
func RenderPage(w io.Writer, p Page) error {
	return pageTemplate.Execute(w, p)
}
