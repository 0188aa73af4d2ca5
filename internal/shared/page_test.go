package shared

import (
	"bytes"
	"strings"
	"testing"
)

func TestTrailString(t *testing.T) {
	trail := Trail{{Text: "Categorias", Link: "/categories"}, {Text: "Editando categoria: Casa"}}
	if got := trail.String(); got != "Início > Categorias > Editando categoria: Casa" {
		t.Fatalf("unexpected trail: %q", got)
	}
	if !trail.IsLast(1) || trail.IsLast(0) {
		t.Fatal("IsLast mismatch")
	}

	// Blank crumbs are skipped.
	if got := (Trail{{Text: "Categorias"}, {Text: ""}}).String(); got != "Início > Categorias" {
		t.Fatalf("unexpected trail: %q", got)
	}
}

func TestRenderPage(t *testing.T) {
	var buf bytes.Buffer
	err := RenderPage(&buf, Page{
		Title:        "Cadastro de nova categoria",
		Breadcrumb:   Trail{{Text: "Categorias"}, {Text: "Cadastro de nova categoria"}},
		Fields:       []FieldView{{Name: "name", Value: "Casa"}},
		ServerErrors: []string{"Name is required"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"== Cadastro de nova categoria ==", "Casa", "Erros do servidor:", "- Name is required"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Campos inválidos") {
		t.Fatalf("unexpected field errors section:\n%s", out)
	}
}
