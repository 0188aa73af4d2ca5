package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"ledger/internal/core"
	"ledger/internal/form"
	"ledger/internal/resource"
	"ledger/internal/shared"
)

var errUsage = errors.New("usage")

// feature binds one resource to its REST client, form and list columns.
type feature[T core.Resource] struct {
	svc     *resource.Service[T]
	newForm func(form.Service[T], form.Navigator, form.Notifier) *form.Controller[T]
	columns []string
	row     func(T) []string
}

func categoriesFeature(doer resource.Doer, baseURL string, opts ...resource.Option) feature[core.Category] {
	return feature[core.Category]{
		svc:     resource.Categories(doer, baseURL, opts...),
		newForm: form.NewCategoryForm,
		columns: []string{"ID", "NOME", "DESCRIÇÃO"},
		row: func(c core.Category) []string {
			return []string{strconv.FormatInt(c.ID, 10), c.Name, c.Description}
		},
	}
}

func entriesFeature(doer resource.Doer, baseURL string, opts ...resource.Option) feature[core.Entry] {
	return feature[core.Entry]{
		svc:     resource.Entries(doer, baseURL, opts...),
		newForm: form.NewEntryForm,
		columns: []string{"ID", "DATA", "NOME", "TIPO", "VALOR", "PAGO", "CATEGORIA"},
		row: func(e core.Entry) []string {
			return []string{
				strconv.FormatInt(e.ID, 10), e.Date.String(), e.Name, string(e.Type),
				e.Amount.String(), strconv.FormatBool(e.Paid), strconv.FormatInt(e.CategoryID, 10),
			}
		},
	}
}

// run executes action with args: list, show ID, new k=v..., edit ID k=v...,
// delete ID.
func (f feature[T]) run(ctx context.Context, term *terminal, action string, args []string) error {
	switch action {
	case "list":
		return f.list(ctx, term.out)
	case "show":
		id, err := oneID(args)
		if err != nil {
			return err
		}
		return f.show(ctx, term, id)
	case "new":
		return f.submit(ctx, term, form.ParseRoute(string(form.ModeNew)), args)
	case "edit":
		if len(args) == 0 {
			return fmt.Errorf("%w: edit needs an id", errUsage)
		}
		if _, err := oneID(args[:1]); err != nil {
			return err
		}
		return f.submit(ctx, term, form.ParseRoute(args[0]+"/edit"), args[1:])
	case "delete":
		id, err := oneID(args)
		if err != nil {
			return err
		}
		if err := f.svc.Delete(ctx, id); err != nil {
			if msgs, ok := resource.ServerMessages(err); ok {
				return errors.New(strings.Join(msgs, "; "))
			}
			return err
		}
		term.Success(form.MsgSuccess)
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", errUsage, action)
	}
}

func (f feature[T]) list(ctx context.Context, out io.Writer) error {
	items, err := f.svc.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(f.columns, "\t"))
	for _, it := range items {
		fmt.Fprintln(tw, strings.Join(f.row(it), "\t"))
	}
	return tw.Flush()
}

// show opens the edit form read-only and renders it.
func (f feature[T]) show(ctx context.Context, term *terminal, id int64) error {
	ctrl := f.newForm(f.svc, term, term)
	defer ctrl.Destroy()
	if err := ctrl.Init(ctx, form.ParseRoute(strconv.FormatInt(id, 10)+"/edit")); err != nil {
		return err
	}
	return shared.RenderPage(term.out, ctrl.View())
}

// submit drives a form through Init, field assignment and Submit, then
// renders the resulting page.
func (f feature[T]) submit(ctx context.Context, term *terminal, route form.Route, assignments []string) error {
	values, err := parseAssignments(assignments)
	if err != nil {
		return err
	}
	ctrl := f.newForm(f.svc, term, term)
	defer ctrl.Destroy()

	if err := ctrl.Init(ctx, route); err != nil {
		return err
	}
	for _, kv := range values {
		if err := ctrl.SetField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	submitErr := ctrl.Submit()
	if err := shared.RenderPage(term.out, ctrl.View()); err != nil {
		return err
	}
	return submitErr
}

// parseAssignments splits name=value arguments, keeping their order.
func parseAssignments(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected name=value, got %q", errUsage, a)
		}
		out = append(out, [2]string{name, value})
	}
	return out, nil
}

func oneID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected a single id", errUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errUsage, args[0])
	}
	return id, nil
}
