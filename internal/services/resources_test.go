package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/repository"
	"ledger/internal/repository/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []amqp.ResourceEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, ev amqp.ResourceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) actions() []amqp.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.Action
	for _, ev := range p.events {
		out = append(out, ev.Action)
	}
	return out
}

func newTestLedger(pub Publisher) *Ledger {
	return NewLedger(memory.New[core.Category](), memory.New[core.Entry](), pub, log.Discard())
}

func validEntry(categoryID int64) core.Entry {
	return core.Entry{
		Name:       "Mercado",
		Type:       core.Expense,
		Amount:     core.Money{Cents: 4599},
		Date:       core.NewDate(2024, 5, 2),
		CategoryID: categoryID,
	}
}

func TestResources_CreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	l := newTestLedger(pub)

	c, err := l.Categories.Create(ctx, core.Category{ID: 50, Name: "Casa"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID != 1 {
		t.Fatalf("create must ignore the caller id, got %d", c.ID)
	}

	c.Name = "Moradia"
	if _, err := l.Categories.Update(ctx, c.ID, c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := l.Categories.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []amqp.Action{amqp.ActionCreated, amqp.ActionUpdated, amqp.ActionDeleted}
	if got := pub.actions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events: got %v want %v", got, want)
	}
	if pub.events[0].Resource != "categories" || pub.events[0].ID != 1 {
		t.Fatalf("unexpected event %+v", pub.events[0])
	}
}

func TestResources_ValidationFailure(t *testing.T) {
	pub := &fakePublisher{}
	l := newTestLedger(pub)

	_, err := l.Categories.Create(context.Background(), core.Category{Name: ""})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !reflect.DeepEqual(verr.Messages, []string{"Name is required"}) {
		t.Fatalf("unexpected messages %v", verr.Messages)
	}
	if len(pub.events) != 0 {
		t.Fatal("no event expected for rejected writes")
	}
}

func TestResources_EntryRequiresCategory(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)

	_, err := l.Entries.Create(ctx, validEntry(9))
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Messages[0] != "Category not found" {
		t.Fatalf("expected category validation error, got %v", err)
	}

	c, _ := l.Categories.Create(ctx, core.Category{Name: "Casa"})
	e, err := l.Entries.Create(ctx, validEntry(c.ID))
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	err = l.Categories.Delete(ctx, c.ID)
	if !errors.As(err, &verr) || verr.Messages[0] != "Category has entries" {
		t.Fatalf("expected in-use validation error, got %v", err)
	}

	if err := l.Entries.Delete(ctx, e.ID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	if err := l.Categories.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
}

func TestResources_PublishFailureDoesNotFail(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	l := newTestLedger(pub)

	c, err := l.Categories.Create(context.Background(), core.Category{Name: "Casa"})
	if err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
	if _, err := l.Categories.Get(context.Background(), c.ID); err != nil {
		t.Fatalf("record should be stored: %v", err)
	}
}

func TestResources_NotFound(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()

	if _, err := l.Categories.Update(ctx, 3, core.Category{Name: "Casa"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := l.Entries.Delete(ctx, 3); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedger_Report(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(nil)
	casa, _ := l.Categories.Create(ctx, core.Category{Name: "Casa"})
	lazer, _ := l.Categories.Create(ctx, core.Category{Name: "Lazer"})

	for _, e := range []core.Entry{
		{Name: "Aluguel", Type: core.Expense, Amount: core.Money{Cents: 100000}, CategoryID: casa.ID},
		{Name: "Cinema", Type: core.Expense, Amount: core.Money{Cents: 3000}, CategoryID: lazer.ID},
		{Name: "Luz", Type: core.Expense, Amount: core.Money{Cents: 12000}, CategoryID: casa.ID},
		{Name: "Salário", Type: core.Revenue, Amount: core.Money{Cents: 500000}, CategoryID: casa.ID},
	} {
		e.Date = core.NewDate(2024, 6, 1)
		if _, err := l.Entries.Create(ctx, e); err != nil {
			t.Fatalf("create %s: %v", e.Name, err)
		}
	}

	got, err := l.Report(ctx, core.Expense)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Casa" || got[0].Amount.Cents != 112000 || got[1].Name != "Lazer" {
		t.Fatalf("unexpected report %+v", got)
	}
}
