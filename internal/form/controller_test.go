package form

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/resource"
)

type fakeCategories struct {
	mu        sync.Mutex
	records   map[int64]core.Category
	nextID    int64
	createErr error
	updateErr error
	getErr    error
	created   []core.Category
	updated   []core.Category
	gets      int
	// block, when set, makes Get wait until it is closed or ctx ends.
	block chan struct{}
}

func newFakeCategories(records ...core.Category) *fakeCategories {
	f := &fakeCategories{records: map[int64]core.Category{}, nextID: 100}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeCategories) Get(ctx context.Context, id int64) (core.Category, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return core.Category{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return core.Category{}, f.getErr
	}
	r, ok := f.records[id]
	if !ok {
		return core.Category{}, &resource.HTTPError{Method: http.MethodGet, StatusCode: http.StatusNotFound}
	}
	return r, nil
}

func (f *fakeCategories) Create(_ context.Context, c core.Category) (core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, c)
	if f.createErr != nil {
		return core.Category{}, f.createErr
	}
	c.ID = f.nextID
	f.records[c.ID] = c
	return c, nil
}

func (f *fakeCategories) Update(_ context.Context, c core.Category) (core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, c)
	if f.updateErr != nil {
		return core.Category{}, f.updateErr
	}
	f.records[c.ID] = c
	return c, nil
}

type navCall struct {
	segments []string
	skip     bool
}

type fakeNavigator struct {
	mu    sync.Mutex
	calls []navCall
}

func (n *fakeNavigator) Navigate(_ context.Context, segments []string, skip bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, navCall{segments: append([]string(nil), segments...), skip: skip})
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *fakeNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *fakeNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

type harness struct {
	svc    *fakeCategories
	nav    *fakeNavigator
	notify *fakeNotifier
	ctrl   *Controller[core.Category]
}

func newHarness(svc *fakeCategories) *harness {
	h := &harness{svc: svc, nav: &fakeNavigator{}, notify: &fakeNotifier{}}
	h.ctrl = NewController[core.Category](svc, CategoryBinder{}, h.nav, h.notify, log.Discard())
	return h
}

func unprocessable(msgs ...string) error {
	body := `{"errors":["` + strings.Join(msgs, `","`) + `"]}`
	return &resource.HTTPError{Method: http.MethodPost, StatusCode: http.StatusUnprocessableEntity, Body: []byte(body)}
}

func TestSubmitNewModeCreatesAndNavigates(t *testing.T) {
	h := newHarness(newFakeCategories())
	ctx := context.Background()

	if err := h.ctrl.Init(ctx, ParseRoute("new")); err != nil {
		t.Fatalf("init: %v", err)
	}
	if h.ctrl.Mode() != ModeNew {
		t.Fatalf("expected new mode, got %s", h.ctrl.Mode())
	}
	if err := h.ctrl.SetField("name", "Groceries"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	if err := h.ctrl.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(h.svc.created) != 1 || len(h.svc.updated) != 0 {
		t.Fatalf("expected exactly one create, got create=%d update=%d", len(h.svc.created), len(h.svc.updated))
	}
	if h.svc.created[0].ID != 0 {
		t.Fatalf("create must not carry an id, got %d", h.svc.created[0].ID)
	}
	want := []navCall{
		{segments: []string{"categories"}, skip: true},
		{segments: []string{"categories", "100", "edit"}, skip: false},
	}
	if !reflect.DeepEqual(h.nav.calls, want) {
		t.Fatalf("navigation mismatch: got %+v want %+v", h.nav.calls, want)
	}
	if !reflect.DeepEqual(h.notify.successes, []string{MsgSuccess}) {
		t.Fatalf("unexpected notifications: %v", h.notify.successes)
	}
	if h.ctrl.Submitting() {
		t.Fatal("submitting should be false after success")
	}
	if rec, ok := h.ctrl.Record(); !ok || rec.ID != 100 {
		t.Fatalf("expected saved record with id 100, got %+v %v", rec, ok)
	}
}

func TestSubmitEditModeUpdatesLoadedID(t *testing.T) {
	svc := newFakeCategories(core.Category{ID: 7, Name: "Groceries", Description: "food"})
	h := newHarness(svc)

	if err := h.ctrl.Init(context.Background(), ParseRoute("7/edit")); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := h.ctrl.Values()["name"]; got != "Groceries" {
		t.Fatalf("field-set not patched, name=%q", got)
	}
	// User input cannot redirect the update to another record.
	_ = h.ctrl.SetField(FieldID, "9")
	_ = h.ctrl.SetField("name", "Supermarket")

	if err := h.ctrl.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(h.svc.updated) != 1 || len(h.svc.created) != 0 {
		t.Fatalf("expected exactly one update, got create=%d update=%d", len(h.svc.created), len(h.svc.updated))
	}
	if got := h.svc.updated[0]; got.ID != 7 || got.Name != "Supermarket" || got.Description != "food" {
		t.Fatalf("unexpected update payload: %+v", got)
	}
	last := h.nav.calls[len(h.nav.calls)-1]
	if !reflect.DeepEqual(last.segments, []string{"categories", "7", "edit"}) {
		t.Fatalf("unexpected final navigation: %+v", last)
	}
}

func TestSubmitInvalidFormDoesNotCallService(t *testing.T) {
	h := newHarness(newFakeCategories())
	_ = h.ctrl.Init(context.Background(), ParseRoute("new"))

	err := h.ctrl.Submit()
	if !errors.Is(err, ErrInvalidForm) {
		t.Fatalf("expected ErrInvalidForm, got %v", err)
	}
	if len(h.svc.created) != 0 {
		t.Fatal("service must not be called for an invalid form")
	}
	if got := h.ctrl.FieldErrors(); len(got) != 1 || got[0] != "name: is required" {
		t.Fatalf("unexpected field errors: %v", got)
	}
}

func TestSubmitFailureExposesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "unprocessable entity",
			err:  unprocessable("Name is required"),
			want: []string{"Name is required"},
		},
		{
			name: "several messages",
			err:  unprocessable("Name is required", "Description is too long (max 500 characters)"),
			want: []string{"Name is required", "Description is too long (max 500 characters)"},
		},
		{
			name: "server error",
			err:  &resource.HTTPError{Method: http.MethodPost, StatusCode: http.StatusInternalServerError},
			want: []string{MsgConnectivity},
		},
		{
			name: "network failure",
			err:  &resource.TransportError{Op: "create", Err: errors.New("connection refused")},
			want: []string{MsgConnectivity},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeCategories()
			svc.createErr = tt.err
			h := newHarness(svc)
			_ = h.ctrl.Init(context.Background(), ParseRoute("new"))
			_ = h.ctrl.SetField("name", "Groceries")

			if err := h.ctrl.Submit(); err == nil {
				t.Fatal("expected submit error")
			}
			if got := h.ctrl.ServerErrorMessages(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("server errors: got %v want %v", got, tt.want)
			}
			if h.ctrl.Submitting() {
				t.Fatal("submitting should be false after failure")
			}
			if len(h.nav.calls) != 0 {
				t.Fatalf("no navigation expected, got %+v", h.nav.calls)
			}
			if !reflect.DeepEqual(h.notify.errors, []string{MsgFailure}) {
				t.Fatalf("unexpected error notifications: %v", h.notify.errors)
			}
		})
	}
}

func TestServerErrorsClearedOnSuccess(t *testing.T) {
	svc := newFakeCategories()
	svc.createErr = unprocessable("Name is required")
	h := newHarness(svc)
	_ = h.ctrl.Init(context.Background(), ParseRoute("new"))
	_ = h.ctrl.SetField("name", "Groceries")
	_ = h.ctrl.Submit()

	svc.mu.Lock()
	svc.createErr = nil
	svc.mu.Unlock()
	if err := h.ctrl.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := h.ctrl.ServerErrorMessages(); len(got) != 0 {
		t.Fatalf("expected server errors to be cleared, got %v", got)
	}
}

func TestPageTitle(t *testing.T) {
	t.Run("new mode", func(t *testing.T) {
		h := newHarness(newFakeCategories())
		_ = h.ctrl.Init(context.Background(), ParseRoute("new"))
		h.ctrl.ContentChecked()
		if got := h.ctrl.PageTitle(); got != "Cadastro de nova categoria" {
			t.Fatalf("unexpected title %q", got)
		}
	})

	t.Run("new mode after a successful create", func(t *testing.T) {
		h := newHarness(newFakeCategories())
		_ = h.ctrl.Init(context.Background(), ParseRoute("new"))
		_ = h.ctrl.SetField("name", "Groceries")
		if err := h.ctrl.Submit(); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, loaded := h.ctrl.Record(); !loaded {
			t.Fatal("expected the saved record to be kept")
		}
		h.ctrl.ContentChecked()
		if got := h.ctrl.PageTitle(); got != "Cadastro de nova categoria" {
			t.Fatalf("new mode keeps the static title, got %q", got)
		}
	})

	t.Run("edit mode before and after load", func(t *testing.T) {
		svc := newFakeCategories(core.Category{ID: 7, Name: "Groceries"})
		svc.block = make(chan struct{})
		h := newHarness(svc)

		done := make(chan error, 1)
		go func() { done <- h.ctrl.Init(context.Background(), ParseRoute("7/edit")) }()

		waitFor(t, func() bool { return h.ctrl.Mode() == ModeEdit })
		h.ctrl.ContentChecked()
		if got := h.ctrl.PageTitle(); got != "Editando categoria: " {
			t.Fatalf("expected the edit title with an empty name before load, got %q", got)
		}

		close(svc.block)
		if err := <-done; err != nil {
			t.Fatalf("init: %v", err)
		}
		h.ctrl.ContentChecked()
		if got := h.ctrl.PageTitle(); got != "Editando categoria: Groceries" {
			t.Fatalf("unexpected title %q", got)
		}
	})
}

func TestSubmitBeforeLoad(t *testing.T) {
	svc := newFakeCategories(core.Category{ID: 7, Name: "Groceries"})
	svc.block = make(chan struct{})
	h := newHarness(svc)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Init(context.Background(), ParseRoute("7/edit")) }()
	waitFor(t, func() bool { return h.ctrl.Mode() == ModeEdit })

	if err := h.ctrl.Submit(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
	close(svc.block)
	<-done
}

func TestLoadFailureNotifies(t *testing.T) {
	h := newHarness(newFakeCategories())

	err := h.ctrl.Init(context.Background(), ParseRoute("42/edit"))
	if !resource.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !reflect.DeepEqual(h.notify.errors, []string{MsgFailure}) {
		t.Fatalf("unexpected notifications: %v", h.notify.errors)
	}
	if _, ok := h.ctrl.Record(); ok {
		t.Fatal("no record should be loaded")
	}
}

func TestParamsChangedSupersedesEarlierLoad(t *testing.T) {
	svc := newFakeCategories(
		core.Category{ID: 1, Name: "First"},
		core.Category{ID: 2, Name: "Second"},
	)
	svc.block = make(chan struct{})
	h := newHarness(svc)

	first := make(chan error, 1)
	go func() { first <- h.ctrl.Init(context.Background(), ParseRoute("1/edit")) }()
	waitFor(t, func() bool { return svc.getCalls() == 1 })

	second := make(chan error, 1)
	go func() { second <- h.ctrl.ParamsChanged(map[string]string{"id": "2"}) }()

	if err := <-first; !errors.Is(err, ErrStale) {
		t.Fatalf("first load should be discarded, got %v", err)
	}
	close(svc.block)
	if err := <-second; err != nil {
		t.Fatalf("second load: %v", err)
	}
	rec, ok := h.ctrl.Record()
	if !ok || rec.ID != 2 {
		t.Fatalf("expected record 2, got %+v", rec)
	}
	if len(h.notify.errors) != 0 {
		t.Fatalf("a superseded load must not notify: %v", h.notify.errors)
	}
}

func TestDestroyIgnoresPendingLoad(t *testing.T) {
	svc := newFakeCategories(core.Category{ID: 7, Name: "Groceries"})
	svc.block = make(chan struct{})
	h := newHarness(svc)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Init(context.Background(), ParseRoute("7/edit")) }()
	waitFor(t, func() bool { return svc.getCalls() == 1 })

	h.ctrl.Destroy()
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if _, ok := h.ctrl.Record(); ok {
		t.Fatal("destroyed form must not apply the load")
	}
	if len(h.notify.errors) != 0 {
		t.Fatalf("destroyed form must not notify: %v", h.notify.errors)
	}
	if err := h.ctrl.Submit(); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}
	if err := h.ctrl.ParamsChanged(map[string]string{"id": "7"}); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}
}

func TestInitTwice(t *testing.T) {
	h := newHarness(newFakeCategories())
	if err := h.ctrl.Init(context.Background(), ParseRoute("new")); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := h.ctrl.Init(context.Background(), ParseRoute("new")); err == nil {
		t.Fatal("second init should fail")
	}
}

func TestNotInitialized(t *testing.T) {
	h := newHarness(newFakeCategories())
	if err := h.ctrl.Submit(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := h.ctrl.SetField("name", "x"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestView(t *testing.T) {
	h := newHarness(newFakeCategories(core.Category{ID: 7, Name: "Groceries"}))
	if err := h.ctrl.Init(context.Background(), ParseRoute("7/edit")); err != nil {
		t.Fatalf("init: %v", err)
	}
	page := h.ctrl.View()
	if page.Title != "Editando categoria: Groceries" {
		t.Fatalf("unexpected title %q", page.Title)
	}
	if got := page.Breadcrumb.String(); got != "Início > Categorias > Editando categoria: Groceries" {
		t.Fatalf("unexpected breadcrumb %q", got)
	}
	if page.Breadcrumb[0].Link != "/categories" {
		t.Fatalf("unexpected link %q", page.Breadcrumb[0].Link)
	}
	if len(page.Fields) != 3 || page.Fields[1].Name != "name" || page.Fields[1].Value != "Groceries" {
		t.Fatalf("unexpected fields %+v", page.Fields)
	}
}

func TestEntryFormRoundTrip(t *testing.T) {
	b := EntryBinder{}
	fs := NewFieldSet(b.Fields()...)
	fs.Patch(map[string]string{
		"name":       "Rent",
		"type":       "expense",
		"amount":     "1200,50",
		"date":       "2024-03-01",
		"paid":       "true",
		"categoryId": "3",
	})
	if !fs.Valid() {
		t.Fatalf("expected valid field-set, got %v", fs.Messages())
	}
	e, err := b.FromFields(fs)
	if err != nil {
		t.Fatalf("from fields: %v", err)
	}
	if e.Amount.Cents != 120050 || !e.Paid || e.CategoryID != 3 || e.Date.String() != "2024-03-01" {
		t.Fatalf("unexpected entry %+v", e)
	}
	back := b.ToFields(e)
	if back["amount"] != "1200.50" || back["id"] != "" {
		t.Fatalf("unexpected fields %v", back)
	}
}

func (f *fakeCategories) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
