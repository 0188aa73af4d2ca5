// Package form implements the create/edit form lifecycle for resources.
//
// A Controller owns one field-set and at most one loaded record. It decides
// its mode once from the route it is opened with, loads the record in edit
// mode, submits through a resource service and reacts to the outcome by
// notifying and navigating. Feature specifics live in a Binder.
package form

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/resource"
	"ledger/internal/shared"
)

// User facing messages.
const (
	MsgSuccess      = "Solicitação processada com sucesso"
	MsgFailure      = "Ocorreu um erro ao processar sua solicitação"
	MsgConnectivity = "Falha na comunicação com o servidor, por favor tente mais tarde"
)

// FieldID is the field every binder declares for the record identifier.
const FieldID = "id"

const actionEditSuffix = "edit"

var (
	ErrInvalidForm    = errors.New("form is invalid")
	ErrNotInitialized = errors.New("form not initialized")
	ErrNotLoaded      = errors.New("record not loaded yet")
	ErrSubmitting     = errors.New("submission already in progress")
	ErrDestroyed      = errors.New("form destroyed")
	// ErrStale is returned when a load finished after a newer load or a
	// teardown superseded it; its result was discarded.
	ErrStale = errors.New("stale result discarded")
)

// Service is the subset of resource.Service a form needs.
type Service[T core.Resource] interface {
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, r T) (T, error)
	Update(ctx context.Context, r T) (T, error)
}

// Navigator moves the front-end to another view. Segments are absolute,
// e.g. ["categories", "7", "edit"].
type Navigator interface {
	Navigate(ctx context.Context, segments []string, skipLocationChange bool) error
}

// Notifier shows transient messages.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Binder maps a resource type onto a field-set.
type Binder[T core.Resource] interface {
	// Fields declares the field-set, including an "id" field.
	Fields() []FieldDef
	// ToFields renders a record as field values.
	ToFields(r T) map[string]string
	// FromFields builds a record from a valid field-set.
	FromFields(fs *FieldSet) (T, error)
	// Path is the feature root segment, e.g. "categories".
	Path() string
	// Label names the feature in breadcrumbs.
	Label() string
	NewTitle() string
	EditTitle(loaded T) string
}

// Controller drives one form instance.
type Controller[T core.Resource] struct {
	svc    Service[T]
	binder Binder[T]
	nav    Navigator
	notify Notifier
	logger *log.Logger

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	mode         Mode
	fields       *FieldSet
	record       T
	loaded       bool
	title        string
	submitting   bool
	serverErrors []string
	loadSeq      uint64
	loadCancel   context.CancelFunc
}

// NewController wires a controller. A nil logger falls back to the default.
func NewController[T core.Resource](svc Service[T], binder Binder[T], nav Navigator, notify Notifier, logger *log.Logger) *Controller[T] {
	if logger == nil {
		logger = log.Default(log.ComponentForm)
	}
	return &Controller[T]{
		svc:    svc,
		binder: binder,
		nav:    nav,
		notify: notify,
		logger: logger.With(log.FieldResource, binder.Path()),
	}
}

// Init determines the mode from route, builds an empty field-set and, in
// edit mode, loads the record addressed by the route's id parameter.
func (c *Controller[T]) Init(ctx context.Context, route Route) error {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return errors.New("form already initialized")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mode = route.Mode()
	c.fields = NewFieldSet(c.binder.Fields()...)
	mode := c.mode
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Form initialized", log.FieldMode, string(mode))
	if mode != ModeEdit {
		return nil
	}
	return c.ParamsChanged(route.Params)
}

// ParamsChanged reloads the record for new route parameters. An in-flight
// load is cancelled and its result dropped. It is a no-op in new mode.
func (c *Controller[T]) ParamsChanged(params map[string]string) error {
	c.mu.Lock()
	if c.ctx == nil {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.mode != ModeEdit {
		c.mu.Unlock()
		return nil
	}
	id, err := ParamID(params)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.loadCancel != nil {
		c.loadCancel()
	}
	c.loadSeq++
	seq := c.loadSeq
	loadCtx, cancel := context.WithCancel(c.ctx)
	c.loadCancel = cancel
	c.mu.Unlock()

	rec, err := c.svc.Get(loadCtx, id)

	c.mu.Lock()
	if seq != c.loadSeq || c.ctx.Err() != nil {
		c.mu.Unlock()
		cancel()
		return ErrStale
	}
	c.loadCancel = nil
	cancel()
	if err != nil {
		c.mu.Unlock()
		c.logger.ErrorContext(c.ctx, "Failed to load record", log.FieldID, id, log.FieldError, err)
		c.notify.Error(MsgFailure)
		return err
	}
	c.record = rec
	c.loaded = true
	c.fields.Patch(c.binder.ToFields(rec))
	c.mu.Unlock()
	return nil
}

// ContentChecked recomputes the page title from the mode and loaded record.
func (c *Controller[T]) ContentChecked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeNew {
		c.title = c.binder.NewTitle()
		return
	}
	c.title = c.binder.EditTitle(c.record)
}

// SetField records user input.
func (c *Controller[T]) SetField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fields == nil {
		return ErrNotInitialized
	}
	return c.fields.Set(name, value)
}

// Submit creates or updates the record built from the field-set. An invalid
// field-set is rejected before any service call.
func (c *Controller[T]) Submit() error {
	c.mu.Lock()
	switch {
	case c.fields == nil:
		c.mu.Unlock()
		return ErrNotInitialized
	case c.ctx.Err() != nil:
		c.mu.Unlock()
		return ErrDestroyed
	case c.submitting:
		c.mu.Unlock()
		return ErrSubmitting
	case c.mode == ModeEdit && !c.loaded:
		c.mu.Unlock()
		return ErrNotLoaded
	}
	// The id always comes from the loaded record; new records have none.
	if c.mode == ModeEdit {
		_ = c.fields.Set(FieldID, strconv.FormatInt(c.record.Identifier(), 10))
	} else {
		_ = c.fields.Set(FieldID, "")
	}
	if !c.fields.Valid() {
		c.mu.Unlock()
		return ErrInvalidForm
	}
	rec, err := c.binder.FromFields(c.fields)
	if err != nil {
		c.mu.Unlock()
		return errors.Join(ErrInvalidForm, err)
	}
	c.submitting = true
	mode, ctx := c.mode, c.ctx
	c.mu.Unlock()

	var saved T
	if mode == ModeNew {
		saved, err = c.svc.Create(ctx, rec)
	} else {
		saved, err = c.svc.Update(ctx, rec)
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.submitting = false
		c.mu.Unlock()
		return ErrDestroyed
	}
	if err != nil {
		c.submitting = false
		if msgs, ok := resource.ServerMessages(err); ok {
			c.serverErrors = msgs
		} else {
			c.serverErrors = []string{MsgConnectivity}
		}
		c.mu.Unlock()
		c.logger.WarnContext(ctx, "Form submission failed", log.FieldMode, string(mode), log.FieldError, err)
		c.notify.Error(MsgFailure)
		return err
	}
	c.record = saved
	c.loaded = true
	c.serverErrors = nil
	c.mu.Unlock()

	c.actionsForSuccess(ctx, saved)
	return nil
}

func (c *Controller[T]) actionsForSuccess(ctx context.Context, saved T) {
	c.notify.Success(MsgSuccess)

	root := c.binder.Path()
	if err := c.nav.Navigate(ctx, []string{root}, true); err != nil {
		c.logger.WarnContext(ctx, "Navigation failed", log.FieldError, err)
	} else if err := c.nav.Navigate(ctx, []string{root, strconv.FormatInt(saved.Identifier(), 10), actionEditSuffix}, false); err != nil {
		c.logger.WarnContext(ctx, "Navigation failed", log.FieldError, err)
	}

	c.mu.Lock()
	c.submitting = false
	c.mu.Unlock()
}

// Destroy tears the form down. In-flight loads and submissions are
// cancelled and their continuations ignored.
func (c *Controller[T]) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
}

// Mode returns the mode determined at Init.
func (c *Controller[T]) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// PageTitle returns the title computed by the last ContentChecked.
func (c *Controller[T]) PageTitle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Submitting reports whether a submission is in flight.
func (c *Controller[T]) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// ServerErrorMessages returns the messages exposed after the last failure.
func (c *Controller[T]) ServerErrorMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.serverErrors...)
}

// Record returns the loaded or last saved record.
func (c *Controller[T]) Record() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record, c.loaded
}

// Values returns a copy of the field values.
func (c *Controller[T]) Values() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fields == nil {
		return nil
	}
	return c.fields.Values()
}

// FieldErrors returns the client-side validation messages.
func (c *Controller[T]) FieldErrors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fields == nil {
		return nil
	}
	return c.fields.Messages()
}

// Breadcrumb returns the trail for the current page.
func (c *Controller[T]) Breadcrumb() shared.Trail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return shared.Trail{
		{Text: c.binder.Label(), Link: "/" + c.binder.Path()},
		{Text: c.title},
	}
}

// View assembles the page model rendered by front-ends.
func (c *Controller[T]) View() shared.Page {
	c.ContentChecked()
	page := shared.Page{
		Title:        c.PageTitle(),
		Breadcrumb:   c.Breadcrumb(),
		FieldErrors:  c.FieldErrors(),
		ServerErrors: c.ServerErrorMessages(),
		Submitting:   c.Submitting(),
	}
	c.mu.Lock()
	if c.fields != nil {
		for _, name := range c.fields.Names() {
			page.Fields = append(page.Fields, shared.FieldView{Name: name, Value: c.fields.Value(name)})
		}
	}
	c.mu.Unlock()
	return page
}
