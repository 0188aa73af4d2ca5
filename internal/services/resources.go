// Package services holds the server-side use cases behind the REST API.
package services

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/repository"
)

// Publisher sends change events. Implemented by *amqp.Client.
type Publisher interface {
	PublishEvent(ctx context.Context, ev amqp.ResourceEvent) error
}

// Check runs a domain rule before a write. Returning a *core.ValidationError
// surfaces as an unprocessable entity.
type Check[T any] func(ctx context.Context, r T) error

// Resources orchestrates one resource type: validate, check, store, publish.
// The store is the source of truth; publishing failures are only logged.
type Resources[T core.Entity[T]] struct {
	name         string
	store        repository.Store[T]
	publisher    Publisher
	logger       *log.Logger
	beforeWrite  Check[T]
	beforeDelete func(ctx context.Context, id int64) error
}

type Option[T core.Entity[T]] func(*Resources[T])

func WithPublisher[T core.Entity[T]](p Publisher) Option[T] {
	return func(s *Resources[T]) { s.publisher = p }
}

func WithLogger[T core.Entity[T]](l *log.Logger) Option[T] {
	return func(s *Resources[T]) { s.logger = l }
}

// WithCheck registers a rule evaluated on create and update.
func WithCheck[T core.Entity[T]](c Check[T]) Option[T] {
	return func(s *Resources[T]) { s.beforeWrite = c }
}

// WithDeleteCheck registers a rule evaluated before delete.
func WithDeleteCheck[T core.Entity[T]](c func(ctx context.Context, id int64) error) Option[T] {
	return func(s *Resources[T]) { s.beforeDelete = c }
}

func NewResources[T core.Entity[T]](name string, store repository.Store[T], opts ...Option[T]) *Resources[T] {
	s := &Resources[T]{name: name, store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default(log.ComponentService)
	}
	s.logger = s.logger.With(log.FieldResource, name)
	return s
}

func (s *Resources[T]) Name() string { return s.name }

func (s *Resources[T]) List(ctx context.Context) ([]T, error) {
	return s.store.List(ctx)
}

func (s *Resources[T]) Get(ctx context.Context, id int64) (T, error) {
	return s.store.Get(ctx, id)
}

// Create stores r under a new identifier, ignoring any id it carries.
func (s *Resources[T]) Create(ctx context.Context, r T) (T, error) {
	var zero T
	r = r.WithID(0)
	if err := s.validate(ctx, r); err != nil {
		return zero, err
	}
	saved, err := s.store.Create(ctx, r)
	if err != nil {
		return zero, fmt.Errorf("create %s: %w", s.name, err)
	}
	s.publish(ctx, saved.Identifier(), amqp.ActionCreated)
	return saved, nil
}

// Update replaces the record identified by id.
func (s *Resources[T]) Update(ctx context.Context, id int64, r T) (T, error) {
	var zero T
	r = r.WithID(id)
	if err := s.validate(ctx, r); err != nil {
		return zero, err
	}
	saved, err := s.store.Update(ctx, r)
	if err != nil {
		return zero, fmt.Errorf("update %s: %w", s.name, err)
	}
	s.publish(ctx, id, amqp.ActionUpdated)
	return saved, nil
}

func (s *Resources[T]) Delete(ctx context.Context, id int64) error {
	if s.beforeDelete != nil {
		if err := s.beforeDelete(ctx, id); err != nil {
			return err
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", s.name, err)
	}
	s.publish(ctx, id, amqp.ActionDeleted)
	return nil
}

func (s *Resources[T]) validate(ctx context.Context, r T) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if s.beforeWrite != nil {
		return s.beforeWrite(ctx, r)
	}
	return nil
}

func (s *Resources[T]) publish(ctx context.Context, id int64, action amqp.Action) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, skipping event", log.FieldID, id)
		return
	}
	if err := s.publisher.PublishEvent(ctx, amqp.NewResourceEvent(s.name, id, action)); err != nil {
		// The write already succeeded locally.
		s.logger.ErrorContext(ctx, "Failed to publish resource event",
			log.FieldID, id, log.FieldAction, string(action), log.FieldError, err)
	}
}

// CategoryExists rejects entries whose category is unknown.
func CategoryExists(categories repository.Store[core.Category]) Check[core.Entry] {
	return func(ctx context.Context, e core.Entry) error {
		_, err := categories.Get(ctx, e.CategoryID)
		if errors.Is(err, repository.ErrNotFound) {
			return core.NewValidationError(core.MsgCategoryNotFound)
		}
		return err
	}
}

// CategoryUnused rejects deleting a category that entries still reference.
func CategoryUnused(entries repository.Store[core.Entry]) func(ctx context.Context, id int64) error {
	return func(ctx context.Context, id int64) error {
		list, err := entries.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range list {
			if e.CategoryID == id {
				return core.NewValidationError("Category has entries")
			}
		}
		return nil
	}
}

// Ledger bundles the services behind the API.
type Ledger struct {
	Categories *Resources[core.Category]
	Entries    *Resources[core.Entry]
}

// NewLedger wires both resources with their cross-resource rules.
func NewLedger(categories repository.Store[core.Category], entries repository.Store[core.Entry], publisher Publisher, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default(log.ComponentService)
	}
	return &Ledger{
		Categories: NewResources(core.CategoriesResource, categories,
			WithPublisher[core.Category](publisher),
			WithLogger[core.Category](logger),
			WithDeleteCheck[core.Category](CategoryUnused(entries)),
		),
		Entries: NewResources(core.EntriesResource, entries,
			WithPublisher[core.Entry](publisher),
			WithLogger[core.Entry](logger),
			WithCheck(CategoryExists(categories)),
		),
	}
}

// Report totals the entries of one kind per category.
func (l *Ledger) Report(ctx context.Context, kind core.EntryType) ([]core.CategoryAmount, error) {
	entries, err := l.Entries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	categories, err := l.Categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return core.Summarize(entries, categories, kind), nil
}
