// Package worker mirrors ledger entries into a spreadsheet from change events.
package worker

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/repository"
	"ledger/internal/resource"
	"ledger/internal/sheets"
)

// Source reads current state. Both repository stores and the REST client
// satisfy it.
type Source[T core.Resource] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id int64) (T, error)
}

// Mirror applies resource events to an EntryMirror. Events only carry ids,
// so every event reloads the current entry and its category.
type Mirror struct {
	entries    Source[core.Entry]
	categories Source[core.Category]
	sheet      sheets.EntryMirror
	logger     *log.Logger
}

func NewMirror(entries Source[core.Entry], categories Source[core.Category], sheet sheets.EntryMirror, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &Mirror{entries: entries, categories: categories, sheet: sheet, logger: logger}
}

// HandleEvent is an amqp.Handler. A returned error requeues the event.
func (m *Mirror) HandleEvent(ctx context.Context, ev amqp.ResourceEvent) error {
	m.logger.InfoContext(ctx, "Processing resource event",
		log.FieldResource, ev.Resource, log.FieldID, ev.ID, log.FieldAction, string(ev.Action))

	switch ev.Resource {
	case core.EntriesResource:
		if ev.Action == amqp.ActionDeleted {
			return m.remove(ctx, ev.ID)
		}
		return m.syncEntry(ctx, ev.ID)
	case core.CategoriesResource:
		if ev.Action == amqp.ActionUpdated {
			return m.syncCategory(ctx, ev.ID)
		}
		return nil
	default:
		m.logger.WarnContext(ctx, "Ignoring event for unknown resource", log.FieldResource, ev.Resource)
		return nil
	}
}

func (m *Mirror) syncEntry(ctx context.Context, id int64) error {
	e, err := m.entries.Get(ctx, id)
	if isNotFound(err) {
		// Deleted after the event was published.
		return m.remove(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get entry %d: %w", id, err)
	}
	return m.upsert(ctx, e, "")
}

// syncCategory rewrites every entry of a renamed category.
func (m *Mirror) syncCategory(ctx context.Context, id int64) error {
	c, err := m.categories.Get(ctx, id)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get category %d: %w", id, err)
	}
	entries, err := m.entries.List(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	for _, e := range entries {
		if e.CategoryID != id {
			continue
		}
		if err := m.upsert(ctx, e, c.Name); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) upsert(ctx context.Context, e core.Entry, category string) error {
	if category == "" {
		c, err := m.categories.Get(ctx, e.CategoryID)
		switch {
		case isNotFound(err):
		case err != nil:
			return fmt.Errorf("get category %d: %w", e.CategoryID, err)
		default:
			category = c.Name
		}
	}
	if err := m.sheet.Upsert(ctx, sheets.NewRow(e, category)); err != nil {
		return fmt.Errorf("mirror entry %d: %w", e.ID, err)
	}
	return nil
}

func (m *Mirror) remove(ctx context.Context, id int64) error {
	if err := m.sheet.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove entry %d: %w", id, err)
	}
	return nil
}

// FullSync upserts every entry. It recovers from events missed while the
// worker was down.
func (m *Mirror) FullSync(ctx context.Context) error {
	entries, err := m.entries.List(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	categories, err := m.categories.List(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	synced, failed := 0, 0
	for _, e := range entries {
		if err := m.sheet.Upsert(ctx, sheets.NewRow(e, names[e.CategoryID])); err != nil {
			m.logger.ErrorContext(ctx, "Failed to mirror entry during full sync", log.FieldID, e.ID, log.FieldError, err)
			failed++
			continue
		}
		synced++
	}
	m.logger.InfoContext(ctx, "Full sync completed", "total", len(entries), "synced", synced, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("full sync: %d of %d entries failed", failed, len(entries))
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || resource.IsNotFound(err)
}
