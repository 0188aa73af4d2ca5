// Package memory is an in-process Store with sequential identifiers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ledger/internal/core"
	"ledger/internal/repository"
)

type Store[T core.Entity[T]] struct {
	mu      sync.RWMutex
	records map[int64]T
	nextID  int64
}

var _ repository.Store[core.Category] = (*Store[core.Category])(nil)

func New[T core.Entity[T]](seed ...T) *Store[T] {
	s := &Store[T]{records: make(map[int64]T)}
	for _, r := range seed {
		id := r.Identifier()
		if id == 0 {
			s.nextID++
			id = s.nextID
			r = r.WithID(id)
		}
		if id > s.nextID {
			s.nextID = id
		}
		s.records[id] = r
	}
	return s
}

// List returns every record ordered by id.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier() < out[j].Identifier() })
	return out, nil
}

func (s *Store[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return zero, fmt.Errorf("get %d: %w", id, repository.ErrNotFound)
	}
	return r, nil
}

// Create ignores any id carried by r.
func (s *Store[T]) Create(ctx context.Context, r T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r = r.WithID(s.nextID)
	s.records[s.nextID] = r
	return r, nil
}

func (s *Store[T]) Update(ctx context.Context, r T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.Identifier()
	if _, ok := s.records[id]; !ok {
		return zero, fmt.Errorf("update %d: %w", id, repository.ErrNotFound)
	}
	s.records[id] = r
	return r, nil
}

func (s *Store[T]) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("delete %d: %w", id, repository.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of stored records.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
