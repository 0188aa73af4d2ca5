// Package repository declares the persistence port the API services use.
package repository

import (
	"context"
	"errors"

	"ledger/internal/core"
)

// ErrNotFound is returned when no resource has the requested id.
var ErrNotFound = errors.New("resource not found")

// Store persists one resource type. Create assigns the identifier; Update and
// Delete report ErrNotFound for unknown ids.
type Store[T core.Resource] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, r T) (T, error)
	Update(ctx context.Context, r T) (T, error)
	Delete(ctx context.Context, id int64) error
}

// Pinger is implemented by stores backed by an external database.
type Pinger interface {
	Ping(ctx context.Context) error
}
