// Package backend builds the storage and event plumbing selected by config.
package backend

import (
	"context"

	"ledger/internal/core"
	"ledger/internal/repository"
	"ledger/internal/services"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// Result is what the API server needs from a backend. Publisher is nil when
// change events are disabled or the broker could not be reached.
type Result struct {
	Categories repository.Store[core.Category]
	Entries    repository.Store[core.Entry]
	Pinger     repository.Pinger
	Publisher  services.Publisher
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath string

	// AMQP is optional for every backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
