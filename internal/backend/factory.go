package backend

import (
	"context"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/repository/memory"
	"ledger/internal/storage"
)

type DefaultFactory struct {
	logger *log.Logger
	// dialAMQP is swapped in tests.
	dialAMQP func(url, exchange, queue string, logger *log.Logger) (*amqp.Client, error)
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{logger: logger, dialAMQP: amqp.NewClient}
}

var _ Factory = (*DefaultFactory)(nil)

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		res = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	f.attachPublisher(res, config)
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	db, err := storage.Open(config.SQLiteDBPath, f.logger.WithComponent(log.ComponentStorage))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{
		Categories: db.Categories(),
		Entries:    db.Entries(),
		Pinger:     db,
		Cleanup:    db.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	f.logger.Info("Initialized memory backend")
	return &Result{
		Categories: memory.New[core.Category](),
		Entries:    memory.New[core.Entry](),
	}
}

// attachPublisher connects to the broker when configured. A broker that
// cannot be reached leaves the backend without events.
func (f *DefaultFactory) attachPublisher(res *Result, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger.WithComponent(log.ComponentAMQP))
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		return
	}
	f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
	res.Publisher = client

	storageCleanup := res.Cleanup
	res.Cleanup = func() error {
		err := client.Close()
		if storageCleanup != nil {
			if serr := storageCleanup(); err == nil {
				err = serr
			}
		}
		return err
	}
}
