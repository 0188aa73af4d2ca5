package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/resource"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	memsheet "ledger/internal/sheets/memory"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred closes run before the process exits.
func run() int {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	logger.Info("Starting ledger-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		return 1
	}

	entries, categories, closeSource, err := openSource(cfg, logger)
	if err != nil {
		logger.Error("Failed to open ledger source", log.FieldError, err)
		return 1
	}
	defer closeSource()

	sheet, err := openSheet(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize spreadsheet mirror", log.FieldError, err)
		return 1
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		return 1
	}
	defer client.Close()

	mirror := worker.NewMirror(entries, categories, sheet, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up with anything written while the worker was down.
	if err := mirror.FullSync(ctx); err != nil {
		logger.Error("Startup sync failed", log.FieldError, err)
	}

	consume := func(ctx context.Context) error { return client.Consume(ctx, mirror.HandleEvent) }
	if err := serve(ctx, consume, mirror.FullSync, cfg.SyncInterval, logger); err != nil {
		logger.Error("Worker stopped", log.FieldError, err)
		return 1
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
	return 0
}

// serve runs consume and, when interval is positive, a periodic full sync
// until ctx ends or consume fails. Sync failures are logged and retried on
// the next tick.
func serve(ctx context.Context, consume, sync func(context.Context) error, interval time.Duration, logger *log.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consume(gctx)
	})
	if interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := sync(gctx); err != nil {
						logger.Error("Periodic sync failed", log.FieldError, err)
					}
				}
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openSource reads the ledger straight from SQLite when the server uses it,
// and through the REST API otherwise.
func openSource(cfg *config.Config, logger *log.Logger) (worker.Source[core.Entry], worker.Source[core.Category], func(), error) {
	if cfg.DataBackend == config.BackendSQLite {
		db, err := storage.Open(cfg.SQLiteDBPath, logger.WithComponent(log.ComponentStorage))
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Reading ledger from SQLite", "db_path", cfg.SQLiteDBPath)
		return db.Entries(), db.Categories(), func() { _ = db.Close() }, nil
	}

	httpClient := &http.Client{Timeout: cfg.ClientTimeout}
	rl := logger.WithComponent(log.ComponentResource)
	logger.Info("Reading ledger through the API", "url", cfg.LedgerAPIURL)
	return resource.Entries(httpClient, cfg.LedgerAPIURL, resource.WithLogger(rl)),
		resource.Categories(httpClient, cfg.LedgerAPIURL, resource.WithLogger(rl)),
		func() {}, nil
}

func openSheet(cfg *config.Config, logger *log.Logger) (sheets.EntryMirror, error) {
	if cfg.MirrorBackend == config.MirrorGoogle {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			return nil, err
		}
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		return client, nil
	}
	logger.Info("Using in-memory mirror")
	return memsheet.New(), nil
}
