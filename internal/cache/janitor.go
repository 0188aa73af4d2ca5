package cache

import (
	"context"
	"time"

	"ledger/internal/log"
)

// Cleaner is implemented by caches that drop expired items on demand.
type Cleaner interface {
	CleanExpired() int
}

// RunJanitor cleans the caches every interval until ctx is done.
func RunJanitor(ctx context.Context, interval time.Duration, logger *log.Logger, caches ...Cleaner) {
	if logger == nil {
		logger = log.Default(log.ComponentCache)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, c := range caches {
				total += c.CleanExpired()
			}
			if total > 0 {
				logger.DebugContext(ctx, "Expired cache items removed", "count", total)
			}
		}
	}
}
