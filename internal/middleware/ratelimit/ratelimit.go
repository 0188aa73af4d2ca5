// Package ratelimit limits requests per client with token buckets refilled
// at RequestsPerMinute, bursting up to a full minute's allowance.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RequestsPerMinute int
	// Methods limits only these methods. Empty means every method.
	Methods []string
	// StaleAfter drops idle clients from memory.
	StaleAfter time.Duration
}

// DefaultConfig limits writes to 60 requests per minute.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Methods:           []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		StaleAfter:        10 * time.Minute,
	}
}

type Limiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	limit   int
	methods map[string]bool
	stale   time.Duration
	now     func() time.Time

	rejected int64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	methods := make(map[string]bool, len(config.Methods))
	for _, m := range config.Methods {
		methods[m] = true
	}
	return &Limiter{
		clients: make(map[string]*bucket),
		limit:   config.RequestsPerMinute,
		methods: methods,
		stale:   config.StaleAfter,
		now:     time.Now,
	}
}

// Allow records a request from client and reports whether it is within the
// limit. A rejected request also gets the wait until a token is available.
func (l *Limiter) Allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.clients[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(l.limit)/60.0), l.limit)}
		l.clients[client] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		atomic.AddInt64(&l.rejected, 1)
		return false, delay
	}
	return true, 0
}

// Cleanup drops clients idle for longer than StaleAfter.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.stale)
	n := 0
	for k, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, k)
			n++
		}
	}
	return n
}

// Run calls Cleanup every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Cleanup()
		}
	}
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) Rejected() int64 {
	return atomic.LoadInt64(&l.rejected)
}

func (l *Limiter) applies(method string) bool {
	return len(l.methods) == 0 || l.methods[method]
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header, using onLimit to write the body when set.
func (l *Limiter) Middleware(clientKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	if clientKey == nil {
		clientKey = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.applies(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ok, retry := l.Allow(clientKey(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(retry)))
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
