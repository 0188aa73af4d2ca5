// Package http exposes the ledger as a JSON REST API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/metrics"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/repository"
	"ledger/internal/services"
)

const (
	defaultCacheSize = 500
	defaultCacheTTL  = 5 * time.Minute
	maxRequestBytes  = 1 << 20
)

// Config tunes the server. Zero values fall back to defaults.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	CacheTTL           time.Duration
	CacheSize          int
}

// Server serves the categories, entries and reports endpoints.
type Server struct {
	http.Server

	ledger  *services.Ledger
	pinger  repository.Pinger
	logger  *log.Logger
	cache   *cache.LRU[[]byte]
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	metrics *metrics.Collector
	started time.Time

	stopBackground context.CancelFunc
	shutdownOnce   sync.Once
}

type Option func(*Server)

// WithPinger makes /readyz check the storage backend.
func WithPinger(p repository.Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer wires routes and middleware. Background cleanup of the cache and
// the rate limiter runs until Shutdown.
func NewServer(cfg Config, ledger *services.Ledger, opts ...Option) *Server {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	s := &Server{
		ledger:  ledger,
		cache:   cache.New[[]byte](cfg.CacheSize, cfg.CacheTTL),
		metrics: metrics.New(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default(log.ComponentHTTP)
	}

	limits := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = cfg.RateLimitPerMinute
	}
	s.limiter = ratelimit.NewLimiter(limits)
	s.tracer = trace.NewMiddleware(s.logger, s.metrics)
	s.registerGauges()

	mux := http.NewServeMux()
	categories := &resourceAPI[core.Category]{svc: ledger.Categories, cache: s.cache, metrics: s.metrics}
	entries := &resourceAPI[core.Entry]{svc: ledger.Entries, cache: s.cache, metrics: s.metrics}
	categories.register(mux)
	entries.register(mux)
	mux.HandleFunc("GET /api/reports/entries", s.handleReport)
	mux.HandleFunc("GET /api/reports/entries.png", s.handleReportChart)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = mux
	h = s.limiter.Middleware(ratelimit.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RecordRateLimited()
		writeErrors(w, http.StatusTooManyRequests, "Too many requests, please try again later")
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Handler(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel
	go cache.RunJanitor(ctx, 10*time.Minute, s.logger.WithComponent(log.ComponentCache), s.cache)
	go s.limiter.Run(ctx, 5*time.Minute)

	return s
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopBackground()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) registerGauges() {
	s.metrics.Gauge("cache_entries", "Cached API responses", func() float64 {
		return float64(s.cache.Stats().Size)
	})
	s.metrics.CounterFunc("cache_hits_total", "Cache hits since start", func() float64 {
		return float64(s.cache.Stats().Hits)
	})
	s.metrics.CounterFunc("cache_misses_total", "Cache misses since start", func() float64 {
		return float64(s.cache.Stats().Misses)
	})
	s.metrics.Gauge("rate_limit_clients", "Clients tracked by the rate limiter", func() float64 {
		return float64(s.limiter.ActiveClients())
	})
}

// invalidate drops cached reads of resource and every cached report.
func invalidate(c *cache.LRU[[]byte], resource string) {
	c.DeletePrefix(resource + ":")
	c.DeletePrefix(reportsKey)
}
