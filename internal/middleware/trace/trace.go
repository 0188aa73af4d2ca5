// Package trace assigns request ids and logs every request.
package trace

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ledger/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type ctxKey struct{}

// Metrics are cumulative request counters.
type Metrics struct {
	TotalRequests int64
	InFlight      int64
	ServerErrors  int64
}

// Recorder receives every finished request. route is the matched mux
// pattern, empty when nothing matched.
type Recorder interface {
	RecordHTTPRequest(method, route string, statusCode int, d time.Duration)
}

type Middleware struct {
	logger   *log.Logger
	sl       *log.StructuredLogger
	recorder Recorder

	total, inFlight, serverErrors int64
}

func NewMiddleware(logger *log.Logger, recorder Recorder) *Middleware {
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	return &Middleware{logger: logger, sl: log.NewStructuredLogger(logger), recorder: recorder}
}

// Handler wraps next with request id propagation and start/end logging. A
// valid incoming X-Request-ID is kept, otherwise a new UUID is issued.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFrom(r)

		ctx := context.WithValue(r.Context(), ctxKey{}, requestID)
		ctx = log.IntoContext(ctx, m.logger.With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, requestID)

		atomic.AddInt64(&m.total, 1)
		atomic.AddInt64(&m.inFlight, 1)
		defer atomic.AddInt64(&m.inFlight, -1)

		m.sl.LogHTTPStart(ctx, r, requestID)
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.status >= 500 {
			atomic.AddInt64(&m.serverErrors, 1)
		}
		elapsed := time.Since(start)
		if m.recorder != nil {
			m.recorder.RecordHTTPRequest(r.Method, r.Pattern, rw.status, elapsed)
		}
		m.sl.LogHTTPEnd(ctx, r, requestID, rw.status, elapsed.Milliseconds())
	})
}

func requestIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (m *Middleware) Metrics() Metrics {
	return Metrics{
		TotalRequests: atomic.LoadInt64(&m.total),
		InFlight:      atomic.LoadInt64(&m.inFlight),
		ServerErrors:  atomic.LoadInt64(&m.serverErrors),
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
