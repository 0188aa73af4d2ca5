package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ledger/internal/cache"
	"ledger/internal/charts"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/metrics"
	"ledger/internal/repository"
	"ledger/internal/services"
	"ledger/internal/storage"
)

const reportsKey = "reports:"

// resourceAPI serves the five CRUD routes of one resource.
type resourceAPI[T core.Entity[T]] struct {
	svc     *services.Resources[T]
	cache   *cache.LRU[[]byte]
	metrics *metrics.Collector
}

func (a *resourceAPI[T]) register(mux *http.ServeMux) {
	base := "/api/" + a.svc.Name()
	mux.HandleFunc("GET "+base, a.list)
	mux.HandleFunc("POST "+base, a.create)
	mux.HandleFunc("GET "+base+"/{id}", a.get)
	mux.HandleFunc("PUT "+base+"/{id}", a.update)
	mux.HandleFunc("DELETE "+base+"/{id}", a.delete)
}

func (a *resourceAPI[T]) list(w http.ResponseWriter, r *http.Request) {
	body, err := a.cache.GetOrLoad(r.Context(), a.svc.Name()+":list", func(ctx context.Context) ([]byte, error) {
		items, err := a.svc.List(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return json.Marshal(items)
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, "application/json", body)
}

func (a *resourceAPI[T]) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	key := a.svc.Name() + ":" + strconv.FormatInt(id, 10)
	body, err := a.cache.GetOrLoad(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		item, err := a.svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(item)
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, "application/json", body)
}

func (a *resourceAPI[T]) create(w http.ResponseWriter, r *http.Request) {
	in, ok := a.decode(w, r)
	if !ok {
		return
	}
	saved, err := a.svc.Create(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.changed(r, log.OpCreate, saved.Identifier())
	w.Header().Set("Location", "/api/"+a.svc.Name()+"/"+strconv.FormatInt(saved.Identifier(), 10))
	writeJSON(w, http.StatusCreated, saved)
}

func (a *resourceAPI[T]) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := a.decode(w, r)
	if !ok {
		return
	}
	saved, err := a.svc.Update(r.Context(), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.changed(r, log.OpUpdate, id)
	writeJSON(w, http.StatusOK, saved)
}

func (a *resourceAPI[T]) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.svc.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.changed(r, log.OpDelete, id)
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into T. Malformed amounts and dates are
// validation failures, any other decoding problem is a bad request.
func (a *resourceAPI[T]) decode(w http.ResponseWriter, r *http.Request) (T, bool) {
	var in T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidAmount):
			writeErrors(w, http.StatusUnprocessableEntity, "Amount must be a positive value")
		case errors.Is(err, core.ErrInvalidDate):
			writeErrors(w, http.StatusUnprocessableEntity, "Date must be formatted as YYYY-MM-DD")
		default:
			writeErrors(w, http.StatusBadRequest, "Malformed JSON body")
		}
		return in, false
	}
	return in, true
}

// changed drops stale cache entries and logs a successful write.
func (a *resourceAPI[T]) changed(r *http.Request, op string, id int64) {
	invalidate(a.cache, a.svc.Name())
	a.metrics.RecordResourceWrite(a.svc.Name(), op)
	log.NewStructuredLogger(log.FromContext(r.Context())).LogResourceChange(r.Context(), a.svc.Name(), op, id)
}

func (a *resourceAPI[T]) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err)
}

// writeError maps service errors onto status codes and the {"errors": [...]}
// body. Unexpected errors are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrors(w, http.StatusUnprocessableEntity, verr.Messages...)
	case errors.Is(err, storage.ErrInUse):
		writeErrors(w, http.StatusUnprocessableEntity, "Category has entries")
	case errors.Is(err, repository.ErrNotFound):
		writeErrors(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrors(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, r.Method,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, ""))
		writeErrors(w, http.StatusInternalServerError, "Internal server error")
	}
}

type reportRow struct {
	CategoryID int64      `json:"categoryId"`
	Name       string     `json:"name"`
	Amount     core.Money `json:"amount"`
}

func reportKind(w http.ResponseWriter, r *http.Request) (core.EntryType, bool) {
	kind := core.EntryType(r.URL.Query().Get("type"))
	if kind == "" {
		kind = core.Expense
	}
	if !kind.IsValid() {
		writeErrors(w, http.StatusBadRequest, "type must be expense or revenue")
		return "", false
	}
	return kind, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	kind, ok := reportKind(w, r)
	if !ok {
		return
	}
	body, err := s.cache.GetOrLoad(r.Context(), reportsKey+string(kind)+":json", func(ctx context.Context) ([]byte, error) {
		totals, err := s.ledger.Report(ctx, kind)
		if err != nil {
			return nil, err
		}
		rows := make([]reportRow, 0, len(totals))
		for _, t := range totals {
			rows = append(rows, reportRow{CategoryID: t.CategoryID, Name: t.Name, Amount: t.Amount})
		}
		return json.Marshal(rows)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, "application/json", body)
}

func (s *Server) handleReportChart(w http.ResponseWriter, r *http.Request) {
	kind, ok := reportKind(w, r)
	if !ok {
		return
	}
	png, err := s.cache.GetOrLoad(r.Context(), reportsKey+string(kind)+":png", func(ctx context.Context) ([]byte, error) {
		totals, err := s.ledger.Report(ctx, kind)
		if err != nil {
			return nil, err
		}
		return charts.CategoryTotals(kind, totals)
	})
	if errors.Is(err, charts.ErrNoData) {
		writeErrors(w, http.StatusNotFound, "No entries to report")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, "image/png", png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports 503 when the storage backend does not answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}
	if s.pinger == nil {
		checks["storage"] = "ok"
	} else if err := s.pinger.Ping(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	stats := s.cache.Stats()
	checks["cache"] = map[string]any{"size": stats.Size, "hits": stats.Hits, "misses": stats.Misses}
	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients(), "rejected": s.limiter.Rejected()}
	m := s.tracer.Metrics()
	checks["requests"] = map[string]any{"total": m.TotalRequests, "in_flight": m.InFlight, "server_errors": m.ServerErrors}

	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrors(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, "application/json", body)
}

func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	writeJSON(w, status, struct {
		Errors []string `json:"errors"`
	}{Errors: msgs})
}

func writeRaw(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
