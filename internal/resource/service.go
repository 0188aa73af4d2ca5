// Package resource provides a generic client for CRUD style REST endpoints.
//
// A Service is parameterised over the resource type it manages. Callers
// supply the transport (anything with a Do method, *http.Client included)
// and a Decoder that turns raw JSON into a typed value, so one implementation
// serves every feature.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Decoder converts one raw JSON element into a typed resource.
type Decoder[T core.Resource] func(raw json.RawMessage) (T, error)

// DecodeJSON returns a Decoder that unmarshals straight into T.
func DecodeJSON[T core.Resource]() Decoder[T] {
	return func(raw json.RawMessage) (T, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return v, err
		}
		return v, nil
	}
}

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// Service wraps the five REST operations against a single base path.
type Service[T core.Resource] struct {
	doer    Doer
	baseURL string
	path    string
	decode  Decoder[T]
	logger  *log.Logger
	header  http.Header
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger *log.Logger
	header http.Header
}

// WithLogger sets the logger used by the error handler.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Add(key, value)
	}
}

// New creates a Service for the resources exposed at baseURL + path,
// e.g. New(client, "http://localhost:8081", "api/categories", DecodeJSON[core.Category]()).
func New[T core.Resource](doer Doer, baseURL, path string, decode Decoder[T], opts ...Option) *Service[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Default(log.ComponentResource)
	}
	if decode == nil {
		decode = DecodeJSON[T]()
	}
	return &Service[T]{
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    strings.Trim(path, "/"),
		decode:  decode,
		logger:  o.logger.With(log.FieldResource, strings.Trim(path, "/")),
		header:  o.header,
	}
}

// Path returns the base path the service operates on.
func (s *Service[T]) Path() string {
	return s.path
}

func (s *Service[T]) collectionURL() string {
	if s.baseURL == "" {
		return "/" + s.path
	}
	return s.baseURL + "/" + s.path
}

func (s *Service[T]) memberURL(id int64) string {
	return s.collectionURL() + "/" + strconv.FormatInt(id, 10)
}

// List fetches every resource from the base path.
func (s *Service[T]) List(ctx context.Context) ([]T, error) {
	body, err := s.send(ctx, log.OpList, http.MethodGet, s.collectionURL(), nil)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, s.handleError(ctx, log.OpList, fmt.Errorf("decode list: %w", err))
	}
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		v, err := s.decode(raw)
		if err != nil {
			return nil, s.handleError(ctx, log.OpList, fmt.Errorf("decode element %d: %w", i, err))
		}
		out = append(out, v)
	}
	return out, nil
}

// Get fetches the resource at {base}/{id}.
func (s *Service[T]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	body, err := s.send(ctx, log.OpGet, http.MethodGet, s.memberURL(id), nil)
	if err != nil {
		return zero, err
	}
	v, err := s.decode(body)
	if err != nil {
		return zero, s.handleError(ctx, log.OpGet, fmt.Errorf("decode resource %d: %w", id, err))
	}
	return v, nil
}

// Create posts r to the base path. The returned value, including its id,
// comes from the server response.
func (s *Service[T]) Create(ctx context.Context, r T) (T, error) {
	var zero T
	payload, err := json.Marshal(r)
	if err != nil {
		return zero, s.handleError(ctx, log.OpCreate, fmt.Errorf("encode resource: %w", err))
	}
	body, err := s.send(ctx, log.OpCreate, http.MethodPost, s.collectionURL(), payload)
	if err != nil {
		return zero, err
	}
	v, err := s.decode(body)
	if err != nil {
		return zero, s.handleError(ctx, log.OpCreate, fmt.Errorf("decode created resource: %w", err))
	}
	return v, nil
}

// Update puts r to {base}/{r.id} and returns r unchanged on success.
// The response body is not read back; any server-side normalisation is not
// reflected in the returned value.
func (s *Service[T]) Update(ctx context.Context, r T) (T, error) {
	var zero T
	payload, err := json.Marshal(r)
	if err != nil {
		return zero, s.handleError(ctx, log.OpUpdate, fmt.Errorf("encode resource: %w", err))
	}
	if _, err := s.send(ctx, log.OpUpdate, http.MethodPut, s.memberURL(r.Identifier()), payload); err != nil {
		return zero, err
	}
	return r, nil
}

// Delete removes the resource at {base}/{id}.
func (s *Service[T]) Delete(ctx context.Context, id int64) error {
	_, err := s.send(ctx, log.OpDelete, http.MethodDelete, s.memberURL(id), nil)
	return err
}

// send performs a single attempt and returns the response body of a 2xx reply.
func (s *Service[T]) send(ctx context.Context, op, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, s.handleError(ctx, op, &TransportError{Op: op, URL: url, Err: err})
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.doer.Do(req)
	if err != nil {
		return nil, s.handleError(ctx, op, &TransportError{Op: op, URL: url, Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, s.handleError(ctx, op, &TransportError{Op: op, URL: url, Err: fmt.Errorf("read body: %w", err)})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, s.handleError(ctx, op, &HTTPError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: body})
	}
	return body, nil
}

// handleError is the single failure funnel: it logs and hands the error back.
func (s *Service[T]) handleError(ctx context.Context, op string, err error) error {
	fields := log.NewFields().WithOperation(op).WithError(err).WithErrorType(errorType(err))
	s.logger.ErrorContext(ctx, "Resource request failed", fields.ToSlice()...)
	return err
}
