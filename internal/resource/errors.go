package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ledger/internal/log"
)

// HTTPError is returned when the server answers with a non-2xx status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// TransportError is returned when no response was received.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// errorBody is the server's error contract.
type errorBody struct {
	Errors []string `json:"errors"`
}

// ServerMessages extracts the messages of an unprocessable entity response
// body ({"errors": [...]}). It reports false for any other failure.
func ServerMessages(err error) ([]string, bool) {
	var herr *HTTPError
	if !errors.As(err, &herr) || herr.StatusCode != http.StatusUnprocessableEntity {
		return nil, false
	}
	var body errorBody
	if err := json.Unmarshal(herr.Body, &body); err != nil || len(body.Errors) == 0 {
		return nil, false
	}
	return body.Errors, true
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}

func errorType(err error) string {
	var terr *TransportError
	if errors.As(err, &terr) {
		return log.ErrorTypeNetwork
	}
	switch StatusCode(err) {
	case 0:
		return log.ErrorTypeInternal
	case http.StatusUnprocessableEntity:
		return log.ErrorTypeValidation
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	default:
		return log.ErrorTypeHTTP
	}
}
