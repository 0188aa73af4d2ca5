package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// terminal is the front-end seen by form controllers: notifications go to
// the writers and navigation only updates the current location.
type terminal struct {
	out, errOut io.Writer

	mu       sync.Mutex
	location string
	history  []string
}

func newTerminal(out, errOut io.Writer) *terminal {
	return &terminal{out: out, errOut: errOut}
}

func (t *terminal) Navigate(_ context.Context, segments []string, skipLocationChange bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = "/" + strings.Join(segments, "/")
	if !skipLocationChange {
		t.history = append(t.history, t.location)
		fmt.Fprintf(t.out, "-> %s\n", t.location)
	}
	return nil
}

func (t *terminal) Success(msg string) { fmt.Fprintf(t.out, "OK: %s\n", msg) }
func (t *terminal) Error(msg string)   { fmt.Fprintf(t.errOut, "ERRO: %s\n", msg) }

func (t *terminal) Location() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}
