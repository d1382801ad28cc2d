// Package catalog defines the port the updater uses to pull catalog records.
package catalog

import (
	"context"
	"sync"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// Source supplies the most recent catalog records. Implementations exclude tombstoned
// entries and return an error rather than a partial batch.
type Source interface {
	FetchLatest(ctx context.Context, limit int) ([]feed.BookRecord, error)
}

// Static serves a fixed batch. It backs dry runs and tests.
type Static struct {
	mu    sync.Mutex
	books []feed.BookRecord
	err   error
	calls int
}

// NewStatic returns a Static source serving books.
func NewStatic(books []feed.BookRecord) *Static {
	return &Static{books: append([]feed.BookRecord(nil), books...)}
}

// SetBooks replaces the batch served by subsequent fetches.
func (s *Static) SetBooks(books []feed.BookRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append([]feed.BookRecord(nil), books...)
}

// SetError makes subsequent fetches fail with err (nil clears it).
func (s *Static) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the number of FetchLatest invocations.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FetchLatest returns up to limit books from the configured batch.
func (s *Static) FetchLatest(ctx context.Context, limit int) ([]feed.BookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	n := len(s.books)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]feed.BookRecord(nil), s.books[:n]...), nil
}
