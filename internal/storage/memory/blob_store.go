// Package memory keeps feeds and objects in process memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// Bucket stores objects in-memory.
type Bucket struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts int
}

// NewBucket creates a new in-memory bucket.
func NewBucket() *Bucket {
	return &Bucket{data: make(map[string][]byte)}
}

// Put persists a copy of data.
func (b *Bucket) Put(_ context.Context, name, _ string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("object name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[name] = append([]byte(nil), data...)
	b.puts++
	return nil
}

// Get returns a copy of the named object.
func (b *Bucket) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.data[name]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", name, feed.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List returns object names under prefix, sorted.
func (b *Bucket) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.data))
	for name := range b.data {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Puts reports how many writes the bucket has accepted.
func (b *Bucket) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}
