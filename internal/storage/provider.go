// Package storage defines the object-store abstraction the blob-backed feed store runs on.
// This allows feeds to live in Google Cloud Storage, the local filesystem or memory
// without the engine knowing which.
package storage

import (
	"context"
)

// Bucket is a flat namespace of named objects.
type Bucket interface {
	// Put writes data under name, replacing any existing object atomically.
	Put(ctx context.Context, name, contentType string, data []byte) error
	// Get returns the object's content, or feed.ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the names under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
