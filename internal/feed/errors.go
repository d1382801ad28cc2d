package feed

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores and the updater.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidCriteria = errors.New("invalid criteria")
	ErrCycleInProgress = errors.New("update cycle already in progress")
	ErrFeedInactive    = errors.New("feed is inactive")
)

// CatalogFetchError aborts a whole cycle: no feed can be updated without data.
type CatalogFetchError struct {
	Err error
}

func (e *CatalogFetchError) Error() string {
	return fmt.Sprintf("catalog fetch: %v", e.Err)
}

func (e *CatalogFetchError) Unwrap() error { return e.Err }

// SerializationError is a per-feed failure building the RSS document.
type SerializationError struct {
	FeedID string
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize feed %s: %v", e.FeedID, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// StoragePersistError is a per-feed failure reading or writing storage.
// The feed keeps its previous document and history until the next successful cycle.
type StoragePersistError struct {
	FeedID string
	Op     string
	Err    error
}

func (e *StoragePersistError) Error() string {
	return fmt.Sprintf("storage %s for feed %s: %v", e.Op, e.FeedID, e.Err)
}

func (e *StoragePersistError) Unwrap() error { return e.Err }
