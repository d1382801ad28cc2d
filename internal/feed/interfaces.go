package feed

import (
	"context"
	"time"
)

// Store persists feeds, their histories, documents and global bookkeeping.
// Every operation is atomic for a single key; CommitFeedUpdate is atomic for one feed.
type Store interface {
	ListFeeds(ctx context.Context) ([]Feed, error)
	GetActiveFeeds(ctx context.Context) ([]Feed, error)
	GetFeed(ctx context.Context, id string) (Feed, error)
	SaveFeed(ctx context.Context, f Feed) error
	GetFeedHistory(ctx context.Context, id string) (History, error)
	SaveFeedHistory(ctx context.Context, id string, h History) error
	SaveFeedDocument(ctx context.Context, id string, content []byte) error
	GetFeedDocument(ctx context.Context, id string) ([]byte, error)
	GetGlobalConfig(ctx context.Context) (GlobalConfig, error)
	SaveGlobalConfig(ctx context.Context, cfg GlobalConfig) error
	CommitFeedUpdate(ctx context.Context, update FeedUpdate) error
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces feed IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests used for document ETags.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher pushes cycle summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
