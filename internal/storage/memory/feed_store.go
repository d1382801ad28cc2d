package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// FeedStore implements feed.Store with mutex-guarded maps. Values are copied on the way
// in and out, so callers never share state with the store.
type FeedStore struct {
	mu        sync.RWMutex
	feeds     map[string]feed.Feed
	histories map[string]feed.History
	documents map[string][]byte
	global    *feed.GlobalConfig

	// FailCommit, when set, is returned by CommitFeedUpdate for the matching feed ID.
	FailCommit func(id string) error
	// FailSaveGlobal, when set, is returned by SaveGlobalConfig.
	FailSaveGlobal func() error
}

// NewFeedStore returns an empty store.
func NewFeedStore() *FeedStore {
	return &FeedStore{
		feeds:     make(map[string]feed.Feed),
		histories: make(map[string]feed.History),
		documents: make(map[string][]byte),
	}
}

// ListFeeds returns all feeds, newest first.
func (s *FeedStore) ListFeeds(_ context.Context) ([]feed.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		out = append(out, f)
	}
	feed.SortNewestFirst(out)
	return out, nil
}

// GetActiveFeeds returns active feeds, newest first.
func (s *FeedStore) GetActiveFeeds(ctx context.Context) ([]feed.Feed, error) {
	all, err := s.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}
	return feed.ActiveOnly(all), nil
}

// GetFeed returns the feed or feed.ErrNotFound.
func (s *FeedStore) GetFeed(_ context.Context, id string) (feed.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.feeds[id]
	if !ok {
		return feed.Feed{}, fmt.Errorf("feed %s: %w", id, feed.ErrNotFound)
	}
	return f, nil
}

// SaveFeed upserts the feed.
func (s *FeedStore) SaveFeed(_ context.Context, f feed.Feed) error {
	if f.ID == "" {
		return errors.New("feed id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[f.ID] = f
	return nil
}

// GetFeedHistory returns the history or feed.ErrNotFound.
func (s *FeedStore) GetFeedHistory(_ context.Context, id string) (feed.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[id]
	if !ok {
		return feed.History{}, fmt.Errorf("history %s: %w", id, feed.ErrNotFound)
	}
	return h.Clone(), nil
}

// SaveFeedHistory replaces the history.
func (s *FeedStore) SaveFeedHistory(_ context.Context, id string, h feed.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[id] = h.Clone()
	return nil
}

// SaveFeedDocument replaces the serialized document.
func (s *FeedStore) SaveFeedDocument(_ context.Context, id string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[id] = append([]byte(nil), content...)
	return nil
}

// GetFeedDocument returns the document or feed.ErrNotFound.
func (s *FeedStore) GetFeedDocument(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, feed.ErrNotFound)
	}
	return append([]byte(nil), doc...), nil
}

// GetGlobalConfig returns the stored config or the defaults.
func (s *FeedStore) GetGlobalConfig(_ context.Context) (feed.GlobalConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return feed.DefaultGlobalConfig(), nil
	}
	return *s.global, nil
}

// SaveGlobalConfig replaces the global config.
func (s *FeedStore) SaveGlobalConfig(_ context.Context, cfg feed.GlobalConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaveGlobal != nil {
		if err := s.FailSaveGlobal(); err != nil {
			return err
		}
	}
	s.global = &cfg
	return nil
}

// CommitFeedUpdate writes feed, history and document under one lock.
func (s *FeedStore) CommitFeedUpdate(_ context.Context, u feed.FeedUpdate) error {
	if u.Feed.ID == "" {
		return errors.New("feed id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCommit != nil {
		if err := s.FailCommit(u.Feed.ID); err != nil {
			return err
		}
	}
	s.feeds[u.Feed.ID] = u.Feed
	s.histories[u.Feed.ID] = u.History.Clone()
	s.documents[u.Feed.ID] = append([]byte(nil), u.Document...)
	return nil
}

// Close is a no-op.
func (s *FeedStore) Close() error {
	return nil
}
