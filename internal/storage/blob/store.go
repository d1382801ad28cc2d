// Package blob implements feed.Store on top of an object bucket (GCS, local disk, memory).
// Each feed lives in one state object holding its metadata, history and document, so a
// feed update is a single object write. A small index object per feed carries only the
// metadata for listings; the state object stays authoritative.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/storage"
)

const (
	feedsDir     = "feeds/"
	indexDir     = "index/"
	rssDir       = "rss/"
	globalObject = "config/global.json"
	jsonType     = "application/json"
	rssType      = "application/rss+xml; charset=utf-8"
)

// Config controls object naming.
type Config struct {
	// Prefix is prepended to every object name.
	Prefix string
	// PublishRSS also writes rss/{id}.xml after each commit for direct serving.
	PublishRSS bool
}

type state struct {
	Feed     *feed.Feed    `json:"feed,omitempty"`
	History  *feed.History `json:"history,omitempty"`
	Document *string       `json:"document,omitempty"`
}

// Store is a bucket-backed feed.Store.
type Store struct {
	bucket storage.Bucket
	prefix string
	rss    bool
	logger *zap.Logger

	// mu guards read-modify-write of state objects within this process.
	mu sync.Mutex
}

// New creates a Store over bucket.
func New(bucket storage.Bucket, cfg Config, logger *zap.Logger) (*Store, error) {
	if bucket == nil {
		return nil, errors.New("bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{bucket: bucket, prefix: prefix, rss: cfg.PublishRSS, logger: logger}, nil
}

func (s *Store) stateName(id string) string {
	return s.prefix + feedsDir + id + ".json"
}

func (s *Store) indexName(id string) string {
	return s.prefix + indexDir + id + ".json"
}

func (s *Store) writeIndex(ctx context.Context, f feed.Feed) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := s.bucket.Put(ctx, s.indexName(f.ID), jsonType, data); err != nil {
		return fmt.Errorf("put %s: %w", s.indexName(f.ID), err)
	}
	return nil
}

func (s *Store) loadIndex(ctx context.Context, id string) (feed.Feed, error) {
	var f feed.Feed
	data, err := s.bucket.Get(ctx, s.indexName(id))
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode %s: %w", s.indexName(id), err)
	}
	return f, nil
}

func (s *Store) load(ctx context.Context, id string) (state, error) {
	var st state
	data, err := s.bucket.Get(ctx, s.stateName(id))
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decode %s: %w", s.stateName(id), err)
	}
	return st, nil
}

func (s *Store) loadOrEmpty(ctx context.Context, id string) (state, error) {
	st, err := s.load(ctx, id)
	if errors.Is(err, feed.ErrNotFound) {
		return state{}, nil
	}
	return st, err
}

func (s *Store) write(ctx context.Context, id string, st state) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.bucket.Put(ctx, s.stateName(id), jsonType, data); err != nil {
		return fmt.Errorf("put %s: %w", s.stateName(id), err)
	}
	return nil
}

func (s *Store) modify(ctx context.Context, id string, fn func(*state)) error {
	if id == "" {
		return errors.New("feed id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadOrEmpty(ctx, id)
	if err != nil {
		return err
	}
	fn(&st)
	if err := s.write(ctx, id, st); err != nil {
		return err
	}
	if st.Feed != nil {
		return s.writeIndex(ctx, *st.Feed)
	}
	return nil
}

func objectIDs(names []string) map[string]bool {
	ids := make(map[string]bool, len(names))
	for _, name := range names {
		if path.Ext(name) == ".json" {
			ids[strings.TrimSuffix(path.Base(name), ".json")] = true
		}
	}
	return ids
}

// ListFeeds returns every stored feed, newest first. Feeds are read from their index
// objects; a feed without one falls back to its state object.
func (s *Store) ListFeeds(ctx context.Context) ([]feed.Feed, error) {
	stateNames, err := s.bucket.List(ctx, s.prefix+feedsDir)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	indexNames, err := s.bucket.List(ctx, s.prefix+indexDir)
	if err != nil {
		return nil, fmt.Errorf("list feed index: %w", err)
	}
	indexed := objectIDs(indexNames)
	out := make([]feed.Feed, 0, len(stateNames))
	for id := range objectIDs(stateNames) {
		if indexed[id] {
			f, err := s.loadIndex(ctx, id)
			if err == nil {
				out = append(out, f)
				continue
			}
			if !errors.Is(err, feed.ErrNotFound) {
				return nil, err
			}
		}
		st, err := s.load(ctx, id)
		if errors.Is(err, feed.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if st.Feed != nil {
			out = append(out, *st.Feed)
		}
	}
	feed.SortNewestFirst(out)
	return out, nil
}

// GetActiveFeeds returns active feeds, newest first.
func (s *Store) GetActiveFeeds(ctx context.Context) ([]feed.Feed, error) {
	all, err := s.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}
	return feed.ActiveOnly(all), nil
}

// GetFeed returns the feed or feed.ErrNotFound.
func (s *Store) GetFeed(ctx context.Context, id string) (feed.Feed, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return feed.Feed{}, err
	}
	if st.Feed == nil {
		return feed.Feed{}, fmt.Errorf("feed %s: %w", id, feed.ErrNotFound)
	}
	return *st.Feed, nil
}

// SaveFeed upserts the feed metadata, keeping history and document.
func (s *Store) SaveFeed(ctx context.Context, f feed.Feed) error {
	return s.modify(ctx, f.ID, func(st *state) { st.Feed = &f })
}

// GetFeedHistory returns the history or feed.ErrNotFound.
func (s *Store) GetFeedHistory(ctx context.Context, id string) (feed.History, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return feed.History{}, err
	}
	if st.History == nil {
		return feed.History{}, fmt.Errorf("history %s: %w", id, feed.ErrNotFound)
	}
	return *st.History, nil
}

// SaveFeedHistory replaces the history.
func (s *Store) SaveFeedHistory(ctx context.Context, id string, h feed.History) error {
	return s.modify(ctx, id, func(st *state) { st.History = &h })
}

// SaveFeedDocument replaces the document.
func (s *Store) SaveFeedDocument(ctx context.Context, id string, content []byte) error {
	doc := string(content)
	return s.modify(ctx, id, func(st *state) { st.Document = &doc })
}

// GetFeedDocument returns the document or feed.ErrNotFound.
func (s *Store) GetFeedDocument(ctx context.Context, id string) ([]byte, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Document == nil {
		return nil, fmt.Errorf("document %s: %w", id, feed.ErrNotFound)
	}
	return []byte(*st.Document), nil
}

// GetGlobalConfig returns the stored config or the defaults.
func (s *Store) GetGlobalConfig(ctx context.Context) (feed.GlobalConfig, error) {
	data, err := s.bucket.Get(ctx, s.prefix+globalObject)
	if errors.Is(err, feed.ErrNotFound) {
		return feed.DefaultGlobalConfig(), nil
	}
	if err != nil {
		return feed.GlobalConfig{}, fmt.Errorf("get global config: %w", err)
	}
	var cfg feed.GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return feed.GlobalConfig{}, fmt.Errorf("decode global config: %w", err)
	}
	return cfg, nil
}

// SaveGlobalConfig replaces the global config.
func (s *Store) SaveGlobalConfig(ctx context.Context, cfg feed.GlobalConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode global config: %w", err)
	}
	if err := s.bucket.Put(ctx, s.prefix+globalObject, jsonType, data); err != nil {
		return fmt.Errorf("put global config: %w", err)
	}
	return nil
}

// CommitFeedUpdate writes the feed's state object in one Put. The index object and the
// optional RSS copy are written afterwards and their failures are only logged.
func (s *Store) CommitFeedUpdate(ctx context.Context, u feed.FeedUpdate) error {
	f, h, doc := u.Feed, u.History, string(u.Document)
	if f.ID == "" {
		return errors.New("feed id is required")
	}
	s.mu.Lock()
	err := s.write(ctx, f.ID, state{Feed: &f, History: &h, Document: &doc})
	s.mu.Unlock()
	if err != nil {
		return &feed.StoragePersistError{FeedID: f.ID, Op: "commit", Err: err}
	}
	if err := s.writeIndex(ctx, f); err != nil {
		s.logger.Warn("feed index update failed", zap.String("feed_id", f.ID), zap.Error(err))
	}
	if s.rss {
		if err := s.bucket.Put(ctx, s.prefix+rssDir+f.ID+".xml", rssType, u.Document); err != nil {
			s.logger.Warn("publish rss copy failed", zap.String("feed_id", f.ID), zap.Error(err))
		}
	}
	return nil
}

// Close releases nothing; buckets are owned by the caller.
func (s *Store) Close() error {
	return nil
}
