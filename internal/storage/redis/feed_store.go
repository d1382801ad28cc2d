// Package redis implements feed.Store on a Redis-compatible key-value server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// Config captures connection settings. URL takes precedence over Addr.
type Config struct {
	URL       string
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// FeedStore keeps each feed under feeds:{id}, its history under feed_history:{id}, its
// document under rss:{id}, global bookkeeping under global_config and the id set under
// feeds:index.
type FeedStore struct {
	client *goredis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*FeedStore, error) {
	var opts *goredis.Options
	switch {
	case cfg.URL != "":
		parsed, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Addr != "":
		opts = &goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or addr is required")
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, keyPrefix string) *FeedStore {
	prefix := strings.TrimSuffix(keyPrefix, ":")
	if prefix != "" {
		prefix += ":"
	}
	return &FeedStore{client: client, prefix: prefix}
}

func (s *FeedStore) feedKey(id string) string    { return s.prefix + "feeds:" + id }
func (s *FeedStore) historyKey(id string) string { return s.prefix + "feed_history:" + id }
func (s *FeedStore) rssKey(id string) string     { return s.prefix + "rss:" + id }
func (s *FeedStore) indexKey() string            { return s.prefix + "feeds:index" }
func (s *FeedStore) globalKey() string           { return s.prefix + "global_config" }

func (s *FeedStore) getJSON(ctx context.Context, key string, dst any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%s: %w", key, feed.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *FeedStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// ListFeeds returns every indexed feed, newest first.
func (s *FeedStore) ListFeeds(ctx context.Context) ([]feed.Feed, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read feed index: %w", err)
	}
	if len(ids) == 0 {
		return []feed.Feed{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.feedKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read feeds: %w", err)
	}
	out := make([]feed.Feed, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var f feed.Feed
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
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
func (s *FeedStore) GetFeed(ctx context.Context, id string) (feed.Feed, error) {
	var f feed.Feed
	if err := s.getJSON(ctx, s.feedKey(id), &f); err != nil {
		return feed.Feed{}, err
	}
	return f, nil
}

// SaveFeed stores the feed and indexes its id in one transaction.
func (s *FeedStore) SaveFeed(ctx context.Context, f feed.Feed) error {
	if f.ID == "" {
		return errors.New("feed id is required")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.feedKey(f.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), f.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save feed %s: %w", f.ID, err)
	}
	return nil
}

// GetFeedHistory returns the history or feed.ErrNotFound.
func (s *FeedStore) GetFeedHistory(ctx context.Context, id string) (feed.History, error) {
	var h feed.History
	if err := s.getJSON(ctx, s.historyKey(id), &h); err != nil {
		return feed.History{}, err
	}
	return h, nil
}

// SaveFeedHistory replaces the history.
func (s *FeedStore) SaveFeedHistory(ctx context.Context, id string, h feed.History) error {
	return s.setJSON(ctx, s.historyKey(id), h)
}

// SaveFeedDocument replaces the document.
func (s *FeedStore) SaveFeedDocument(ctx context.Context, id string, content []byte) error {
	if err := s.client.Set(ctx, s.rssKey(id), content, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.rssKey(id), err)
	}
	return nil
}

// GetFeedDocument returns the document or feed.ErrNotFound.
func (s *FeedStore) GetFeedDocument(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.rssKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%s: %w", s.rssKey(id), feed.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.rssKey(id), err)
	}
	return data, nil
}

// GetGlobalConfig returns the stored config or the defaults.
func (s *FeedStore) GetGlobalConfig(ctx context.Context) (feed.GlobalConfig, error) {
	var cfg feed.GlobalConfig
	err := s.getJSON(ctx, s.globalKey(), &cfg)
	if errors.Is(err, feed.ErrNotFound) {
		return feed.DefaultGlobalConfig(), nil
	}
	if err != nil {
		return feed.GlobalConfig{}, err
	}
	return cfg, nil
}

// SaveGlobalConfig replaces the global config.
func (s *FeedStore) SaveGlobalConfig(ctx context.Context, cfg feed.GlobalConfig) error {
	return s.setJSON(ctx, s.globalKey(), cfg)
}

// CommitFeedUpdate writes feed, history and document inside MULTI/EXEC.
func (s *FeedStore) CommitFeedUpdate(ctx context.Context, u feed.FeedUpdate) error {
	id := u.Feed.ID
	if id == "" {
		return errors.New("feed id is required")
	}
	feedData, err := json.Marshal(u.Feed)
	if err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "encode feed", Err: err}
	}
	histData, err := json.Marshal(u.History)
	if err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "encode history", Err: err}
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.rssKey(id), u.Document, 0)
		pipe.Set(ctx, s.historyKey(id), histData, 0)
		pipe.Set(ctx, s.feedKey(id), feedData, 0)
		pipe.SAdd(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "commit", Err: err}
	}
	return nil
}

// Close closes the Redis connection.
func (s *FeedStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
