// Package postgres provides a Postgres-backed feed.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// Schema creates the tables the store uses. Feed, history and global records are kept as
// JSONB in the same camelCase shape the other backends write.
const Schema = `
CREATE TABLE IF NOT EXISTS feeds (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	active     BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS feeds_active_created_idx ON feeds (active, created_at DESC);
CREATE TABLE IF NOT EXISTS feed_histories (
	feed_id TEXT PRIMARY KEY,
	data    JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS feed_documents (
	feed_id    TEXT PRIMARY KEY,
	content    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS global_config (
	id   SMALLINT PRIMARY KEY,
	data JSONB NOT NULL
);`

const (
	upsertFeedSQL = `INSERT INTO feeds (id, data, active, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, active = EXCLUDED.active, created_at = EXCLUDED.created_at`
	upsertHistorySQL = `INSERT INTO feed_histories (feed_id, data) VALUES ($1, $2)
ON CONFLICT (feed_id) DO UPDATE SET data = EXCLUDED.data`
	upsertDocumentSQL = `INSERT INTO feed_documents (feed_id, content, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (feed_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`
	upsertGlobalSQL = `INSERT INTO global_config (id, data) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`
	listFeedsSQL   = `SELECT data FROM feeds ORDER BY created_at DESC, id`
	activeFeedsSQL = `SELECT data FROM feeds WHERE active ORDER BY created_at DESC, id`
	getFeedSQL     = `SELECT data FROM feeds WHERE id = $1`
	getHistorySQL  = `SELECT data FROM feed_histories WHERE feed_id = $1`
	getDocumentSQL = `SELECT content FROM feed_documents WHERE feed_id = $1`
	getGlobalSQL   = `SELECT data FROM global_config WHERE id = 1`
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Migrate runs Schema on startup.
	Migrate bool
}

// Pool is the subset of *pgxpool.Pool the store needs; pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// FeedStore persists feeds in Postgres.
type FeedStore struct {
	pool Pool
	now  func() time.Time
}

// New creates a pool from cfg and returns a store over it.
func New(ctx context.Context, cfg Config) (*FeedStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool Pool) (*FeedStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &FeedStore{pool: pool, now: time.Now}, nil
}

// Migrate creates the tables if they do not exist.
func (s *FeedStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, feed.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

func (s *FeedStore) queryFeeds(ctx context.Context, sql string) ([]feed.Feed, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()
	out := []feed.Feed{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		var f feed.Feed
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode feed: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return out, nil
}

// ListFeeds returns every feed, newest first.
func (s *FeedStore) ListFeeds(ctx context.Context) ([]feed.Feed, error) {
	return s.queryFeeds(ctx, listFeedsSQL)
}

// GetActiveFeeds returns active feeds, newest first.
func (s *FeedStore) GetActiveFeeds(ctx context.Context) ([]feed.Feed, error) {
	return s.queryFeeds(ctx, activeFeedsSQL)
}

// GetFeed returns the feed or feed.ErrNotFound.
func (s *FeedStore) GetFeed(ctx context.Context, id string) (feed.Feed, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, getFeedSQL, id).Scan(&data); err != nil {
		return feed.Feed{}, notFound(err, "feed "+id)
	}
	var f feed.Feed
	if err := json.Unmarshal(data, &f); err != nil {
		return feed.Feed{}, fmt.Errorf("decode feed %s: %w", id, err)
	}
	return f, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertFeed(ctx context.Context, db execer, f feed.Feed) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	if _, err := db.Exec(ctx, upsertFeedSQL, f.ID, data, f.Active, f.CreatedAt); err != nil {
		return fmt.Errorf("upsert feed %s: %w", f.ID, err)
	}
	return nil
}

func upsertHistory(ctx context.Context, db execer, id string, h feed.History) error {
	if h.ProcessedISBNs == nil {
		h.ProcessedISBNs = []string{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if _, err := db.Exec(ctx, upsertHistorySQL, id, data); err != nil {
		return fmt.Errorf("upsert history %s: %w", id, err)
	}
	return nil
}

func upsertDocument(ctx context.Context, db execer, id string, content []byte, at time.Time) error {
	if content == nil {
		content = []byte{}
	}
	if _, err := db.Exec(ctx, upsertDocumentSQL, id, content, at); err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

// SaveFeed upserts the feed.
func (s *FeedStore) SaveFeed(ctx context.Context, f feed.Feed) error {
	if f.ID == "" {
		return errors.New("feed id is required")
	}
	return upsertFeed(ctx, s.pool, f)
}

// GetFeedHistory returns the history or feed.ErrNotFound.
func (s *FeedStore) GetFeedHistory(ctx context.Context, id string) (feed.History, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, getHistorySQL, id).Scan(&data); err != nil {
		return feed.History{}, notFound(err, "history "+id)
	}
	var h feed.History
	if err := json.Unmarshal(data, &h); err != nil {
		return feed.History{}, fmt.Errorf("decode history %s: %w", id, err)
	}
	return h, nil
}

// SaveFeedHistory replaces the history.
func (s *FeedStore) SaveFeedHistory(ctx context.Context, id string, h feed.History) error {
	return upsertHistory(ctx, s.pool, id, h)
}

// SaveFeedDocument replaces the document.
func (s *FeedStore) SaveFeedDocument(ctx context.Context, id string, content []byte) error {
	return upsertDocument(ctx, s.pool, id, content, s.now().UTC())
}

// GetFeedDocument returns the document or feed.ErrNotFound.
func (s *FeedStore) GetFeedDocument(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	if err := s.pool.QueryRow(ctx, getDocumentSQL, id).Scan(&content); err != nil {
		return nil, notFound(err, "document "+id)
	}
	return content, nil
}

// GetGlobalConfig returns the stored config or the defaults.
func (s *FeedStore) GetGlobalConfig(ctx context.Context) (feed.GlobalConfig, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, getGlobalSQL).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.DefaultGlobalConfig(), nil
	}
	if err != nil {
		return feed.GlobalConfig{}, fmt.Errorf("query global config: %w", err)
	}
	var cfg feed.GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return feed.GlobalConfig{}, fmt.Errorf("decode global config: %w", err)
	}
	return cfg, nil
}

// SaveGlobalConfig replaces the global config.
func (s *FeedStore) SaveGlobalConfig(ctx context.Context, cfg feed.GlobalConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode global config: %w", err)
	}
	if _, err := s.pool.Exec(ctx, upsertGlobalSQL, data); err != nil {
		return fmt.Errorf("upsert global config: %w", err)
	}
	return nil
}

// CommitFeedUpdate writes document, history and feed in one transaction.
func (s *FeedStore) CommitFeedUpdate(ctx context.Context, u feed.FeedUpdate) (err error) {
	id := u.Feed.ID
	if id == "" {
		return errors.New("feed id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = upsertDocument(ctx, tx, id, u.Document, u.Feed.LastUpdated); err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "commit", Err: err}
	}
	if err = upsertHistory(ctx, tx, id, u.History); err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "commit", Err: err}
	}
	if err = upsertFeed(ctx, tx, u.Feed); err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "commit", Err: err}
	}
	if err = tx.Commit(ctx); err != nil {
		return &feed.StoragePersistError{FeedID: id, Op: "commit", Err: err}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *FeedStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
