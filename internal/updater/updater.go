// Package updater runs the feed update cycle: one catalog fetch, then per-feed matching,
// deduplication, serialization and an atomic commit for every active feed.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/bookfeed/internal/catalog"
	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/history"
	"github.com/JakeFAU/bookfeed/internal/matcher"
	"github.com/JakeFAU/bookfeed/internal/metrics"
)

// Serializer renders a feed document.
type Serializer interface {
	Serialize(f feed.Feed, books []feed.BookRecord) ([]byte, error)
}

// Config controls Updater behavior.
type Config struct {
	BatchSize   int
	Concurrency int
	// FeedTimeout bounds a single feed update; zero disables the bound.
	FeedTimeout time.Duration
	Topic       string
}

// FeedReport describes one successful feed update.
type FeedReport struct {
	FeedID  string `json:"feedId"`
	Matched int    `json:"matched"`
	New     int    `json:"new"`
	Items   int    `json:"items"`
}

// Updater orchestrates update cycles.
type Updater struct {
	store      feed.Store
	source     catalog.Source
	tracker    *history.Tracker
	serializer Serializer
	clock      feed.Clock
	publisher  feed.Publisher
	cfg        Config
	logger     *zap.Logger

	cycle    sync.Mutex
	feeds    *keyedMutex
	state    atomic.Int32
	resultMu sync.RWMutex
	last     *feed.CycleResult
	// globalMu serializes read-modify-write of the global config record.
	globalMu sync.Mutex
}

// New constructs an Updater. A nil publisher disables cycle summaries.
func New(
	store feed.Store,
	source catalog.Source,
	tracker *history.Tracker,
	serializer Serializer,
	clock feed.Clock,
	publisher feed.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Updater {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if tracker == nil {
		tracker = history.New(history.DefaultRetention)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Updater{
		store:      store,
		source:     source,
		tracker:    tracker,
		serializer: serializer,
		clock:      clock,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
		feeds:      newKeyedMutex(),
	}
}

// State reports where the current cycle is, or StateIdle.
func (u *Updater) State() State {
	return State(u.state.Load())
}

// LastResult returns the most recent cycle result, if any cycle has finished.
func (u *Updater) LastResult() (feed.CycleResult, bool) {
	u.resultMu.RLock()
	defer u.resultMu.RUnlock()
	if u.last == nil {
		return feed.CycleResult{}, false
	}
	return *u.last, true
}

// RunCycle updates every active feed against one freshly fetched catalog batch.
// Per-feed failures are collected in the result; the returned error is non-nil only when
// the cycle could not run (overlap, feed listing, catalog fetch) or global bookkeeping failed.
func (u *Updater) RunCycle(ctx context.Context) (feed.CycleResult, error) {
	if !u.cycle.TryLock() {
		return feed.CycleResult{}, feed.ErrCycleInProgress
	}
	defer u.cycle.Unlock()
	defer u.setState(StateIdle)

	started := u.clock.Now()
	result := feed.CycleResult{StartedAt: started, Failures: []feed.Failure{}}

	feeds, err := u.store.GetActiveFeeds(ctx)
	if err != nil {
		u.finish(&result, "failed")
		return result, fmt.Errorf("load active feeds: %w", err)
	}
	result.Total = len(feeds)
	if len(feeds) == 0 {
		u.logger.Info("no active feeds, skipping catalog fetch")
		u.finish(&result, "empty")
		return result, nil
	}

	u.setState(StateFetchingCatalog)
	books, err := u.fetch(ctx)
	if err != nil {
		u.logger.Error("catalog fetch failed, aborting cycle", zap.Error(err))
		u.finish(&result, "catalog_error")
		return result, err
	}
	fetchedAt := u.clock.Now()
	result.BooksFetched = len(books)
	metrics.ObserveBooksFetched(len(books))
	u.logger.Info("catalog batch fetched",
		zap.Int("books", len(books)),
		zap.Int("feeds", len(feeds)),
	)

	u.setState(StateProcessingFeeds)
	var (
		mu        sync.Mutex
		succeeded int
		g         errgroup.Group
	)
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Failures = append(result.Failures, feed.Failure{FeedID: id, Reason: err.Error()})
	}
	g.SetLimit(u.cfg.Concurrency)
	for i, f := range feeds {
		if err := ctx.Err(); err != nil {
			for _, skipped := range feeds[i:] {
				fail(skipped.ID, err)
			}
			break
		}
		g.Go(func() error {
			metrics.IncFeedsInFlight()
			defer metrics.DecFeedsInFlight()
			report, err := u.updateLocked(ctx, f, books)
			if errors.Is(err, feed.ErrFeedInactive) {
				u.logger.Info("feed deactivated during cycle, skipping", zap.String("feed_id", f.ID))
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}
			if err != nil {
				u.logger.Error("feed update failed",
					zap.String("feed_id", f.ID),
					zap.String("feed_name", f.Name),
					zap.Error(err),
				)
				metrics.ObserveFeedUpdate("failed", 0, 0)
				fail(f.ID, err)
				return nil
			}
			metrics.ObserveFeedUpdate("success", report.Matched, report.New)
			mu.Lock()
			succeeded++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	result.Succeeded = succeeded
	sort.SliceStable(result.Failures, func(i, j int) bool {
		return result.Failures[i].FeedID < result.Failures[j].FeedID
	})

	u.setState(StateFinalizing)
	globalErr := u.recordGlobal(ctx, fetchedAt)
	if globalErr != nil {
		u.logger.Error("global config update failed", zap.Error(globalErr))
	}

	outcome := "success"
	if !result.OK() {
		outcome = "partial"
	}
	u.finish(&result, outcome)
	u.publish(ctx, result)
	u.logger.Info("update cycle finished",
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, globalErr
}

// UpdateSingleFeed runs the per-feed pipeline for f. A nil books slice fetches a fresh batch;
// an empty non-nil slice updates against no records.
func (u *Updater) UpdateSingleFeed(ctx context.Context, f feed.Feed, books []feed.BookRecord) (FeedReport, error) {
	if books == nil {
		fetched, err := u.fetch(ctx)
		if err != nil {
			return FeedReport{}, err
		}
		books = fetched
	}
	return u.updateLocked(ctx, f, books)
}

// SeedInitialFeed writes the first document for a newly created feed. Any stored history is kept.
func (u *Updater) SeedInitialFeed(ctx context.Context, f feed.Feed) error {
	if _, err := u.updateLocked(ctx, f, []feed.BookRecord{}); err != nil {
		return fmt.Errorf("seed feed %s: %w", f.ID, err)
	}
	u.logger.Info("feed seeded", zap.String("feed_id", f.ID), zap.String("feed_name", f.Name))
	return nil
}

func (u *Updater) fetch(ctx context.Context) ([]feed.BookRecord, error) {
	books, err := u.source.FetchLatest(ctx, u.cfg.BatchSize)
	if err != nil {
		return nil, &feed.CatalogFetchError{Err: err}
	}
	return books, nil
}

func (u *Updater) updateLocked(ctx context.Context, f feed.Feed, books []feed.BookRecord) (FeedReport, error) {
	if f.ID == "" {
		return FeedReport{}, errors.New("feed id is required")
	}
	unlock := u.feeds.lock(f.ID)
	defer unlock()
	if u.cfg.FeedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.FeedTimeout)
		defer cancel()
	}
	current, err := u.refresh(ctx, f)
	if err != nil {
		return FeedReport{}, err
	}
	return u.updateFeed(ctx, current, books)
}

// refresh re-reads f under its lock so the commit never resurrects a feed deactivated
// after f was listed. A feed not stored yet is committed as given.
func (u *Updater) refresh(ctx context.Context, f feed.Feed) (feed.Feed, error) {
	current, err := u.store.GetFeed(ctx, f.ID)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		return f, nil
	case err != nil:
		return feed.Feed{}, &feed.StoragePersistError{FeedID: f.ID, Op: "load feed", Err: err}
	case !current.Active:
		return feed.Feed{}, fmt.Errorf("feed %s: %w", f.ID, feed.ErrFeedInactive)
	}
	return current, nil
}

func (u *Updater) updateFeed(ctx context.Context, f feed.Feed, books []feed.BookRecord) (FeedReport, error) {
	prior, err := u.store.GetFeedHistory(ctx, f.ID)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		prior = feed.History{}
	case err != nil:
		return FeedReport{}, &feed.StoragePersistError{FeedID: f.ID, Op: "load history", Err: err}
	}

	matches := matcher.Filter(books, f.Criteria)
	isbns := make([]string, 0, len(matches))
	for _, b := range matches {
		isbns = append(isbns, b.ISBN13)
	}
	_, fresh := u.tracker.Partition(prior, isbns)

	display := displayOrder(matches)
	if limit := f.EffectiveMaxItems(); len(display) > limit {
		display = display[:limit]
	}

	doc, err := u.serializer.Serialize(f, display)
	if err != nil {
		var se *feed.SerializationError
		if errors.As(err, &se) {
			return FeedReport{}, err
		}
		return FeedReport{}, &feed.SerializationError{FeedID: f.ID, Err: err}
	}

	now := u.clock.Now()
	f.LastUpdated = now
	update := feed.FeedUpdate{
		Feed:     f,
		History:  u.tracker.Merge(prior, isbns, now),
		Document: doc,
	}
	if err := ctx.Err(); err != nil {
		return FeedReport{}, fmt.Errorf("feed %s: %w", f.ID, err)
	}
	if err := u.store.CommitFeedUpdate(ctx, update); err != nil {
		var pe *feed.StoragePersistError
		if errors.As(err, &pe) {
			return FeedReport{}, err
		}
		return FeedReport{}, &feed.StoragePersistError{FeedID: f.ID, Op: "commit", Err: err}
	}

	report := FeedReport{FeedID: f.ID, Matched: len(matches), New: len(fresh), Items: len(display)}
	u.logger.Info("feed updated",
		zap.String("feed_id", f.ID),
		zap.String("feed_name", f.Name),
		zap.Int("matched", report.Matched),
		zap.Int("new", report.New),
	)
	return report, nil
}

// displayOrder sorts newest publication first. Undated records go last; ties keep batch order.
func displayOrder(books []feed.BookRecord) []feed.BookRecord {
	type dated struct {
		book feed.BookRecord
		at   time.Time
		ok   bool
	}
	rows := make([]dated, len(books))
	for i, b := range books {
		at, ok := b.PublishedAt()
		rows[i] = dated{book: b, at: at, ok: ok}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.at.After(b.at)
	})
	out := make([]feed.BookRecord, len(rows))
	for i, r := range rows {
		out[i] = r.book
	}
	return out
}

func (u *Updater) recordGlobal(ctx context.Context, fetchedAt time.Time) error {
	u.globalMu.Lock()
	defer u.globalMu.Unlock()
	cfg, err := u.store.GetGlobalConfig(ctx)
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	cfg.LastGlobalUpdateAt = u.clock.Now()
	cfg.LastCatalogFetchAt = fetchedAt
	cfg.MaxBooksPerRequest = u.cfg.BatchSize
	if err := u.store.SaveGlobalConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save global config: %w", err)
	}
	return nil
}

func (u *Updater) publish(ctx context.Context, result feed.CycleResult) {
	if u.publisher == nil {
		return
	}
	payload := struct {
		feed.CycleResult
		Summary string `json:"summary"`
	}{CycleResult: result, Summary: result.Summary()}
	id, err := u.publisher.Publish(ctx, u.cfg.Topic, payload)
	if err != nil {
		u.logger.Warn("publish cycle summary failed", zap.Error(err))
		return
	}
	u.logger.Debug("cycle summary published", zap.String("message_id", id))
}

func (u *Updater) finish(result *feed.CycleResult, outcome string) {
	result.FinishedAt = u.clock.Now()
	metrics.ObserveCycle(outcome, result.FinishedAt.Sub(result.StartedAt))
	snapshot := *result
	snapshot.Failures = append([]feed.Failure(nil), result.Failures...)
	u.resultMu.Lock()
	u.last = &snapshot
	u.resultMu.Unlock()
}

func (u *Updater) setState(s State) {
	u.state.Store(int32(s))
}
