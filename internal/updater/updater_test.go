package updater

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/catalog"
	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/history"
	"github.com/JakeFAU/bookfeed/internal/publisher/memory"
	"github.com/JakeFAU/bookfeed/internal/rss"
	memstore "github.com/JakeFAU/bookfeed/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store  *memstore.FeedStore
	source *catalog.Static
	clock  *fakeClock
	pub    *memory.Publisher
	u      *Updater
}

func newHarness(t *testing.T, books []feed.BookRecord) *harness {
	t.Helper()
	h := &harness{
		store:  memstore.NewFeedStore(),
		source: catalog.NewStatic(books),
		clock:  &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		pub:    memory.New(0),
	}
	h.u = New(
		h.store,
		h.source,
		history.New(history.DefaultRetention),
		rss.NewSerializer(rss.Config{}, h.clock),
		h.clock,
		h.pub,
		Config{BatchSize: 1000, Concurrency: 2, Topic: "cycles"},
		zap.NewNop(),
	)
	return h
}

func (h *harness) addFeed(t *testing.T, f feed.Feed) {
	t.Helper()
	require.NoError(t, h.store.SaveFeed(context.Background(), f))
}

type parsed struct {
	Items []struct {
		GUID string `xml:"guid"`
	} `xml:"channel>item"`
}

func guids(t *testing.T, doc []byte) []string {
	t.Helper()
	var p parsed
	require.NoError(t, xml.Unmarshal(doc, &p))
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.GUID
	}
	return out
}

var programmingBook = feed.BookRecord{
	ISBN13:          "9784000000001",
	Title:           "実践プログラミング入門",
	PublicationDate: "20250115",
}

func programmingFeed(id string) feed.Feed {
	return feed.Feed{
		ID:       id,
		Name:     "programming",
		Criteria: feed.Criteria{TitleKeyword: "プログラミング"},
		Active:   true,
	}
}

func TestRunCycleTitleKeywordExample(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook, {ISBN13: "9784000000002", Title: "料理の本"}})
	h.addFeed(t, programmingFeed("f1"))

	result, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Equal(t, 1, result.Total)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 2, result.BooksFetched)
	require.Equal(t, "all 1 feeds updated", result.Summary())

	hist, err := h.store.GetFeedHistory(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, []string{"9784000000001"}, hist.ProcessedISBNs)
	require.Equal(t, 1, hist.TotalProcessed)

	doc, err := h.store.GetFeedDocument(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, []string{"9784000000001"}, guids(t, doc))

	stored, err := h.store.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.True(t, stored.LastUpdated.Equal(h.clock.Now()))
}

func TestRunCycleIsIdempotentForUnchangedBatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	h.addFeed(t, programmingFeed("f1"))

	_, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)
	first, err := h.store.GetFeedHistory(context.Background(), "f1")
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	_, err = h.u.RunCycle(context.Background())
	require.NoError(t, err)
	second, err := h.store.GetFeedHistory(context.Background(), "f1")
	require.NoError(t, err)

	require.Equal(t, first.ProcessedISBNs, second.ProcessedISBNs)
	require.Equal(t, 1, second.TotalProcessed)
	require.True(t, second.LastProcessedAt.After(first.LastProcessedAt))

	doc, err := h.store.GetFeedDocument(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, []string{"9784000000001"}, guids(t, doc))
}

func TestRunCycleNoActiveFeedsSkipsFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	inactive := programmingFeed("off")
	inactive.Active = false
	h.addFeed(t, inactive)

	result, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Total)
	require.Zero(t, h.source.Calls())

	cfg, err := h.store.GetGlobalConfig(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.LastGlobalUpdateAt.IsZero())
}

func TestRunCycleSkipsInactiveFeeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	h.addFeed(t, programmingFeed("on"))
	off := programmingFeed("off")
	off.Active = false
	h.addFeed(t, off)

	result, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	_, err = h.store.GetFeedDocument(context.Background(), "off")
	require.ErrorIs(t, err, feed.ErrNotFound)
}

func TestRunCycleCatalogFailureAbortsWithoutWrites(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.addFeed(t, programmingFeed("f1"))
	h.source.SetError(errors.New("openbd down"))

	result, err := h.u.RunCycle(context.Background())
	var fetchErr *feed.CatalogFetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Zero(t, result.Succeeded)

	_, err = h.store.GetFeedDocument(context.Background(), "f1")
	require.ErrorIs(t, err, feed.ErrNotFound)
	cfg, err := h.store.GetGlobalConfig(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.LastGlobalUpdateAt.IsZero())
	require.Equal(t, StateIdle, h.u.State())
}

func TestRunCycleIsolatesFeedFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	for i := 0; i < 4; i++ {
		f := programmingFeed(fmt.Sprintf("f%d", i))
		f.CreatedAt = time.Date(2025, 1, i+1, 0, 0, 0, 0, time.UTC)
		h.addFeed(t, f)
	}
	h.store.FailCommit = func(id string) error {
		if id == "f2" {
			return errors.New("write refused")
		}
		return nil
	}

	result, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)
	require.False(t, result.OK())
	require.Equal(t, 4, result.Total)
	require.Equal(t, 3, result.Succeeded)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "f2", result.Failures[0].FeedID)
	require.Contains(t, result.Failures[0].Reason, "write refused")
	require.Equal(t, "3 of 4 feeds updated, 1 errors", result.Summary())

	for _, id := range []string{"f0", "f1", "f3"} {
		_, err := h.store.GetFeedDocument(context.Background(), id)
		require.NoError(t, err, id)
	}
	_, err = h.store.GetFeedHistory(context.Background(), "f2")
	require.ErrorIs(t, err, feed.ErrNotFound)

	cfg, err := h.store.GetGlobalConfig(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.LastGlobalUpdateAt.Equal(h.clock.Now()))
	require.True(t, cfg.LastCatalogFetchAt.Equal(h.clock.Now()))
	require.Equal(t, 1000, cfg.MaxBooksPerRequest)
}

func TestRunCyclePublishesSummary(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	h.addFeed(t, programmingFeed("f1"))

	_, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)
	msg, ok := h.pub.Last()
	require.True(t, ok)
	require.Equal(t, "cycles", msg.Topic)

	last, ok := h.u.LastResult()
	require.True(t, ok)
	require.Equal(t, 1, last.Succeeded)
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.addFeed(t, programmingFeed("f1"))
	h.u.cycle.Lock()
	_, err := h.u.RunCycle(context.Background())
	h.u.cycle.Unlock()
	require.ErrorIs(t, err, feed.ErrCycleInProgress)
}

func TestRunCycleCancelledRecordsUnscheduledFeeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	h.addFeed(t, programmingFeed("f1"))
	h.addFeed(t, programmingFeed("f2"))

	ctx, cancel := context.WithCancel(context.Background())
	src := &cancelAfterFetch{Static: h.source, cancel: cancel}
	h.u.source = src

	result, err := h.u.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	require.Len(t, result.Failures, 2)
	require.Contains(t, result.Failures[0].Reason, context.Canceled.Error())
}

type cancelAfterFetch struct {
	*catalog.Static
	cancel context.CancelFunc
}

func (c *cancelAfterFetch) FetchLatest(ctx context.Context, limit int) ([]feed.BookRecord, error) {
	books, err := c.Static.FetchLatest(ctx, limit)
	c.cancel()
	return books, err
}

func TestUpdateSingleFeedCapsAndOrdersDisplay(t *testing.T) {
	t.Parallel()

	books := []feed.BookRecord{
		{ISBN13: "undated", Publisher: "P"},
		{ISBN13: "jan", Publisher: "P", PublicationDate: "2025-01-10"},
		{ISBN13: "mar", Publisher: "P", PublicationDate: "20250301"},
		{ISBN13: "feb-a", Publisher: "P", PublicationDate: "202502"},
		{ISBN13: "feb-b", Publisher: "P", PublicationDate: "2025-02"},
		{ISBN13: "other", Publisher: "Q", PublicationDate: "20991231"},
	}
	h := newHarness(t, nil)
	f := feed.Feed{ID: "cap", Criteria: feed.Criteria{Publisher: "P"}, Active: true, Settings: feed.Settings{MaxItems: 4}}

	report, err := h.u.UpdateSingleFeed(context.Background(), f, books)
	require.NoError(t, err)
	require.Equal(t, FeedReport{FeedID: "cap", Matched: 5, New: 5, Items: 4}, report)
	require.Zero(t, h.source.Calls())

	doc, err := h.store.GetFeedDocument(context.Background(), "cap")
	require.NoError(t, err)
	require.Equal(t, []string{"mar", "feb-a", "feb-b", "jan"}, guids(t, doc))

	hist, err := h.store.GetFeedHistory(context.Background(), "cap")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"undated", "jan", "mar", "feb-a", "feb-b"}, hist.ProcessedISBNs)
}

func TestUpdateSingleFeedFetchesWhenBooksNil(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	report, err := h.u.UpdateSingleFeed(context.Background(), programmingFeed("f1"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Matched)
	require.Equal(t, 1, h.source.Calls())
}

func TestSeedInitialFeedWritesEmptyDocument(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	require.NoError(t, h.u.SeedInitialFeed(context.Background(), programmingFeed("new")))
	require.Zero(t, h.source.Calls())

	doc, err := h.store.GetFeedDocument(context.Background(), "new")
	require.NoError(t, err)
	require.Empty(t, guids(t, doc))
	hist, err := h.store.GetFeedHistory(context.Background(), "new")
	require.NoError(t, err)
	require.Empty(t, hist.ProcessedISBNs)
}

func TestSeedInitialFeedPreservesHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	prior := feed.History{ProcessedISBNs: []string{"a", "b"}, TotalProcessed: 2}
	require.NoError(t, h.store.SaveFeedHistory(context.Background(), "f1", prior))

	require.NoError(t, h.u.SeedInitialFeed(context.Background(), programmingFeed("f1")))
	hist, err := h.store.GetFeedHistory(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, hist.ProcessedISBNs)
	require.Equal(t, 2, hist.TotalProcessed)
}

type failingSerializer struct{}

func (failingSerializer) Serialize(feed.Feed, []feed.BookRecord) ([]byte, error) {
	return nil, errors.New("boom")
}

func TestUpdateSingleFeedWrapsSerializerErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.u.serializer = failingSerializer{}
	_, err := h.u.UpdateSingleFeed(context.Background(), programmingFeed("f1"), []feed.BookRecord{})
	var se *feed.SerializationError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "f1", se.FeedID)
}

func TestStatusReportsCountsAndOldestUpdate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	h.addFeed(t, programmingFeed("a"))
	h.addFeed(t, programmingFeed("b"))
	off := programmingFeed("c")
	off.Active = false
	h.addFeed(t, off)

	_, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)

	st, err := h.u.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateIdle, st.State)
	require.Equal(t, 3, st.TotalFeeds)
	require.Equal(t, 2, st.ActiveFeeds)
	require.NotNil(t, st.OldestUpdate)
	require.True(t, st.OldestUpdate.Equal(h.clock.Now()))
	require.NotNil(t, st.LastCycle)
}

type deactivatingSource struct {
	*catalog.Static
	store *memstore.FeedStore
	id    string
}

func (d *deactivatingSource) FetchLatest(ctx context.Context, limit int) ([]feed.BookRecord, error) {
	f, err := d.store.GetFeed(ctx, d.id)
	if err != nil {
		return nil, err
	}
	f.Active = false
	if err := d.store.SaveFeed(ctx, f); err != nil {
		return nil, err
	}
	return d.Static.FetchLatest(ctx, limit)
}

func TestRunCycleKeepsFeedDeactivatedMidCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	h.addFeed(t, programmingFeed("f1"))
	h.addFeed(t, programmingFeed("f2"))
	h.u.source = &deactivatingSource{Static: h.source, store: h.store, id: "f1"}

	result, err := h.u.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK())
	require.Equal(t, 2, result.Total)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, "1 of 2 feeds updated, 1 deactivated", result.Summary())

	stored, err := h.store.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.False(t, stored.Active)
	require.True(t, stored.LastUpdated.IsZero())
	_, err = h.store.GetFeedDocument(context.Background(), "f1")
	require.ErrorIs(t, err, feed.ErrNotFound)

	_, err = h.store.GetFeedDocument(context.Background(), "f2")
	require.NoError(t, err)
}

func TestUpdateSingleFeedUsesStoredRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	f := programmingFeed("f1")
	h.addFeed(t, f)
	renamed := f
	renamed.Name = "renamed"
	h.addFeed(t, renamed)

	_, err := h.u.UpdateSingleFeed(context.Background(), f, []feed.BookRecord{programmingBook})
	require.NoError(t, err)
	stored, err := h.store.GetFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.Equal(t, "renamed", stored.Name)
	require.True(t, stored.Active)
}

func TestDeactivateFeed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []feed.BookRecord{programmingBook})
	h.addFeed(t, programmingFeed("f1"))

	f, err := h.u.DeactivateFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.False(t, f.Active)

	again, err := h.u.DeactivateFeed(context.Background(), "f1")
	require.NoError(t, err)
	require.False(t, again.Active)

	_, err = h.u.UpdateSingleFeed(context.Background(), f, []feed.BookRecord{programmingBook})
	require.ErrorIs(t, err, feed.ErrFeedInactive)

	_, err = h.u.DeactivateFeed(context.Background(), "missing")
	require.ErrorIs(t, err, feed.ErrNotFound)
	_, err = h.u.DeactivateFeed(context.Background(), "")
	require.ErrorIs(t, err, feed.ErrInvalidCriteria)
}

// overlapStore flags commits for the same feed that run at the same time.
type overlapStore struct {
	*memstore.FeedStore
	mu       sync.Mutex
	inFlight map[string]int
	overlaps int
}

func (s *overlapStore) CommitFeedUpdate(ctx context.Context, u feed.FeedUpdate) error {
	s.mu.Lock()
	s.inFlight[u.Feed.ID]++
	if s.inFlight[u.Feed.ID] > 1 {
		s.overlaps++
	}
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	s.inFlight[u.Feed.ID]--
	s.mu.Unlock()
	return s.FeedStore.CommitFeedUpdate(ctx, u)
}

func TestSameFeedUpdatesAreSerialized(t *testing.T) {
	t.Parallel()

	const workers = 8
	cycleBook := feed.BookRecord{ISBN13: "cycle", Publisher: "P"}
	h := newHarness(t, []feed.BookRecord{cycleBook})
	f := feed.Feed{ID: "shared", Criteria: feed.Criteria{Publisher: "P"}, Active: true}
	h.addFeed(t, f)
	store := &overlapStore{FeedStore: h.store, inFlight: map[string]int{}}
	h.u.store = store

	var wg sync.WaitGroup
	errs := make(chan error, workers+1)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			book := feed.BookRecord{ISBN13: fmt.Sprintf("book-%d", i), Publisher: "P"}
			_, err := h.u.UpdateSingleFeed(context.Background(), f, []feed.BookRecord{book})
			errs <- err
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := h.u.RunCycle(context.Background())
		if err == nil && !result.OK() {
			err = fmt.Errorf("cycle failed: %s", result.Summary())
		}
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Zero(t, store.overlaps)
	hist, err := h.store.GetFeedHistory(context.Background(), "shared")
	require.NoError(t, err)
	require.Equal(t, workers+1, hist.TotalProcessed)
	require.Len(t, hist.ProcessedISBNs, workers+1)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
	require.Zero(t, k.size())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "fetching_catalog", StateFetchingCatalog.String())
	require.Equal(t, "processing_feeds", StateProcessingFeeds.String())
	require.Equal(t, "finalizing", StateFinalizing.String())
	require.Equal(t, "unknown", State(42).String())
}
