// Package storetest holds the behavioral suite every feed.Store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// Run exercises newStore against the feed.Store contract. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) feed.Store) {
	t.Helper()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sample := func(id string, offset time.Duration, active bool) feed.Feed {
		return feed.Feed{
			ID:        id,
			Name:      "feed " + id,
			Criteria:  feed.Criteria{TitleKeyword: "プログラミング", MatchMode: feed.MatchPrefix},
			CreatedAt: base.Add(offset),
			Active:    active,
			Settings:  feed.Settings{MaxItems: 20, UpdateInterval: feed.IntervalDaily},
		}
	}

	t.Run("missing keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.GetFeed(ctx, "nope")
		require.ErrorIs(t, err, feed.ErrNotFound)
		_, err = s.GetFeedHistory(ctx, "nope")
		require.ErrorIs(t, err, feed.ErrNotFound)
		_, err = s.GetFeedDocument(ctx, "nope")
		require.ErrorIs(t, err, feed.ErrNotFound)

		cfg, err := s.GetGlobalConfig(ctx)
		require.NoError(t, err)
		require.Equal(t, feed.DefaultGlobalConfig(), cfg)

		feeds, err := s.ListFeeds(ctx)
		require.NoError(t, err)
		require.Empty(t, feeds)
	})

	t.Run("feeds round trip newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveFeed(ctx, sample("old", 0, true)))
		require.NoError(t, s.SaveFeed(ctx, sample("mid", time.Hour, false)))
		require.NoError(t, s.SaveFeed(ctx, sample("new", 2*time.Hour, true)))

		got, err := s.GetFeed(ctx, "mid")
		require.NoError(t, err)
		require.True(t, got.CreatedAt.Equal(base.Add(time.Hour)))
		require.Equal(t, "feed mid", got.Name)
		require.Equal(t, feed.MatchPrefix, got.Criteria.MatchMode)
		require.Equal(t, 20, got.Settings.MaxItems)

		all, err := s.ListFeeds(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"new", "mid", "old"}, ids(all))

		active, err := s.GetActiveFeeds(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"new", "old"}, ids(active))

		deactivated := sample("new", 2*time.Hour, false)
		require.NoError(t, s.SaveFeed(ctx, deactivated))
		active, err = s.GetActiveFeeds(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"old"}, ids(active))
	})

	t.Run("history document and global config", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		h := feed.History{ProcessedISBNs: []string{"a", "b"}, LastProcessedAt: base, TotalProcessed: 2}
		require.NoError(t, s.SaveFeedHistory(ctx, "f", h))
		got, err := s.GetFeedHistory(ctx, "f")
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, got.ProcessedISBNs)
		require.Equal(t, 2, got.TotalProcessed)
		require.True(t, got.LastProcessedAt.Equal(base))

		require.NoError(t, s.SaveFeedDocument(ctx, "f", []byte("<rss/>")))
		doc, err := s.GetFeedDocument(ctx, "f")
		require.NoError(t, err)
		require.Equal(t, "<rss/>", string(doc))

		cfg := feed.GlobalConfig{FeedCounter: 3, LastGlobalUpdateAt: base, LastCatalogFetchAt: base, MaxBooksPerRequest: 500}
		require.NoError(t, s.SaveGlobalConfig(ctx, cfg))
		gotCfg, err := s.GetGlobalConfig(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, gotCfg.FeedCounter)
		require.Equal(t, 500, gotCfg.MaxBooksPerRequest)
		require.True(t, gotCfg.LastGlobalUpdateAt.Equal(base))
	})

	t.Run("commit writes all three parts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		f := sample("c", 0, true)
		require.NoError(t, s.SaveFeed(ctx, f))

		f.LastUpdated = base.Add(24 * time.Hour)
		require.NoError(t, s.CommitFeedUpdate(ctx, feed.FeedUpdate{
			Feed:     f,
			History:  feed.History{ProcessedISBNs: []string{"9784000000001"}, LastProcessedAt: f.LastUpdated, TotalProcessed: 1},
			Document: []byte("<rss>one</rss>"),
		}))

		gotFeed, err := s.GetFeed(ctx, "c")
		require.NoError(t, err)
		require.True(t, gotFeed.LastUpdated.Equal(f.LastUpdated))
		gotHist, err := s.GetFeedHistory(ctx, "c")
		require.NoError(t, err)
		require.Equal(t, []string{"9784000000001"}, gotHist.ProcessedISBNs)
		doc, err := s.GetFeedDocument(ctx, "c")
		require.NoError(t, err)
		require.Equal(t, "<rss>one</rss>", string(doc))
	})

	t.Run("concurrent commits on distinct feeds", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f := sample(fmt.Sprintf("f%d", i), time.Duration(i)*time.Minute, true)
				errs <- s.CommitFeedUpdate(ctx, feed.FeedUpdate{Feed: f, Document: []byte(f.ID)})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		all, err := s.ListFeeds(ctx)
		require.NoError(t, err)
		require.Len(t, all, 8)
	})
}

func ids(feeds []feed.Feed) []string {
	out := make([]string, len(feeds))
	for i, f := range feeds {
		out[i] = f.ID
	}
	return out
}
