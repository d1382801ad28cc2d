package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/storage/storetest"
)

func TestFeedStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(*testing.T) feed.Store { return NewFeedStore() })
}

func TestFeedStoreHistoryIsCopied(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	ctx := context.Background()
	h := feed.History{ProcessedISBNs: []string{"a"}}
	require.NoError(t, s.SaveFeedHistory(ctx, "f", h))
	h.ProcessedISBNs[0] = "mutated"

	got, err := s.GetFeedHistory(ctx, "f")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got.ProcessedISBNs)
}

func TestFeedStoreFailCommitLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	s := NewFeedStore()
	s.FailCommit = func(string) error { return errors.New("disk full") }
	err := s.CommitFeedUpdate(context.Background(), feed.FeedUpdate{Feed: feed.Feed{ID: "f"}, Document: []byte("x")})
	require.EqualError(t, err, "disk full")

	_, err = s.GetFeedDocument(context.Background(), "f")
	require.ErrorIs(t, err, feed.ErrNotFound)
	_, err = s.GetFeed(context.Background(), "f")
	require.ErrorIs(t, err, feed.ErrNotFound)
}
