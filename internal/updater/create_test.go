package updater

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

type seqIDs struct {
	ids []string
	err error
}

func (s *seqIDs) NewID() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id, nil
}

func TestCreateFeedSavesSeedsAndCounts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	f, err := h.u.CreateFeed(ctx, &seqIDs{ids: []string{"new-1"}}, NewFeed{
		Name:     "  programming  ",
		Criteria: feed.Criteria{TitleKeyword: "プログラミング"},
	})
	require.NoError(t, err)
	require.Equal(t, "new-1", f.ID)
	require.Equal(t, "programming", f.Name)
	require.True(t, f.Active)
	require.Equal(t, feed.DefaultMaxItems, f.Settings.MaxItems)
	require.Equal(t, feed.IntervalDaily, f.Settings.UpdateInterval)
	require.Equal(t, h.clock.Now(), f.CreatedAt)

	stored, err := h.store.GetFeed(ctx, "new-1")
	require.NoError(t, err)
	require.Equal(t, h.clock.Now(), stored.LastUpdated)

	doc, err := h.store.GetFeedDocument(ctx, "new-1")
	require.NoError(t, err)
	require.Empty(t, guids(t, doc))

	global, err := h.store.GetGlobalConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, global.FeedCounter)
	require.Zero(t, h.source.Calls())
}

func TestCreateFeedRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ids := &seqIDs{ids: []string{"x"}}

	_, err := h.u.CreateFeed(context.Background(), ids, NewFeed{Criteria: feed.Criteria{TitleKeyword: "a"}})
	require.ErrorIs(t, err, feed.ErrInvalidCriteria)

	_, err = h.u.CreateFeed(context.Background(), ids, NewFeed{Name: "empty"})
	require.ErrorIs(t, err, feed.ErrInvalidCriteria)

	_, err = h.u.CreateFeed(context.Background(), ids, NewFeed{
		Name:     "bad code",
		Criteria: feed.Criteria{ClassificationCode: "13a"},
	})
	require.ErrorIs(t, err, feed.ErrInvalidCriteria)

	feeds, err := h.store.ListFeeds(context.Background())
	require.NoError(t, err)
	require.Empty(t, feeds)
}

func TestCreateFeedIDFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.u.CreateFeed(context.Background(), &seqIDs{err: errors.New("entropy")}, NewFeed{
		Name:     "n",
		Criteria: feed.Criteria{Publisher: "技術評論社"},
	})
	require.ErrorContains(t, err, "generate feed id")
}
