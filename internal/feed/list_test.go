package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSortNewestFirstAndActiveOnly(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feeds := []Feed{
		{ID: "old", CreatedAt: base, Active: true},
		{ID: "b", CreatedAt: base.Add(time.Hour)},
		{ID: "a", CreatedAt: base.Add(time.Hour), Active: true},
	}
	SortNewestFirst(feeds)
	require.Equal(t, []string{"a", "b", "old"}, []string{feeds[0].ID, feeds[1].ID, feeds[2].ID})

	active := ActiveOnly(feeds)
	require.Len(t, active, 2)
	require.Equal(t, "a", active[0].ID)
	require.Equal(t, "old", active[1].ID)
}

func TestDefaultGlobalConfig(t *testing.T) {
	t.Parallel()

	require.Equal(t, GlobalConfig{MaxBooksPerRequest: 1000}, DefaultGlobalConfig())
}

func TestBuildStats(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	feeds := []Feed{
		{ID: "a", CreatedAt: day, Active: true},
		{ID: "b", CreatedAt: day.Add(2 * time.Hour), Active: true},
		{ID: "c", CreatedAt: day.Add(48 * time.Hour)},
	}
	st := BuildStats(feeds)
	require.Equal(t, 3, st.TotalFeeds)
	require.Equal(t, 2, st.TotalActiveFeeds)
	require.True(t, st.NewestFeed.Equal(day.Add(2*time.Hour)))
	require.True(t, st.OldestFeed.Equal(day))
	require.Equal(t, map[string]int{"2025-01-01": 2, "2025-01-03": 1}, st.FeedsByDate)

	empty := BuildStats(nil)
	require.Zero(t, empty.TotalFeeds)
	require.Nil(t, empty.NewestFeed)
	require.Empty(t, empty.FeedsByDate)
}
