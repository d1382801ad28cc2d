package feed

import (
	"sort"
	"time"
)

// DefaultMaxBooksPerRequest is the catalog batch size recorded when no cycle has run yet.
const DefaultMaxBooksPerRequest = 1000

// DefaultGlobalConfig is returned by stores that hold no global record yet.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{MaxBooksPerRequest: DefaultMaxBooksPerRequest}
}

// SortNewestFirst orders feeds by CreatedAt descending, then by ID for stability.
func SortNewestFirst(feeds []Feed) {
	sort.SliceStable(feeds, func(i, j int) bool {
		a, b := feeds[i], feeds[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ActiveOnly returns the active subset of feeds, preserving order.
func ActiveOnly(feeds []Feed) []Feed {
	out := make([]Feed, 0, len(feeds))
	for _, f := range feeds {
		if f.Active {
			out = append(out, f)
		}
	}
	return out
}

// Stats summarizes a feed listing.
type Stats struct {
	TotalFeeds       int            `json:"totalFeeds"`
	TotalActiveFeeds int            `json:"totalActiveFeeds"`
	NewestFeed       *time.Time     `json:"newestFeed"`
	OldestFeed       *time.Time     `json:"oldestFeed"`
	FeedsByDate      map[string]int `json:"feedsByDate"`
}

// BuildStats counts feeds and groups them by UTC creation date. Newest and oldest
// consider active feeds only.
func BuildStats(feeds []Feed) Stats {
	st := Stats{TotalFeeds: len(feeds), FeedsByDate: make(map[string]int)}
	for _, f := range feeds {
		st.FeedsByDate[f.CreatedAt.UTC().Format(time.DateOnly)]++
		if !f.Active {
			continue
		}
		st.TotalActiveFeeds++
		at := f.CreatedAt
		if st.NewestFeed == nil || at.After(*st.NewestFeed) {
			st.NewestFeed = &at
		}
		if st.OldestFeed == nil || at.Before(*st.OldestFeed) {
			oldest := at
			st.OldestFeed = &oldest
		}
	}
	return st
}
