// Package feed defines core types shared across the feed update engine.
package feed

import (
	"time"
)

// MatchMode selects how a classification code criterion is compared.
type MatchMode string

// Classification code match modes accepted by the matcher.
const (
	MatchExact  MatchMode = "exact"
	MatchPrefix MatchMode = "prefix"
	MatchSuffix MatchMode = "suffix"
)

// UpdateInterval is informational scheduling metadata carried on a feed.
type UpdateInterval string

// Update intervals understood by the scheduler.
const (
	IntervalDaily  UpdateInterval = "daily"
	IntervalWeekly UpdateInterval = "weekly"
)

// DefaultMaxItems caps a feed document when Settings.MaxItems is unset.
const DefaultMaxItems = 50

// BookRecord is the normalized projection of one catalog entry.
type BookRecord struct {
	ISBN13             string `json:"isbn"`
	Title              string `json:"title"`
	Volume             string `json:"volume,omitempty"`
	Author             string `json:"author,omitempty"`
	Publisher          string `json:"publisher,omitempty"`
	PublicationDate    string `json:"pubDate,omitempty"`
	Series             string `json:"series,omitempty"`
	ClassificationCode string `json:"ccode,omitempty"`
	CoverURL           string `json:"cover,omitempty"`
	Description        string `json:"description,omitempty"`
}

// Criteria is the set of predicates a feed applies to catalog records.
type Criteria struct {
	SeriesName         string    `json:"seriesName,omitempty"`
	TitleKeyword       string    `json:"titleKeyword,omitempty"`
	Publisher          string    `json:"publisher,omitempty"`
	ClassificationCode string    `json:"ccode,omitempty"`
	MatchMode          MatchMode `json:"ccodeMatchType,omitempty"`
}

// Settings holds per-feed delivery knobs.
type Settings struct {
	MaxItems       int            `json:"maxItems"`
	UpdateInterval UpdateInterval `json:"updateInterval,omitempty"`
}

// Feed is a persisted search plus its delivery state.
type Feed struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Criteria    Criteria  `json:"criteria"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	Active      bool      `json:"active"`
	Settings    Settings  `json:"settings"`
}

// EffectiveMaxItems returns the configured cap or DefaultMaxItems.
func (f Feed) EffectiveMaxItems() int {
	if f.Settings.MaxItems <= 0 {
		return DefaultMaxItems
	}
	return f.Settings.MaxItems
}

// History is the bounded ledger of identifiers already delivered for a feed.
type History struct {
	ProcessedISBNs  []string  `json:"processedIsbns"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
	TotalProcessed  int       `json:"totalProcessed"`
}

// Clone returns a copy that shares no backing storage with h.
func (h History) Clone() History {
	out := h
	out.ProcessedISBNs = append([]string(nil), h.ProcessedISBNs...)
	return out
}

// GlobalConfig is process-wide bookkeeping written once per cycle.
type GlobalConfig struct {
	FeedCounter        int       `json:"feedCounter"`
	LastGlobalUpdateAt time.Time `json:"lastGlobalUpdate"`
	LastCatalogFetchAt time.Time `json:"lastCatalogFetch"`
	MaxBooksPerRequest int       `json:"maxBooksPerRequest"`
}

// FeedUpdate is the unit committed atomically for a single feed.
type FeedUpdate struct {
	Feed     Feed
	History  History
	Document []byte
}
