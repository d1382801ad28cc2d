// Package history tracks identifiers already delivered for each feed.
package history

import (
	"time"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// MinRetention is the smallest window a Tracker keeps.
const MinRetention = 500

// DefaultRetention is used when no retention is configured.
const DefaultRetention = 1000

// Tracker partitions matches into delivered and new, and merges new identifiers into a history.
type Tracker struct {
	retention int
}

// New creates a Tracker that keeps the most recent retention identifiers.
// Values below MinRetention are raised to it.
func New(retention int) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if retention < MinRetention {
		retention = MinRetention
	}
	return &Tracker{retention: retention}
}

// Retention returns the configured window size.
func (t *Tracker) Retention() int {
	return t.retention
}

// Partition splits isbns into those already in h and those that are new.
// Input order is preserved and duplicates within isbns are reported once.
func (t *Tracker) Partition(h feed.History, isbns []string) (delivered, fresh []string) {
	seen := make(map[string]struct{}, len(h.ProcessedISBNs))
	for _, id := range h.ProcessedISBNs {
		seen[id] = struct{}{}
	}
	emitted := make(map[string]struct{}, len(isbns))
	for _, id := range isbns {
		if id == "" {
			continue
		}
		if _, dup := emitted[id]; dup {
			continue
		}
		emitted[id] = struct{}{}
		if _, ok := seen[id]; ok {
			delivered = append(delivered, id)
		} else {
			fresh = append(fresh, id)
		}
	}
	return delivered, fresh
}

// Merge returns a new history with isbns appended in insertion order, truncated to the
// retention window. TotalProcessed grows by the number of identifiers not previously present.
func (t *Tracker) Merge(h feed.History, isbns []string, now time.Time) feed.History {
	_, fresh := t.Partition(h, isbns)

	merged := make([]string, 0, len(h.ProcessedISBNs)+len(fresh))
	merged = append(merged, h.ProcessedISBNs...)
	merged = append(merged, fresh...)
	merged = dedupe(merged)
	if len(merged) > t.retention {
		merged = append([]string(nil), merged[len(merged)-t.retention:]...)
	}

	return feed.History{
		ProcessedISBNs:  merged,
		LastProcessedAt: now,
		TotalProcessed:  h.TotalProcessed + len(fresh),
	}
}

// dedupe keeps the first occurrence of each identifier. Stored histories written by
// older tooling may contain repeats.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
