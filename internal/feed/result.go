package feed

import (
	"fmt"
	"time"
)

// Failure records one feed that could not be updated during a cycle.
type Failure struct {
	FeedID string `json:"feedId"`
	Reason string `json:"reason"`
}

// CycleResult summarizes one pass over all active feeds. Skipped counts feeds
// deactivated after the cycle listed them.
type CycleResult struct {
	Total        int       `json:"total"`
	Succeeded    int       `json:"succeeded"`
	Skipped      int       `json:"skipped"`
	Failures     []Failure `json:"failures"`
	BooksFetched int       `json:"booksFetched"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// OK reports whether every active feed was updated.
func (r CycleResult) OK() bool {
	return len(r.Failures) == 0
}

// Summary renders the result for caller reporting.
func (r CycleResult) Summary() string {
	var msg string
	switch {
	case r.OK() && r.Skipped == 0:
		return fmt.Sprintf("all %d feeds updated", r.Total)
	case r.OK():
		msg = fmt.Sprintf("%d of %d feeds updated", r.Succeeded, r.Total)
	default:
		msg = fmt.Sprintf("%d of %d feeds updated, %d errors", r.Succeeded, r.Total, len(r.Failures))
	}
	if r.Skipped > 0 {
		msg += fmt.Sprintf(", %d deactivated", r.Skipped)
	}
	return msg
}
