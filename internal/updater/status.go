package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// Status is a point-in-time view of the engine for operators.
type Status struct {
	State        State             `json:"state"`
	Global       feed.GlobalConfig `json:"globalConfig"`
	TotalFeeds   int               `json:"totalFeeds"`
	ActiveFeeds  int               `json:"activeFeeds"`
	OldestUpdate *time.Time        `json:"oldestUpdate,omitempty"`
	LastCycle    *feed.CycleResult `json:"lastCycle,omitempty"`
}

// Status reports the global bookkeeping, feed counts and the stalest active feed.
func (u *Updater) Status(ctx context.Context) (Status, error) {
	global, err := u.store.GetGlobalConfig(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load global config: %w", err)
	}
	feeds, err := u.store.ListFeeds(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("list feeds: %w", err)
	}
	st := Status{State: u.State(), Global: global, TotalFeeds: len(feeds)}
	for _, f := range feeds {
		if !f.Active {
			continue
		}
		st.ActiveFeeds++
		if f.LastUpdated.IsZero() {
			continue
		}
		if st.OldestUpdate == nil || f.LastUpdated.Before(*st.OldestUpdate) {
			at := f.LastUpdated
			st.OldestUpdate = &at
		}
	}
	if last, ok := u.LastResult(); ok {
		st.LastCycle = &last
	}
	return st, nil
}
