package updater

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// DeactivateFeed marks the feed inactive. It waits for any in-flight update of the same feed,
// and cycles that already listed the feed skip it. Deactivating an inactive feed is a no-op.
func (u *Updater) DeactivateFeed(ctx context.Context, id string) (feed.Feed, error) {
	if id == "" {
		return feed.Feed{}, fmt.Errorf("%w: feed id is required", feed.ErrInvalidCriteria)
	}
	unlock := u.feeds.lock(id)
	defer unlock()

	f, err := u.store.GetFeed(ctx, id)
	if err != nil {
		return feed.Feed{}, fmt.Errorf("load feed %s: %w", id, err)
	}
	if !f.Active {
		return f, nil
	}
	f.Active = false
	if err := u.store.SaveFeed(ctx, f); err != nil {
		return feed.Feed{}, &feed.StoragePersistError{FeedID: id, Op: "save feed", Err: err}
	}
	u.logger.Info("feed deactivated", zap.String("feed_id", id), zap.String("feed_name", f.Name))
	return f, nil
}
