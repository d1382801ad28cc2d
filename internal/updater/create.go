package updater

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// NewFeed carries the caller-supplied fields of a feed being created.
type NewFeed struct {
	Name     string
	Criteria feed.Criteria
	MaxItems int
	Interval feed.UpdateInterval
}

// CreateFeed validates the request, assigns an ID, bumps the feed counter, saves the feed and
// seeds its first document. A seeding failure is returned but leaves the saved feed in place so
// the next cycle can fill it.
func (u *Updater) CreateFeed(ctx context.Context, ids feed.IDGenerator, req NewFeed) (feed.Feed, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return feed.Feed{}, fmt.Errorf("%w: feed name is required", feed.ErrInvalidCriteria)
	}
	if err := req.Criteria.Validate(); err != nil {
		return feed.Feed{}, err
	}
	if req.MaxItems < 0 {
		return feed.Feed{}, fmt.Errorf("%w: max items must be >= 0", feed.ErrInvalidCriteria)
	}
	if ids == nil {
		return feed.Feed{}, errors.New("id generator is required")
	}
	id, err := ids.NewID()
	if err != nil {
		return feed.Feed{}, fmt.Errorf("generate feed id: %w", err)
	}
	interval := req.Interval
	if interval == "" {
		interval = feed.IntervalDaily
	}
	f := feed.Feed{
		ID:        id,
		Name:      name,
		Criteria:  req.Criteria,
		CreatedAt: u.clock.Now(),
		Active:    true,
		Settings:  feed.Settings{MaxItems: req.MaxItems, UpdateInterval: interval},
	}
	if f.Settings.MaxItems == 0 {
		f.Settings.MaxItems = feed.DefaultMaxItems
	}
	if err := u.store.SaveFeed(ctx, f); err != nil {
		return feed.Feed{}, &feed.StoragePersistError{FeedID: id, Op: "save feed", Err: err}
	}
	if err := u.bumpFeedCounter(ctx); err != nil {
		u.logger.Warn("feed counter update failed", zap.String("feed_id", id), zap.Error(err))
	}
	u.logger.Info("feed created", zap.String("feed_id", id), zap.String("feed_name", name))
	if err := u.SeedInitialFeed(ctx, f); err != nil {
		return f, err
	}
	return f, nil
}

func (u *Updater) bumpFeedCounter(ctx context.Context) error {
	u.globalMu.Lock()
	defer u.globalMu.Unlock()
	cfg, err := u.store.GetGlobalConfig(ctx)
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}
	cfg.FeedCounter++
	if err := u.store.SaveGlobalConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save global config: %w", err)
	}
	return nil
}
