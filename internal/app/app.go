// Package app builds and holds the long-lived services of a bookfeed process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/api"
	"github.com/JakeFAU/bookfeed/internal/catalog/openbd"
	"github.com/JakeFAU/bookfeed/internal/clock/system"
	"github.com/JakeFAU/bookfeed/internal/config"
	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/hash/sha256"
	"github.com/JakeFAU/bookfeed/internal/history"
	"github.com/JakeFAU/bookfeed/internal/id/uuid"
	"github.com/JakeFAU/bookfeed/internal/logging"
	memorypublisher "github.com/JakeFAU/bookfeed/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/bookfeed/internal/publisher/pubsub"
	"github.com/JakeFAU/bookfeed/internal/rss"
	"github.com/JakeFAU/bookfeed/internal/storage/blob"
	gcsstorage "github.com/JakeFAU/bookfeed/internal/storage/gcs"
	localstorage "github.com/JakeFAU/bookfeed/internal/storage/local"
	memorystorage "github.com/JakeFAU/bookfeed/internal/storage/memory"
	pgstore "github.com/JakeFAU/bookfeed/internal/storage/postgres"
	redisstore "github.com/JakeFAU/bookfeed/internal/storage/redis"
	"github.com/JakeFAU/bookfeed/internal/updater"
)

const summaryBuffer = 100

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     feed.Store
	updater   *updater.Updater
	ids       feed.IDGenerator
	apiServer *api.Server

	gcsBucket    *gcsstorage.Bucket
	pubsubClient *pubsub.Client
	topic        *pubsub.Topic
}

// Build creates the logger, store, catalog client, publisher and updater described by cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, ids: uuid.New()}
	logger.Info("building application dependencies",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("server_port", cfg.Server.Port),
	)

	store, err := a.setupStorage(ctx)
	if err != nil {
		a.closeInfrastructure()
		return nil, err
	}
	a.store = store

	source, err := openbd.New(openbd.Config{
		BaseURL:       cfg.Catalog.BaseURL,
		Timeout:       cfg.Catalog.Timeout,
		MaxRetries:    cfg.Catalog.MaxRetries,
		RatePerSecond: cfg.Catalog.RatePerSecond,
		RetryInterval: cfg.Catalog.RetryInterval,
		UserAgent:     cfg.Catalog.UserAgent,
	}, nil, logger.Named("openbd"))
	if err != nil {
		a.closeInfrastructure()
		return nil, fmt.Errorf("catalog client init failed: %w", err)
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		a.closeInfrastructure()
		return nil, err
	}

	clock := system.New()
	serializer := rss.NewSerializer(rss.Config{
		SiteLink:    cfg.RSS.SiteLink,
		SelfBaseURL: cfg.RSS.SelfBaseURL,
		ItemBaseURL: cfg.RSS.ItemBaseURL,
		Language:    cfg.RSS.Language,
		Generator:   cfg.RSS.Generator,
	}, clock)

	updaterCfg := updater.Config{
		BatchSize:   cfg.Catalog.BatchSize,
		Concurrency: cfg.Updater.Concurrency,
		FeedTimeout: cfg.Updater.FeedTimeout,
		Topic:       cfg.PubSub.TopicName,
	}
	logger.Info("updater config",
		zap.Int("batch_size", updaterCfg.BatchSize),
		zap.Int("concurrency", updaterCfg.Concurrency),
		zap.Duration("feed_timeout", updaterCfg.FeedTimeout),
		zap.Int("history_retention", cfg.Updater.HistoryRetention),
	)
	a.updater = updater.New(
		store,
		source,
		history.New(cfg.Updater.HistoryRetention),
		serializer,
		clock,
		publisher,
		updaterCfg,
		logger.Named("updater"),
	)
	a.apiServer = api.NewServer(store, a.updater, a.ids, sha256.New(), cfg, logger.Named("api"))
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured feed store.
func (a *App) Store() feed.Store { return a.store }

// Updater returns the update engine.
func (a *App) Updater() *updater.Updater { return a.updater }

// IDs returns the feed ID generator.
func (a *App) IDs() feed.IDGenerator { return a.ids }

// Handler returns the HTTP handler for the API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Serve runs the HTTP server until ctx is canceled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases stores and clients.
func (a *App) Close() error {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure() {
	if a.topic != nil {
		a.topic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("feed store close failed", zap.Error(err))
		}
	}
	if a.gcsBucket != nil {
		if err := a.gcsBucket.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) setupStorage(ctx context.Context) (feed.Store, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case config.BackendRedis:
		a.logger.Info("using redis storage backend")
		store, err := redisstore.New(ctx, redisstore.Config{
			URL:       sc.Redis.URL,
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("redis store init failed: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		a.logger.Info("using postgres storage backend")
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      sc.Postgres.DSN,
			MaxConns: sc.Postgres.MaxConns,
			MinConns: sc.Postgres.MinConns,
			Migrate:  sc.Postgres.Migrate,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", sc.GCS.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		bucket, err := gcsstorage.New(client, gcsstorage.Config{Bucket: sc.GCS.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs bucket init failed: %w", err)
		}
		a.gcsBucket = bucket
		store, err := blob.New(bucket, blob.Config{Prefix: sc.GCS.Prefix, PublishRSS: sc.GCS.PublishRSS}, a.logger.Named("blob"))
		if err != nil {
			return nil, fmt.Errorf("gcs feed store init failed: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", sc.Local.BaseDir))
		bucket, err := localstorage.New(localstorage.Config{BaseDir: sc.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local bucket init failed: %w", err)
		}
		store, err := blob.New(bucket, blob.Config{PublishRSS: sc.Local.PublishRSS}, a.logger.Named("blob"))
		if err != nil {
			return nil, fmt.Errorf("local feed store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewFeedStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (feed.Publisher, error) {
	ps := a.cfg.PubSub
	if ps.TopicName == "" || ps.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, recording cycle summaries in memory")
		return memorypublisher.New(summaryBuffer), nil
	}
	client, err := pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.topic = client.Topic(ps.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.TopicName),
	)
	return gcppublisher.New(a.topic, map[string]string{"source": "bookfeed"}), nil
}
