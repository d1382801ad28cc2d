package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/config"
	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/storage/blob"
	memorystorage "github.com/JakeFAU/bookfeed/internal/storage/memory"
	"github.com/JakeFAU/bookfeed/internal/updater"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildMemoryBackend(t *testing.T) {
	t.Parallel()

	a, err := BuildWithLogger(context.Background(), defaultConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	require.IsType(t, &memorystorage.FeedStore{}, a.Store())
	require.NotNil(t, a.Updater())
	require.Nil(t, a.pubsubClient)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildLocalBackendCreatesFeedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := defaultConfig(t)
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.Local.BaseDir = dir
	cfg.Storage.Local.PublishRSS = true

	a, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	require.IsType(t, &blob.Store{}, a.Store())

	f, err := a.Updater().CreateFeed(context.Background(), a.IDs(), updater.NewFeed{
		Name:     "新書",
		Criteria: feed.Criteria{Publisher: "岩波書店"},
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "feeds", f.ID+".json"))
	require.NoError(t, err)
	doc, err := os.ReadFile(filepath.Join(dir, "rss", f.ID+".xml"))
	require.NoError(t, err)
	require.Contains(t, string(doc), "<rss")

	global, err := a.Store().GetGlobalConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, global.FeedCounter)
}

func TestBuildRejectsBadCatalogURL(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Catalog.BaseURL = "::not a url"
	_, err := BuildWithLogger(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "catalog client init failed")
}
