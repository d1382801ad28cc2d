package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

func newMockStore(t *testing.T) (*FeedStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mock
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feeds").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveFeedsDecodesRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"data"}).
		AddRow([]byte(`{"id":"b","name":"newer","active":true,"criteria":{"titleKeyword":"Go"},"settings":{"maxItems":10}}`)).
		AddRow([]byte(`{"id":"a","name":"older","active":true,"criteria":{"publisher":"技術評論社"},"settings":{"maxItems":0}}`))
	mock.ExpectQuery("SELECT data FROM feeds WHERE active").WillReturnRows(rows)

	feeds, err := store.GetActiveFeeds(context.Background())
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	require.Equal(t, "b", feeds[0].ID)
	require.Equal(t, "Go", feeds[0].Criteria.TitleKeyword)
	require.Equal(t, 50, feeds[1].EffectiveMaxItems())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFeedNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT data FROM feeds WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetFeed(context.Background(), "missing")
	require.ErrorIs(t, err, feed.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGlobalConfigDefaultsWhenAbsent(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT data FROM global_config").WillReturnError(pgx.ErrNoRows)

	cfg, err := store.GetGlobalConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, feed.DefaultGlobalConfig(), cfg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFeedHistoryAndDocument(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT data FROM feed_histories").
		WithArgs("f").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"processedIsbns":["1","2"],"totalProcessed":2}`)))
	mock.ExpectQuery("SELECT content FROM feed_documents").
		WithArgs("f").
		WillReturnRows(pgxmock.NewRows([]string{"content"}).AddRow([]byte("<rss/>")))

	h, err := store.GetFeedHistory(context.Background(), "f")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, h.ProcessedISBNs)
	doc, err := store.GetFeedDocument(context.Background(), "f")
	require.NoError(t, err)
	require.Equal(t, "<rss/>", string(doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFeedUpdateRunsInTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-24 * time.Hour)
	update := feed.FeedUpdate{
		Feed:     feed.Feed{ID: "f", Active: true, CreatedAt: created, LastUpdated: now},
		History:  feed.History{ProcessedISBNs: []string{"9784000000001"}, TotalProcessed: 1},
		Document: []byte("<rss/>"),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO feed_documents").
		WithArgs("f", []byte("<rss/>"), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO feed_histories").
		WithArgs("f", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO feeds").
		WithArgs("f", pgxmock.AnyArg(), true, created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.CommitFeedUpdate(context.Background(), update))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFeedUpdateRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO feed_documents").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO feed_histories").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.CommitFeedUpdate(context.Background(), feed.FeedUpdate{Feed: feed.Feed{ID: "f"}})
	var pe *feed.StoragePersistError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "f", pe.FeedID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGlobalConfig(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO global_config").
		WithArgs([]byte(`{"feedCounter":4,"lastGlobalUpdate":"0001-01-01T00:00:00Z","lastCatalogFetch":"0001-01-01T00:00:00Z","maxBooksPerRequest":1000}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveGlobalConfig(context.Background(), feed.GlobalConfig{FeedCounter: 4, MaxBooksPerRequest: 1000}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewWithPool(nil)
	require.Error(t, err)
}
