package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// newTestBucket creates a Bucket pointed at a test server.
func newTestBucket(t *testing.T, handler http.Handler) *Bucket {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	b, err := New(client, Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutUploadsObject(t *testing.T) {
	t.Parallel()

	objectName := "feeds/abc.json"
	objectData := []byte(`{"feed":{"id":"abc"}}`)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// This handler simulates the GCS JSON API for multipart uploads.
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, objectName, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(objectData))
		assert.Contains(t, string(body), "application/json")

		fmt.Fprintln(w, `{ "name": "`+objectName+`", "bucket": "test-bucket" }`)
	})

	b := newTestBucket(t, handler)
	require.NoError(t, b.Put(context.Background(), objectName, "application/json", objectData))
}

func TestPutServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	b := newTestBucket(t, handler)
	require.Error(t, b.Put(context.Background(), "feeds/abc.json", "", []byte("x")))
	require.Error(t, b.Put(context.Background(), "", "", []byte("x")))
}

func TestGetMissingObject(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	b := newTestBucket(t, handler)
	_, err := b.Get(context.Background(), "feeds/none.json")
	require.ErrorIs(t, err, feed.ErrNotFound)
}

func TestListObjects(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.Contains(r.URL.Path, "/b/test-bucket/o") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "feeds/", r.URL.Query().Get("prefix"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"kind": "storage#objects", "items": [{"name": "feeds/a.json", "bucket": "test-bucket"}, {"name": "feeds/b.json", "bucket": "test-bucket"}]}`)
	})
	b := newTestBucket(t, handler)
	names, err := b.List(context.Background(), "feeds/")
	require.NoError(t, err)
	require.Equal(t, []string{"feeds/a.json", "feeds/b.json"}, names)
}
