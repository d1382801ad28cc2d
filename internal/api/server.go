package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookfeed/internal/config"
	"github.com/JakeFAU/bookfeed/internal/feed"
	"github.com/JakeFAU/bookfeed/internal/metrics"
	"github.com/JakeFAU/bookfeed/internal/updater"
)

const (
	rssContentType   = "application/rss+xml; charset=utf-8"
	requestTimeout   = 60 * time.Second
	maxBodyBytes     = 1 << 16
	listCacheControl = "public, max-age=1800"
)

// Engine is the slice of the updater the HTTP layer drives.
type Engine interface {
	RunCycle(ctx context.Context) (feed.CycleResult, error)
	Status(ctx context.Context) (updater.Status, error)
	CreateFeed(ctx context.Context, ids feed.IDGenerator, req updater.NewFeed) (feed.Feed, error)
	DeactivateFeed(ctx context.Context, id string) (feed.Feed, error)
}

// ETagger derives entity tags for stored documents.
type ETagger interface {
	ETag(data []byte) string
}

// Server wires HTTP handlers to the feed store and the update engine.
type Server struct {
	router chi.Router
	store  feed.Store
	engine Engine
	ids    feed.IDGenerator
	etags  ETagger
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store feed.Store,
	engine Engine,
	ids feed.IDGenerator,
	etags ETagger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		store:  store,
		engine: engine,
		ids:    ids,
		etags:  etags,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		r.Get("/healthz", s.healthz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
		r.Get("/feeds", s.listFeeds)
		r.Get("/feeds/{feed_id}", s.getFeedDocument)
	})

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/status", s.status)
		r.Post("/update", s.runUpdate)
		r.Post("/feeds", s.createFeed)
		r.Post("/feeds/{feed_id}/deactivate", s.deactivateFeed)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type publicFeed struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Criteria    feed.Criteria `json:"criteria"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastUpdated time.Time     `json:"lastUpdated"`
	FeedURL     string        `json:"feedUrl"`
}

type listFeedsResponse struct {
	Feeds       []publicFeed `json:"feeds"`
	TotalFeeds  int          `json:"totalFeeds"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Stats       feed.Stats   `json:"stats"`
}

// listFeeds returns active feeds newest first, with stats over every stored feed.
func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.ListFeeds(r.Context())
	if err != nil {
		s.logger.Error("list feeds failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list feeds")
		return
	}
	active := feed.ActiveOnly(all)
	feed.SortNewestFirst(active)
	resp := listFeedsResponse{
		Feeds:       make([]publicFeed, 0, len(active)),
		TotalFeeds:  len(active),
		GeneratedAt: time.Now().UTC(),
		Stats:       feed.BuildStats(all),
	}
	for _, f := range active {
		resp.Feeds = append(resp.Feeds, publicFeed{
			ID:          f.ID,
			Name:        f.Name,
			Criteria:    f.Criteria,
			CreatedAt:   f.CreatedAt,
			LastUpdated: f.LastUpdated,
			FeedURL:     s.feedURL(f.ID),
		})
	}
	w.Header().Set("Cache-Control", listCacheControl)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getFeedDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(chi.URLParam(r, "feed_id"), ".xml")
	ctx := r.Context()
	f, err := s.store.GetFeed(ctx, id)
	if errors.Is(err, feed.ErrNotFound) || (err == nil && !f.Active) {
		writeError(w, http.StatusNotFound, "feed not found")
		return
	}
	if err != nil {
		s.logger.Error("load feed failed", zap.String("feed_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	doc, err := s.store.GetFeedDocument(ctx, id)
	if errors.Is(err, feed.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feed document not generated yet")
		return
	}
	if err != nil {
		s.logger.Error("load feed document failed", zap.String("feed_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load feed document")
		return
	}

	etag := s.etags.ETag(doc)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if !f.LastUpdated.IsZero() {
		w.Header().Set("Last-Modified", f.LastUpdated.UTC().Format(http.TimeFormat))
	}
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", rssContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		s.logger.Warn("write feed document failed", zap.String("feed_id", id), zap.Error(err))
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type updateResponse struct {
	feed.CycleResult
	Summary string `json:"summary"`
}

func (s *Server) runUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if d := s.cfg.Updater.CycleTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	result, err := s.engine.RunCycle(ctx)
	var catalogErr *feed.CatalogFetchError
	switch {
	case errors.Is(err, feed.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.As(err, &catalogErr):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		s.logger.Error("update cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, updateResponse{CycleResult: result, Summary: result.Summary()})
}

type createFeedRequest struct {
	Name           string              `json:"name"`
	Criteria       feed.Criteria       `json:"criteria"`
	MaxItems       int                 `json:"maxItems"`
	UpdateInterval feed.UpdateInterval `json:"updateInterval"`
}

type createFeedResponse struct {
	Feed    feed.Feed `json:"feed"`
	FeedURL string    `json:"feedUrl"`
}

func (s *Server) createFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	f, err := s.engine.CreateFeed(r.Context(), s.ids, updater.NewFeed{
		Name:     req.Name,
		Criteria: req.Criteria,
		MaxItems: req.MaxItems,
		Interval: req.UpdateInterval,
	})
	switch {
	case errors.Is(err, feed.ErrInvalidCriteria):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil && f.ID == "":
		s.logger.Error("create feed failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create feed")
		return
	case err != nil:
		// The feed is saved; the next cycle writes its document.
		s.logger.Warn("seed new feed failed", zap.String("feed_id", f.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, createFeedResponse{
		Feed:    f,
		FeedURL: s.feedURL(f.ID),
	})
}

func (s *Server) deactivateFeed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "feed_id")
	f, err := s.engine.DeactivateFeed(r.Context(), id)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		writeError(w, http.StatusNotFound, "feed not found")
		return
	case errors.Is(err, feed.ErrInvalidCriteria):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("deactivate feed failed", zap.String("feed_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to deactivate feed")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) feedURL(id string) string {
	return strings.TrimRight(s.cfg.RSS.SelfBaseURL, "/") + "/" + id
}

// etagMatches implements the If-None-Match weak comparison.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.String("request_id", reqID),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
