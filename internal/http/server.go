// Package http exposes the dashboard's JSON API.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/cache"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/middleware/trace"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/store"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/webhook"
)

// CategoryUpdater applies a category change and starts its upstream
// reconciliation.
type CategoryUpdater interface {
	UpdateCategory(id string, category core.Category) (core.Status, error)
}

// Refresher runs one fetch cycle on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// DocumentGateway covers the upstream operations the API proxies directly.
type DocumentGateway interface {
	Upload(ctx context.Context, docType core.DocType, filename string, data io.Reader) (*core.ExtractedFields, error)
	Save(ctx context.Context, record core.RawRecord) error
	FetchDocument(ctx context.Context, url string) (*webhook.Document, error)
}

type Server struct {
	http.Server
	store       *store.Store
	updater     CategoryUpdater
	refresher   Refresher
	gateway     DocumentGateway
	rateLimiter *rateLimiter
	trace       *trace.Middleware
	startedAt   time.Time

	// Cached serialized stats responses, flushed whenever the store changes.
	statsCache   *cache.LRUCache[[]byte]
	cacheManager *cache.Manager

	stopWatch    chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(addr string, st *store.Store, updater CategoryUpdater, ref Refresher, gw DocumentGateway) *Server {
	mux := http.NewServeMux()

	s := &Server{
		store:       st,
		updater:     updater,
		refresher:   ref,
		gateway:     gw,
		rateLimiter: newRateLimiter(),
		trace:       trace.NewMiddleware(clientIP),
		startedAt:   time.Now(),
		statsCache:  cache.NewLRUCache[[]byte](100, 5*time.Minute),
		stopWatch:   make(chan struct{}),
	}

	s.cacheManager = cache.NewManager()
	s.cacheManager.Register(s.statsCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Any store change invalidates every cached stats response.
	go s.watchStore(st.Subscribe())

	mux.HandleFunc("GET /api/records", s.withHeaders(s.handleListRecords))
	mux.HandleFunc("GET /api/records/sync-status", s.withHeaders(s.handleSyncStatus))
	mux.HandleFunc("POST /api/records/{id}/category", s.withHeaders(s.handleUpdateCategory))
	mux.HandleFunc("GET /api/stats/kpis", s.withHeaders(s.handleKPIs))
	mux.HandleFunc("GET /api/stats/monthly", s.withHeaders(s.handleMonthlySeries))
	mux.HandleFunc("GET /api/stats/categories", s.withHeaders(s.handleCategoryBreakdown))
	mux.HandleFunc("POST /api/refresh", s.withHeaders(s.handleRefresh))
	mux.HandleFunc("POST /api/upload", s.withHeaders(s.handleUpload))
	mux.HandleFunc("POST /api/save", s.withHeaders(s.handleSave))
	mux.HandleFunc("GET /api/view-document", s.withHeaders(s.handleViewDocument))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.Server.Addr = addr
	s.Server.Handler = s.trace.Middleware(mux)
	s.Server.ReadHeaderTimeout = 10 * time.Second

	return s
}

func (s *Server) watchStore(changes <-chan struct{}) {
	for {
		select {
		case <-changes:
			s.cacheManager.FlushAll()
		case <-s.stopWatch:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopWatch)
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withHeaders adds security headers and rate limiting.
func (s *Server) withHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		next(w, r)
	}
}

// clientIP extracts the client address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the store has been populated at least
// once, by a live fetch or by the local snapshot.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store.FetchedAt().IsZero() && !s.store.Stale() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics exposes request, cache and rate limiter metrics in plain
// text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.trace.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_response_time_microseconds Last observed response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n")
	fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
	fmt.Fprintf(w, "cache_entries{type=\"stats\"} %d\n\n", s.statsCache.Size())

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.rateLimiter.ActiveClients())

	fmt.Fprintf(w, "# HELP record_count Records currently held in the store\n")
	fmt.Fprintf(w, "# TYPE record_count gauge\n")
	fmt.Fprintf(w, "record_count %d\n\n", len(s.store.Snapshot()))

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.startedAt).Seconds())
}
