// Package httpapi exposes the post loader and the admin write paths as a
// JSON HTTP API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ammar0144/postloader/pkg/admin"
	"github.com/ammar0144/postloader/pkg/cache"
	"github.com/ammar0144/postloader/pkg/loader"
)

// Pinger checks a dependency for /healthz
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server
type Deps struct {
	Store loader.Store
	Cache cache.Cache

	// Admin enables the /admin routes when set
	Admin *admin.Service

	// Base is the query configuration every request starts from
	Base        loader.QueryConfig
	Location    *time.Location
	MaxPageSize int

	Metrics  *loader.Metrics
	Gatherer prometheus.Gatherer
	Health   Pinger
	Logger   *zap.Logger
}

// Server routes HTTP requests to per-request loaders
type Server struct {
	deps Deps
}

// NewServer creates a server. Missing optional deps get defaults.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.MaxPageSize <= 0 {
		deps.MaxPageSize = 100
	}
	deps.Cache = cache.OrNop(deps.Cache)
	return &Server{deps: deps}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.deps.Logger))

	router.Get("/healthz", s.health)
	if s.deps.Gatherer != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/posts", func(r chi.Router) {
		r.Get("/", s.listPosts)
		r.Get("/count", s.countPosts)
		r.Get("/{postID}", s.getPost)
	})

	router.Route("/archive", func(r chi.Router) {
		r.Get("/", s.archive)
		r.Get("/{year}/{month}/{shortname}", s.postByNaturalKey)
	})

	if s.deps.Admin != nil {
		router.Route("/admin", func(r chi.Router) {
			r.Post("/posts/delete", s.deletePosts)
			r.Delete("/comments/{commentID}", s.deleteComment)
			r.Post("/files/{fileID}/attach", s.attachFile)
			r.Post("/files/{fileID}/detach", s.detachFile)
			r.Delete("/files/{fileID}", s.deleteFile)
		})
	}

	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			s.deps.Logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
