// Package api exposes pipeline execution and the run journal over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ppexec/internal/domain"
	"ppexec/internal/middleware"
	"ppexec/internal/pipeline"
)

const (
	defaultPreviewRows = 20
	maxRequestBytes    = 4 << 20
)

// Options configures a Server.
type Options struct {
	Journal        domain.RunRepository
	Logger         *slog.Logger
	AllowedOrigins []string
	RateLimit      middleware.RateLimitConfig
	// PreviewRows caps the records returned with a finished run.
	PreviewRows int
}

// Server serves the run API.
type Server struct {
	exec    *pipeline.Executor
	journal domain.RunRepository
	logger  *slog.Logger
	opts    Options
}

// NewServer creates a server executing pipelines on exec.
func NewServer(exec *pipeline.Executor, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = defaultPreviewRows
	}
	return &Server{
		exec:    exec,
		journal: opts.Journal,
		logger:  opts.Logger.With("component", "api"),
		opts:    opts,
	}
}

// Router builds the HTTP handler. Background middleware work stops when ctx
// is done.
func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(s.opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.HeaderRequestID},
		ExposedHeaders: []string{middleware.HeaderRequestID},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/openapi.json", s.openAPI)

	r.Route("/v1", func(r chi.Router) {
		if s.opts.RateLimit.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimiter(ctx, s.opts.RateLimit))
		}
		r.Get("/commands", s.listCommands)
		r.Post("/runs", s.createRun)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
