// Package api exposes the analyses, resolution and preview bundling over
// HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rorkai/21st-sub000/analyzer"
	"github.com/rorkai/21st-sub000/bundle"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 4 << 20

// Options wires the server's collaborators. Analyzer and Resolver are
// required; a nil Builder disables /bundle and a nil Publisher disables
// resolution events.
type Options struct {
	Analyzer   *analyzer.Analyzer
	Classifier *ts.Classifier
	Resolver   bundle.Resolver
	Builder    *bundle.Builder
	Publisher  graph.Publisher
	// Subject overrides graph.ResolvedSubject.
	Subject      string
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	opts   Options
	logger *slog.Logger
	router chi.Router
	http   *http.Server
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Classifier == nil {
		opts.Classifier = ts.NewClassifier(ts.DefaultClassifierConfig())
	}

	s := &Server{opts: opts, logger: opts.Logger}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limitBody)
		r.Post("/exports", s.handleExports)
		r.Post("/imports", s.handleImports)
		r.Post("/strip", s.handleStrip)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/promote", s.handlePromote)
		r.Post("/resolve", s.handleResolve)
		if s.opts.Builder != nil {
			r.Post("/bundle", s.handleBundle)
		}
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("HTTP server shutting down")
		return s.http.Shutdown(shutdownCtx)
	}
}
