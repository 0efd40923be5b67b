// Package server exposes the pipeline, quarantine review, and enrichment
// operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/enrichment"
	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/pipeline"
	"github.com/sells-group/prospect-pipeline/internal/quarantine"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

// Pipeline is the dispatcher surface the server drives.
type Pipeline interface {
	ProcessStagingTable(ctx context.Context, batchSize int) (*pipeline.BatchResult, error)
	ProcessQuarantinedRecords(ctx context.Context, limit int) ([]quarantine.Reprocessed, error)
	PipelineStats(ctx context.Context) (*pipeline.Stats, error)
}

// Reviewer applies quarantine review decisions.
type Reviewer interface {
	Review(ctx context.Context, id string, d quarantine.Decision) (*model.QuarantineRecord, error)
	List(ctx context.Context, filter store.QuarantineFilter) ([]model.QuarantineRecord, error)
}

// Enricher is the enrichment scheduler surface the server drives.
type Enricher interface {
	RunScheduled(ctx context.Context) (*enrichment.BatchSummary, error)
	EnrichBatch(ctx context.Context, ids []string) (*enrichment.BatchSummary, error)
	CheckHealth(ctx context.Context) (*enrichment.Health, error)
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server settings.
type Config struct {
	AllowedOrigins []string
	BatchSize      int
	ReprocessLimit int
}

// Server routes HTTP requests to the pipeline components.
type Server struct {
	cfg      Config
	pipeline Pipeline
	reviewer Reviewer
	enricher Enricher
	store    Pinger
	gatherer prometheus.Gatherer
}

// New creates a Server. A nil gatherer serves the default registry.
func New(cfg Config, p Pipeline, r Reviewer, e Enricher, st Pinger, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{cfg: cfg, pipeline: p, reviewer: r, enricher: e, store: st, gatherer: gatherer}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/pipeline", func(r chi.Router) {
		r.Post("/run", s.handleRun)
		r.Get("/stats", s.handleStats)
	})
	r.Route("/quarantine", func(r chi.Router) {
		r.Get("/", s.handleQuarantineList)
		r.Post("/reprocess", s.handleReprocess)
		r.Post("/{id}/review", s.handleReview)
	})
	r.Route("/enrichment", func(r chi.Router) {
		r.Post("/run", s.handleEnrichRun)
		r.Post("/batch", s.handleEnrichBatch)
		r.Get("/health", s.handleEnrichHealth)
	})
	return r
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
