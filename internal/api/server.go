// Package api exposes the prediction engines over HTTP.
package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credit-prediction/internal/batch"
	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/common/observability"
	"credit-prediction/internal/inference"
	"credit-prediction/internal/metadata"
	"credit-prediction/internal/store"
)

// maxPredictBody bounds single-record request bodies.
const maxPredictBody = 1 << 20

// Dependencies are the components the HTTP layer serves.
type Dependencies struct {
	Store     *store.Store
	Inference *inference.Engine
	Batch     *batch.Engine
	Reporter  *metadata.Reporter
	Obs       *observability.Observability
	Logger    logger.Logger

	// DefaultSchemaKind is used by /schema and /global-importance without ?kind=.
	DefaultSchemaKind string
	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

type Server struct {
	cfg        config.ServerConfig
	store      *store.Store
	inference  *inference.Engine
	batch      *batch.Engine
	reporter   *metadata.Reporter
	obs        *observability.Observability
	logger     logger.Logger
	schemaKind string
	metrics    http.Handler

	httpServer *http.Server
}

func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		cfg:        cfg,
		store:      deps.Store,
		inference:  deps.Inference,
		batch:      deps.Batch,
		reporter:   deps.Reporter,
		obs:        deps.Obs,
		logger:     deps.Logger,
		schemaKind: deps.DefaultSchemaKind,
		metrics:    deps.MetricsHandler,
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	if s.schemaKind == "" {
		s.schemaKind = config.KindRegression
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}
	return s
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /schema", s.handleSchema)
	mux.HandleFunc("GET /meta", s.handleMeta)
	mux.HandleFunc("GET /global-importance", s.handleGlobalImportance)
	mux.HandleFunc("POST /predict/regression", s.handlePredict(config.KindRegression))
	mux.HandleFunc("POST /predict/classification", s.handlePredict(config.KindClassification))
	mux.HandleFunc("POST /predict/batch", s.handleBatch)
	mux.Handle("GET /metrics", s.metrics)

	return withCORS(withRequestID(s.withAccessLog(mux)))
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", map[string]interface{}{"address": s.cfg.Address})
	if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(s.cfg.ShutdownTimeout))
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
