// Package server exposes codification runs over HTTP. It lists and
// starts runs, reports their stored state, and streams live status
// narration to WebSocket subscribers while runs execute in the
// background.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/docstore"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/nlp"
	"github.com/trialkit/codify/nlp/engines"
	"github.com/trialkit/codify/pmc"
	"github.com/trialkit/codify/registry"
	"github.com/trialkit/codify/runner"
)

// ShutdownTimeout is how long Stop waits for in-flight requests and
// background goroutines before giving up.
const ShutdownTimeout = 60 * time.Second

// Server serves the run API. Runs started through it execute in the
// background against the shared trial store; their narration is
// recorded in the runs table and fanned out to event subscribers.
type Server struct {
	cfg      *config.Config
	trials   *docstore.Store
	runs     *runner.Store
	registry runner.Searcher
	finder   *pmc.Finder
	engines  []nlp.Engine
	logger   *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server

	mu     sync.RWMutex
	active map[string]*runner.Runner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a server from configuration and an open database. The
// registry client, engine set, and optional publication finder are all
// built here so handlers only assemble runners.
func New(cfg *config.Config, conn *sql.DB, logger *zap.SugaredLogger) (*Server, error) {
	if cfg == nil {
		return nil, errors.AssertionFailedf("server needs a configuration")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	trials, err := docstore.NewStore(conn, "trials")
	if err != nil {
		return nil, err
	}

	client, err := registry.NewClient(cfg.Registry, logger)
	if err != nil {
		return nil, err
	}

	engs, err := engines.Build(cfg.Engines.Dir, cfg.Engines.Enabled, cfg.Run.Dir)
	if err != nil {
		return nil, err
	}

	var finder *pmc.Finder
	if cfg.PMC.Enabled {
		finder, err = pmc.NewFinder(cfg.PMC, logger)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		trials:   trials,
		runs:     runner.NewStore(conn),
		registry: client,
		finder:   finder,
		engines:  engs,
		logger:   logger,
		mux:      http.NewServeMux(),
		active:   make(map[string]*runner.Runner),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the route table, mainly so tests can mount it on an
// httptest server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// UpdateAllowedOrigins swaps the CORS and WebSocket origin allowlist.
// The config watcher calls it when the config file changes on disk, so
// origin changes apply without a restart.
func (s *Server) UpdateAllowedOrigins(origins []string) {
	s.mu.Lock()
	s.cfg.Server.AllowedOrigins = origins
	s.mu.Unlock()
	s.logger.Infow("Allowed origins updated", "origins", origins)
}

// setupRoutes configures all HTTP handlers.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/runs", s.corsMiddleware(s.HandleRuns))
	s.mux.HandleFunc("/runs/{id}", s.corsMiddleware(s.HandleRun))
	s.mux.HandleFunc("/runs/{id}/events", s.corsMiddleware(s.HandleRunEvents))
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	s.mux.HandleFunc("/version", s.corsMiddleware(s.HandleVersion))
}

// corsMiddleware adds CORS headers to HTTP responses using configured
// allowed origins. Origin validation is shared with the WebSocket
// upgrade path (server.allowed_origins config).
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Start listens on the requested port, falling back to nearby ports
// when it is taken. It blocks until the server stops.
func (s *Server) Start(port int) error {
	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}

	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", actualPort),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("http://localhost:%d", actualPort),
		"port", actualPort,
	)

	err = s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server. In-flight requests get a
// drain window, then background runs are cancelled and their
// goroutines awaited.
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warnw("HTTP server did not drain cleanly", "error", err)
		}
	}

	// Cancel context to signal background runs and event streams to stop
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
		)
	}

	s.logger.Infow("Server shutdown complete")
	return nil
}
