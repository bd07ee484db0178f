// Package api exposes the router over HTTP: decision requests, outcome
// reports, stats, patterns, savings, licensing, and a live event feed.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/catalog"
	"github.com/openclaw/smartroute/internal/events"
	"github.com/openclaw/smartroute/internal/learner"
	"github.com/openclaw/smartroute/internal/quota"
	"github.com/openclaw/smartroute/internal/selector"
	"github.com/openclaw/smartroute/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	port       int
	analyzer   *analyzer.Analyzer
	selector   *selector.Selector
	learner    *learner.Learner
	gate       *quota.Gate
	store      *store.Store
	catalog    *catalog.Catalog
	bus        *events.Bus
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer wires the API server. All components are constructed by the
// hosting process and passed in; there is no hidden global router state.
func NewServer(
	port int,
	an *analyzer.Analyzer,
	sel *selector.Selector,
	lr *learner.Learner,
	gate *quota.Gate,
	st *store.Store,
	cat *catalog.Catalog,
	bus *events.Bus,
	logger *slog.Logger,
) *Server {
	return &Server{
		port:     port,
		analyzer: an,
		selector: sel,
		learner:  lr,
		gate:     gate,
		store:    st,
		catalog:  cat,
		bus:      bus,
		logger:   logger.With("component", "api"),
	}
}

// Handler builds the routing mux with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/route", s.handleRoute)
	mux.HandleFunc("/api/test", s.handleTest)
	mux.HandleFunc("/api/outcome", s.handleOutcome)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/patterns", s.handlePatterns)
	mux.HandleFunc("/api/savings", s.handleSavings)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/license", s.handleLicense)
	mux.HandleFunc("/api/payment/link", s.handlePaymentLink)
	mux.HandleFunc("/api/payment/verify", s.handlePaymentVerify)
	mux.HandleFunc("/api/events", s.handleEvents)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

// ownerParam extracts the required owner identifier from the query string.
func ownerParam(r *http.Request) (string, bool) {
	owner := r.URL.Query().Get("owner")
	return owner, owner != ""
}
