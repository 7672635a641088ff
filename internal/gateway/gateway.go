// ABOUTME: Gateway owns the HTTP server that streams conversational turns to clients
// ABOUTME: Manages routes, in-flight turns, health endpoints and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"

	"github.com/2389/voyage-gateway/internal/config"
	"github.com/2389/voyage-gateway/internal/metrics"
	"github.com/2389/voyage-gateway/internal/orchestrator"
	"github.com/2389/voyage-gateway/internal/store"
	"github.com/2389/voyage-gateway/internal/stream"
)

// TurnHandler runs one turn to completion on a publisher.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest, pub *stream.Publisher) (store.Status, error)
}

// Deps are the components the gateway serves. The caller owns their
// lifecycle except for the registry, which Shutdown closes.
type Deps struct {
	Turns    TurnHandler
	Store    store.SessionStore
	Registry *stream.Registry
	Metrics  *metrics.Metrics
}

// Gateway serves the chat API over HTTP.
type Gateway struct {
	config     *config.Config
	turns      TurnHandler
	store      store.SessionStore
	registry   *stream.Registry
	metrics    *metrics.Metrics
	router     *mux.Router
	httpServer *http.Server
	logger     *slog.Logger

	// turnCtx outlives client connections; turns keep running after a
	// client goes away and their results land in the session.
	turnCtx     context.Context
	cancelTurns context.CancelFunc
	inflight    sync.WaitGroup
}

// New creates a Gateway with its routes registered.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if deps.Turns == nil || deps.Store == nil || deps.Registry == nil {
		return nil, errors.New("gateway: turns, store and registry are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	turnCtx, cancel := context.WithCancel(context.Background())
	gw := &Gateway{
		config:      cfg,
		turns:       deps.Turns,
		store:       deps.Store,
		registry:    deps.Registry,
		metrics:     deps.Metrics,
		logger:      logger.With("component", "gateway"),
		turnCtx:     turnCtx,
		cancelTurns: cancel,
	}

	r := mux.NewRouter()

	// Health endpoints
	r.HandleFunc("/health", gw.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", gw.handleReady).Methods(http.MethodGet)

	// Chat API
	r.HandleFunc("/chat", gw.handleChat).Methods(http.MethodGet)
	r.HandleFunc("/api/chat", gw.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}", gw.handleGetSession).Methods(http.MethodGet)

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.Handle(cfg.Metrics.Path, deps.Metrics.Handler()).Methods(http.MethodGet)
		gw.logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	gw.router = r
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// The original context is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.shutdownTimeout())
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) shutdownTimeout() time.Duration {
	if g.config.Server.ShutdownTimeout > 0 {
		return g.config.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Shutdown stops accepting requests, ends live streams and waits for
// in-flight turns until ctx expires.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var result *multierror.Error

	// Streams must end before the HTTP server can drain its handlers.
	g.registry.Close()
	if err := g.httpServer.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("HTTP shutdown: %w", err))
	}

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		result = multierror.Append(result, fmt.Errorf("waiting for in-flight turns: %w", ctx.Err()))
	}
	g.cancelTurns()

	return result.ErrorOrNil()
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readinessProbeID is a session key that is never created.
const readinessProbeID = "__readiness_probe__"

// handleReady returns 200 OK when the session store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := g.store.Get(ctx, readinessProbeID); err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("session store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d live turns)", g.registry.Active())
}
