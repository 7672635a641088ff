// ABOUTME: worker subcommand consuming tasks from a shared queue in its own process
// ABOUTME: Serves /health and metrics on a side listener while the pool runs

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/voyage-gateway/internal/config"
	"github.com/2389/voyage-gateway/internal/dedupe"
	"github.com/2389/voyage-gateway/internal/metrics"
)

func newWorkerCmd(cfgFile *string) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a standalone worker pool against the shared queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), *cfgFile, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "localhost:9091", "address for /health and metrics (empty disables)")
	return cmd
}

// checkWorkerConfig rejects backends a separate process cannot share.
func checkWorkerConfig(cfg *config.Config) error {
	if cfg.Queue.Backend != config.BackendSQS {
		return fmt.Errorf("worker needs queue.backend %q, got %q", config.BackendSQS, cfg.Queue.Backend)
	}
	if cfg.Store.Backend == config.BackendMemory {
		return errors.New("worker needs a shared store backend, not memory")
	}
	return nil
}

func runWorker(ctx context.Context, cfgFile, listen string) error {
	printBanner()

	cfg, source, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := checkWorkerConfig(cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout).With("process", "worker")

	printStartup(
		[2]string{"Config", source},
		[2]string{"Store", cfg.Store.Backend},
		[2]string{"Queue", cfg.Queue.URL},
		[2]string{"Slots", strconv.Itoa(cfg.Worker.Slots)},
		[2]string{"Listen", listen},
	)

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("closing backends", "error", err)
		}
	}()

	ag, err := buildAgents(ctx, cfg.Agents, logger)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	guard := dedupe.NewEffectGuard(cfg.Worker.EffectTTL, effectGuardSize, cfg.Worker.EffectTTL)
	defer guard.Close()

	// Turns live in gateway processes, which poll the session for results.
	pool := newPool(cfg, b, ag, guard, nil, m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	if listen != "" {
		srv := sideServer(listen, cfg.Metrics, m)
		g.Go(func() error {
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", listen, err)
			}
			logger.Info("worker side listener", "addr", listen)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		})
	}

	return g.Wait()
}

func sideServer(addr string, mc config.MetricsConfig, m *metrics.Metrics) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	if mc.Enabled && m != nil {
		r.Handle(mc.Path, m.Handler()).Methods(http.MethodGet)
	}
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
