// ABOUTME: serve subcommand running the HTTP gateway and, optionally, embedded workers
// ABOUTME: Gateway and pool share one errgroup so either failing stops both

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/2389/voyage-gateway/internal/dedupe"
	"github.com/2389/voyage-gateway/internal/gateway"
	"github.com/2389/voyage-gateway/internal/metrics"
	"github.com/2389/voyage-gateway/internal/orchestrator"
	"github.com/2389/voyage-gateway/internal/stream"
)

func runServe(ctx context.Context, cfgFile string) error {
	printBanner()

	cfg, source, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	workers := "external"
	if cfg.Worker.Embedded {
		workers = "embedded (" + strconv.Itoa(cfg.Worker.Slots) + " slots)"
	}
	printStartup(
		[2]string{"Config", source},
		[2]string{"HTTP", cfg.Server.HTTPAddr},
		[2]string{"Store", cfg.Store.Backend},
		[2]string{"Queue", cfg.Queue.Backend},
		[2]string{"Workers", workers},
		[2]string{"Planner", cfg.Agents.Planner},
	)

	logger.Info("starting voyage-gateway",
		"config", source,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
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

	registry := stream.NewRegistry(stream.Options{
		Buffer:  cfg.Stream.Buffer,
		Timeout: cfg.Stream.TurnTimeout,
	}, logger)
	m.TrackActiveTurns(registry.Active)

	orch := orchestrator.New(orchestrator.Config{
		PollInterval: cfg.Orchestrator.PollInterval,
		HistoryLimit: cfg.Orchestrator.HistoryLimit,
		Diagnostic:   cfg.Diagnostic,
	}, orchestrator.Deps{
		Store:       b.store,
		Queue:       b.queue,
		Planner:     ag.planner,
		Recommender: ag.recommender,
		Calendar:    ag.calendar,
		Metrics:     m,
		Logger:      logger,
	})

	gw, err := gateway.New(cfg, gateway.Deps{
		Turns:    orch,
		Store:    b.store,
		Registry: registry,
		Metrics:  m,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Run(gctx)
	})

	if cfg.Worker.Embedded {
		guard := dedupe.NewEffectGuard(cfg.Worker.EffectTTL, effectGuardSize, cfg.Worker.EffectTTL)
		defer guard.Close()

		pool := newPool(cfg, b, ag, guard, registry, m, logger)
		g.Go(func() error {
			return pool.Run(gctx)
		})
	}

	return g.Wait()
}
