// ABOUTME: Builds stores, queues, agents and the worker pool from configuration
// ABOUTME: Shared by the serve and worker subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/agent/gcal"
	"github.com/2389/voyage-gateway/internal/agent/llm"
	"github.com/2389/voyage-gateway/internal/agent/local"
	"github.com/2389/voyage-gateway/internal/agent/mail"
	"github.com/2389/voyage-gateway/internal/agent/naver"
	"github.com/2389/voyage-gateway/internal/config"
	"github.com/2389/voyage-gateway/internal/dedupe"
	"github.com/2389/voyage-gateway/internal/metrics"
	"github.com/2389/voyage-gateway/internal/queue"
	"github.com/2389/voyage-gateway/internal/store"
	"github.com/2389/voyage-gateway/internal/worker"
)

// effectGuardSize bounds the in-process side-effect guard.
const effectGuardSize = 10000

// backends are the durable collaborators every process shares.
type backends struct {
	store store.SessionStore
	queue queue.Queue
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWS.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
		}
		c, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return aws.Config{}, fmt.Errorf("loading aws config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	b := &backends{}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		b.store = s
	case config.BackendDynamoDB:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(c, func(o *dynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		b.store = store.NewDynamoDBStore(client, cfg.Store.Table, cfg.Store.SessionTTL)
	default:
		b.store = store.NewMemoryStore()
	}
	logger.Info("session store ready", "backend", cfg.Store.Backend)

	switch cfg.Queue.Backend {
	case config.BackendSQS:
		c, err := loadAWS()
		if err != nil {
			_ = b.store.Close()
			return nil, err
		}
		client := sqs.NewFromConfig(c, func(o *sqs.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		b.queue = queue.NewSQSQueue(client, queue.SQSOptions{
			QueueURL:          cfg.Queue.URL,
			DLQURL:            cfg.Queue.DLQURL,
			WaitTime:          cfg.Queue.WaitTime,
			VisibilityTimeout: cfg.Queue.Visibility,
		})
	default:
		b.queue = queue.NewMemoryQueue()
	}
	logger.Info("task queue ready", "backend", cfg.Queue.Backend)

	return b, nil
}

// Close closes the queue before the store so in-flight work stops first.
func (b *backends) Close() error {
	var result *multierror.Error
	if err := b.queue.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing queue: %w", err))
	}
	if err := b.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing store: %w", err))
	}
	return result.ErrorOrNil()
}

// agents holds one implementation per collaborator role. calendar may be
// nil.
type agents struct {
	planner     agent.Planner
	recommender agent.Recommender
	searcher    agent.Searcher
	mailer      agent.Mailer
	calendar    agent.Calendar
}

// buildAgents picks adapters from configuration. Adapters whose
// credentials are missing fall back to the built-in ones, except the
// calendar, which is left unset.
func buildAgents(ctx context.Context, cfg config.AgentsConfig, logger *slog.Logger) (*agents, error) {
	a := &agents{}

	switch cfg.Planner {
	case config.PlannerOpenAI:
		client, err := llm.New(llm.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			MaxRetries: cfg.OpenAI.MaxRetries,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating openai planner: %w", err)
		}
		a.planner = client
		a.recommender = client
	default:
		a.planner = &local.Planner{}
		a.recommender = &local.Recommender{}
	}

	searcher, err := naver.New(naver.Config{
		ClientID:     cfg.Naver.ClientID,
		ClientSecret: cfg.Naver.ClientSecret,
		Endpoint:     cfg.Naver.Endpoint,
	})
	switch {
	case err == nil:
		a.searcher = searcher
	case errors.Is(err, agent.ErrUnavailable):
		logger.Warn("naver search not configured, using built-in places")
		a.searcher = local.Searcher{}
	default:
		return nil, fmt.Errorf("creating naver search: %w", err)
	}

	mailer, err := mail.New(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	switch {
	case err == nil:
		a.mailer = mailer
	case errors.Is(err, agent.ErrUnavailable):
		logger.Warn("smtp not configured, plans will be recorded but not mailed")
		a.mailer = &local.Mailer{}
	default:
		return nil, fmt.Errorf("creating mailer: %w", err)
	}

	cal, err := gcal.New(ctx, gcal.Config{
		CredentialsFile: cfg.Calendar.CredentialsFile,
		TimeZone:        cfg.Calendar.TimeZone,
	})
	switch {
	case err == nil:
		a.calendar = cal
	case errors.Is(err, agent.ErrUnavailable):
		logger.Warn("google calendar not configured, registration disabled")
	default:
		return nil, fmt.Errorf("creating calendar: %w", err)
	}

	return a, nil
}

// newPool builds a worker pool with the search and notify handlers
// registered. signaler may be nil when no turns run in this process.
func newPool(cfg *config.Config, b *backends, a *agents, guard *dedupe.EffectGuard, signaler worker.Signaler, m *metrics.Metrics, logger *slog.Logger) *worker.Pool {
	pool := worker.NewPool(worker.Config{
		Slots:          cfg.Worker.Slots,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BackoffInitial: cfg.Worker.BackoffInitial,
		BackoffMax:     cfg.Worker.BackoffMax,
		TaskTimeout:    cfg.Worker.TaskTimeout,
		Diagnostic:     cfg.Diagnostic,
	}, b.queue, b.store, signaler, m, logger)

	var limiter *rate.Limiter
	if cfg.Worker.SearchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Worker.SearchRate), 1)
	}
	pool.Register(queue.KindSearch, &worker.SearchHandler{
		Searcher: a.searcher,
		Planner:  a.planner,
		Limiter:  limiter,
		Logger:   logger,
	})
	pool.Register(queue.KindNotify, &worker.NotifyHandler{
		Store:  b.store,
		Mailer: a.mailer,
		Guard:  guard,
	})
	return pool
}
