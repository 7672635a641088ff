// ABOUTME: Worker pool that consumes queued tasks, runs their handlers and writes results to the session outbox
// ABOUTME: Failures are retried with exponential backoff and dead-lettered once attempts run out

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/metrics"
	"github.com/2389/voyage-gateway/internal/queue"
	"github.com/2389/voyage-gateway/internal/store"
)

// FailureMessage is what the user sees when a task exhausts its attempts.
const FailureMessage = "Sorry, something went wrong while preparing your result. Please try again."

// receiveRetryDelay spaces out Receive calls after a broker error.
const receiveRetryDelay = time.Second

// Outcome is a handler's successful result. Events land in the session
// outbox and Apply runs in the same store update.
type Outcome struct {
	Events []event.Event
	Apply  func(*store.Session)
}

// Handler runs one task kind.
type Handler interface {
	Handle(ctx context.Context, task *queue.Task) (*Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *queue.Task) (*Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, task *queue.Task) (*Outcome, error) {
	return f(ctx, task)
}

// Signaler wakes the live turn of a session. *stream.Registry implements it.
type Signaler interface {
	Signal(sessionID string) bool
}

// Config tunes the pool.
type Config struct {
	Slots          int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// TaskTimeout bounds a single handler run. Zero means no bound.
	TaskTimeout time.Duration
	// Diagnostic adds internal error detail to failure events.
	Diagnostic bool
}

func (c *Config) defaults() {
	if c.Slots <= 0 {
		c.Slots = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Minute
	}
}

// Pool runs consumer slots against a queue.
type Pool struct {
	cfg      Config
	queue    queue.Queue
	store    store.SessionStore
	signaler Signaler
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[queue.Kind]Handler
}

// NewPool creates a pool. signaler and m may be nil.
func NewPool(cfg Config, q queue.Queue, s store.SessionStore, signaler Signaler, m *metrics.Metrics, logger *slog.Logger) *Pool {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:      cfg,
		queue:    q,
		store:    s,
		signaler: signaler,
		metrics:  m,
		logger:   logger.With("component", "worker"),
		handlers: make(map[queue.Kind]Handler),
	}
}

// Register installs the handler for kind, replacing any previous one.
func (p *Pool) Register(kind queue.Kind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

func (p *Pool) handler(kind queue.Kind) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[kind]
	return h, ok
}

// Run consumes until ctx ends or the queue closes. A task already being
// handled finishes even when ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", "slots", p.cfg.Slots, "max_attempts", p.cfg.MaxAttempts)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Slots; i++ {
		slot := i
		g.Go(func() error {
			return p.consume(ctx, slot)
		})
	}
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) consume(ctx context.Context, slot int) error {
	logger := p.logger.With("slot", slot)
	for {
		d, err := p.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			logger.Error("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(receiveRetryDelay):
			}
			continue
		}
		p.Process(context.WithoutCancel(ctx), d)
	}
}

// handlerPanic is a recovered panic reported as a task failure.
type handlerPanic struct {
	value any
	stack []byte
}

func (e *handlerPanic) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

// Process runs one delivery to completion: handle, then ack, retry or
// dead-letter. Exported so tests and single-shot runners can drive it.
func (p *Pool) Process(ctx context.Context, d *queue.Delivery) {
	task := d.Task
	logger := p.logger.With("task_id", task.ID, "kind", task.Kind, "session_id", task.SessionID, "attempt", d.Attempt)
	start := time.Now()

	h, ok := p.handler(task.Kind)
	if !ok {
		logger.Error("no handler for task kind")
		p.deadLetter(ctx, d, fmt.Errorf("no handler for kind %q", task.Kind), logger)
		p.metrics.TaskProcessed(string(task.Kind), metrics.ResultDeadLetter, time.Since(start))
		return
	}

	finished := false
	_, err := p.store.Update(ctx, task.SessionID, func(s *store.Session) error {
		finished = s.TaskFinished(task.ID)
		if !finished {
			s.SetTask(task.ID, string(task.Kind), store.TaskRunning, d.Attempt, "")
		}
		return nil
	})
	if err != nil {
		logger.Error("marking task running", "error", err)
		p.retry(ctx, d, err, logger)
		return
	}
	if finished {
		logger.Info("task already finished, dropping redelivery")
		p.ack(ctx, d, logger)
		p.metrics.TaskProcessed(string(task.Kind), metrics.ResultDuplicate, time.Since(start))
		return
	}

	outcome, err := p.run(ctx, h, task)
	if err != nil {
		var hp *handlerPanic
		if errors.As(err, &hp) {
			logger.Error("handler panicked", "panic", hp.value, "stack", string(hp.stack))
		} else {
			logger.Warn("handler failed", "error", err)
		}
		if d.Attempt >= p.cfg.MaxAttempts {
			p.deadLetter(ctx, d, err, logger)
			p.metrics.TaskProcessed(string(task.Kind), metrics.ResultDeadLetter, time.Since(start))
			return
		}
		p.retry(ctx, d, err, logger)
		p.metrics.TaskProcessed(string(task.Kind), metrics.ResultRetry, time.Since(start))
		return
	}

	duplicate := false
	_, err = p.store.Update(ctx, task.SessionID, func(s *store.Session) error {
		duplicate = s.TaskFinished(task.ID)
		if duplicate {
			return nil
		}
		for _, e := range outcome.Events {
			e.TaskID = task.ID
			s.Pending = append(s.Pending, e)
		}
		if outcome.Apply != nil {
			outcome.Apply(s)
		}
		s.SetTask(task.ID, string(task.Kind), store.TaskDone, d.Attempt, "")
		return nil
	})
	if err != nil {
		logger.Error("recording task result", "error", err)
		p.retry(ctx, d, err, logger)
		return
	}

	p.ack(ctx, d, logger)
	result := metrics.ResultDone
	if duplicate {
		result = metrics.ResultDuplicate
	} else {
		p.signal(task.SessionID)
	}
	p.metrics.TaskProcessed(string(task.Kind), result, time.Since(start))
	logger.Info("task done", "events", len(outcome.Events), "duration", time.Since(start))
}

func (p *Pool) run(ctx context.Context, h Handler, task *queue.Task) (outcome *Outcome, err error) {
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			outcome, err = nil, &handlerPanic{value: r, stack: debug.Stack()}
		}
	}()
	outcome, err = h.Handle(ctx, task)
	if err == nil && outcome == nil {
		outcome = &Outcome{}
	}
	return outcome, err
}

// retryDelay grows exponentially with the attempt number.
func (p *Pool) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BackoffInitial
	b.MaxInterval = p.cfg.BackoffMax
	delay := b.InitialInterval
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func (p *Pool) retry(ctx context.Context, d *queue.Delivery, cause error, logger *slog.Logger) {
	delay := p.retryDelay(d.Attempt)
	if _, err := p.store.Update(ctx, d.Task.SessionID, func(s *store.Session) error {
		if !s.TaskFinished(d.Task.ID) {
			s.SetTask(d.Task.ID, string(d.Task.Kind), store.TaskQueued, d.Attempt, cause.Error())
		}
		return nil
	}); err != nil {
		logger.Warn("recording retry", "error", err)
	}
	if err := p.queue.Nack(ctx, d, delay); err != nil {
		logger.Error("nack failed", "error", err)
		return
	}
	logger.Info("task scheduled for retry", "delay", delay)
}

// deadLetter records the failure on the session, then removes the task.
// The session write comes first so the failure is never lost.
func (p *Pool) deadLetter(ctx context.Context, d *queue.Delivery, cause error, logger *slog.Logger) {
	failure := event.Failure(FailureMessage, "")
	if p.cfg.Diagnostic {
		failure.Stacktrace = diagnostic(cause)
	}
	failure.TaskID = d.Task.ID

	_, err := p.store.Update(ctx, d.Task.SessionID, func(s *store.Session) error {
		if s.TaskFinished(d.Task.ID) {
			return nil
		}
		s.SetTask(d.Task.ID, string(d.Task.Kind), store.TaskFailed, d.Attempt, cause.Error())
		s.Pending = append(s.Pending, failure)
		return nil
	})
	if err != nil {
		logger.Error("recording task failure", "error", err)
	}
	if err := p.queue.DeadLetter(ctx, d, cause.Error()); err != nil {
		logger.Error("dead-letter failed", "error", err)
	}
	logger.Warn("task dead-lettered", "error", cause)
	p.signal(d.Task.SessionID)
}

func (p *Pool) ack(ctx context.Context, d *queue.Delivery, logger *slog.Logger) {
	if err := p.queue.Ack(ctx, d); err != nil {
		logger.Error("ack failed", "error", err)
	}
}

func (p *Pool) signal(sessionID string) {
	if p.signaler != nil {
		p.signaler.Signal(sessionID)
	}
}

func diagnostic(err error) string {
	var hp *handlerPanic
	if errors.As(err, &hp) {
		return fmt.Sprintf("%v\n%s", hp.value, hp.stack)
	}
	return err.Error()
}
