// ABOUTME: Per-turn state machine that records the turn, routes it to an agent or a task, and streams the result
// ABOUTME: Every content-bearing event is deduplicated inside a session read-modify-write before it is published

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/dedupe"
	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/metrics"
	"github.com/2389/voyage-gateway/internal/queue"
	"github.com/2389/voyage-gateway/internal/store"
	"github.com/2389/voyage-gateway/internal/stream"
)

// ErrEmptyMessage is returned for a turn with no text.
var ErrEmptyMessage = errors.New("empty message")

// UserError pairs an internal error with the message safe to show the user.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *UserError) Unwrap() error { return e.Err }

// TurnRequest is one user input.
type TurnRequest struct {
	SessionID string
	Text      string
}

// Config tunes turn handling.
type Config struct {
	// PollInterval is how often an awaiting turn rechecks the session when
	// no wake-up arrives. Wake-ups only reach turns in the same process.
	PollInterval time.Duration
	// HistoryLimit caps how many prior lines the planning agent sees.
	HistoryLimit int
	// Diagnostic adds internal error detail to error events.
	Diagnostic bool
}

// Deps are the collaborators a turn may call.
type Deps struct {
	Store       store.SessionStore
	Queue       queue.Queue
	Planner     agent.Planner
	Recommender agent.Recommender
	// Calendar may be nil; registration then reports it is unavailable.
	Calendar agent.Calendar
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Orchestrator handles turns. It holds no per-session state of its own.
type Orchestrator struct {
	cfg         Config
	store       store.SessionStore
	queue       queue.Queue
	planner     agent.Planner
	recommender agent.Recommender
	calendar    agent.Calendar
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       deps.Store,
		queue:       deps.Queue,
		planner:     deps.Planner,
		recommender: deps.Recommender,
		calendar:    deps.Calendar,
		metrics:     deps.Metrics,
		logger:      logger.With("component", "orchestrator"),
	}
}

// turn carries what one HandleTurn call needs across its steps.
type turn struct {
	sessionID string
	text      string
	pub       *stream.Publisher
	logger    *slog.Logger
}

// HandleTurn runs one turn to its terminal event, publishing everything on
// pub. The returned status is the turn's terminal status; StatusProcessing
// means the stream ended before the awaited work finished.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest, pub *stream.Publisher) (store.Status, error) {
	t := &turn{
		sessionID: req.SessionID,
		text:      strings.TrimSpace(req.Text),
		pub:       pub,
		logger:    o.logger.With("session_id", req.SessionID),
	}

	status, err := o.handle(ctx, t)

	// The turn outlives a client that went away mid-way.
	persistCtx := context.WithoutCancel(ctx)
	if _, uerr := o.store.Update(persistCtx, t.sessionID, func(s *store.Session) error {
		s.Status = status
		return nil
	}); uerr != nil {
		t.logger.Error("persisting turn status", "error", uerr)
	}
	o.metrics.TurnFinished(string(status))
	t.logger.Info("turn finished", "status", status)
	return status, err
}

func (o *Orchestrator) handle(ctx context.Context, t *turn) (store.Status, error) {
	if t.text == "" {
		return o.fail(ctx, t, "Please type a message.", ErrEmptyMessage)
	}

	// Record first, then act
	sess, err := o.store.Update(ctx, t.sessionID, func(s *store.Session) error {
		s.AppendHistory(store.RoleUser, t.text)
		s.Status = store.StatusProcessing
		return nil
	})
	if err != nil {
		return o.fail(ctx, t, "We couldn't save your message. Please try again.", fmt.Errorf("recording turn: %w", err))
	}

	// Results that finished after an earlier turn's stream closed.
	if _, _, err := o.drain(ctx, t, ""); err != nil {
		t.logger.Warn("replaying outbox", "error", err)
	}

	return o.route(ctx, t, sess)
}

// emit runs e through the dedup filter and publishes it. It reports whether
// e was delivered. An event the stream could no longer take is kept on the
// session for the next turn. A suppressed terminal event still ends the turn.
func (o *Orchestrator) emit(ctx context.Context, t *turn, e event.Event) (bool, error) {
	pass := false
	_, err := o.store.Update(ctx, t.sessionID, func(s *store.Session) error {
		pass = dedupe.Apply(e, s)
		if pass {
			if text := e.Content(); text != "" && e.Kind == event.KindMessage {
				s.AppendHistory(store.RoleAssistant, text)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("recording %s event: %w", e.Kind, err)
	}

	if !pass {
		o.metrics.Event(string(e.Kind), metrics.OutcomeSuppressed)
		t.logger.Debug("suppressed duplicate event", "kind", e.Kind)
		if e.Terminal() {
			t.pub.Close()
		}
		return false, nil
	}

	if err := t.pub.Publish(e); err != nil {
		o.persistUndelivered(ctx, t, []event.Event{e})
		return false, nil
	}
	o.metrics.Event(string(e.Kind), metrics.OutcomePublished)
	return true, nil
}

func (o *Orchestrator) persistUndelivered(ctx context.Context, t *turn, events []event.Event) {
	if len(events) == 0 {
		return
	}
	_, err := o.store.Update(context.WithoutCancel(ctx), t.sessionID, func(s *store.Session) error {
		s.Undelivered = append(s.Undelivered, events...)
		return nil
	})
	if err != nil {
		t.logger.Error("keeping undelivered events", "error", err, "count", len(events))
		return
	}
	for _, e := range events {
		o.metrics.Event(string(e.Kind), metrics.OutcomePersisted)
	}
	t.logger.Debug("stream closed, events kept for next turn", "count", len(events))
}

// drain moves the session outbox onto the stream. Events belonging to
// awaitTaskID are live; everything else is replayed and cannot end the
// turn. It returns the awaited task's terminal event when one was
// delivered, and whether the awaited task has finished.
func (o *Orchestrator) drain(ctx context.Context, t *turn, awaitTaskID string) (*event.Event, bool, error) {
	var deliver, suppressed []event.Event
	finished := false
	_, err := o.store.Update(ctx, t.sessionID, func(s *store.Session) error {
		deliver, suppressed = nil, nil
		for _, e := range s.TakeUndelivered() {
			if e.TaskID != awaitTaskID || awaitTaskID == "" {
				e.Replay = true
			}
			deliver = append(deliver, e)
		}
		for _, e := range s.TakePending() {
			if e.TaskID != awaitTaskID || awaitTaskID == "" {
				e.Replay = true
			}
			if dedupe.Apply(e, s) {
				deliver = append(deliver, e)
			} else {
				suppressed = append(suppressed, e)
			}
		}
		finished = awaitTaskID != "" && s.TaskFinished(awaitTaskID)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("draining outbox: %w", err)
	}
	for _, e := range suppressed {
		o.metrics.Event(string(e.Kind), metrics.OutcomeSuppressed)
	}

	var terminal *event.Event
	for i, e := range deliver {
		if err := t.pub.Publish(e); err != nil {
			o.persistUndelivered(ctx, t, deliver[i:])
			break
		}
		o.metrics.Event(string(e.Kind), metrics.OutcomePublished)
		if e.Terminal() {
			delivered := e
			terminal = &delivered
		}
	}
	return terminal, finished, nil
}

// await keeps the turn open until the task's result is delivered, the task
// finishes without a deliverable result, or the stream ends.
func (o *Orchestrator) await(ctx context.Context, t *turn, taskID string) (store.Status, error) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		terminal, finished, err := o.drain(ctx, t, taskID)
		if err != nil {
			t.logger.Warn("awaiting task", "task_id", taskID, "error", err)
		}
		if terminal != nil {
			return statusOf(*terminal), nil
		}
		if finished {
			// The result was suppressed as a duplicate.
			t.pub.Close()
			return store.StatusSuccess, nil
		}

		select {
		case <-t.pub.Woken():
		case <-ticker.C:
		case <-t.pub.Done():
			t.logger.Info("stream ended before task finished", "task_id", taskID, "reason", t.pub.Err())
			return store.StatusProcessing, nil
		case <-ctx.Done():
			return store.StatusProcessing, ctx.Err()
		}
	}
}

// fail emits a user-safe error event and ends the turn with StatusError.
func (o *Orchestrator) fail(ctx context.Context, t *turn, msg string, cause error) (store.Status, error) {
	e := event.Failure(msg, "")
	if o.cfg.Diagnostic && cause != nil {
		e.Stacktrace = cause.Error()
	}
	t.logger.Warn("turn failed", "error", cause)
	if _, err := o.emit(ctx, t, e); err != nil {
		// The store is unreachable; the stream is all that is left.
		_ = t.pub.Publish(e)
	}
	return store.StatusError, &UserError{Message: msg, Err: cause}
}

// enqueue records the task on the session and hands it to the queue.
func (o *Orchestrator) enqueue(ctx context.Context, t *turn, task *queue.Task) error {
	if _, err := o.store.Update(ctx, t.sessionID, func(s *store.Session) error {
		s.SetTask(task.ID, string(task.Kind), store.TaskQueued, 0, "")
		return nil
	}); err != nil {
		return fmt.Errorf("recording task: %w", err)
	}
	if _, err := o.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueueing %s task: %w", task.Kind, err)
	}
	o.metrics.TaskEnqueued(string(task.Kind))
	t.logger.Info("task enqueued", "task_id", task.ID, "kind", task.Kind)
	return nil
}

func statusOf(e event.Event) store.Status {
	switch e.Status {
	case event.StatusNeedMoreInfo:
		return store.StatusNeedMoreInfo
	case event.StatusError:
		return store.StatusError
	case event.StatusProcessing:
		return store.StatusProcessing
	default:
		return store.StatusSuccess
	}
}

// say emits e, falling back to the bare stream when the session cannot be
// written.
func (o *Orchestrator) say(ctx context.Context, t *turn, e event.Event) {
	if _, err := o.emit(ctx, t, e); err != nil {
		t.logger.Warn("emitting event", "kind", e.Kind, "error", err)
		_ = t.pub.Publish(e)
	}
}
