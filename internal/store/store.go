// ABOUTME: SessionStore interface and the Session record for voyage-gateway persistence
// ABOUTME: Every mutation is a read-modify-write against one session key, serialized by version

package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

// ErrNotFound is returned when a requested session does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write loses the optimistic version race.
// Update retries on it; callers only see it once retries are exhausted.
var ErrConflict = errors.New("version conflict")

// maxUpdateAttempts bounds how often Update re-reads after a conflict.
const maxUpdateAttempts = 16

// Status is the turn status recorded on the session.
type Status string

const (
	StatusAwaitingInput Status = "awaiting_input"
	StatusNeedMoreInfo  Status = "need_more_info"
	StatusProcessing    Status = "processing"
	StatusSuccess       Status = "success"
	StatusError         Status = "error"
)

// Stage marks a deterministic follow-up the next turn must handle.
type Stage string

const (
	StageNone                    Stage = ""
	StageAwaitingEmail           Stage = "awaiting_email"
	StageAwaitingCalendarConfirm Stage = "awaiting_calendar_confirm"
)

// TaskStatus is the lifecycle of a queued task as seen by its session.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one line of the append-only conversation history.
type HistoryEntry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// TaskRecord tracks a task that belongs to the session.
type TaskRecord struct {
	Kind      string     `json:"kind"`
	Status    TaskStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Session is the durable state of one conversation. It is the unit of
// isolation: nothing here is shared across sessions.
type Session struct {
	ID      string         `json:"id"`
	Version int64          `json:"version"`
	Status  Status         `json:"status"`
	History []HistoryEntry `json:"history"`

	// Last emitted content per dedup category. Overwritten, never merged.
	LastPlan            string `json:"last_plan,omitempty"`
	LastRecommendations string `json:"last_recommendations,omitempty"`
	LastGeneral         string `json:"last_general,omitempty"`

	Trip  itinerary.TripContext `json:"trip"`
	Plan  *itinerary.Plan       `json:"plan,omitempty"`
	Email string                `json:"email,omitempty"`
	Stage Stage                 `json:"stage,omitempty"`

	Tasks map[string]TaskRecord `json:"tasks,omitempty"`

	// Pending holds worker results not yet run through the dedup filter.
	Pending []event.Event `json:"pending,omitempty"`

	// Undelivered holds events that passed the filter but found the stream
	// already closed. They are replayed without filtering again.
	Undelivered []event.Event `json:"undelivered,omitempty"`

	// Effects lists side-effect keys that have been claimed.
	Effects []string `json:"effects,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an empty session ready for its first turn.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Status:    StatusAwaitingInput,
		Tasks:     make(map[string]TaskRecord),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendHistory records a line of conversation.
func (s *Session) AppendHistory(role, text string) {
	s.History = append(s.History, HistoryEntry{Role: role, Text: text, At: time.Now().UTC()})
}

// SetTask creates or updates a task record.
func (s *Session) SetTask(id, kind string, status TaskStatus, attempts int, errMsg string) {
	if s.Tasks == nil {
		s.Tasks = make(map[string]TaskRecord)
	}
	rec := s.Tasks[id]
	if kind != "" {
		rec.Kind = kind
	}
	rec.Status = status
	if attempts > rec.Attempts {
		rec.Attempts = attempts
	}
	rec.Error = errMsg
	rec.UpdatedAt = time.Now().UTC()
	s.Tasks[id] = rec
}

// TaskFinished reports whether the task already reached done or failed.
func (s *Session) TaskFinished(id string) bool {
	rec, ok := s.Tasks[id]
	return ok && (rec.Status == TaskDone || rec.Status == TaskFailed)
}

// HasEffect reports whether the side-effect key has been claimed.
func (s *Session) HasEffect(key string) bool {
	for _, k := range s.Effects {
		if k == key {
			return true
		}
	}
	return false
}

// ClaimEffect records key and returns true, or returns false when another
// delivery already claimed it.
func (s *Session) ClaimEffect(key string) bool {
	if s.HasEffect(key) {
		return false
	}
	s.Effects = append(s.Effects, key)
	return true
}

// ReleaseEffect forgets key so a failed side effect can be attempted again.
func (s *Session) ReleaseEffect(key string) {
	for i, k := range s.Effects {
		if k == key {
			s.Effects = append(s.Effects[:i], s.Effects[i+1:]...)
			return
		}
	}
}

// TakePending empties the outbox and returns what it held.
func (s *Session) TakePending() []event.Event {
	out := s.Pending
	s.Pending = nil
	return out
}

// TakeUndelivered empties the undelivered list and returns what it held.
func (s *Session) TakeUndelivered() []event.Event {
	out := s.Undelivered
	s.Undelivered = nil
	return out
}

// SessionStore persists sessions keyed by session ID.
type SessionStore interface {
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Update applies fn to the current session (a fresh one when absent)
	// and persists the result. fn may run more than once when a concurrent
	// writer wins the race, so it must only mutate the session it is given.
	// Returning an error from fn aborts the write and is returned as-is.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)

	Close() error
}

// versioned is the load/save pair every backend provides. save must fail
// with ErrConflict unless the stored version still equals prev (0 means
// the record must not exist yet).
type versioned interface {
	load(ctx context.Context, id string) (*Session, error)
	save(ctx context.Context, s *Session, prev int64) error
}

// updateVersioned runs the optimistic read-modify-write loop shared by
// all backends.
func updateVersioned(ctx context.Context, b versioned, id string, fn func(*Session) error) (*Session, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	op := func() (*Session, error) {
		s, err := b.load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s = NewSession(id)
		} else if err != nil {
			return nil, backoff.Permanent(err)
		}

		prev := s.Version
		if err := fn(s); err != nil {
			return nil, backoff.Permanent(err)
		}
		s.ID = id
		s.Version = prev + 1
		s.UpdatedAt = time.Now().UTC()

		if err := b.save(ctx, s, prev); err != nil {
			if errors.Is(err, ErrConflict) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return s, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxUpdateAttempts),
	)
}
