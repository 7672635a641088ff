// ABOUTME: Task queue contract shared by the orchestrator (producer) and worker pool (consumer)
// ABOUTME: Delivery is at-least-once; consumers ack, nack with a delay, or dead-letter

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Receive and Enqueue once the queue is closed.
var ErrClosed = errors.New("queue closed")

// Kind identifies which worker handler runs a task.
type Kind string

const (
	KindSearch Kind = "search"
	KindNotify Kind = "notify"
)

// Task is one unit of asynchronous work. It always belongs to exactly one
// session. The JSON form is the message body on the wire.
type Task struct {
	ID         string          `json:"taskId"`
	Kind       Kind            `json:"kind"`
	SessionID  string          `json:"sessionId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// NewTask builds a task with a fresh ID and the payload encoded as JSON.
func NewTask(kind Kind, sessionID string, payload any) (*Task, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
		}
		raw = data
	}
	return &Task{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: sessionID,
		Payload:   raw,
	}, nil
}

// Decode unmarshals the task payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", t.Kind, err)
	}
	return nil
}

// Delivery is one receipt of a task. Attempt starts at 1 and grows with
// every redelivery of the same message.
type Delivery struct {
	Task    *Task
	Attempt int

	receipt string
}

// Queue is an at-least-once task channel.
type Queue interface {
	// Enqueue publishes the task and returns its ID. It never waits for
	// the task to run.
	Enqueue(ctx context.Context, task *Task) (string, error)

	// Receive blocks until a task is available, ctx ends, or the queue closes.
	Receive(ctx context.Context) (*Delivery, error)

	// Ack removes the delivered task for good.
	Ack(ctx context.Context, d *Delivery) error

	// Nack makes the task visible again after delay.
	Nack(ctx context.Context, d *Delivery, delay time.Duration) error

	// DeadLetter moves the task to the dead-letter path and removes it.
	DeadLetter(ctx context.Context, d *Delivery, reason string) error

	Close() error
}

func prepare(task *Task) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
}
