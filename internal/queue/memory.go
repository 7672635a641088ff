// ABOUTME: In-process broker implementing the Queue contract
// ABOUTME: Supports delayed redelivery, attempt counting and an inspectable dead-letter list

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeadLetter is a task that exhausted its retries.
type DeadLetter struct {
	Task     Task
	Attempts int
	Reason   string
}

type memMessage struct {
	task     Task
	attempts int
}

// MemoryQueue is an in-process Queue. Re-enqueueing a task with an
// existing ID is allowed and behaves like a broker redelivery.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    []*memMessage
	inflight map[string]*memMessage // receipt -> message
	dead     []DeadLetter
	timers   map[*time.Timer]struct{}
	wake     chan struct{}
	done     chan struct{}
	closed   bool
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]*memMessage),
		timers:   make(map[*time.Timer]struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Enqueue appends the task to the ready list.
func (q *MemoryQueue) Enqueue(_ context.Context, task *Task) (string, error) {
	prepare(task)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	q.ready = append(q.ready, &memMessage{task: *task})
	q.signalLocked()
	return task.ID, nil
}

// Receive pops the oldest ready task.
func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.ready) > 0 {
			m := q.ready[0]
			q.ready = q.ready[1:]
			m.attempts++
			receipt := uuid.New().String()
			q.inflight[receipt] = m
			if len(q.ready) > 0 {
				// Pass the wake-up on to the next waiting receiver
				q.signalLocked()
			}
			q.mu.Unlock()

			task := m.task
			return &Delivery{Task: &task, Attempt: m.attempts, receipt: receipt}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrClosed
		case <-q.wake:
		}
	}
}

// Ack forgets the delivery.
func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, d.receipt)
	return nil
}

// Nack returns the task to the ready list after delay.
func (q *MemoryQueue) Nack(_ context.Context, d *Delivery, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.inflight[d.receipt]
	if !ok {
		return nil
	}
	delete(q.inflight, d.receipt)
	if q.closed {
		return ErrClosed
	}

	if delay <= 0 {
		q.ready = append(q.ready, m)
		q.signalLocked()
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, timer)
		if q.closed {
			return
		}
		q.ready = append(q.ready, m)
		q.signalLocked()
	})
	q.timers[timer] = struct{}{}
	return nil
}

// DeadLetter records the task on the dead-letter list.
func (q *MemoryQueue) DeadLetter(_ context.Context, d *Delivery, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inflight, d.receipt)
	q.dead = append(q.dead, DeadLetter{Task: *d.Task, Attempts: d.Attempt, Reason: reason})
	return nil
}

// DeadLetters returns a copy of the dead-letter list.
func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.dead...)
}

// Depth returns how many tasks are ready or waiting out a nack delay.
func (q *MemoryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.timers)
}

// Close stops deliveries. Pending delayed redeliveries are dropped.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	return nil
}

// signalLocked must be called with mu held.
func (q *MemoryQueue) signalLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
