// ABOUTME: Per-turn ordered event publisher with a bounded buffer and a turn deadline
// ABOUTME: Terminal events close it; publishing after close reports ErrClosed so callers can persist instead

package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/2389/voyage-gateway/internal/event"
)

var (
	// ErrClosed is returned by Publish once the turn's stream has ended.
	ErrClosed = errors.New("stream closed")

	// ErrBroken means the consumer fell behind the buffer or went away.
	ErrBroken = errors.New("stream broken")

	// ErrTimeout means no terminal event arrived before the turn deadline.
	ErrTimeout = errors.New("turn timed out")

	// ErrSuperseded means a newer turn for the same session took over.
	ErrSuperseded = errors.New("superseded by a newer turn")
)

// TimeoutMessage is the user-facing text of the implicit timeout error.
const TimeoutMessage = "This is taking longer than expected. The result will be waiting for you on your next message."

// Options configures a Publisher.
type Options struct {
	// Buffer is how many undelivered events may queue before the stream
	// is considered broken.
	Buffer int
	// Timeout bounds the turn. Zero disables the deadline.
	Timeout time.Duration
}

// Publisher is the single output channel of one turn. Publish never blocks;
// events reach the consumer in call order.
type Publisher struct {
	sessionID string
	limit     int

	mu     sync.Mutex
	events chan event.Event
	done   chan struct{}
	wake   chan struct{}
	closed bool
	err    error
	timer  *time.Timer

	onClose func(*Publisher)
}

// NewPublisher creates a publisher for one turn of sessionID.
func NewPublisher(sessionID string, opts Options) *Publisher {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	p := &Publisher{
		sessionID: sessionID,
		limit:     opts.Buffer,
		// One slot beyond the limit is reserved for the completion marker
		events: make(chan event.Event, opts.Buffer+1),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	if opts.Timeout > 0 {
		p.timer = time.AfterFunc(opts.Timeout, p.expire)
	}
	return p
}

// SessionID returns the session this turn belongs to.
func (p *Publisher) SessionID() string {
	return p.sessionID
}

// Publish appends e to the stream. A terminal event is followed by the
// completion marker and closes the publisher.
func (p *Publisher) Publish(e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(p.events) >= p.limit {
		p.finishLocked(ErrBroken)
		return ErrBroken
	}

	p.events <- e
	if e.Kind == event.KindComplete {
		p.finishLocked(nil)
	} else if e.Terminal() {
		p.events <- event.Complete()
		p.finishLocked(nil)
	}
	return nil
}

// Close ends the stream normally with a completion marker. Safe to call
// more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.events <- event.Complete()
	p.finishLocked(nil)
}

// Abort ends the stream without a completion marker, recording why.
func (p *Publisher) Abort(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if err == nil {
		err = ErrBroken
	}
	p.finishLocked(err)
}

// Events is the ordered event sequence. It is closed when the turn ends.
func (p *Publisher) Events() <-chan event.Event {
	return p.events
}

// Done is closed when the publisher stops accepting events.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

// Err reports why the stream ended: nil for a normal close, otherwise
// ErrBroken, ErrTimeout, ErrSuperseded or the error given to Abort.
func (p *Publisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Closed reports whether the publisher has stopped accepting events.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Wake nudges whoever is awaiting work for this turn. Wake-ups coalesce.
func (p *Publisher) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Woken delivers coalesced Wake calls.
func (p *Publisher) Woken() <-chan struct{} {
	return p.wake
}

// expire fires when the turn deadline passes without a terminal event.
func (p *Publisher) expire() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if len(p.events) < p.limit {
		p.events <- event.Failure(TimeoutMessage, "")
		p.events <- event.Complete()
	}
	p.finishLocked(ErrTimeout)
}

// finishLocked must be called with mu held.
func (p *Publisher) finishLocked(err error) {
	p.closed = true
	p.err = err
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.events)
	close(p.done)
	if p.onClose != nil {
		p.onClose(p)
	}
}
