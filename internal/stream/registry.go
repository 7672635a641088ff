// ABOUTME: Tracks the live publisher of each session so workers can wake the turn awaiting them
// ABOUTME: A new turn for a session supersedes and aborts the previous one

package stream

import (
	"log/slog"
	"sync"
)

// Registry maps session IDs to their active turn's publisher.
type Registry struct {
	mu     sync.RWMutex
	live   map[string]*Publisher
	opts   Options
	logger *slog.Logger
}

// NewRegistry creates a registry whose publishers use opts. Pass nil
// logger for default.
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		live:   make(map[string]*Publisher),
		opts:   opts,
		logger: logger.With("component", "stream_registry"),
	}
}

// Open starts a publisher for a new turn of sessionID. Any publisher still
// open for that session is aborted with ErrSuperseded.
func (r *Registry) Open(sessionID string) *Publisher {
	p := NewPublisher(sessionID, r.opts)
	p.onClose = r.remove

	r.mu.Lock()
	prev := r.live[sessionID]
	r.live[sessionID] = p
	r.mu.Unlock()

	// Abort outside the lock; the previous publisher's onClose takes it
	if prev != nil {
		r.logger.Debug("superseding live turn", "session_id", sessionID)
		prev.Abort(ErrSuperseded)
	}
	return p
}

// Signal wakes the live turn of sessionID. Returns false when no turn is open.
func (r *Registry) Signal(sessionID string) bool {
	r.mu.RLock()
	p, ok := r.live[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	p.Wake()
	return true
}

// Active returns how many turns are currently streaming.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// Close aborts every live turn.
func (r *Registry) Close() {
	r.mu.RLock()
	targets := make([]*Publisher, 0, len(r.live))
	for _, p := range r.live {
		targets = append(targets, p)
	}
	r.mu.RUnlock()

	for _, p := range targets {
		p.Abort(ErrClosed)
	}
}

func (r *Registry) remove(p *Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[p.sessionID] == p {
		delete(r.live, p.sessionID)
	}
}
