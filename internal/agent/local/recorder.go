// ABOUTME: In-memory Mailer and Calendar that record what they were asked to do
// ABOUTME: Optional scripted failures let callers exercise retry paths

package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

// ErrScripted is returned by recorders while FailTimes is positive.
var ErrScripted = errors.New("scripted failure")

// SentMail is one delivered plan.
type SentMail struct {
	To   string
	Trip itinerary.TripContext
	Plan *itinerary.Plan
}

// Mailer records sent plans instead of delivering them.
type Mailer struct {
	mu        sync.Mutex
	sent      []SentMail
	failTimes int
}

var _ agent.Mailer = (*Mailer)(nil)

// FailNext makes the next n sends fail with ErrScripted.
func (m *Mailer) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTimes = n
}

// SendPlan records the plan.
func (m *Mailer) SendPlan(ctx context.Context, to string, trip itinerary.TripContext, plan *itinerary.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTimes > 0 {
		m.failTimes--
		return ErrScripted
	}
	m.sent = append(m.sent, SentMail{To: to, Trip: trip, Plan: plan})
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *Mailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// Registration is one RegisterItinerary call.
type Registration struct {
	CalendarID string
	Start      time.Time
	Events     int
}

// Calendar records registrations and counts one event per activity.
type Calendar struct {
	mu            sync.Mutex
	registrations []Registration
	failTimes     int
}

var _ agent.Calendar = (*Calendar)(nil)

// FailNext makes the next n registrations fail with ErrScripted.
func (c *Calendar) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failTimes = n
}

func (c *Calendar) RegisterItinerary(ctx context.Context, calendarID string, plan *itinerary.Plan, start time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failTimes > 0 {
		c.failTimes--
		return 0, ErrScripted
	}
	n := 0
	for _, day := range plan.Itinerary {
		n += len(day.Activities)
	}
	c.registrations = append(c.registrations, Registration{CalendarID: calendarID, Start: start, Events: n})
	return n, nil
}

// Registrations returns a copy of all registrations.
func (c *Calendar) Registrations() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Registration(nil), c.registrations...)
}
