// ABOUTME: Task handlers for place search plus plan construction and for plan delivery by mail
// ABOUTME: Notification is effect-once across redeliveries via an in-process guard and a durable session claim

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/dedupe"
	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/itinerary"
	"github.com/2389/voyage-gateway/internal/queue"
	"github.com/2389/voyage-gateway/internal/store"
)

// EmailPrompt accompanies a finished plan.
const EmailPrompt = "Your travel plan is ready. If you'd like it by email, reply with your email address."

// ErrInFlight means another delivery of the same task is still running in
// this process. The delivery is retried later.
var ErrInFlight = errors.New("task already in flight")

// SearchPayload is the body of a search task.
type SearchPayload struct {
	Trip itinerary.TripContext `json:"trip"`
}

// NotifyPayload is the body of a notify task.
type NotifyPayload struct {
	Email string                `json:"email"`
	Trip  itinerary.TripContext `json:"trip"`
	Plan  *itinerary.Plan       `json:"plan"`
}

// SearchHandler grounds a plan on place search results.
type SearchHandler struct {
	Searcher agent.Searcher
	Planner  agent.Planner
	// Limiter paces calls to the search API. Nil means unlimited.
	Limiter *rate.Limiter
	// PlacesPerQuery defaults to 5.
	PlacesPerQuery int
	Logger         *slog.Logger
}

// maxQueries bounds the search calls one task makes.
const maxQueries = 3

// Handle searches, builds the plan and validates it. A plan that fails
// validation is delivered as raw text.
func (h *SearchHandler) Handle(ctx context.Context, task *queue.Task) (*Outcome, error) {
	var payload SearchPayload
	if err := task.Decode(&payload); err != nil {
		return nil, err
	}
	trip := payload.Trip
	if trip.Destination == "" {
		return nil, fmt.Errorf("search task %s: no destination", task.ID)
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	places, err := h.search(ctx, trip)
	if err != nil {
		return nil, err
	}

	raw, err := h.Planner.BuildPlan(ctx, trip, places)
	if err != nil {
		return nil, fmt.Errorf("building plan: %w", err)
	}

	plan, err := itinerary.ParsePlan(raw)
	if err != nil {
		logger.Warn("plan failed validation, delivering raw text", "task_id", task.ID, "error", err)
		return &Outcome{Events: []event.Event{event.Message(event.StatusSuccess, raw)}}, nil
	}
	if plan.DepartureDate == "" {
		plan.DepartureDate = trip.DepartureDate
	}

	return &Outcome{
		Events: []event.Event{event.PlanResult(plan, EmailPrompt)},
		Apply: func(s *store.Session) {
			s.Plan = plan
			s.Stage = store.StageAwaitingEmail
		},
	}, nil
}

func (h *SearchHandler) search(ctx context.Context, trip itinerary.TripContext) ([]agent.Place, error) {
	queries := []string{trip.Destination + " 관광지"}
	for _, a := range trip.Preferences.Activities {
		if len(queries) >= maxQueries {
			break
		}
		queries = append(queries, trip.Destination+" "+a)
	}

	limit := h.PlacesPerQuery
	if limit <= 0 {
		limit = 5
	}
	seen := make(map[string]bool)
	var places []agent.Place
	for _, q := range queries {
		if h.Limiter != nil {
			if err := h.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for search rate limit: %w", err)
			}
		}
		found, err := h.Searcher.SearchPlaces(ctx, q, limit)
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", q, err)
		}
		for _, pl := range found {
			key := strings.ToLower(pl.Name)
			if !seen[key] {
				seen[key] = true
				places = append(places, pl)
			}
		}
	}
	return places, nil
}

// NotifyHandler mails a finished plan at most once per task.
type NotifyHandler struct {
	Store  store.SessionStore
	Mailer agent.Mailer
	Guard  *dedupe.EffectGuard
}

func notifyKey(taskID string) string {
	return "notify:" + taskID
}

// Handle claims the send in-process and durably before mailing. The
// in-process claim only spans this call; the durable claim is released
// when the send fails so a retry can go through.
func (h *NotifyHandler) Handle(ctx context.Context, task *queue.Task) (*Outcome, error) {
	var payload NotifyPayload
	if err := task.Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Plan == nil || payload.Email == "" {
		return nil, fmt.Errorf("notify task %s: missing plan or email", task.ID)
	}

	key := notifyKey(task.ID)
	if h.Guard != nil {
		if !h.Guard.Claim(key) {
			return nil, ErrInFlight
		}
		defer h.Guard.Release(key)
	}

	claimed := false
	if _, err := h.Store.Update(ctx, task.SessionID, func(s *store.Session) error {
		claimed = s.ClaimEffect(key)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("claiming notification: %w", err)
	}
	if !claimed {
		// An earlier delivery already sent it.
		return &Outcome{}, nil
	}

	if err := h.Mailer.SendPlan(ctx, payload.Email, payload.Trip, payload.Plan); err != nil {
		if _, uerr := h.Store.Update(context.WithoutCancel(ctx), task.SessionID, func(s *store.Session) error {
			s.ReleaseEffect(key)
			return nil
		}); uerr != nil {
			err = errors.Join(err, uerr)
		}
		return nil, fmt.Errorf("sending plan: %w", err)
	}

	notice := event.Notice(event.OperationSendItinerary, fmt.Sprintf("Your travel plan was sent to %s.", payload.Email), false)
	return &Outcome{Events: []event.Event{notice}}, nil
}
