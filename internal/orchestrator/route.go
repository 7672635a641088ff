// ABOUTME: Turn routing: deterministic email and calendar branches, then intent-driven planning and recommendation
// ABOUTME: Slow work goes to the task queue; fast agents are called inline

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/itinerary"
	"github.com/2389/voyage-gateway/internal/queue"
	"github.com/2389/voyage-gateway/internal/store"
	"github.com/2389/voyage-gateway/internal/worker"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

var (
	yesWords = []string{"yes", "y", "yeah", "sure", "ok", "okay", "please", "네", "예", "응", "좋아요", "등록"}
	noWords  = []string{"no", "n", "nope", "no thanks", "아니요", "아니", "괜찮아요", "싫어요"}
)

// answer classifies a reply to a yes/no question: 1 yes, -1 no, 0 neither.
func answer(text string) int {
	lower := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!? "))
	first := lower
	if fields := strings.FieldsFunc(lower, func(r rune) bool { return r == ' ' || r == ',' }); len(fields) > 0 {
		first = fields[0]
	}
	for _, w := range noWords {
		if lower == w || first == w {
			return -1
		}
	}
	for _, w := range yesWords {
		if lower == w || first == w {
			return 1
		}
	}
	return 0
}

func (o *Orchestrator) route(ctx context.Context, t *turn, s *store.Session) (store.Status, error) {
	if s.Plan != nil {
		if addr := emailRe.FindString(t.text); addr != "" {
			return o.captureEmail(ctx, t, s, addr)
		}
	}
	if s.Stage == store.StageAwaitingCalendarConfirm {
		switch answer(t.text) {
		case 1:
			return o.registerCalendar(ctx, t, s)
		case -1:
			if err := o.setStage(ctx, t, store.StageNone); err != nil {
				return o.fail(ctx, t, "We couldn't save your answer. Please try again.", err)
			}
			o.say(ctx, t, event.Message(event.StatusSuccess, "Okay, I won't add it to your calendar. Enjoy your trip!"))
			return store.StatusSuccess, nil
		}
		// Anything else is a new request; the question lapses.
		if err := o.setStage(ctx, t, store.StageNone); err != nil {
			t.logger.Warn("clearing calendar stage", "error", err)
		}
	}
	return o.converse(ctx, t, s)
}

func (o *Orchestrator) setStage(ctx context.Context, t *turn, stage store.Stage) error {
	_, err := o.store.Update(ctx, t.sessionID, func(s *store.Session) error {
		s.Stage = stage
		return nil
	})
	return err
}

// captureEmail stores the address, hands mailing to a worker and asks
// about the calendar.
func (o *Orchestrator) captureEmail(ctx context.Context, t *turn, s *store.Session, addr string) (store.Status, error) {
	task, err := queue.NewTask(queue.KindNotify, t.sessionID, worker.NotifyPayload{Email: addr, Trip: s.Trip, Plan: s.Plan})
	if err != nil {
		return o.fail(ctx, t, "We couldn't prepare your email. Please try again.", err)
	}
	if err := o.enqueue(ctx, t, task); err != nil {
		return o.fail(ctx, t, "We couldn't send your plan right now. Please try again shortly.", err)
	}
	if _, err := o.store.Update(ctx, t.sessionID, func(s *store.Session) error {
		s.Email = addr
		s.Stage = store.StageAwaitingCalendarConfirm
		return nil
	}); err != nil {
		return o.fail(ctx, t, "We couldn't save your email address. Please try again.", err)
	}

	o.say(ctx, t, event.NeedMoreInfo(fmt.Sprintf(
		"I'll send your travel plan to %s. Would you like me to add the itinerary to your calendar? (yes/no)", addr)))
	return store.StatusNeedMoreInfo, nil
}

// registerCalendar is a plain branch, not an agent decision.
func (o *Orchestrator) registerCalendar(ctx context.Context, t *turn, s *store.Session) (store.Status, error) {
	if err := o.setStage(ctx, t, store.StageNone); err != nil {
		return o.fail(ctx, t, "We couldn't save your answer. Please try again.", err)
	}
	if o.calendar == nil {
		return o.fail(ctx, t, "Calendar registration isn't available right now.", agent.ErrUnavailable)
	}
	if s.Plan == nil || s.Email == "" {
		return o.fail(ctx, t, "There is no plan to add yet. Tell me about your trip first.", errors.New("calendar registration without plan or email"))
	}

	start := startDate(s, time.Now())
	n, err := o.calendar.RegisterItinerary(ctx, s.Email, s.Plan, start)
	if err != nil {
		return o.fail(ctx, t, "I couldn't add the itinerary to your calendar.", fmt.Errorf("registering itinerary (%d events created): %w", n, err))
	}
	o.say(ctx, t, event.Notice(event.OperationRegisterItinerary,
		fmt.Sprintf("Added %d events to your calendar starting %s.", n, start.Format("2006-01-02")), true))
	return store.StatusSuccess, nil
}

// startDate is the plan's departure date, the trip's, or tomorrow.
func startDate(s *store.Session, now time.Time) time.Time {
	for _, d := range []string{s.Plan.DepartureDate, s.Trip.DepartureDate} {
		if t, err := time.Parse("2006-01-02", d); err == nil {
			return t
		}
	}
	y, m, d := now.AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// converse asks the planning agent what the user wants and acts on it.
func (o *Orchestrator) converse(ctx context.Context, t *turn, s *store.Session) (store.Status, error) {
	c, err := o.planner.Classify(ctx, o.history(s), t.text, s.Trip)
	if err != nil {
		return o.fail(ctx, t, "Sorry, I couldn't understand that right now. Please try again.", fmt.Errorf("classifying turn: %w", err))
	}
	trip := s.Trip.Merge(c.Extracted)
	t.logger.Debug("turn classified", "intent", c.Intent)

	switch c.Intent {
	case agent.IntentRecommendation:
		return o.recommend(ctx, t, trip)
	case agent.IntentPlan:
		return o.plan(ctx, t, trip)
	default:
		reply := c.Reply
		if reply == "" {
			reply = "I can plan a trip or recommend destinations. Where would you like to go?"
		}
		if err := o.saveTrip(ctx, t, trip); err != nil {
			t.logger.Warn("saving trip", "error", err)
		}
		o.say(ctx, t, event.Message(event.StatusSuccess, reply))
		return store.StatusSuccess, nil
	}
}

func (o *Orchestrator) saveTrip(ctx context.Context, t *turn, trip itinerary.TripContext) error {
	_, err := o.store.Update(ctx, t.sessionID, func(s *store.Session) error {
		s.Trip = trip
		return nil
	})
	return err
}

var fieldPrompts = map[string]string{
	itinerary.FieldDestination:       "where you want to go",
	itinerary.FieldDuration:          "how long the trip is",
	itinerary.FieldBudget:            "your budget",
	itinerary.FieldDepartureDate:     "your departure date",
	itinerary.FieldDepartureLocation: "where you're leaving from",
}

// plan asks for missing fields or starts the search task and waits for it.
func (o *Orchestrator) plan(ctx context.Context, t *turn, trip itinerary.TripContext) (store.Status, error) {
	trip.RecommendationStep = ""
	if err := o.saveTrip(ctx, t, trip); err != nil {
		return o.fail(ctx, t, "We couldn't save your trip details. Please try again.", err)
	}

	if missing := trip.Missing(); len(missing) > 0 {
		optional := trip.FilterMissing([]string{itinerary.FieldDepartureDate, itinerary.FieldDepartureLocation})
		o.say(ctx, t, event.NeedMoreInfo(askFor(missing, optional)))
		return store.StatusNeedMoreInfo, nil
	}

	o.say(ctx, t, event.Progress(fmt.Sprintf("Planning a %s trip to %s with a budget of %s.",
		trip.Duration, trip.Destination, trip.Preferences.Budget)))
	o.say(ctx, t, event.Progress("Searching for places to visit. This can take a moment."))

	task, err := queue.NewTask(queue.KindSearch, t.sessionID, worker.SearchPayload{Trip: trip})
	if err != nil {
		return o.fail(ctx, t, "We couldn't start planning. Please try again.", err)
	}
	if err := o.enqueue(ctx, t, task); err != nil {
		return o.fail(ctx, t, "We couldn't start planning right now. Please try again shortly.", err)
	}
	return o.await(ctx, t, task.ID)
}

func askFor(missing, optional []string) string {
	parts := make([]string, 0, len(missing))
	for _, f := range missing {
		parts = append(parts, fieldPrompts[f])
	}
	msg := "To plan your trip, please tell me " + joinList(parts) + "."
	if len(optional) > 0 {
		extra := make([]string, 0, len(optional))
		for _, f := range optional {
			extra = append(extra, fieldPrompts[f])
		}
		msg += " If you know them, also " + joinList(extra) + "."
	}
	return msg
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// recommend runs one step of the recommendation interview inline.
func (o *Orchestrator) recommend(ctx context.Context, t *turn, trip itinerary.TripContext) (store.Status, error) {
	if o.recommender == nil {
		return o.fail(ctx, t, "Recommendations aren't available right now.", agent.ErrUnavailable)
	}
	if trip.RecommendationStep == "" {
		trip.RecommendationStep = agent.StepPreferences
	}
	reply, err := o.recommender.Recommend(ctx, t.text, trip)
	if err != nil {
		return o.fail(ctx, t, "Sorry, I couldn't come up with recommendations right now.", fmt.Errorf("recommending: %w", err))
	}
	trip = trip.Merge(reply.Collected)

	if reply.Raw == "" {
		if err := o.saveTrip(ctx, t, trip); err != nil {
			t.logger.Warn("saving preferences", "error", err)
		}
		o.say(ctx, t, event.NeedMoreInfo(reply.Message))
		return store.StatusNeedMoreInfo, nil
	}

	trip.RecommendationStep = ""
	if err := o.saveTrip(ctx, t, trip); err != nil {
		t.logger.Warn("saving preferences", "error", err)
	}

	set, err := itinerary.ParseRecommendations(reply.Raw)
	if err != nil {
		t.logger.Warn("recommendations failed validation, delivering raw text", "error", err)
		o.say(ctx, t, event.Message(event.StatusSuccess, reply.Raw))
		return store.StatusSuccess, nil
	}
	o.say(ctx, t, event.RecommendationResult(set, reply.Message))
	return store.StatusSuccess, nil
}

// history returns prior conversation lines, excluding the current turn.
func (o *Orchestrator) history(s *store.Session) []agent.Message {
	lines := s.History
	if n := len(lines); n > 0 && lines[n-1].Role == store.RoleUser {
		lines = lines[:n-1]
	}
	if len(lines) > o.cfg.HistoryLimit {
		lines = lines[len(lines)-o.cfg.HistoryLimit:]
	}
	out := make([]agent.Message, 0, len(lines))
	for _, h := range lines {
		out = append(out, agent.Message{Role: h.Role, Text: h.Text})
	}
	return out
}
