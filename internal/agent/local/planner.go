// ABOUTME: Deterministic Planner that classifies turns by keyword and builds plans from search hits
// ABOUTME: Used in development and tests where no model endpoint is configured

package local

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

// budgetShares splits a total across the four standard categories. The
// last category absorbs rounding so the total always matches.
var budgetShares = []struct {
	name  string
	share float64
}{
	{"transportation", 0.25},
	{"accommodation", 0.40},
	{"food", 0.25},
	{"activities", 0.10},
}

var slotTimes = []string{"09:00", "13:00", "18:00"}

// Planner implements agent.Planner with keyword rules.
type Planner struct {
	// ActivitiesPerDay defaults to 3.
	ActivitiesPerDay int
}

var _ agent.Planner = (*Planner)(nil)

// Classify picks an intent from keywords and the conversation so far.
func (p *Planner) Classify(ctx context.Context, history []agent.Message, text string, trip itinerary.TripContext) (*agent.Classification, error) {
	extracted := Extract(text)
	c := &agent.Classification{Extracted: extracted}

	planFields := extracted.Destination != "" || extracted.Duration != "" ||
		extracted.Preferences.Budget != "" || extracted.DepartureDate != ""

	switch {
	case containsAny(text, recommendWords):
		c.Intent = agent.IntentRecommendation
	case trip.RecommendationStep != "" && !(extracted.Destination != "" && containsAny(text, planWords)):
		c.Intent = agent.IntentRecommendation
	case planFields || containsAny(text, planWords):
		c.Intent = agent.IntentPlan
	case trip.Destination != "" && len(trip.Missing()) > 0:
		// Answering a follow-up question without any field we recognize.
		c.Intent = agent.IntentPlan
	default:
		c.Intent = agent.IntentGeneral
		c.Reply = "I can plan a trip or recommend destinations. Where would you like to go?"
	}
	return c, nil
}

// BuildPlan lays out one day per trip day, cycling through places.
func (p *Planner) BuildPlan(ctx context.Context, trip itinerary.TripContext, places []agent.Place) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	days := itinerary.DurationDays(trip.Duration)
	if days <= 0 {
		days = 1
	}
	perDay := p.ActivitiesPerDay
	if perDay <= 0 {
		perDay = len(slotTimes)
	}

	total, _ := ParseAmount(trip.Preferences.Budget)
	activityBudget := math.Round(total * budgetShares[len(budgetShares)-1].share)
	perActivity := 0.0
	if n := days * perDay; n > 0 {
		perActivity = math.Floor(activityBudget / float64(n))
	}

	plan := itinerary.Plan{DepartureDate: trip.DepartureDate}
	next := 0
	for d := 1; d <= days; d++ {
		day := itinerary.DayPlan{Day: d}
		for i := 0; i < perDay; i++ {
			cost := perActivity
			a := itinerary.Activity{
				Time:     slotTimes[i%len(slotTimes)],
				Duration: "2시간",
				Cost:     &cost,
			}
			if len(places) > 0 {
				place := places[next%len(places)]
				next++
				a.Description = "Visit " + place.Name
				a.Location = place.Name
				if place.RoadAddress != "" {
					a.Location = place.RoadAddress
				} else if place.Address != "" {
					a.Location = place.Address
				}
			} else {
				a.Description = fmt.Sprintf("Explore %s", trip.Destination)
				a.Location = trip.Destination
			}
			day.Activities = append(day.Activities, a)
		}
		plan.Itinerary = append(plan.Itinerary, day)
	}

	var allocated float64
	for i, s := range budgetShares {
		amount := math.Round(total * s.share)
		if i == len(budgetShares)-1 {
			amount = total - allocated
		}
		allocated += amount
		plan.Budget.Categories = append(plan.Budget.Categories, itinerary.BudgetCategory{Name: s.name, Estimated: amount})
	}
	plan.Budget.Total = total

	if len(places) > 0 {
		group := itinerary.RecommendationGroup{Category: "places"}
		for _, pl := range places {
			group.Items = append(group.Items, pl.Name)
		}
		plan.Recommendations = append(plan.Recommendations, group)
	}
	plan.Tips = []string{fmt.Sprintf("Book %s early.", firstNonEmpty(trip.Preferences.Accommodation, "accommodation"))}

	data, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("encoding plan: %w", err)
	}
	return string(data), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
