// ABOUTME: Collaborator interfaces the orchestrator and workers call into
// ABOUTME: Agents decide what to say; the gateway only decides when and how it reaches the user

package agent

import (
	"context"
	"errors"
	"time"

	"github.com/2389/voyage-gateway/internal/itinerary"
)

// ErrUnavailable is returned by adapters that are not configured.
var ErrUnavailable = errors.New("agent unavailable")

// Intent is what the planning agent thinks the user wants.
type Intent string

const (
	IntentPlan           Intent = "plan"
	IntentRecommendation Intent = "recommendation"
	IntentGeneral        Intent = "general"
)

// Message is one line of prior conversation given to an agent.
type Message struct {
	Role string
	Text string
}

// Classification is the planning agent's reading of a turn.
type Classification struct {
	Intent Intent
	// Extracted holds only the fields this turn mentioned.
	Extracted itinerary.TripContext
	// Reply is conversational text the agent wants shown, if any.
	Reply string
}

// Planner classifies turns and builds itineraries.
type Planner interface {
	Classify(ctx context.Context, history []Message, text string, trip itinerary.TripContext) (*Classification, error)

	// BuildPlan returns the agent's raw plan output. The caller validates it.
	BuildPlan(ctx context.Context, trip itinerary.TripContext, places []Place) (string, error)
}

// Recommendation steps.
const (
	StepPreferences = "preferences"
	StepDestination = "destination"
)

// RecommendationReply is one turn of the recommendation conversation.
type RecommendationReply struct {
	Message string
	// Collected holds preferences learned from this turn.
	Collected itinerary.TripContext
	// Raw is the agent's structured destination list, empty while it is
	// still asking about preferences.
	Raw string
}

// Recommender runs the two-step recommendation conversation. trip carries
// the current step in RecommendationStep.
type Recommender interface {
	Recommend(ctx context.Context, text string, trip itinerary.TripContext) (*RecommendationReply, error)
}

// Place is a search hit used to ground a plan.
type Place struct {
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Address     string `json:"address,omitempty"`
	RoadAddress string `json:"road_address,omitempty"`
	Telephone   string `json:"telephone,omitempty"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
}

// Searcher looks up places.
type Searcher interface {
	SearchPlaces(ctx context.Context, query string, limit int) ([]Place, error)
}

// Mailer delivers a finished plan to the traveller.
type Mailer interface {
	SendPlan(ctx context.Context, to string, trip itinerary.TripContext, plan *itinerary.Plan) error
}

// Calendar registers a plan's activities. It returns how many events it
// created.
type Calendar interface {
	RegisterItinerary(ctx context.Context, calendarID string, plan *itinerary.Plan, start time.Time) (int, error)
}
