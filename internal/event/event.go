// ABOUTME: Event is the unit delivered to a client on a turn's stream
// ABOUTME: A tagged variant over message, progress, plan, recommendations, notice, error and complete

package event

import (
	"time"

	"github.com/2389/voyage-gateway/internal/itinerary"
)

// Kind tags which variant an Event carries.
type Kind string

const (
	KindMessage         Kind = "message"
	KindProgress        Kind = "progress"
	KindPlan            Kind = "plan"
	KindRecommendations Kind = "recommendations"
	KindNotice          Kind = "notice"
	KindError           Kind = "error"
	KindComplete        Kind = "complete"
)

// Status is the wire discriminant clients switch on.
type Status string

const (
	StatusNeedMoreInfo Status = "need_more_info"
	StatusProcessing   Status = "processing"
	StatusSuccess      Status = "success"
	StatusError        Status = "error"
)

// Operations carried by notice events.
const (
	OperationRegisterItinerary = "register_itinerary"
	OperationSendItinerary     = "send_itinerary"
)

// Dedup categories. Events outside these categories are never filtered.
const (
	CategoryPlan            = "plan"
	CategoryRecommendations = "recommendations"
	CategoryGeneral         = "general"
)

// Event is one element of a turn's ordered output. Only the fields relevant
// to Kind are populated; the JSON form is what the client receives.
type Event struct {
	Kind            Kind                        `json:"kind"`
	Status          Status                      `json:"status,omitempty"`
	Message         string                      `json:"message,omitempty"`
	Result          string                      `json:"result,omitempty"`
	Plan            *itinerary.Plan             `json:"plan,omitempty"`
	Recommendations itinerary.RecommendationSet `json:"recommendations,omitempty"`
	Operation       string                      `json:"operation,omitempty"`
	Reload          bool                        `json:"reload,omitempty"`
	Error           string                      `json:"error,omitempty"`
	Stacktrace      string                      `json:"stacktrace,omitempty"`

	// Replay marks an event carried over from an earlier turn. It is shown
	// but never ends the current turn.
	Replay bool `json:"replay,omitempty"`

	// TaskID ties worker-produced events back to the task that made them.
	TaskID    string    `json:"task_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Terminal reports whether delivering e ends the turn.
func (e Event) Terminal() bool {
	if e.Replay {
		return false
	}
	switch e.Kind {
	case KindProgress:
		return false
	case KindComplete:
		return true
	}
	return e.Status != StatusProcessing
}

// Category returns the dedup category of e, or "" when e is never filtered.
func (e Event) Category() string {
	switch e.Kind {
	case KindPlan:
		return CategoryPlan
	case KindRecommendations:
		return CategoryRecommendations
	case KindMessage, KindProgress:
		return CategoryGeneral
	default:
		return ""
	}
}

// Content returns the comparable content used by the dedup filter.
func (e Event) Content() string {
	switch e.Kind {
	case KindPlan:
		if e.Plan == nil {
			return ""
		}
		return e.Plan.Canonical()
	case KindRecommendations:
		return e.Recommendations.Canonical()
	case KindProgress:
		return e.Result
	default:
		return e.Message
	}
}

// Message builds an informational event with the given status.
func Message(status Status, text string) Event {
	return Event{Kind: KindMessage, Status: status, Message: text, CreatedAt: time.Now()}
}

// NeedMoreInfo asks the user for more input; it ends the turn.
func NeedMoreInfo(text string) Event {
	return Message(StatusNeedMoreInfo, text)
}

// Progress is interim commentary emitted while work continues.
func Progress(text string) Event {
	return Event{Kind: KindProgress, Status: StatusProcessing, Result: text, CreatedAt: time.Now()}
}

// PlanResult carries a validated plan. prompt is shown alongside it.
func PlanResult(plan *itinerary.Plan, prompt string) Event {
	return Event{Kind: KindPlan, Status: StatusSuccess, Plan: plan, Message: prompt, CreatedAt: time.Now()}
}

// RecommendationResult carries a validated recommendation set.
func RecommendationResult(set itinerary.RecommendationSet, text string) Event {
	return Event{
		Kind:            KindRecommendations,
		Status:          StatusSuccess,
		Recommendations: set,
		Message:         text,
		CreatedAt:       time.Now(),
	}
}

// Notice reports a completed side effect. reload tells the client to refresh.
func Notice(operation, text string, reload bool) Event {
	return Event{
		Kind:      KindNotice,
		Status:    StatusSuccess,
		Operation: operation,
		Message:   text,
		Reload:    reload,
		CreatedAt: time.Now(),
	}
}

// Failure carries a user-safe error message and optional diagnostic detail.
func Failure(msg, stacktrace string) Event {
	return Event{Kind: KindError, Status: StatusError, Error: msg, Stacktrace: stacktrace, CreatedAt: time.Now()}
}

// Complete is the distinguished end-of-stream marker.
func Complete() Event {
	return Event{Kind: KindComplete, CreatedAt: time.Now()}
}
