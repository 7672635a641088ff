// ABOUTME: Trip context accumulated across conversation turns
// ABOUTME: Merges newly extracted fields and reports required fields that are still missing

package itinerary

import (
	"regexp"
	"strconv"
	"strings"
)

// Field names used in missing-field reports. Nested preference fields use
// dotted paths, matching what the planning agent emits.
const (
	FieldDepartureLocation = "departure_location"
	FieldDepartureDate     = "departure_date"
	FieldDestination       = "destination"
	FieldDuration          = "duration"
	FieldBudget            = "preferences.budget"
	FieldActivities        = "preferences.activities"
	FieldAccommodation     = "preferences.accommodation"
	FieldTransportation    = "preferences.transportation"
)

// FieldTravelStyle is only collected by the recommendation interview.
const FieldTravelStyle = "travel_style"

// RequiredPlanFields must all be known before a plan can be built.
var RequiredPlanFields = []string{FieldDestination, FieldDuration, FieldBudget}

// RequiredPreferenceFields must all be known before destinations can be
// recommended.
var RequiredPreferenceFields = []string{
	FieldTravelStyle, FieldActivities, FieldBudget, FieldAccommodation, FieldTransportation,
}

// Preferences holds the traveller's stated preferences.
type Preferences struct {
	Budget         string   `json:"budget,omitempty"`
	Activities     []string `json:"activities,omitempty"`
	Accommodation  string   `json:"accommodation,omitempty"`
	Transportation string   `json:"transportation,omitempty"`
}

// TripContext is everything learned about the trip so far.
type TripContext struct {
	DepartureLocation string      `json:"departure_location,omitempty"`
	DepartureDate     string      `json:"departure_date,omitempty"`
	Destination       string      `json:"destination,omitempty"`
	Duration          string      `json:"duration,omitempty"`
	Preferences       Preferences `json:"preferences"`

	// Collected while the recommendation agent interviews the user.
	TravelStyle        string `json:"travel_style,omitempty"`
	RecommendationStep string `json:"recommendation_step,omitempty"`
}

// Merge returns a copy of t updated with the non-empty values of other.
// Empty strings and empty lists in other never clear an existing value.
func (t TripContext) Merge(other TripContext) TripContext {
	out := t
	setIf(&out.DepartureLocation, other.DepartureLocation)
	setIf(&out.DepartureDate, other.DepartureDate)
	setIf(&out.Destination, other.Destination)
	setIf(&out.Duration, other.Duration)
	setIf(&out.TravelStyle, other.TravelStyle)
	setIf(&out.RecommendationStep, other.RecommendationStep)
	setIf(&out.Preferences.Budget, other.Preferences.Budget)
	setIf(&out.Preferences.Accommodation, other.Preferences.Accommodation)
	setIf(&out.Preferences.Transportation, other.Preferences.Transportation)
	if len(other.Preferences.Activities) > 0 {
		out.Preferences.Activities = append([]string(nil), other.Preferences.Activities...)
	}
	return out
}

func setIf(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Has reports whether the named field carries a value.
func (t TripContext) Has(field string) bool {
	switch field {
	case FieldDepartureLocation:
		return t.DepartureLocation != ""
	case FieldDepartureDate:
		return t.DepartureDate != ""
	case FieldDestination:
		return t.Destination != ""
	case FieldTravelStyle:
		return t.TravelStyle != ""
	case FieldDuration:
		return t.Duration != ""
	case FieldBudget, "budget":
		return t.Preferences.Budget != ""
	case FieldActivities, "activities":
		return len(t.Preferences.Activities) > 0
	case FieldAccommodation, "accommodation":
		return t.Preferences.Accommodation != ""
	case FieldTransportation, "transportation":
		return t.Preferences.Transportation != ""
	case "preferences":
		return t.Preferences.Budget != "" || len(t.Preferences.Activities) > 0
	default:
		return false
	}
}

// Missing returns the required plan fields that t does not yet carry, in
// RequiredPlanFields order.
func (t TripContext) Missing() []string {
	var missing []string
	for _, f := range RequiredPlanFields {
		if !t.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// MissingPreferences returns the recommendation interview fields still
// unanswered.
func (t TripContext) MissingPreferences() []string {
	return t.FilterMissing(RequiredPreferenceFields)
}

// FilterMissing drops every field from fields that t already carries.
// Agents sometimes ask again for values the session already knows.
func (t TripContext) FilterMissing(fields []string) []string {
	var out []string
	for _, f := range fields {
		if !t.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

var (
	nightsDaysRe = regexp.MustCompile(`(\d+)\s*박\s*(\d+)\s*일`)
	daysRe       = regexp.MustCompile(`(?i)(\d+)\s*(?:-\s*)?(?:days?|일)`)
	nightsRe     = regexp.MustCompile(`(?i)(\d+)\s*(?:-\s*)?nights?`)
)

// DurationDays interprets a free-text trip length ("3-day", "4 days",
// "2 nights", "3박 4일") as a number of days. Returns 0 when unknown.
func DurationDays(duration string) int {
	if m := nightsDaysRe.FindStringSubmatch(duration); m != nil {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	if m := daysRe.FindStringSubmatch(duration); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := nightsRe.FindStringSubmatch(duration); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n + 1
	}
	return 0
}
