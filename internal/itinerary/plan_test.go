// ABOUTME: Tests for plan parsing, budget consistency and recommendation decoding
// ABOUTME: Covers keyed and list budget forms, malformed payloads and trip merging

package itinerary

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyedPlan = `{
  "itinerary": [
    {"day": 1, "activities": [{"time": "09:00", "activity": "Haeundae beach walk", "location": "Haeundae", "duration": "2h", "cost": 0}]},
    {"day": 2, "activities": [{"time": "10:00", "activity": "Gamcheon village", "location": "Saha-gu", "duration": "3h"}]},
    {"day": 3, "activities": [{"time": "08:00", "activity": "Jagalchi market", "location": "Jung-gu", "duration": "1h", "cost": 20000}]}
  ],
  "budget": {
    "food": {"estimated": 150000, "details": [{"item": "meals", "cost": 150000}]},
    "transportation": {"estimated": 100000},
    "activities": {"estimated": 50000},
    "accommodation": {"estimated": 200000},
    "total": 500000
  },
  "recommendations": [{"category": "sights", "items": ["Taejongdae"]}],
  "tips": ["Carry cash at markets"]
}`

func TestParsePlan_KeyedBudget(t *testing.T) {
	plan, err := ParsePlan(keyedPlan)
	require.NoError(t, err)

	assert.Len(t, plan.Itinerary, 3)
	require.Len(t, plan.Budget.Categories, 4)
	assert.Equal(t, "transportation", plan.Budget.Categories[0].Name)
	assert.Equal(t, "accommodation", plan.Budget.Categories[1].Name)
	assert.Equal(t, "food", plan.Budget.Categories[2].Name)
	assert.Equal(t, "activities", plan.Budget.Categories[3].Name)
	assert.InDelta(t, plan.Budget.Total, plan.Budget.Sum(), 0.001)
	assert.Nil(t, plan.Itinerary[1].Activities[0].Cost)
}

func TestParsePlan_ListBudget(t *testing.T) {
	raw := `{"itinerary":[{"day":1,"activities":[{"time":"09:00","activity":"a","location":"b","duration":"1h"}]}],
	"budget":{"categories":[{"name":"food","estimated":10.5},{"name":"misc","estimated":4.5}],"total":15},
	"recommendations":[],"tips":[]}`
	plan, err := ParsePlan(raw)
	require.NoError(t, err)
	assert.Equal(t, "food", plan.Budget.Categories[0].Name)
}

func TestParsePlan_BudgetMismatchRejected(t *testing.T) {
	raw := `{"itinerary":[{"day":1,"activities":[{"time":"09:00","activity":"a","location":"b","duration":"1h"}]}],
	"budget":{"food":{"estimated":100},"transportation":{"estimated":100},"total":250},"recommendations":[],"tips":[]}`
	_, err := ParsePlan(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "budget.total", verr.Field)
}

func TestParsePlan_MalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "Here is your plan: day 1 beach"},
		{"no days", `{"itinerary":[],"budget":{"categories":[{"name":"food","estimated":1}],"total":1}}`},
		{"missing location", `{"itinerary":[{"day":1,"activities":[{"time":"09:00","activity":"a","duration":"1h"}]}],"budget":{"categories":[{"name":"food","estimated":1}],"total":1}}`},
		{"category without estimate", `{"itinerary":[{"day":1,"activities":[{"time":"09:00","activity":"a","location":"b"}]}],"budget":{"food":{"details":[]},"total":1}}`},
		{"no budget categories", `{"itinerary":[{"day":1,"activities":[{"time":"09:00","activity":"a","location":"b"}]}],"budget":{"total":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "error should wrap ErrMalformed: %v", err)
		})
	}
}

func TestPlan_CanonicalIgnoresFormatting(t *testing.T) {
	a, err := ParsePlan(keyedPlan)
	require.NoError(t, err)
	b, err := ParsePlan(`{"tips":["Carry cash at markets"],"recommendations":[{"category":"sights","items":["Taejongdae"]}],
	"budget":{"total":500000,"accommodation":{"estimated":200000},"activities":{"estimated":50000},"transportation":{"estimated":100000},"food":{"estimated":150000,"details":[{"item":"meals","cost":150000}]}},
	"itinerary":[{"day":1,"activities":[{"time":"09:00","activity":"Haeundae beach walk","location":"Haeundae","duration":"2h","cost":0}]},
	{"day":2,"activities":[{"time":"10:00","activity":"Gamcheon village","location":"Saha-gu","duration":"3h"}]},
	{"day":3,"activities":[{"time":"08:00","activity":"Jagalchi market","location":"Jung-gu","duration":"1h","cost":20000}]}]}`)
	require.NoError(t, err)
	assert.Equal(t, a.Canonical(), b.Canonical())
}

func TestParseRecommendations(t *testing.T) {
	wrapped := `{"status":"success","recommendations":[{"name":"Jeju","reason":"beaches","best_time":"May","estimated_budget":"800k","highlights":["Hallasan"]}]}`
	set, err := ParseRecommendations(wrapped)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, "Jeju", set[0].Name)
	assert.Equal(t, "beaches", set[0].Rationale)

	list := `[{"name":"Gyeongju","reason":"history","highlights":[]}]`
	set, err = ParseRecommendations(list)
	require.NoError(t, err)
	assert.Equal(t, "Gyeongju", set[0].Name)

	_, err = ParseRecommendations(`{"recommendations":[]}`)
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = ParseRecommendations(`{"recommendations":[{"reason":"no name"}]}`)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestTripContext_MergeKeepsExistingValues(t *testing.T) {
	base := TripContext{Destination: "Busan", Duration: "3-day"}
	merged := base.Merge(TripContext{Destination: "  ", Preferences: Preferences{Budget: "500000 KRW"}})

	assert.Equal(t, "Busan", merged.Destination)
	assert.Equal(t, "3-day", merged.Duration)
	assert.Equal(t, "500000 KRW", merged.Preferences.Budget)
	assert.Empty(t, merged.Missing())
	assert.Equal(t, "", base.Preferences.Budget, "merge must not mutate the receiver")
}

func TestTripContext_MissingAndFilter(t *testing.T) {
	trip := TripContext{Destination: "Busan", Duration: "3-day"}
	assert.Equal(t, []string{FieldBudget}, trip.Missing())
	assert.Equal(t, []string{FieldBudget, FieldDepartureDate},
		trip.FilterMissing([]string{FieldDestination, FieldBudget, FieldDepartureDate}))
}

func TestDurationDays(t *testing.T) {
	tests := map[string]int{
		"3-day":     3,
		"4 days":    4,
		"2 nights":  3,
		"3박 4일":     4,
		"5일":        5,
		"a while":   0,
		"1 Day":     1,
		"weekend":   0,
		"10-days":   10,
		"6 Nights ": 7,
	}
	for in, want := range tests {
		assert.Equal(t, want, DurationDays(in), in)
	}
}

func TestTripContext_MissingPreferences(t *testing.T) {
	trip := TripContext{TravelStyle: "relaxed", Preferences: Preferences{Budget: "1M KRW", Activities: []string{"beach"}}}
	assert.Equal(t, []string{FieldAccommodation, FieldTransportation}, trip.MissingPreferences())

	trip = trip.Merge(TripContext{Preferences: Preferences{Accommodation: "hotel", Transportation: "train"}})
	assert.Empty(t, trip.MissingPreferences())
}
