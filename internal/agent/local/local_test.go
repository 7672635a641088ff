// ABOUTME: Tests for the rule-based agents used in development
// ABOUTME: Extraction, intent classification, plan construction and the recommendation interview

package local

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		text string
		want itinerary.TripContext
	}{
		{
			text: "3-day trip to Busan",
			want: itinerary.TripContext{Destination: "Busan", Duration: "3-day"},
		},
		{
			text: "My budget is 500000 KRW, leaving 2025-05-01 from Seoul",
			want: itinerary.TripContext{DepartureLocation: "Seoul", DepartureDate: "2025-05-01", Preferences: itinerary.Preferences{Budget: "500000 KRW"}},
		},
		{
			text: "3박 4일 부산 여행 예산 50만원",
			want: itinerary.TripContext{Destination: "부산", Duration: "3박 4일", Preferences: itinerary.Preferences{Budget: "50만원"}},
		},
		{
			text: "budget 300000",
			want: itinerary.TripContext{Preferences: itinerary.Preferences{Budget: "300000"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtract_KeywordsMatchWholeWords(t *testing.T) {
	got := Extract("What season is best? I love the beach and a relaxing hotel, then the train")
	assert.Equal(t, []string{"beach"}, got.Preferences.Activities)
	assert.Equal(t, "relaxed", got.TravelStyle)
	assert.Equal(t, "hotel", got.Preferences.Accommodation)
	assert.Equal(t, "train", got.Preferences.Transportation)
}

func TestParseAmount(t *testing.T) {
	tests := map[string]float64{
		"500000 KRW": 500000,
		"50만원":       500000,
		"$1,200":     1200,
		"1.5만":       15000,
	}
	for in, want := range tests {
		got, ok := ParseAmount(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 0.001, in)
	}
	_, ok := ParseAmount("cheap")
	assert.False(t, ok)
}

func TestPlanner_Classify(t *testing.T) {
	p := &Planner{}
	ctx := t.Context()

	c, err := p.Classify(ctx, nil, "3-day trip to Busan", itinerary.TripContext{})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentPlan, c.Intent)
	assert.Equal(t, "Busan", c.Extracted.Destination)

	c, err = p.Classify(ctx, nil, "Can you recommend somewhere?", itinerary.TripContext{})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentRecommendation, c.Intent)

	c, err = p.Classify(ctx, nil, "relaxed and beaches", itinerary.TripContext{RecommendationStep: agent.StepPreferences})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentRecommendation, c.Intent)

	c, err = p.Classify(ctx, nil, "hello", itinerary.TripContext{})
	require.NoError(t, err)
	assert.Equal(t, agent.IntentGeneral, c.Intent)
	assert.NotEmpty(t, c.Reply)
}

func TestPlanner_BuildPlanBalancesBudget(t *testing.T) {
	p := &Planner{}
	trip := itinerary.TripContext{Destination: "Busan", Duration: "3-day", Preferences: itinerary.Preferences{Budget: "500,001 KRW"}}
	places, err := Searcher{}.SearchPlaces(t.Context(), "Busan attractions", 5)
	require.NoError(t, err)

	raw, err := p.BuildPlan(t.Context(), trip, places)
	require.NoError(t, err)

	plan, err := itinerary.ParsePlan(raw)
	require.NoError(t, err)
	assert.Len(t, plan.Itinerary, 3)
	require.Len(t, plan.Budget.Categories, 4)
	assert.InDelta(t, 500001, plan.Budget.Total, 0.001)
	assert.InDelta(t, plan.Budget.Total, plan.Budget.Sum(), 0.001)
	assert.Equal(t, "Visit Haeundae Beach", plan.Itinerary[0].Activities[0].Description)
}

func TestRecommender_Interview(t *testing.T) {
	r := &Recommender{}
	ctx := t.Context()

	reply, err := r.Recommend(ctx, "I like beaches and food", itinerary.TripContext{})
	require.NoError(t, err)
	assert.Empty(t, reply.Raw)
	assert.Contains(t, reply.Message, "your budget")
	assert.Equal(t, []string{"beach", "food"}, reply.Collected.Preferences.Activities)

	trip := itinerary.TripContext{}.Merge(reply.Collected)
	reply, err = r.Recommend(ctx, "relaxed, 1000000 KRW, hotel, by train", trip)
	require.NoError(t, err)
	require.NotEmpty(t, reply.Raw)

	set, err := itinerary.ParseRecommendations(reply.Raw)
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.Equal(t, "Busan", set[0].Name)
}

func TestRecorders(t *testing.T) {
	m := &Mailer{}
	m.FailNext(1)
	assert.ErrorIs(t, m.SendPlan(t.Context(), "a@b.c", itinerary.TripContext{}, &itinerary.Plan{}), ErrScripted)
	require.NoError(t, m.SendPlan(t.Context(), "a@b.c", itinerary.TripContext{}, &itinerary.Plan{}))
	assert.Len(t, m.Sent(), 1)

	c := &Calendar{}
	n, err := c.RegisterItinerary(t.Context(), "primary", &itinerary.Plan{Itinerary: []itinerary.DayPlan{{Day: 1, Activities: make([]itinerary.Activity, 2)}}}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
