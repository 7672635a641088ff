// ABOUTME: Tests for per-category duplicate suppression
// ABOUTME: Covers idempotence, category isolation and the coarse general slot

package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/itinerary"
	"github.com/2389/voyage-gateway/internal/store"
)

func samplePlan() *itinerary.Plan {
	return &itinerary.Plan{
		Itinerary: []itinerary.DayPlan{{Day: 1, Activities: []itinerary.Activity{{Time: "09:00", Description: "beach", Location: "Haeundae"}}}},
		Budget:    itinerary.Budget{Categories: []itinerary.BudgetCategory{{Name: "food", Estimated: 10}}, Total: 10},
	}
}

func TestApply_IdenticalPlanDeliveredOnce(t *testing.T) {
	s := store.NewSession("s")

	assert.True(t, Apply(event.PlanResult(samplePlan(), ""), s))
	assert.False(t, Apply(event.PlanResult(samplePlan(), ""), s))
}

func TestApply_CategoriesDoNotCrossSuppress(t *testing.T) {
	s := store.NewSession("s")

	// Same underlying text recorded in plan and general slots
	s.LastPlan = "same"
	assert.False(t, IsDuplicate(event.CategoryRecommendations, "same", s))
	assert.False(t, IsDuplicate(event.CategoryGeneral, "same", s))
	assert.True(t, IsDuplicate(event.CategoryPlan, "same", s))

	set := itinerary.RecommendationSet{{Name: "Jeju"}}
	assert.True(t, Apply(event.RecommendationResult(set, ""), s))
	assert.True(t, Apply(event.PlanResult(samplePlan(), ""), s))
	assert.False(t, Apply(event.RecommendationResult(set, ""), s))
}

func TestApply_GeneralComparesOnlyLatest(t *testing.T) {
	s := store.NewSession("s")

	assert.True(t, Apply(event.NeedMoreInfo("What is your budget?"), s))
	assert.True(t, Apply(event.Progress("Searching places"), s))
	// Not the most recent general message any more, so it passes again
	assert.True(t, Apply(event.NeedMoreInfo("What is your budget?"), s))
	assert.False(t, Apply(event.NeedMoreInfo("What is your budget?"), s))
	assert.Equal(t, "What is your budget?", s.LastGeneral)
}

func TestApply_UnfilteredKinds(t *testing.T) {
	s := store.NewSession("s")

	for i := 0; i < 2; i++ {
		assert.True(t, Apply(event.Failure("search failed", ""), s))
		assert.True(t, Apply(event.Notice(event.OperationRegisterItinerary, "done", true), s))
		assert.True(t, Apply(event.Complete(), s))
	}
	assert.Empty(t, s.LastGeneral)
}

func TestRecord_OverwritesSlot(t *testing.T) {
	s := store.NewSession("s")
	Record(event.CategoryPlan, "v1", s)
	Record(event.CategoryPlan, "v2", s)
	assert.Equal(t, "v2", s.LastPlan)
	assert.False(t, IsDuplicate(event.CategoryPlan, "v1", s))
	assert.False(t, IsDuplicate("unknown", "", s))
}
