// ABOUTME: Catalog-backed Recommender running the preferences then destinations interview
// ABOUTME: Ranks a fixed destination catalog by overlap with the collected preferences

package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/2389/voyage-gateway/internal/agent"
	"github.com/2389/voyage-gateway/internal/itinerary"
)

type destination struct {
	rec  itinerary.Recommendation
	tags []string
}

var catalog = []destination{
	{itinerary.Recommendation{Name: "Busan", Rationale: "Beaches and seafood markets in one city", BestTime: "June to September", EstimatedBudget: "400,000 KRW for 3 days", Highlights: []string{"Haeundae Beach", "Jagalchi Market", "Gamcheon Culture Village"}}, []string{"beach", "food", "relaxed", "train"}},
	{itinerary.Recommendation{Name: "Jeju", Rationale: "Volcanic trails and coastal resorts", BestTime: "April to June", EstimatedBudget: "700,000 KRW for 3 days", Highlights: []string{"Hallasan", "Seongsan Ilchulbong", "Hyeopjae Beach"}}, []string{"beach", "hiking", "relaxed", "active", "resort", "flight", "car"}},
	{itinerary.Recommendation{Name: "Gyeongju", Rationale: "Open-air museum of the Silla kingdom", BestTime: "April or October", EstimatedBudget: "300,000 KRW for 2 days", Highlights: []string{"Bulguksa", "Daereungwon", "Donggung Palace"}}, []string{"history", "museum", "cultural", "train", "bus"}},
	{itinerary.Recommendation{Name: "Seoul", Rationale: "Palaces by day and markets by night", BestTime: "September to November", EstimatedBudget: "500,000 KRW for 3 days", Highlights: []string{"Gyeongbokgung", "Myeongdong", "Bukchon Hanok Village"}}, []string{"shopping", "food", "museum", "history", "cultural", "hotel"}},
	{itinerary.Recommendation{Name: "Gangneung", Rationale: "Quiet beaches and coffee streets", BestTime: "July and August", EstimatedBudget: "300,000 KRW for 2 days", Highlights: []string{"Gyeongpo Beach", "Anmok Coffee Street", "Ojukheon"}}, []string{"beach", "relaxed", "food", "pension", "train"}},
	{itinerary.Recommendation{Name: "Jeonju", Rationale: "Hanok streets and the home of bibimbap", BestTime: "May or October", EstimatedBudget: "250,000 KRW for 2 days", Highlights: []string{"Jeonju Hanok Village", "Nambu Market", "Gyeonggijeon"}}, []string{"food", "history", "cultural", "bus"}},
}

// Recommender implements agent.Recommender over a fixed catalog.
type Recommender struct {
	// Limit caps how many destinations are returned. Defaults to 3.
	Limit int
}

var _ agent.Recommender = (*Recommender)(nil)

var preferenceQuestions = map[string]string{
	itinerary.FieldTravelStyle:    "what kind of trip you enjoy (relaxed, active or cultural)",
	itinerary.FieldActivities:     "which activities you like",
	itinerary.FieldBudget:         "your budget",
	itinerary.FieldAccommodation:  "where you prefer to stay",
	itinerary.FieldTransportation: "how you want to get around",
}

// Recommend collects preferences until all are known, then ranks the catalog.
func (r *Recommender) Recommend(ctx context.Context, text string, trip itinerary.TripContext) (*agent.RecommendationReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	collected := Extract(text)
	collected.Destination = ""
	collected.Duration = ""
	collected.DepartureDate = ""
	collected.DepartureLocation = ""
	merged := trip.Merge(collected)

	reply := &agent.RecommendationReply{Collected: collected}
	if missing := merged.MissingPreferences(); len(missing) > 0 {
		asks := make([]string, 0, len(missing))
		for _, f := range missing {
			asks = append(asks, preferenceQuestions[f])
		}
		reply.Message = "To recommend destinations, tell me " + strings.Join(asks, "; ") + "."
		return reply, nil
	}

	set := r.rank(merged)
	data, err := json.Marshal(map[string]any{"recommendations": set})
	if err != nil {
		return nil, fmt.Errorf("encoding recommendations: %w", err)
	}
	reply.Raw = string(data)
	reply.Message = fmt.Sprintf("Here are %d destinations that match your preferences.", len(set))
	return reply, nil
}

func (r *Recommender) rank(trip itinerary.TripContext) itinerary.RecommendationSet {
	wants := map[string]bool{
		trip.TravelStyle:                true,
		trip.Preferences.Accommodation:  true,
		trip.Preferences.Transportation: true,
	}
	for _, a := range trip.Preferences.Activities {
		wants[a] = true
	}

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, len(catalog))
	for i, d := range catalog {
		ranked[i].idx = i
		for _, tag := range d.tags {
			if wants[tag] {
				ranked[i].score++
			}
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	limit := r.Limit
	if limit <= 0 {
		limit = 3
	}
	var set itinerary.RecommendationSet
	for _, s := range ranked[:min(limit, len(ranked))] {
		set = append(set, catalog[s.idx].rec)
	}
	return set
}
