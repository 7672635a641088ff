// ABOUTME: Destination recommendation set produced by the recommendation agent
// ABOUTME: Accepts either a bare list or an object wrapping the list under "recommendations"

package itinerary

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Recommendation is one suggested destination.
type Recommendation struct {
	Name            string   `json:"name"`
	Rationale       string   `json:"reason"`
	BestTime        string   `json:"best_time"`
	EstimatedBudget string   `json:"estimated_budget"`
	Highlights      []string `json:"highlights"`
}

// RecommendationSet is an ordered list of destination recommendations.
type RecommendationSet []Recommendation

// Validate requires at least one named recommendation.
func (s RecommendationSet) Validate() error {
	if len(s) == 0 {
		return &ValidationError{Field: "recommendations", Reason: "empty"}
	}
	for i, r := range s {
		if strings.TrimSpace(r.Name) == "" {
			return &ValidationError{Field: fmt.Sprintf("recommendations[%d].name", i), Reason: "required"}
		}
	}
	return nil
}

// Canonical returns a stable serialization used for duplicate comparison.
func (s RecommendationSet) Canonical() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

// ParseRecommendations decodes and validates raw recommendation output.
func ParseRecommendations(raw string) (RecommendationSet, error) {
	trimmed := strings.TrimSpace(raw)
	var set RecommendationSet
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &set); err != nil {
			return nil, fmt.Errorf("%w: decoding recommendations: %v", ErrMalformed, err)
		}
	} else {
		var wrapped struct {
			Recommendations RecommendationSet `json:"recommendations"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: decoding recommendations: %v", ErrMalformed, err)
		}
		set = wrapped.Recommendations
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("validating recommendations: %w", err)
	}
	return set, nil
}
