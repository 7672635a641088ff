// ABOUTME: Itinerary plan produced by the planning agent and its structural validation
// ABOUTME: A plan whose budget total disagrees with its categories is rejected, never corrected

package itinerary

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrMalformed marks agent output that cannot be rendered structurally.
var ErrMalformed = errors.New("malformed agent payload")

// budgetTolerance absorbs float rounding when summing category estimates.
const budgetTolerance = 0.01

// ValidationError describes why a payload failed structural validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets callers match any validation failure with errors.Is(err, ErrMalformed).
func (e *ValidationError) Is(target error) bool {
	return target == ErrMalformed
}

// Activity is one scheduled item within a day.
type Activity struct {
	Time        string   `json:"time"`
	Description string   `json:"activity"`
	Location    string   `json:"location"`
	Duration    string   `json:"duration"`
	Cost        *float64 `json:"cost,omitempty"`
}

// DayPlan is the ordered activity list for one day of the trip.
type DayPlan struct {
	Day        int        `json:"day"`
	Activities []Activity `json:"activities"`
}

// BudgetDetail is a line item inside a budget category.
type BudgetDetail struct {
	Item string  `json:"item"`
	Cost float64 `json:"cost"`
}

// BudgetCategory is a named estimate such as "transportation" or "food".
type BudgetCategory struct {
	Name      string         `json:"name"`
	Estimated float64        `json:"estimated"`
	Details   []BudgetDetail `json:"details,omitempty"`
}

// Budget is the category breakdown plus the stated total.
type Budget struct {
	Categories []BudgetCategory `json:"categories"`
	Total      float64          `json:"total"`
}

// canonicalCategoryOrder fixes the order of the well-known categories when
// a budget arrives keyed by category name.
var canonicalCategoryOrder = map[string]int{
	"transportation": 0,
	"accommodation":  1,
	"food":           2,
	"activities":     3,
}

// UnmarshalJSON accepts both the list form ({"categories": [...], "total": n})
// and the keyed form planners usually emit
// ({"transportation": {"estimated": n, "details": [...]}, ..., "total": n}).
func (b *Budget) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Budget
	if raw, ok := fields["total"]; ok {
		if err := json.Unmarshal(raw, &out.Total); err != nil {
			return fmt.Errorf("budget total: %w", err)
		}
	}

	if raw, ok := fields["categories"]; ok {
		if err := json.Unmarshal(raw, &out.Categories); err != nil {
			return fmt.Errorf("budget categories: %w", err)
		}
		*b = out
		return nil
	}

	for name, raw := range fields {
		if name == "total" {
			continue
		}
		var item struct {
			Estimated *float64       `json:"estimated"`
			Details   []BudgetDetail `json:"details"`
		}
		if err := json.Unmarshal(raw, &item); err != nil || item.Estimated == nil {
			return fmt.Errorf("budget category %q: missing estimated amount", name)
		}
		out.Categories = append(out.Categories, BudgetCategory{
			Name:      name,
			Estimated: *item.Estimated,
			Details:   item.Details,
		})
	}
	sort.SliceStable(out.Categories, func(i, j int) bool {
		oi, iKnown := canonicalCategoryOrder[out.Categories[i].Name]
		oj, jKnown := canonicalCategoryOrder[out.Categories[j].Name]
		switch {
		case iKnown && jKnown:
			return oi < oj
		case iKnown != jKnown:
			return iKnown
		default:
			return out.Categories[i].Name < out.Categories[j].Name
		}
	})
	*b = out
	return nil
}

// Sum adds up the category estimates.
func (b Budget) Sum() float64 {
	var sum float64
	for _, c := range b.Categories {
		sum += c.Estimated
	}
	return sum
}

// RecommendationGroup is a categorized list of suggestions attached to a plan.
type RecommendationGroup struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

// Plan is the structured itinerary result.
type Plan struct {
	Itinerary       []DayPlan             `json:"itinerary"`
	Budget          Budget                `json:"budget"`
	Recommendations []RecommendationGroup `json:"recommendations"`
	Tips            []string              `json:"tips"`
	DepartureDate   string                `json:"departure_date,omitempty"`
}

// Validate checks the plan's structural invariants.
func (p *Plan) Validate() error {
	if len(p.Itinerary) == 0 {
		return &ValidationError{Field: "itinerary", Reason: "no days"}
	}
	for i, day := range p.Itinerary {
		if len(day.Activities) == 0 {
			return &ValidationError{Field: fmt.Sprintf("itinerary[%d]", i), Reason: "no activities"}
		}
		for j, a := range day.Activities {
			field := fmt.Sprintf("itinerary[%d].activities[%d]", i, j)
			if strings.TrimSpace(a.Time) == "" {
				return &ValidationError{Field: field + ".time", Reason: "required"}
			}
			if strings.TrimSpace(a.Description) == "" {
				return &ValidationError{Field: field + ".activity", Reason: "required"}
			}
			if strings.TrimSpace(a.Location) == "" {
				return &ValidationError{Field: field + ".location", Reason: "required"}
			}
		}
	}
	if len(p.Budget.Categories) == 0 {
		return &ValidationError{Field: "budget", Reason: "no categories"}
	}
	if sum := p.Budget.Sum(); math.Abs(sum-p.Budget.Total) > budgetTolerance {
		return &ValidationError{
			Field:  "budget.total",
			Reason: fmt.Sprintf("total %.2f does not equal category sum %.2f", p.Budget.Total, sum),
		}
	}
	return nil
}

// Canonical returns a stable serialization used for duplicate comparison.
func (p *Plan) Canonical() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// ParsePlan decodes and validates raw planner output. Any failure wraps
// ErrMalformed so callers can fall back to delivering the raw text.
func ParsePlan(raw string) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: decoding plan: %v", ErrMalformed, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating plan: %w", err)
	}
	return &p, nil
}
