// ABOUTME: Per-session duplicate suppression for content-bearing events
// ABOUTME: Compares against the last emitted value of the event's own category only

package dedupe

import (
	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/store"
)

// IsDuplicate reports whether content equals the last value recorded for
// category in the session. plan and recommendations each have their own
// slot; general compares against the single most recent general message.
// Unknown categories are never duplicates.
func IsDuplicate(category, content string, s *store.Session) bool {
	switch category {
	case event.CategoryPlan:
		return s.LastPlan == content
	case event.CategoryRecommendations:
		return s.LastRecommendations == content
	case event.CategoryGeneral:
		return s.LastGeneral == content
	default:
		return false
	}
}

// Record overwrites the last-emitted slot for category.
func Record(category, content string, s *store.Session) {
	switch category {
	case event.CategoryPlan:
		s.LastPlan = content
	case event.CategoryRecommendations:
		s.LastRecommendations = content
	case event.CategoryGeneral:
		s.LastGeneral = content
	}
}

// Apply decides whether e should be delivered and updates the session's
// slots accordingly. Suppressed general messages still refresh the slot.
// Notices, errors and completion markers always pass.
func Apply(e event.Event, s *store.Session) bool {
	category := e.Category()
	if category == "" {
		return true
	}

	content := e.Content()
	if IsDuplicate(category, content, s) {
		if category == event.CategoryGeneral {
			Record(category, content, s)
		}
		return false
	}
	Record(category, content, s)
	return true
}
