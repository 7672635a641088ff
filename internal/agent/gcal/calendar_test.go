// ABOUTME: Tests for Google Calendar registration against a stub Calendar API
// ABOUTME: Checks event timing in the configured zone and duration parsing

package gcal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/2389/voyage-gateway/internal/itinerary"
)

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"2시간 30분": 2*time.Hour + 30*time.Minute,
		"90분":     90 * time.Minute,
		"1h30m":   90 * time.Minute,
		"3 hours": 3 * time.Hour,
		"":        time.Hour,
		"a while": time.Hour,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseDuration(in), in)
	}
}

func TestRegisterItinerary(t *testing.T) {
	var mu sync.Mutex
	var events []calendar.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/trav@example.test/events"), r.URL.Path)
		var ev calendar.Event
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		ev.Id = "evt"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ev)
	}))
	defer srv.Close()

	r, err := New(t.Context(), Config{},
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	plan := &itinerary.Plan{Itinerary: []itinerary.DayPlan{
		{Day: 1, Activities: []itinerary.Activity{{Time: "09:00", Description: "Beach", Location: "Haeundae", Duration: "2시간"}}},
		{Day: 2, Activities: []itinerary.Activity{{Time: "13:30", Description: "Market", Location: "Jagalchi", Duration: "90분"}}},
	}}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	n, err := r.RegisterItinerary(t.Context(), "trav@example.test", plan, start)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, events, 2)
	assert.Equal(t, "Beach", events[0].Summary)
	assert.Equal(t, "2025-05-01T09:00:00+09:00", events[0].Start.DateTime)
	assert.Equal(t, "2025-05-01T11:00:00+09:00", events[0].End.DateTime)
	assert.Equal(t, "Asia/Seoul", events[0].Start.TimeZone)
	assert.Equal(t, "2025-05-02T13:30:00+09:00", events[1].Start.DateTime)
	assert.Equal(t, "2025-05-02T15:00:00+09:00", events[1].End.DateTime)
}

func TestRegisterItinerary_BadTime(t *testing.T) {
	r, err := New(t.Context(), Config{}, option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1/"))
	require.NoError(t, err)

	plan := &itinerary.Plan{Itinerary: []itinerary.DayPlan{{Day: 1, Activities: []itinerary.Activity{{Time: "morning", Description: "x", Location: "y"}}}}}
	n, err := r.RegisterItinerary(t.Context(), "primary", plan, time.Now())
	assert.Error(t, err)
	assert.Zero(t, n)
}
