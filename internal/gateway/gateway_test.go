// ABOUTME: Tests for the gateway HTTP API against a real orchestrator on in-memory backends
// ABOUTME: Parses SSE responses and checks health, readiness, snapshots and metrics

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/voyage-gateway/internal/agent/local"
	"github.com/2389/voyage-gateway/internal/config"
	"github.com/2389/voyage-gateway/internal/event"
	"github.com/2389/voyage-gateway/internal/metrics"
	"github.com/2389/voyage-gateway/internal/orchestrator"
	"github.com/2389/voyage-gateway/internal/queue"
	"github.com/2389/voyage-gateway/internal/store"
	"github.com/2389/voyage-gateway/internal/stream"
	"github.com/2389/voyage-gateway/internal/worker"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testGateway struct {
	gw      *Gateway
	server  *httptest.Server
	store   store.SessionStore
	metrics *metrics.Metrics
}

func newTestGateway(t *testing.T, s store.SessionStore) *testGateway {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	q := queue.NewMemoryQueue()
	t.Cleanup(func() { _ = q.Close() })

	m := metrics.New()
	registry := stream.NewRegistry(stream.Options{Timeout: 5 * time.Second}, testLogger())
	m.TrackActiveTurns(registry.Active)

	pool := worker.NewPool(worker.Config{Slots: 1}, q, s, registry, m, testLogger())
	pool.Register(queue.KindSearch, &worker.SearchHandler{Searcher: local.Searcher{}, Planner: &local.Planner{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pool.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	orch := orchestrator.New(orchestrator.Config{PollInterval: 10 * time.Millisecond}, orchestrator.Deps{
		Store:       s,
		Queue:       q,
		Planner:     &local.Planner{},
		Recommender: &local.Recommender{},
		Metrics:     m,
		Logger:      testLogger(),
	})

	cfg := config.Default()
	gw, err := New(cfg, Deps{Turns: orch, Store: s, Registry: registry, Metrics: m}, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return &testGateway{gw: gw, server: srv, store: s, metrics: m}
}

type sseFrame struct {
	name string
	data string
}

func readSSE(t *testing.T, body io.Reader) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			frames = append(frames, cur)
			cur = sseFrame{}
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, scanner.Err())
	return frames
}

func decodeEvent(t *testing.T, f sseFrame) event.Event {
	t.Helper()
	var e event.Event
	require.NoError(t, json.Unmarshal([]byte(f.data), &e))
	return e
}

func (tg *testGateway) chatGET(t *testing.T, sessionID, message string) (*http.Response, []sseFrame) {
	t.Helper()
	q := url.Values{"message": {message}}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	resp, err := http.Get(tg.server.URL + "/chat?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp, readSSE(t, resp.Body)
}

func TestChat_StreamsTurn(t *testing.T) {
	tg := newTestGateway(t, nil)

	resp, frames := tg.chatGET(t, "s1", "I want a 3-day trip to Busan")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "s1", resp.Header.Get("X-Session-ID"))

	require.Len(t, frames, 3)
	assert.Equal(t, "started", frames[0].name)
	assert.JSONEq(t, `{"session_id":"s1"}`, frames[0].data)

	ask := decodeEvent(t, frames[1])
	assert.Equal(t, "", frames[1].name)
	assert.Equal(t, event.StatusNeedMoreInfo, ask.Status)
	assert.Contains(t, ask.Message, "budget")

	assert.Equal(t, "complete", frames[2].name)
}

func TestChat_PostPlansTrip(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.chatGET(t, "s1", "I want a 3-day trip to Busan")

	resp, err := http.Post(tg.server.URL+"/api/chat", "application/json",
		strings.NewReader(`{"session_id":"s1","message":"My budget is 500000 KRW"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	frames := readSSE(t, resp.Body)

	var kinds []event.Kind
	for _, f := range frames[1 : len(frames)-1] {
		kinds = append(kinds, decodeEvent(t, f).Kind)
	}
	assert.Equal(t, []event.Kind{event.KindProgress, event.KindProgress, event.KindPlan}, kinds)
	assert.Equal(t, "complete", frames[len(frames)-1].name)

	plan := decodeEvent(t, frames[len(frames)-2])
	require.NotNil(t, plan.Plan)
	assert.Len(t, plan.Plan.Itinerary, 3)
}

func TestChat_GeneratesSessionID(t *testing.T) {
	tg := newTestGateway(t, nil)

	resp, frames := tg.chatGET(t, "", "hello")
	id := resp.Header.Get("X-Session-ID")
	require.NotEmpty(t, id)
	assert.Contains(t, frames[0].data, id)

	_, err := tg.store.Get(context.Background(), id)
	assert.NoError(t, err)
}

func TestChat_BadRequests(t *testing.T) {
	tg := newTestGateway(t, nil)

	tests := []struct {
		name   string
		do     func() (*http.Response, error)
		status int
	}{
		{"missing message", func() (*http.Response, error) {
			return http.Get(tg.server.URL + "/chat?session_id=s1")
		}, http.StatusBadRequest},
		{"invalid json", func() (*http.Response, error) {
			return http.Post(tg.server.URL+"/api/chat", "application/json", strings.NewReader("{"))
		}, http.StatusBadRequest},
		{"wrong method", func() (*http.Response, error) {
			return http.Post(tg.server.URL+"/chat", "application/json", strings.NewReader("{}"))
		}, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.do()
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestGetSession(t *testing.T) {
	tg := newTestGateway(t, nil)

	resp, err := http.Get(tg.server.URL + "/api/sessions/nobody")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	tg.chatGET(t, "s1", "I want a 3-day trip to Busan")

	// The stream ends before the turn records its final status.
	require.Eventually(t, func() bool {
		s, err := tg.store.Get(context.Background(), "s1")
		return err == nil && s.Status == store.StatusNeedMoreInfo
	}, time.Second, 10*time.Millisecond)

	resp, err = http.Get(tg.server.URL + "/api/sessions/s1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "s1", snap.ID)
	assert.Equal(t, store.StatusNeedMoreInfo, snap.Status)
	assert.Equal(t, "Busan", snap.Trip.Destination)
	require.Len(t, snap.History, 2)
	assert.Equal(t, store.RoleUser, snap.History[0].Role)
	assert.Equal(t, store.RoleAssistant, snap.History[1].Role)
}

func TestHealth(t *testing.T) {
	tg := newTestGateway(t, nil)

	resp, err := http.Get(tg.server.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(tg.server.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type brokenStore struct{ store.SessionStore }

func (brokenStore) Get(context.Context, string) (*store.Session, error) {
	return nil, errors.New("connection refused")
}

func TestReady_StoreUnavailable(t *testing.T) {
	tg := newTestGateway(t, brokenStore{store.NewMemoryStore()})

	resp, err := http.Get(tg.server.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.chatGET(t, "s1", "hello")

	scrape := func() string {
		resp, err := http.Get(tg.server.URL + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}
	assert.Contains(t, scrape(), "voyage_active_turns")
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(), `voyage_turns_total{status="success"} 1`)
	}, time.Second, 10*time.Millisecond)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(config.Default(), Deps{}, testLogger())
	assert.Error(t, err)
}

func TestShutdown(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.chatGET(t, "s1", "hello")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tg.gw.Shutdown(ctx))
}
