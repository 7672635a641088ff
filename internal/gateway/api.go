// ABOUTME: HTTP API handlers for conversational turns streamed as SSE
// ABOUTME: Provides GET /chat, POST /api/chat and the session snapshot endpoint

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/2389/voyage-gateway/internal/itinerary"
	"github.com/2389/voyage-gateway/internal/orchestrator"
	"github.com/2389/voyage-gateway/internal/store"
	"github.com/2389/voyage-gateway/internal/stream"
)

// maxMessageBytes bounds a chat request body.
const maxMessageBytes = 64 << 10

// ChatRequest is the JSON request body for POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// SessionResponse is the JSON response for GET /api/sessions/{id}. It is
// what a reloaded page needs to redraw the conversation.
type SessionResponse struct {
	ID        string                `json:"id"`
	Status    store.Status          `json:"status"`
	Stage     store.Stage           `json:"stage,omitempty"`
	Trip      itinerary.TripContext `json:"trip"`
	Plan      *itinerary.Plan       `json:"plan,omitempty"`
	Email     string                `json:"email,omitempty"`
	History   []store.HistoryEntry  `json:"history"`
	UpdatedAt string                `json:"updated_at"`
}

// parseChatRequest reads a turn from the query string (GET) or JSON body
// (POST). A missing session ID gets a fresh one.
func parseChatRequest(r *http.Request) (*ChatRequest, error) {
	var req ChatRequest
	if r.Method == http.MethodGet {
		req.SessionID = r.URL.Query().Get("session_id")
		req.Message = r.URL.Query().Get("message")
	} else {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&req); err != nil {
			return nil, errors.New("invalid JSON body")
		}
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	return &req, nil
}

// handleChat runs one turn and streams its events as SSE.
//
// The turn runs on the gateway's own context, not the request's: when the
// client disconnects the stream is aborted, but queued work and session
// writes carry on and the result is replayed on the next turn.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Check streaming support before starting the turn
	if _, ok := w.(http.Flusher); !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	pub := g.registry.Open(req.SessionID)
	logger := g.logger.With("session_id", req.SessionID)

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		status, err := g.turns.HandleTurn(g.turnCtx, orchestrator.TurnRequest{
			SessionID: req.SessionID,
			Text:      req.Message,
		}, pub)
		if err != nil {
			logger.Debug("turn ended with error", "status", status, "error", err)
		}
	}()

	stream.SetSSEHeaders(w)
	w.Header().Set("X-Session-ID", req.SessionID)
	w.WriteHeader(http.StatusOK)

	// Let the client learn a generated session ID before anything else.
	g.writeSSEEvent(w, "started", map[string]string{"session_id": req.SessionID})

	if err := stream.WriteSSE(r.Context(), w, pub); err != nil {
		logger.Info("stream ended early", "error", err)
	}
}

// handleGetSession handles GET /api/sessions/{id}.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s, err := g.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load session", "session_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	history := s.History
	if history == nil {
		history = []store.HistoryEntry{}
	}
	resp := SessionResponse{
		ID:        s.ID,
		Status:    s.Status,
		Stage:     s.Stage,
		Trip:      s.Trip,
		Plan:      s.Plan,
		Email:     s.Email,
		History:   history,
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeSSEEvent writes a single named SSE event and flushes it.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
