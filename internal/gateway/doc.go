// Package gateway serves voyage-gateway's HTTP API.
//
// # Overview
//
// The Gateway owns the HTTP server. Each chat request opens a publisher in
// the live-turn registry, starts the turn on the orchestrator and streams
// the publisher's events back as Server-Sent Events until the turn ends.
//
// # HTTP API
//
//   - GET /chat?session_id=&message= - Run a turn (SSE response)
//   - POST /api/chat - Same, with {"session_id": "...", "message": "..."}
//   - GET /api/sessions/{id} - Session snapshot for page reloads
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (session store reachable)
//   - GET /metrics - Prometheus metrics, when enabled
//
// # SSE Streaming
//
// A turn's stream looks like:
//
//	event: started
//	data: {"session_id": "..."}
//
//	data: {"kind": "progress", "status": "processing", "result": "..."}
//
//	data: {"kind": "plan", "status": "success", "plan": {...}}
//
//	event: complete
//	data: {}
//
// Error events are named "event: error". Events carried over from an
// earlier turn have "replay": true.
//
// # Disconnects
//
// Turns run on the gateway's context, not the request's. A client that
// goes away only aborts its stream; the turn and any queued task finish
// and their results wait in the session for the next turn.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, deps, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled, then shuts down
package gateway
