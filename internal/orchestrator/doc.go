// Package orchestrator turns a user message into an ordered stream of
// events.
//
// A turn is recorded on the session before anything else happens. Email
// capture and calendar confirmation are deterministic branches keyed on
// the session stage; everything else goes to the planning agent, which
// decides between planning, recommending and a plain reply.
// Recommendations are produced inline. Plans are built by a search task on
// the queue; the turn then waits for the task's result to appear in the
// session outbox, woken by the worker or by polling.
//
// Every content-bearing event passes the dedup filter inside the same
// session update that records it. Results that arrive after a turn's
// stream has closed stay on the session and are replayed at the start of
// the next turn.
package orchestrator
