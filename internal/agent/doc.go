// Package agent defines the collaborators behind the gateway's turns.
//
// Planner and Recommender run synchronously inside a turn. Searcher and
// Mailer run in background workers. Calendar registration is a plain branch
// in the orchestrator that calls Calendar directly.
//
// Adapters live in subpackages:
//
//   - local: deterministic rule-based stand-ins for development and tests
//   - llm: chat-completion backed Planner and Recommender (openai-go)
//   - naver: Naver local search
//   - mail: SMTP delivery
//   - gcal: Google Calendar registration
package agent
