// Package worker runs queued tasks in the background.
//
// A Pool owns N consumer slots. Each delivery is marked running on its
// session, handled, and then either recorded as done together with its
// result events (which go to the session outbox for the live turn to pick
// up), retried with exponential backoff, or dead-lettered with a user-safe
// error event. A task already recorded as done is acknowledged without
// running again.
package worker
