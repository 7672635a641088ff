// Package queue carries tasks from the orchestrator to the worker pool.
//
// Delivery is at-least-once: a task may be received more than once, so
// handlers keep user-visible side effects idempotent. Two brokers implement
// the Queue contract:
//
//   - MemoryQueue: in-process, used by tests and single-binary deployments
//   - SQSQueue: Amazon SQS with long polling and an optional dead-letter queue
package queue
