// Package store persists conversation sessions.
//
// # Architecture
//
// SessionStore is the only shared mutable resource in the gateway. Every
// mutation is a read-modify-write of a whole Session keyed by its ID:
//
//	sess, err := st.Update(ctx, id, func(s *store.Session) error {
//		s.AppendHistory(store.RoleUser, text)
//		return nil
//	})
//
// Backends guarantee per-session serializability with a version counter:
//
//   - MemoryStore: serializes writers with a mutex (tests, single process)
//   - SQLiteStore: modernc.org/sqlite, conditional UPDATE on the version column
//   - DynamoDBStore: conditional PutItem on the version attribute
//
// A write that loses the version race is retried against a fresh read, so
// update functions must only mutate the session they are handed.
//
// # Error Handling
//
//   - ErrNotFound: the session does not exist
//   - ErrConflict: retries were exhausted under contention
package store
