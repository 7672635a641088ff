// ABOUTME: Contract tests every SessionStore backend must pass
// ABOUTME: Covers create-on-first-update, aborting writes, isolation and concurrent writers

package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/voyage-gateway/internal/event"
)

func backends(t *testing.T) map[string]SessionStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]SessionStore{
		"memory":   NewMemoryStore(),
		"sqlite":   sqlite,
		"dynamodb": NewDynamoDBStore(newFakeDynamo(), "sessions", 0),
	}
}

func TestSessionStore_GetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(t.Context(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSessionStore_UpdateCreatesSession(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			got, err := s.Update(ctx, "sess-1", func(sess *Session) error {
				sess.AppendHistory(RoleUser, "3-day trip to Busan")
				sess.Status = StatusProcessing
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.Version)

			loaded, err := s.Get(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, "sess-1", loaded.ID)
			assert.Equal(t, StatusProcessing, loaded.Status)
			require.Len(t, loaded.History, 1)
			assert.Equal(t, "3-day trip to Busan", loaded.History[0].Text)
			assert.Equal(t, int64(1), loaded.Version)
		})
	}
}

func TestSessionStore_FnErrorAbortsWrite(t *testing.T) {
	errStop := errors.New("stop")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			_, err := s.Update(ctx, "sess-1", func(sess *Session) error {
				sess.LastGeneral = "hello"
				return nil
			})
			require.NoError(t, err)

			_, err = s.Update(ctx, "sess-1", func(sess *Session) error {
				sess.LastGeneral = "changed"
				return errStop
			})
			assert.ErrorIs(t, err, errStop)

			loaded, err := s.Get(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, "hello", loaded.LastGeneral)
			assert.Equal(t, int64(1), loaded.Version)
		})
	}
}

func TestSessionStore_SessionsAreIsolated(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			_, err := s.Update(ctx, "a", func(sess *Session) error {
				sess.LastPlan = "plan-a"
				return nil
			})
			require.NoError(t, err)
			_, err = s.Update(ctx, "b", func(sess *Session) error {
				sess.LastPlan = "plan-b"
				return nil
			})
			require.NoError(t, err)

			a, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "plan-a", a.LastPlan)
		})
	}
}

func TestSessionStore_OutboxRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			_, err := s.Update(ctx, "sess-1", func(sess *Session) error {
				sess.Pending = append(sess.Pending, event.Failure("search failed", ""))
				sess.SetTask("task-1", "search", TaskFailed, 3, "boom")
				return nil
			})
			require.NoError(t, err)

			var taken []event.Event
			_, err = s.Update(ctx, "sess-1", func(sess *Session) error {
				taken = sess.TakePending()
				return nil
			})
			require.NoError(t, err)
			require.Len(t, taken, 1)
			assert.Equal(t, event.KindError, taken[0].Kind)

			loaded, err := s.Get(ctx, "sess-1")
			require.NoError(t, err)
			assert.Empty(t, loaded.Pending)
			assert.True(t, loaded.TaskFinished("task-1"))
			assert.Equal(t, 3, loaded.Tasks["task-1"].Attempts)
		})
	}
}

func TestSessionStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	const writers = 4
	const perWriter = 5

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			var wg sync.WaitGroup
			errs := make(chan error, writers*perWriter)
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						_, err := s.Update(ctx, "shared", func(sess *Session) error {
							sess.AppendHistory(RoleUser, fmt.Sprintf("w%d-%d", w, i))
							return nil
						})
						errs <- err
					}
				}(w)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			loaded, err := s.Get(ctx, "shared")
			require.NoError(t, err)
			assert.Len(t, loaded.History, writers*perWriter)
			assert.Equal(t, int64(writers*perWriter), loaded.Version)
		})
	}
}

func TestSession_ClaimEffect(t *testing.T) {
	s := NewSession("x")
	assert.True(t, s.ClaimEffect("notify:task-1"))
	assert.False(t, s.ClaimEffect("notify:task-1"))
	assert.True(t, s.HasEffect("notify:task-1"))
	assert.False(t, s.HasEffect("notify:task-2"))

	s.ReleaseEffect("notify:task-1")
	assert.False(t, s.HasEffect("notify:task-1"))
	assert.True(t, s.ClaimEffect("notify:task-1"))
}
