package session_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/core/session"
)

func newSQLiteStore(t *testing.T) *session.SQLiteStore {
	t.Helper()
	s, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]knowledgebase.SessionMemory {
	return map[string]knowledgebase.SessionMemory{
		"memory": session.NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.AppendTurn(ctx, "s1", knowledgebase.RoleHuman, "how do I search?"))
			require.NoError(t, store.AppendTurn(ctx, "s1", knowledgebase.RoleAI, "POST /search"))
			require.NoError(t, store.AppendTurn(ctx, "s2", knowledgebase.RoleHuman, "other session"))

			got, err := store.GetHistory(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, []knowledgebase.Turn{
				{Role: knowledgebase.RoleHuman, Content: "how do I search?"},
				{Role: knowledgebase.RoleAI, Content: "POST /search"},
			}, got)

			got, err = store.GetHistory(ctx, "s2")
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetHistory(ctx, "missing")
			assert.ErrorIs(t, err, knowledgebase.ErrNotFound)

			err = store.DeleteSession(ctx, "missing")
			assert.ErrorIs(t, err, knowledgebase.ErrNotFound)
		})
	}
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.AppendTurn(ctx, "s1", knowledgebase.RoleHuman, "hello"))
			require.NoError(t, store.DeleteSession(ctx, "s1"))

			_, err := store.GetHistory(ctx, "s1")
			assert.ErrorIs(t, err, knowledgebase.ErrNotFound)

			// the id can be reused afterwards
			require.NoError(t, store.AppendTurn(ctx, "s1", knowledgebase.RoleHuman, "again"))
			got, err := store.GetHistory(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, []knowledgebase.Turn{{Role: knowledgebase.RoleHuman, Content: "again"}}, got)
		})
	}
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := store.AppendTurn(ctx, "", knowledgebase.RoleHuman, "x")
			assert.ErrorIs(t, err, knowledgebase.ErrInvalidInput)

			err = store.AppendTurn(ctx, "s1", knowledgebase.Role("System"), "x")
			assert.ErrorIs(t, err, knowledgebase.ErrInvalidInput)
		})
	}
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	const writers, perWriter = 8, 25

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						err := store.AppendTurn(ctx, "shared", knowledgebase.RoleHuman, fmt.Sprintf("%d-%d", w, i))
						assert.NoError(t, err)
						err = store.AppendTurn(ctx, fmt.Sprintf("own-%d", w), knowledgebase.RoleAI, "x")
						assert.NoError(t, err)
					}
				}(w)
			}
			wg.Wait()

			got, err := store.GetHistory(ctx, "shared")
			require.NoError(t, err)
			assert.Len(t, got, writers*perWriter)

			// each writer's own turns keep their relative order
			last := make(map[int]int)
			for _, turn := range got {
				var w, i int
				_, err := fmt.Sscanf(turn.Content, "%d-%d", &w, &i)
				require.NoError(t, err)
				if prev, ok := last[w]; ok {
					assert.Greater(t, i, prev)
				}
				last[w] = i
			}
		})
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, store.AppendTurn(ctx, "s1", knowledgebase.RoleHuman, "hello"))

	got, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	got[0].Content = "mutated"

	again, err := store.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again[0].Content)
	assert.Equal(t, 1, store.Len())
}
