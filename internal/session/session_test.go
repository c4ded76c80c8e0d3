package session

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dahimi/File-Search-POC/internal/cache/redis"
	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/storage/sqlite"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	out := map[string]Store{
		BackendMemory: NewMemoryStore(),
		BackendSQLite: NewSQLiteStore(db),
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		require.NoError(t, err)
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)

		client, err := redis.NewClient(host, port, "", 0, "dealroom-test-"+uuid.New().String())
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		out[BackendRedis] = NewRedisStore(client)
	}
	return out
}

func sampleExchange(question string, at time.Time) []chat.Turn {
	trace := "checked the CIM"
	excerpt := "2023 revenue was $15.2M"
	return []chat.Turn{
		{Role: chat.RoleUser, Text: question, CreatedAt: at},
		{
			Role:      chat.RoleAssistant,
			Text:      "Revenue was $15.2M.",
			Citations: []string{"CIM.pdf"},
			Grounding: &chat.Grounding{
				Chunks:   []chat.Chunk{{Index: 0, Title: "CIM.pdf", Excerpt: &excerpt}},
				Supports: []chat.Support{{Text: "Revenue was $15.2M.", ChunkIndices: []int{0}}},
			},
			Reasoning: &trace,
			CreatedAt: at,
		},
	}
}

func TestStoreAppendAndHistory(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)

			require.NoError(t, store.Append(ctx, "fileSearchStores/a", sampleExchange("q1", at)...))
			require.NoError(t, store.Append(ctx, "fileSearchStores/a", sampleExchange("q2", at)...))

			history, err := store.History(ctx, "fileSearchStores/a")
			require.NoError(t, err)
			require.Len(t, history, 4)

			assert.Equal(t, "q1", history[0].Text)
			assert.Equal(t, chat.RoleUser, history[0].Role)
			assert.Equal(t, chat.RoleAssistant, history[1].Role)
			assert.Equal(t, "q2", history[2].Text)
			assert.True(t, history[0].CreatedAt.Equal(at))

			answer := history[1]
			assert.Equal(t, []string{"CIM.pdf"}, answer.Citations)
			require.NotNil(t, answer.Grounding)
			require.Len(t, answer.Grounding.Chunks, 1)
			assert.Equal(t, "2023 revenue was $15.2M", *answer.Grounding.Chunks[0].Excerpt)
			assert.Equal(t, []int{0}, answer.Grounding.Supports[0].ChunkIndices)
			require.NotNil(t, answer.Reasoning)
			assert.Equal(t, "checked the CIM", *answer.Reasoning)

			assert.Nil(t, history[0].Reasoning)
		})
	}
}

func TestStoreClearIsScopedToStore(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Append(ctx, "fileSearchStores/a", sampleExchange("a", time.Now())...))
			require.NoError(t, store.Append(ctx, "fileSearchStores/b", sampleExchange("b", time.Now())...))

			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"fileSearchStores/a", "fileSearchStores/b"}, keys)

			require.NoError(t, store.Clear(ctx, "fileSearchStores/a"))

			history, err := store.History(ctx, "fileSearchStores/a")
			require.NoError(t, err)
			assert.Empty(t, history)

			history, err = store.History(ctx, "fileSearchStores/b")
			require.NoError(t, err)
			assert.Len(t, history, 2)

			keys, err = store.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"fileSearchStores/b"}, keys)
		})
	}
}

func TestStoreUnknownStoreIsEmpty(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			history, err := store.History(context.Background(), "fileSearchStores/none")
			require.NoError(t, err)
			assert.Empty(t, history)
			assert.NoError(t, store.Clear(context.Background(), "fileSearchStores/none"))
		})
	}
}

func TestMemoryHistoryIsACopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s", chat.Turn{Role: chat.RoleUser, Text: "original"}))

	history, err := store.History(ctx, "s")
	require.NoError(t, err)
	history[0].Text = "mutated"

	again, err := store.History(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

func TestMemoryConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Append(ctx, "s", chat.Turn{Role: chat.RoleUser, Text: fmt.Sprintf("m%d", i)})
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, history, 50)
}

func TestTail(t *testing.T) {
	turns := []chat.Turn{{Text: "1"}, {Text: "2"}, {Text: "3"}, {Text: "4"}}

	assert.Len(t, Tail(turns, 0), 4)
	assert.Len(t, Tail(turns, 10), 4)

	tail := Tail(turns, 2)
	require.Len(t, tail, 2)
	assert.Equal(t, "3", tail[0].Text)
	assert.Equal(t, "4", tail[1].Text)
}
