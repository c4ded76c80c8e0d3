package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dahimi/File-Search-POC/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "data", "dealroom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func TestTurnsAreOrderedPerStore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, client.AppendTurns(ctx, []models.TurnRecord{
		{StoreID: "fileSearchStores/a", Role: "user", Text: "q1", CreatedAt: now},
		{StoreID: "fileSearchStores/a", Role: "assistant", Text: "a1", Payload: `{"citations":["CIM.pdf"]}`, CreatedAt: now},
	}))
	require.NoError(t, client.AppendTurns(ctx, []models.TurnRecord{
		{StoreID: "fileSearchStores/b", Role: "user", Text: "other", CreatedAt: now},
	}))
	require.NoError(t, client.AppendTurns(ctx, []models.TurnRecord{
		{StoreID: "fileSearchStores/a", Role: "user", Text: "q2", CreatedAt: now},
	}))

	turns, err := client.ListTurns(ctx, "fileSearchStores/a")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "q1", turns[0].Text)
	assert.Equal(t, "a1", turns[1].Text)
	assert.Equal(t, `{"citations":["CIM.pdf"]}`, turns[1].Payload)
	assert.Equal(t, "q2", turns[2].Text)
	assert.Equal(t, now.UnixNano(), turns[0].CreatedAt.UnixNano())

	ids, err := client.TurnStoreIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fileSearchStores/a", "fileSearchStores/b"}, ids)

	require.NoError(t, client.DeleteTurns(ctx, "fileSearchStores/a"))
	turns, err = client.ListTurns(ctx, "fileSearchStores/a")
	require.NoError(t, err)
	assert.Empty(t, turns)

	turns, err = client.ListTurns(ctx, "fileSearchStores/b")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestChatRecords(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertChatRecord(ctx, &models.ChatRecord{
		ID:           "chat-1",
		StoreID:      "fileSearchStores/a",
		Model:        "gemini-2.5-flash",
		Message:      "What is revenue?",
		Response:     "$15.2M",
		Citations:    []string{"CIM.pdf", "Financials.xlsx"},
		ChunkCount:   3,
		HasReasoning: true,
		LatencyMS:    1200,
		CreatedAt:    time.Now(),
	}))
	require.NoError(t, client.InsertChatRecord(ctx, &models.ChatRecord{
		ID:        "chat-2",
		StoreID:   "fileSearchStores/a",
		Model:     "gemini-2.5-flash",
		Message:   "And EBITDA?",
		Response:  "Error: unavailable",
		Degraded:  true,
		ErrorText: "unavailable",
		CreatedAt: time.Now(),
	}))

	records, err := client.GetChatRecords(ctx, "fileSearchStores/a", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "chat-2", records[0].ID)
	assert.True(t, records[0].Degraded)
	assert.Equal(t, "unavailable", records[0].ErrorText)

	assert.Equal(t, []string{"CIM.pdf", "Financials.xlsx"}, records[1].Citations)
	assert.True(t, records[1].HasReasoning)
	assert.Equal(t, 3, records[1].ChunkCount)
}

func TestUploadRecordsAndStoreEvents(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertUploadRecord(ctx, &models.UploadRecord{
		ID:          "up-1",
		StoreID:     "fileSearchStores/a",
		DisplayName: "CIM.pdf",
		MimeType:    "application/pdf",
		Bytes:       2048,
		Status:      "success",
		Polls:       4,
		CreatedAt:   time.Now(),
	}))

	uploads, err := client.GetUploadRecords(ctx, "fileSearchStores/a", 5)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "CIM.pdf", uploads[0].DisplayName)
	assert.Equal(t, 4, uploads[0].Polls)

	require.NoError(t, client.InsertStoreEvent(ctx, &models.StoreEvent{StoreID: "fileSearchStores/a", Action: "create", DisplayName: "Acme", CreatedAt: time.Now()}))
	require.NoError(t, client.InsertStoreEvent(ctx, &models.StoreEvent{StoreID: "fileSearchStores/a", Action: "delete", CreatedAt: time.Now()}))

	events, err := client.GetStoreEvents(ctx, "fileSearchStores/a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "create", events[0].Action)
	assert.Equal(t, "delete", events[1].Action)
}
