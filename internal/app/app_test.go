package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/provider/providertest"
	"github.com/Dahimi/File-Search-POC/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Chat: config.ChatConfig{Model: "gemini-2.5-flash", ThinkingBudget: -1, RetryAttempts: 1},
		Ingestion: config.IngestionConfig{
			PollInterval: time.Millisecond,
			MaxWait:      time.Second,
			TempDir:      dir,
		},
		Session: config.SessionConfig{Backend: "memory"},
		SQLite:  config.SQLiteConfig{Path: filepath.Join(dir, "dealroom.db")},
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(testConfig(t))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestSQLiteSessionsSurviveRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Backend = "sqlite"
	fake := providertest.NewFake()
	fake.Generate = func(*provider.GenerateRequest) (*provider.GenerateResponse, error) {
		return &provider.GenerateResponse{Fragments: []provider.Part{{Text: "EBITDA was $4.1M."}}}, nil
	}
	ctx := context.Background()

	a, err := NewWithProvider(cfg, fake)
	require.NoError(t, err)
	require.NoError(t, a.Ready())
	_, err = a.Service.Chat(ctx, "falcon", "EBITDA?", chat.Options{})
	require.NoError(t, err)
	a.Close()

	a, err = NewWithProvider(cfg, fake)
	require.NoError(t, err)
	defer a.Close()

	history, err := a.Service.History(ctx, "falcon")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "EBITDA was $4.1M.", history[1].Text)

	_, err = a.Service.Activity(ctx, "falcon", 10)
	assert.Error(t, err, "audit stays off unless sqlite.enabled is set")
}

func TestSystemPromptFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chat.SystemPromptFile = filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(cfg.Chat.SystemPromptFile, []byte("  You review CIMs.\n"), 0o644))
	fake := providertest.NewFake()

	a, err := NewWithProvider(cfg, fake)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Service.Chat(context.Background(), "falcon", "Hi", chat.Options{})
	require.NoError(t, err)
	require.Len(t, fake.Requests, 1)
	assert.Equal(t, "You review CIMs.", fake.Requests[0].SystemInstruction)
}

func TestMissingSystemPromptFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chat.SystemPromptFile = filepath.Join(t.TempDir(), "missing.txt")

	_, err := NewWithProvider(cfg, providertest.NewFake())
	assert.Error(t, err)
}
