package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/provider/providertest"
)

var fixedTime = time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)

func groundedResponse(titles ...string) func(*provider.GenerateRequest) (*provider.GenerateResponse, error) {
	return func(*provider.GenerateRequest) (*provider.GenerateResponse, error) {
		chunks := make([]provider.GroundingChunk, 0, len(titles))
		for i := range titles {
			chunks = append(chunks, chunk(&titles[i], strPtr("passage")))
		}
		return &provider.GenerateResponse{
			Fragments: []provider.Part{{Text: "grounded answer"}},
			Text:      "grounded answer",
			Grounding: &provider.GroundingMetadata{GroundingChunks: chunks},
		}, nil
	}
}

func TestChatAssemblesRequest(t *testing.T) {
	fake := providertest.NewFake()
	fake.Generate = groundedResponse("CIM.pdf")
	orch := NewOrchestrator(fake, Config{ThinkingBudget: DynamicThinking})

	history := []Turn{
		{Role: RoleUser, Text: "What is revenue?"},
		{Role: RoleAssistant, Text: "$15.2M"},
	}
	result := orch.Chat(context.Background(), "acme", "And EBITDA?", history, Options{})
	require.False(t, result.Degraded)

	require.Len(t, fake.Requests, 1)
	req := fake.Requests[0]
	require.Len(t, req.Contents, 3)
	assert.Equal(t, provider.TextContent("user", "What is revenue?"), req.Contents[0])
	assert.Equal(t, provider.TextContent(provider.RoleAssistant, "$15.2M"), req.Contents[1])
	assert.Equal(t, provider.TextContent("user", "And EBITDA?"), req.Contents[2])

	assert.Equal(t, []string{"fileSearchStores/acme"}, req.StoreNames)
	assert.Equal(t, DefaultSystemPrompt, req.SystemInstruction)
	assert.Equal(t, DynamicThinking, req.ThinkingBudget)
	assert.True(t, req.IncludeThoughts)
	assert.Equal(t, []string{DefaultModel}, fake.Models)
	assert.Equal(t, DefaultModel, result.Model)
}

func TestChatPerCallOverrides(t *testing.T) {
	fake := providertest.NewFake()
	orch := NewOrchestrator(fake, Config{Model: "gemini-2.5-pro", SystemPrompt: "base", ThinkingBudget: 1024})

	orch.Chat(context.Background(), "fileSearchStores/acme", "hi", nil, Options{
		Model:          "gemini-2.5-flash-lite",
		SystemPrompt:   "override",
		ThinkingBudget: IntPtr(0),
	})
	orch.Chat(context.Background(), "fileSearchStores/acme", "hi again", nil, Options{})

	require.Len(t, fake.Requests, 2)
	assert.Equal(t, "override", fake.Requests[0].SystemInstruction)
	assert.Equal(t, 0, fake.Requests[0].ThinkingBudget)
	assert.Equal(t, "base", fake.Requests[1].SystemInstruction)
	assert.Equal(t, 1024, fake.Requests[1].ThinkingBudget)
	assert.Equal(t, []string{"gemini-2.5-flash-lite", "gemini-2.5-pro"}, fake.Models)
}

func TestChatDoesNotMutateHistory(t *testing.T) {
	fake := providertest.NewFake()
	orch := NewOrchestrator(fake, Config{})

	history := []Turn{{Role: RoleUser, Text: "q1"}, {Role: RoleAssistant, Text: "a1"}}
	orch.Chat(context.Background(), "acme", "q2", history, Options{})

	assert.Len(t, history, 2)
	assert.Equal(t, "a1", history[1].Text)
}

func TestChatDegradesOnProviderError(t *testing.T) {
	fake := providertest.NewFake()
	fake.Generate = func(*provider.GenerateRequest) (*provider.GenerateResponse, error) {
		return nil, &provider.APIError{StatusCode: 503, Message: "overloaded"}
	}
	orch := NewOrchestrator(fake, Config{})

	result := orch.Chat(context.Background(), "acme", "What is revenue?", nil, Options{})

	assert.True(t, result.Degraded)
	assert.True(t, strings.HasPrefix(result.Text, "Error: "))
	assert.Contains(t, result.Text, "overloaded")
	assert.Empty(t, result.Citations)
	assert.Empty(t, result.Grounding.Chunks)
	assert.Empty(t, result.Grounding.Supports)
	assert.Nil(t, result.Reasoning)

	assert.ErrorIs(t, result.Err, ErrChat)
	var apiErr *provider.APIError
	assert.ErrorAs(t, result.Err, &apiErr)
}

func TestChatEmptyMessageSkipsProvider(t *testing.T) {
	fake := providertest.NewFake()
	orch := NewOrchestrator(fake, Config{})

	result := orch.Chat(context.Background(), "acme", "   ", nil, Options{})

	assert.True(t, result.Degraded)
	assert.ErrorIs(t, result.Err, ErrEmptyMessage)
	assert.Empty(t, fake.Requests)
}

func TestChatCitationsStableAcrossCalls(t *testing.T) {
	fake := providertest.NewFake()
	fake.Generate = groundedResponse("CIM.pdf", "Financials.xlsx", "CIM.pdf")
	orch := NewOrchestrator(fake, Config{})

	first := orch.Chat(context.Background(), "acme", "Summarize", nil, Options{})
	second := orch.Chat(context.Background(), "acme", "Summarize", nil, Options{})

	assert.ElementsMatch(t, first.Citations, second.Citations)
	assert.Equal(t, []string{"CIM.pdf", "Financials.xlsx"}, first.Citations)
}

func TestResultJSONDistinguishesAbsentReasoning(t *testing.T) {
	withoutTrace, err := json.Marshal(Result{Citations: []string{}})
	require.NoError(t, err)
	assert.NotContains(t, string(withoutTrace), "reasoning")

	empty := ""
	withTrace, err := json.Marshal(Result{Reasoning: &empty})
	require.NoError(t, err)
	assert.Contains(t, string(withTrace), `"reasoning":""`)
}

func TestAssistantTurnCarriesEvidence(t *testing.T) {
	trace := "thinking"
	result := &Result{
		Text:      "answer",
		Citations: []string{"CIM.pdf"},
		Grounding: Grounding{Chunks: []Chunk{{Index: 0, Title: "CIM.pdf"}}},
		Reasoning: &trace,
		Err:       errors.New("ignored"),
	}

	turn := result.AssistantTurn(fixedTime)
	assert.Equal(t, RoleAssistant, turn.Role)
	assert.Equal(t, "answer", turn.Text)
	assert.Equal(t, []string{"CIM.pdf"}, turn.Citations)
	require.NotNil(t, turn.Grounding)
	assert.Len(t, turn.Grounding.Chunks, 1)
	assert.Equal(t, &trace, turn.Reasoning)
	assert.Equal(t, fixedTime, turn.CreatedAt)
}
