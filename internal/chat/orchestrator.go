package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/metrics"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/stores"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

const (
	DefaultModel = "gemini-2.5-flash"
	// DynamicThinking lets the provider pick the reasoning budget.
	DynamicThinking = -1
)

type Config struct {
	Model          string
	SystemPrompt   string
	ThinkingBudget int
}

// Orchestrator assembles grounded generation requests for one store at a
// time and normalizes the replies. It holds no conversation state.
type Orchestrator struct {
	provider       provider.Provider
	model          string
	systemPrompt   string
	thinkingBudget int
}

func NewOrchestrator(p provider.Provider, cfg Config) *Orchestrator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	return &Orchestrator{
		provider:       p,
		model:          cfg.Model,
		systemPrompt:   cfg.SystemPrompt,
		thinkingBudget: cfg.ThinkingBudget,
	}
}

func (o *Orchestrator) Model() string {
	return o.model
}

// Chat sends history plus message to the provider with retrieval scoped to
// storeID. It always returns a result; a failed call yields a degraded one.
func (o *Orchestrator) Chat(ctx context.Context, storeID, message string, history []Turn, opts Options) *Result {
	start := time.Now()
	storeID = stores.NormalizeID(storeID)
	model := o.resolveModel(opts)

	if strings.TrimSpace(message) == "" {
		return o.degrade(storeID, model, ErrEmptyMessage)
	}

	req := o.buildRequest(storeID, message, history, opts)

	logger.Info("Sending chat request",
		zap.String("store_id", storeID),
		zap.String("model", model),
		zap.Int("history_turns", len(history)),
		zap.Int("thinking_budget", req.ThinkingBudget),
	)
	metrics.HistoryTurns.Observe(float64(len(history)))

	resp, err := o.provider.GenerateContent(ctx, model, req)
	if err != nil {
		return o.degrade(storeID, model, err)
	}

	result := Normalize(resp)
	result.Model = model

	duration := time.Since(start)
	metrics.ChatDuration.WithLabelValues(model).Observe(duration.Seconds())
	metrics.ChatTotal.WithLabelValues("ok").Inc()
	metrics.CitationsPerAnswer.Observe(float64(len(result.Citations)))
	metrics.GroundingChunksPerAnswer.Observe(float64(len(result.Grounding.Chunks)))
	metrics.TokensUsed.WithLabelValues(model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.TokensUsed.WithLabelValues(model, "candidates").Add(float64(result.Usage.CandidateTokens))
	metrics.TokensUsed.WithLabelValues(model, "thoughts").Add(float64(result.Usage.ThoughtTokens))

	logger.Info("Chat response normalized",
		zap.String("store_id", storeID),
		zap.Int("citations", len(result.Citations)),
		zap.Int("chunks", len(result.Grounding.Chunks)),
		zap.Int("supports", len(result.Grounding.Supports)),
		zap.Bool("has_reasoning", result.Reasoning != nil),
		zap.Duration("duration", duration),
	)
	return &result
}

func (o *Orchestrator) buildRequest(storeID, message string, history []Turn, opts Options) *provider.GenerateRequest {
	contents := make([]provider.Content, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, provider.TextContent(string(turn.Role), turn.Text))
	}
	contents = append(contents, provider.TextContent(string(RoleUser), message))

	systemPrompt := o.systemPrompt
	if opts.SystemPrompt != "" {
		systemPrompt = opts.SystemPrompt
	}

	budget := o.thinkingBudget
	if opts.ThinkingBudget != nil {
		budget = *opts.ThinkingBudget
	}

	return &provider.GenerateRequest{
		Contents:          contents,
		SystemInstruction: systemPrompt,
		StoreNames:        []string{storeID},
		ThinkingBudget:    budget,
		IncludeThoughts:   true,
	}
}

func (o *Orchestrator) resolveModel(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return o.model
}

func (o *Orchestrator) degrade(storeID, model string, cause error) *Result {
	metrics.ChatTotal.WithLabelValues("degraded").Inc()
	logger.Error("Chat request failed",
		zap.String("store_id", storeID),
		zap.String("model", model),
		zap.Error(cause),
	)

	return &Result{
		Text:      "Error: " + cause.Error(),
		Citations: []string{},
		Grounding: Grounding{Chunks: []Chunk{}, Supports: []Support{}},
		Model:     model,
		Degraded:  true,
		Err:       fmt.Errorf("%w: %w", ErrChat, cause),
	}
}
