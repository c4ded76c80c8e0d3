package chat

import (
	"errors"
	"time"

	"github.com/Dahimi/File-Search-POC/internal/provider"
)

type Role string

const (
	RoleUser      Role = provider.RoleUser
	RoleAssistant Role = provider.RoleAssistant
)

// ErrChat marks a degraded result caused by a failed generation call.
var ErrChat = errors.New("chat request failed")

var ErrEmptyMessage = errors.New("message is required")

// Turn is one entry of a store's conversation history. Assistant turns also
// carry the evidence of the answer they hold.
type Turn struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Citations []string   `json:"citations,omitempty"`
	Grounding *Grounding `json:"grounding,omitempty"`
	Reasoning *string    `json:"reasoning,omitempty"`
	Degraded  bool       `json:"degraded,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type Chunk struct {
	// Index is the chunk's position in the provider's list, gaps included.
	Index int    `json:"index"`
	Title string `json:"title"`
	// Excerpt is nil when the provider sent no text.
	Excerpt *string `json:"text"`
}

type Support struct {
	Text         string `json:"text"`
	ChunkIndices []int  `json:"chunk_indices"`
}

type Grounding struct {
	Chunks   []Chunk   `json:"chunks"`
	Supports []Support `json:"supports"`
}

type Usage struct {
	PromptTokens    int `json:"prompt_tokens"`
	CandidateTokens int `json:"candidate_tokens"`
	ThoughtTokens   int `json:"thought_tokens"`
	TotalTokens     int `json:"total_tokens"`
}

type Result struct {
	Text      string    `json:"text"`
	Citations []string  `json:"citations"`
	Grounding Grounding `json:"grounding"`
	// Reasoning is nil when the provider returned no reasoning fragments.
	Reasoning    *string `json:"reasoning,omitempty"`
	Model        string  `json:"model,omitempty"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Usage        Usage   `json:"usage"`
	// Degraded is set when the generation call failed and Text holds the error.
	Degraded bool  `json:"degraded"`
	Err      error `json:"-"`
}

// AssistantTurn converts the result into the history entry paired with the
// user's message.
func (r *Result) AssistantTurn(at time.Time) Turn {
	grounding := r.Grounding
	return Turn{
		Role:      RoleAssistant,
		Text:      r.Text,
		Citations: r.Citations,
		Grounding: &grounding,
		Reasoning: r.Reasoning,
		Degraded:  r.Degraded,
		CreatedAt: at,
	}
}

// Options override the orchestrator defaults for one call. Zero values keep
// the defaults; ThinkingBudget is a pointer because 0 is meaningful.
type Options struct {
	Model          string
	SystemPrompt   string
	ThinkingBudget *int
}

func IntPtr(v int) *int {
	return &v
}
