package chat

import (
	"strings"

	"github.com/Dahimi/File-Search-POC/internal/provider"
)

const (
	MaxExcerptLength = 500
	TruncationMarker = "..."
	UnknownTitle     = "Unknown"
)

// Normalize turns a provider response into a Result. It never fails: fields
// the provider left out come back empty.
func Normalize(resp *provider.GenerateResponse) Result {
	result := Result{
		Citations: []string{},
		Grounding: Grounding{Chunks: []Chunk{}, Supports: []Support{}},
	}
	if resp == nil {
		return result
	}

	result.Text, result.Reasoning = splitFragments(resp.Fragments, resp.Text)
	result.FinishReason = resp.FinishReason
	result.Usage = Usage{
		PromptTokens:    resp.Usage.PromptTokenCount,
		CandidateTokens: resp.Usage.CandidatesTokenCount,
		ThoughtTokens:   resp.Usage.ThoughtsTokenCount,
		TotalTokens:     resp.Usage.TotalTokenCount,
	}

	if resp.Grounding != nil {
		result.Grounding.Chunks, result.Citations = collectChunks(resp.Grounding.GroundingChunks)
		result.Grounding.Supports = collectSupports(resp.Grounding.GroundingSupports, result.Grounding.Chunks)
	}
	return result
}

// splitFragments joins answer and reasoning fragments separately, each in
// provider order. Fragments without text are skipped.
func splitFragments(fragments []provider.Part, fallback string) (string, *string) {
	var answer, reasoning []string
	for _, part := range fragments {
		if part.Text == "" {
			continue
		}
		if part.Thought {
			reasoning = append(reasoning, part.Text)
		} else {
			answer = append(answer, part.Text)
		}
	}

	text := fallback
	if len(answer) > 0 {
		text = strings.Join(answer, "\n")
	}

	var trace *string
	if len(reasoning) > 0 {
		joined := strings.Join(reasoning, "\n")
		trace = &joined
	}
	return text, trace
}

// collectChunks records every chunk with retrieved context and the distinct
// titles in order of first appearance.
func collectChunks(raw []provider.GroundingChunk) ([]Chunk, []string) {
	chunks := make([]Chunk, 0, len(raw))
	citations := []string{}
	seen := make(map[string]struct{})

	for i, chunk := range raw {
		rc := chunk.RetrievedContext
		if rc == nil {
			continue
		}

		title := UnknownTitle
		if rc.Title != nil && *rc.Title != "" {
			title = *rc.Title
			if _, ok := seen[title]; !ok {
				seen[title] = struct{}{}
				citations = append(citations, title)
			}
		}

		var excerpt *string
		if rc.Text != nil {
			truncated := Truncate(*rc.Text, MaxExcerptLength)
			excerpt = &truncated
		}

		chunks = append(chunks, Chunk{Index: i, Title: title, Excerpt: excerpt})
	}
	return chunks, citations
}

// collectSupports keeps spans with text. Chunk indices keep their provider
// values; indices with no matching chunk are dropped.
func collectSupports(raw []provider.GroundingSupport, chunks []Chunk) []Support {
	known := make(map[int]struct{}, len(chunks))
	for _, chunk := range chunks {
		known[chunk.Index] = struct{}{}
	}

	supports := make([]Support, 0, len(raw))
	for _, support := range raw {
		if support.Segment == nil || support.Segment.Text == "" {
			continue
		}

		indices := make([]int, 0, len(support.GroundingChunkIndices))
		for _, idx := range support.GroundingChunkIndices {
			if _, ok := known[idx]; ok {
				indices = append(indices, idx)
			}
		}
		supports = append(supports, Support{Text: support.Segment.Text, ChunkIndices: indices})
	}
	return supports
}

// Truncate cuts s to limit characters and appends the marker when it was longer.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + TruncationMarker
}
