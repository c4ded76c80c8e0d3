// Package provider holds the wire schema of the hosted document-and-retrieval
// service. Responses are decoded into these types once, at the boundary;
// optional fields are pointers or nil slices.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	RoleUser      = "user"
	RoleModel     = "model"
	RoleAssistant = "assistant"
)

// Provider is the set of remote primitives the deal room core is built on.
type Provider interface {
	ListStores(ctx context.Context) ([]FileSearchStore, error)
	CreateStore(ctx context.Context, displayName string) (*FileSearchStore, error)
	GetStore(ctx context.Context, name string) (*FileSearchStore, error)
	DeleteStore(ctx context.Context, name string, force bool) error
	UploadToStore(ctx context.Context, storeName, filePath string, meta UploadMetadata) (*Operation, error)
	GetOperation(ctx context.Context, name string) (*Operation, error)
	GenerateContent(ctx context.Context, model string, req *GenerateRequest) (*GenerateResponse, error)
}

// Count is an int64 that the API may send as a JSON string, a number, or not at all.
type Count int64

func (c *Count) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid count %s: %w", data, err)
	}
	*c = Count(n)
	return nil
}

func (c Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(c), 10))
}

type FileSearchStore struct {
	Name                  string `json:"name"`
	DisplayName           string `json:"displayName,omitempty"`
	CreateTime            string `json:"createTime,omitempty"`
	UpdateTime            string `json:"updateTime,omitempty"`
	ActiveDocumentsCount  Count  `json:"activeDocumentsCount,omitempty"`
	PendingDocumentsCount Count  `json:"pendingDocumentsCount,omitempty"`
	FailedDocumentsCount  Count  `json:"failedDocumentsCount,omitempty"`
	SizeBytes             Count  `json:"sizeBytes,omitempty"`
}

type ListStoresResponse struct {
	FileSearchStores []FileSearchStore `json:"fileSearchStores"`
	NextPageToken    string            `json:"nextPageToken"`
}

type UploadMetadata struct {
	DisplayName string `json:"displayName,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation error %d: %s", e.Code, e.Message)
}

type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *OperationError `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type Part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

func TextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// GenerateRequest is the provider-neutral input of a grounded generation call.
type GenerateRequest struct {
	Contents          []Content
	SystemInstruction string
	StoreNames        []string
	ThinkingBudget    int
	IncludeThoughts   bool
}

type RetrievedContext struct {
	URI   string  `json:"uri,omitempty"`
	Title *string `json:"title,omitempty"`
	Text  *string `json:"text,omitempty"`
}

type GroundingChunk struct {
	RetrievedContext *RetrievedContext `json:"retrievedContext,omitempty"`
}

type Segment struct {
	PartIndex  int    `json:"partIndex,omitempty"`
	StartIndex int    `json:"startIndex,omitempty"`
	EndIndex   int    `json:"endIndex,omitempty"`
	Text       string `json:"text,omitempty"`
}

type GroundingSupport struct {
	Segment               *Segment `json:"segment,omitempty"`
	GroundingChunkIndices []int    `json:"groundingChunkIndices,omitempty"`
}

type GroundingMetadata struct {
	GroundingChunks   []GroundingChunk   `json:"groundingChunks,omitempty"`
	GroundingSupports []GroundingSupport `json:"groundingSupports,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateResponse is the first candidate of a generation call, flattened.
type GenerateResponse struct {
	// Fragments are the candidate's content parts in provider order.
	Fragments []Part
	// Text is the aggregated answer text across all non-thought parts.
	Text      string
	Grounding *GroundingMetadata
	Usage     UsageMetadata
	// FinishReason is empty when the provider did not report one.
	FinishReason string
}
