package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/metrics"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/pkg/circuitbreaker"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

const listPageSize = 20

type Config struct {
	BaseURL    string
	APIVersion string
	APIKey     string
	Timeout    time.Duration
	Breaker    circuitbreaker.Config
}

// Client talks to the Gemini File Search REST API.
type Client struct {
	baseURL    string
	apiVersion string
	apiKey     string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

var _ provider.Provider = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1beta"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = func(err error) bool { return !provider.IsClientError(err) }
	}
	if breakerCfg.Logger == nil {
		breakerCfg.Logger = logger.GetLogger()
	}

	logger.Info("Provider client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("api_version", cfg.APIVersion),
	)

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         circuitbreaker.NewCircuitBreaker("provider", breakerCfg),
	}
}

func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.cb
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type generateContentRequest struct {
	Contents          []provider.Content `json:"contents"`
	SystemInstruction *provider.Content  `json:"systemInstruction,omitempty"`
	Tools             []tool             `json:"tools,omitempty"`
	GenerationConfig  *generationConfig  `json:"generationConfig,omitempty"`
}

type tool struct {
	FileSearch *fileSearch `json:"fileSearch,omitempty"`
}

type fileSearch struct {
	FileSearchStoreNames []string `json:"fileSearchStoreNames"`
}

type generationConfig struct {
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

type generateContentResponse struct {
	Candidates     []candidate            `json:"candidates"`
	UsageMetadata  provider.UsageMetadata `json:"usageMetadata"`
	PromptFeedback *promptFeedback        `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content           *provider.Content           `json:"content,omitempty"`
	GroundingMetadata *provider.GroundingMetadata `json:"groundingMetadata,omitempty"`
	FinishReason      string                      `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

func (c *Client) ListStores(ctx context.Context) ([]provider.FileSearchStore, error) {
	var stores []provider.FileSearchStore
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("pageSize", fmt.Sprintf("%d", listPageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page provider.ListStoresResponse
		err := c.doJSON(ctx, "list_stores", http.MethodGet, c.apiURL("fileSearchStores")+"?"+params.Encode(), nil, &page)
		if err != nil {
			return nil, err
		}

		stores = append(stores, page.FileSearchStores...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	logger.Debug("Stores listed", zap.Int("count", len(stores)))
	return stores, nil
}

func (c *Client) CreateStore(ctx context.Context, displayName string) (*provider.FileSearchStore, error) {
	body := map[string]string{"displayName": displayName}

	var store provider.FileSearchStore
	if err := c.doJSON(ctx, "create_store", http.MethodPost, c.apiURL("fileSearchStores"), body, &store); err != nil {
		return nil, err
	}

	logger.Debug("Store created", zap.String("store", store.Name))
	return &store, nil
}

func (c *Client) GetStore(ctx context.Context, name string) (*provider.FileSearchStore, error) {
	if name == "" {
		return nil, errors.New("store name is required")
	}

	var store provider.FileSearchStore
	if err := c.doJSON(ctx, "get_store", http.MethodGet, c.apiURL(name), nil, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

func (c *Client) DeleteStore(ctx context.Context, name string, force bool) error {
	if name == "" {
		return errors.New("store name is required")
	}

	target := c.apiURL(name)
	if force {
		target += "?force=true"
	}
	return c.doJSON(ctx, "delete_store", http.MethodDelete, target, nil, nil)
}

func (c *Client) UploadToStore(ctx context.Context, storeName, filePath string, meta provider.UploadMetadata) (*provider.Operation, error) {
	if storeName == "" {
		return nil, errors.New("store name is required")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload file: %w", err)
	}
	defer file.Close()

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(mw, metaJSON, mimeType, file))
	}()
	defer pr.Close()

	target := fmt.Sprintf("%s/upload/%s/%s:uploadToFileSearchStore", c.baseURL, c.apiVersion, storeName)

	var op provider.Operation
	err = c.cb.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
		req.Header.Set("X-Goog-Upload-Protocol", "multipart")
		return c.send(req, "upload", &op)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Upload accepted",
		zap.String("store", storeName),
		zap.String("operation", op.Name),
		zap.Bool("done", op.Done),
	)
	return &op, nil
}

func writeUploadBody(mw *multipart.Writer, metaJSON []byte, mimeType string, file io.Reader) error {
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return err
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return err
	}

	filePart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return err
	}
	if _, err := io.Copy(filePart, file); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) GetOperation(ctx context.Context, name string) (*provider.Operation, error) {
	if name == "" {
		return nil, errors.New("operation name is required")
	}

	var op provider.Operation
	if err := c.doJSON(ctx, "get_operation", http.MethodGet, c.apiURL(name), nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *Client) GenerateContent(ctx context.Context, model string, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	if model == "" {
		return nil, errors.New("model is required")
	}

	body := generateContentRequest{
		Contents: toWireContents(req.Contents),
		GenerationConfig: &generationConfig{
			ThinkingConfig: &thinkingConfig{
				ThinkingBudget:  req.ThinkingBudget,
				IncludeThoughts: req.IncludeThoughts,
			},
		},
	}
	if req.SystemInstruction != "" {
		instruction := provider.TextContent("", req.SystemInstruction)
		body.SystemInstruction = &instruction
	}
	if len(req.StoreNames) > 0 {
		body.Tools = []tool{{FileSearch: &fileSearch{FileSearchStoreNames: req.StoreNames}}}
	}

	modelPath := model
	if !strings.HasPrefix(modelPath, "models/") {
		modelPath = "models/" + modelPath
	}

	var resp generateContentResponse
	if err := c.doJSON(ctx, "generate_content", http.MethodPost, c.apiURL(modelPath)+":generateContent", body, &resp); err != nil {
		return nil, err
	}

	logger.Debug("Content generated",
		zap.String("model", model),
		zap.Int("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
		zap.Int("candidate_tokens", resp.UsageMetadata.CandidatesTokenCount),
		zap.Int("thought_tokens", resp.UsageMetadata.ThoughtsTokenCount),
	)

	return flattenResponse(&resp)
}

func toWireContents(contents []provider.Content) []provider.Content {
	out := make([]provider.Content, len(contents))
	for i, content := range contents {
		out[i] = content
		if content.Role == provider.RoleAssistant {
			out[i].Role = provider.RoleModel
		}
	}
	return out
}

func flattenResponse(resp *generateContentResponse) (*provider.GenerateResponse, error) {
	out := &provider.GenerateResponse{Usage: resp.UsageMetadata}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked by provider: %s", resp.PromptFeedback.BlockReason)
		}
		return out, nil
	}

	first := resp.Candidates[0]
	out.FinishReason = first.FinishReason
	out.Grounding = first.GroundingMetadata

	if first.Content != nil {
		out.Fragments = first.Content.Parts

		var text strings.Builder
		for _, part := range first.Content.Parts {
			if !part.Thought {
				text.WriteString(part.Text)
			}
		}
		out.Text = text.String()
	}

	return out, nil
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, strings.TrimLeft(path, "/"))
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return c.cb.Execute(ctx, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.send(req, op, out)
	})
}

func (c *Client) send(req *http.Request, op string, out any) error {
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(op, "transport_error").Inc()
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(op, "transport_error").Inc()
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ProviderRequests.WithLabelValues(op, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return decodeAPIError(resp.StatusCode, respBody)
	}
	metrics.ProviderRequests.WithLabelValues(op, "ok").Inc()

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func decodeAPIError(statusCode int, body []byte) error {
	apiErr := &provider.APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
	}
	return apiErr
}
