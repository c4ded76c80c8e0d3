package ingestion

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/metrics"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/stores"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
	"github.com/Dahimi/File-Search-POC/pkg/retry"
)

var (
	ErrEmptyDisplayName = errors.New("display name is required")
	ErrFileTooLarge     = errors.New("file exceeds maximum upload size")
	// ErrOperationFailed means the provider accepted the upload and then reported failure.
	ErrOperationFailed = errors.New("provider reported indexing failure")
	// ErrPollTimeout means the provider did not finish indexing within MaxWait.
	ErrPollTimeout = errors.New("timed out waiting for indexing")
)

const (
	StageValidate = "validate"
	StageStage    = "stage"
	StageSubmit   = "submit"
	StagePoll     = "poll"
	StageFetch    = "fetch"
)

type IngestionError struct {
	Stage       string
	StoreID     string
	DisplayName string
	Err         error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("failed to ingest %q into %s (%s): %v", e.DisplayName, e.StoreID, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

type Config struct {
	TempDir      string
	PollInterval time.Duration
	MaxWait      time.Duration
	MaxFileSize  int64
	FetchTimeout time.Duration
}

type Result struct {
	StoreID     string        `json:"store_id"`
	DisplayName string        `json:"display_name"`
	MimeType    string        `json:"mime_type"`
	Operation   string        `json:"operation"`
	Bytes       int           `json:"bytes"`
	Polls       int           `json:"polls"`
	Duration    time.Duration `json:"duration"`
}

// Ingestor hands documents to the provider and waits for indexing to finish.
type Ingestor struct {
	provider     provider.Provider
	tempDir      string
	pollInterval time.Duration
	maxWait      time.Duration
	maxFileSize  int64
	httpClient   *http.Client

	mu   sync.Mutex
	live map[string]struct{}
}

func NewIngestor(p provider.Provider, cfg Config) *Ingestor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	return &Ingestor{
		provider:     p,
		tempDir:      cfg.TempDir,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		maxFileSize:  cfg.MaxFileSize,
		httpClient:   &http.Client{Timeout: cfg.FetchTimeout},
		live:         make(map[string]struct{}),
	}
}

// Upload stores data under displayName in the given store. It returns once the
// provider reports indexing done. A nil error does not guarantee the document
// ends up active; callers watch the store counts for late failures.
func (i *Ingestor) Upload(ctx context.Context, storeID string, data []byte, displayName string) (*Result, error) {
	return i.upload(ctx, storeID, data, displayName, filepath.Ext(displayName))
}

// UploadFile reads path and uploads it. An empty displayName defaults to the
// file's base name.
func (i *Ingestor) UploadFile(ctx context.Context, storeID, path, displayName string) (*Result, error) {
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, i.fail(StageStage, stores.NormalizeID(storeID), displayName, fmt.Errorf("failed to read file: %w", err))
	}

	ext := filepath.Ext(displayName)
	if ext == "" {
		ext = filepath.Ext(path)
	}
	return i.upload(ctx, storeID, data, displayName, ext)
}

func (i *Ingestor) upload(ctx context.Context, storeID string, data []byte, displayName, ext string) (*Result, error) {
	start := time.Now()
	storeID = stores.NormalizeID(storeID)
	displayName = strings.TrimSpace(displayName)

	switch {
	case displayName == "":
		return nil, i.fail(StageValidate, storeID, displayName, ErrEmptyDisplayName)
	case storeID == "":
		return nil, i.fail(StageValidate, storeID, displayName, errors.New("store id is required"))
	case i.maxFileSize > 0 && int64(len(data)) > i.maxFileSize:
		return nil, i.fail(StageValidate, storeID, displayName, ErrFileTooLarge)
	}

	logger.Info("Uploading document",
		zap.String("store_id", storeID),
		zap.String("display_name", displayName),
		zap.Int("bytes", len(data)),
	)

	path, err := i.writeTemp(data, ext)
	if err != nil {
		return nil, i.fail(StageStage, storeID, displayName, err)
	}
	defer i.removeTemp(path)

	mimeType := detectMimeType(ext, data)
	op, err := i.provider.UploadToStore(ctx, storeID, path, provider.UploadMetadata{
		DisplayName: displayName,
		MimeType:    mimeType,
	})
	if err != nil {
		return nil, i.fail(StageSubmit, storeID, displayName, fmt.Errorf("failed to submit upload: %w", err))
	}

	polls, err := i.wait(ctx, op)
	if err != nil {
		return nil, i.fail(StagePoll, storeID, displayName, err)
	}

	result := &Result{
		StoreID:     storeID,
		DisplayName: displayName,
		MimeType:    mimeType,
		Operation:   op.Name,
		Bytes:       len(data),
		Polls:       polls,
		Duration:    time.Since(start),
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.UploadDuration.Observe(result.Duration.Seconds())
	metrics.UploadPolls.Observe(float64(polls))

	logger.Info("Document indexed",
		zap.String("store_id", storeID),
		zap.String("display_name", displayName),
		zap.Int("polls", polls),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// wait polls the operation at a fixed interval until it is done, fails, or
// MaxWait elapses.
func (i *Ingestor) wait(ctx context.Context, op *provider.Operation) (int, error) {
	if op.Done {
		return 0, operationResult(op)
	}

	polls := 0
	err := retry.Poll(ctx, i.pollInterval, i.maxWait, func() error {
		polls++
		current, err := i.provider.GetOperation(ctx, op.Name)
		if err != nil {
			return fmt.Errorf("failed to get operation status: %w", err)
		}
		if !current.Done {
			logger.Debug("Indexing in progress", zap.String("operation", op.Name), zap.Int("poll", polls))
			return retry.ErrPending
		}
		return operationResult(current)
	})

	if errors.Is(err, retry.ErrTimeout) {
		return polls, fmt.Errorf("%w after %s: %w", ErrPollTimeout, i.maxWait, err)
	}
	return polls, err
}

func operationResult(op *provider.Operation) error {
	if op.Error != nil {
		return fmt.Errorf("%w: %w", ErrOperationFailed, op.Error)
	}
	return nil
}

func (i *Ingestor) writeTemp(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(i.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := filepath.Join(i.tempDir, uuid.New().String()+sanitizeExt(ext))
	i.track(path)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		i.removeTemp(path)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, nil
}

func (i *Ingestor) track(path string) {
	i.mu.Lock()
	i.live[path] = struct{}{}
	i.mu.Unlock()
}

func (i *Ingestor) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove temp file", zap.String("path", path), zap.Error(err))
	}

	i.mu.Lock()
	delete(i.live, path)
	i.mu.Unlock()
}

// Cleanup removes temp files of uploads still in flight. Call it on shutdown.
func (i *Ingestor) Cleanup() int {
	i.mu.Lock()
	paths := make([]string, 0, len(i.live))
	for path := range i.live {
		paths = append(paths, path)
	}
	i.mu.Unlock()

	for _, path := range paths {
		i.removeTemp(path)
	}
	if len(paths) > 0 {
		logger.Info("Removed leftover upload files", zap.Int("count", len(paths)))
	}
	return len(paths)
}

// LiveFiles reports how many temp files currently exist.
func (i *Ingestor) LiveFiles() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.live)
}

func (i *Ingestor) fail(stage, storeID, displayName string, err error) error {
	status := "error"
	if errors.Is(err, ErrPollTimeout) {
		status = "timeout"
	} else if errors.Is(err, ErrOperationFailed) {
		status = "failed"
	}
	metrics.UploadsTotal.WithLabelValues(status).Inc()

	logger.Error("Document ingestion failed",
		zap.String("stage", stage),
		zap.String("store_id", storeID),
		zap.String("display_name", displayName),
		zap.Error(err),
	)
	return &IngestionError{Stage: stage, StoreID: storeID, DisplayName: displayName, Err: err}
}

// sanitizeExt keeps the extension only when it is a plain suffix.
func sanitizeExt(ext string) string {
	if len(ext) < 2 || len(ext) > 16 || ext[0] != '.' {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

func detectMimeType(ext string, data []byte) string {
	detected := ""
	if ext != "" {
		detected = mime.TypeByExtension(strings.ToLower(ext))
	}
	if detected == "" {
		detected = http.DetectContentType(data)
	}

	mediaType, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}
