package dealroom

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/ingestion"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/session"
	"github.com/Dahimi/File-Search-POC/internal/storage/models"
	"github.com/Dahimi/File-Search-POC/internal/storage/sqlite"
	"github.com/Dahimi/File-Search-POC/internal/stores"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
	"github.com/Dahimi/File-Search-POC/pkg/retry"
)

type Config struct {
	// HistoryLimit caps the prior turns sent with each chat. 0 sends all.
	HistoryLimit int
	// RetryAttempts is the number of tries for a chat that failed in transport.
	// 1 disables retries.
	RetryAttempts int
	RetryDelay    time.Duration
}

// Service is what the API and CLI talk to. It ties store management,
// ingestion and chat to the session history and the audit log.
type Service struct {
	registry     *stores.Registry
	ingestor     *ingestion.Ingestor
	orchestrator *chat.Orchestrator
	sessions     session.Store
	audit        *sqlite.Client
	cfg          Config
	locks        *storeLocks
}

// NewService wires the components. audit may be nil.
func NewService(
	registry *stores.Registry,
	ingestor *ingestion.Ingestor,
	orchestrator *chat.Orchestrator,
	sessions session.Store,
	audit *sqlite.Client,
	cfg Config,
) *Service {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Service{
		registry:     registry,
		ingestor:     ingestor,
		orchestrator: orchestrator,
		sessions:     sessions,
		audit:        audit,
		cfg:          cfg,
		locks:        newStoreLocks(),
	}
}

func (s *Service) Model() string {
	return s.orchestrator.Model()
}

func (s *Service) ListStores(ctx context.Context) ([]stores.Store, error) {
	return s.registry.List(ctx)
}

func (s *Service) StoreInfo(ctx context.Context, storeID string) (*stores.Store, error) {
	return s.registry.GetInfo(ctx, storeID)
}

func (s *Service) CreateStore(ctx context.Context, displayName string) (*stores.Store, error) {
	store, err := s.registry.Create(ctx, displayName)
	if err != nil {
		return nil, err
	}

	s.recordStoreEvent(ctx, store.ID, "create", store.DisplayName)
	return store, nil
}

// DeleteStore removes the store with all its documents and drops the
// conversation history kept for it.
func (s *Service) DeleteStore(ctx context.Context, storeID string) error {
	storeID = stores.NormalizeID(storeID)
	if err := s.registry.Delete(ctx, storeID); err != nil {
		return err
	}

	if err := s.sessions.Clear(ctx, storeID); err != nil {
		logger.Warn("Failed to clear history of deleted store", zap.String("store_id", storeID), zap.Error(err))
	}

	s.recordStoreEvent(ctx, storeID, "delete", "")
	return nil
}

func (s *Service) Upload(ctx context.Context, storeID string, data []byte, displayName string) (*ingestion.Result, error) {
	start := time.Now()
	result, err := s.ingestor.Upload(ctx, storeID, data, displayName)
	s.recordUpload(ctx, stores.NormalizeID(storeID), displayName, len(data), start, result, err)
	return result, err
}

func (s *Service) UploadFile(ctx context.Context, storeID, path, displayName string) (*ingestion.Result, error) {
	start := time.Now()
	result, err := s.ingestor.UploadFile(ctx, storeID, path, displayName)
	s.recordUpload(ctx, stores.NormalizeID(storeID), displayName, 0, start, result, err)
	return result, err
}

func (s *Service) ImportURL(ctx context.Context, storeID, rawURL string) (*ingestion.Result, error) {
	start := time.Now()
	result, err := s.ingestor.ImportURL(ctx, storeID, rawURL)
	s.recordUpload(ctx, stores.NormalizeID(storeID), rawURL, 0, start, result, err)
	return result, err
}

// Chat answers message against the store using its stored history, then
// appends the user turn and the paired assistant turn, degraded or not.
// Calls for the same store run one at a time.
func (s *Service) Chat(ctx context.Context, storeID, message string, opts chat.Options) (*chat.Result, error) {
	storeID = stores.NormalizeID(storeID)
	start := time.Now()

	unlock, err := s.locks.lock(ctx, storeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	history, err := s.sessions.History(ctx, storeID)
	if err != nil {
		return nil, err
	}
	history = session.Tail(history, s.cfg.HistoryLimit)

	asked := time.Now()
	result := s.chatWithRetry(ctx, storeID, message, history, opts)

	if !errors.Is(result.Err, chat.ErrEmptyMessage) {
		user := chat.Turn{Role: chat.RoleUser, Text: message, CreatedAt: asked}
		if err := s.sessions.Append(ctx, storeID, user, result.AssistantTurn(time.Now())); err != nil {
			logger.Error("Failed to append chat turns", zap.String("store_id", storeID), zap.Error(err))
			return result, err
		}
	}

	s.recordChat(ctx, storeID, message, start, result)
	return result, nil
}

func (s *Service) chatWithRetry(ctx context.Context, storeID, message string, history []chat.Turn, opts chat.Options) *chat.Result {
	if s.cfg.RetryAttempts <= 1 {
		return s.orchestrator.Chat(ctx, storeID, message, history, opts)
	}

	result, _ := retry.DoWithResult(ctx, retry.Config{
		MaxAttempts:  s.cfg.RetryAttempts,
		InitialDelay: s.cfg.RetryDelay,
		Logger:       logger.GetLogger(),
	}, func() (*chat.Result, error) {
		r := s.orchestrator.Chat(ctx, storeID, message, history, opts)
		if r.Degraded && retryable(r.Err) {
			return r, r.Err
		}
		return r, nil
	})

	if result == nil {
		return s.orchestrator.Chat(ctx, storeID, message, history, opts)
	}
	return result
}

// retryable reports whether a degraded chat is worth another attempt.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, chat.ErrEmptyMessage):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case provider.IsClientError(err):
		return false
	}
	return true
}

func (s *Service) History(ctx context.Context, storeID string) ([]chat.Turn, error) {
	return s.sessions.History(ctx, stores.NormalizeID(storeID))
}

func (s *Service) ClearHistory(ctx context.Context, storeID string) error {
	storeID = stores.NormalizeID(storeID)

	unlock, err := s.locks.lock(ctx, storeID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.sessions.Clear(ctx, storeID); err != nil {
		return err
	}

	logger.Info("Conversation cleared", zap.String("store_id", storeID))
	return nil
}

// Cleanup removes temp files left by interrupted uploads.
func (s *Service) Cleanup() {
	s.ingestor.Cleanup()
}

type Activity struct {
	Chats   []models.ChatRecord   `json:"chats"`
	Uploads []models.UploadRecord `json:"uploads"`
}

var ErrAuditDisabled = errors.New("audit log is disabled")

// Activity returns the latest audited chats and uploads of a store.
func (s *Service) Activity(ctx context.Context, storeID string, limit int) (*Activity, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	storeID = stores.NormalizeID(storeID)

	chats, err := s.audit.GetChatRecords(ctx, storeID, limit)
	if err != nil {
		return nil, err
	}
	uploads, err := s.audit.GetUploadRecords(ctx, storeID, limit)
	if err != nil {
		return nil, err
	}
	return &Activity{Chats: chats, Uploads: uploads}, nil
}

func (s *Service) recordStoreEvent(ctx context.Context, storeID, action, displayName string) {
	if s.audit == nil {
		return
	}

	err := s.audit.InsertStoreEvent(context.WithoutCancel(ctx), &models.StoreEvent{
		StoreID:     storeID,
		Action:      action,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record store event", zap.Error(err))
	}
}

func (s *Service) recordUpload(ctx context.Context, storeID, displayName string, size int, start time.Time, result *ingestion.Result, uploadErr error) {
	if s.audit == nil {
		return
	}

	record := &models.UploadRecord{
		ID:          uuid.New().String(),
		StoreID:     storeID,
		DisplayName: displayName,
		Bytes:       size,
		Status:      "success",
		LatencyMS:   int(time.Since(start).Milliseconds()),
		CreatedAt:   time.Now(),
	}

	if result != nil {
		record.DisplayName = result.DisplayName
		record.MimeType = result.MimeType
		record.Bytes = result.Bytes
		record.Polls = result.Polls
	}

	if uploadErr != nil {
		record.Status = "error"
		record.ErrorText = uploadErr.Error()

		var ingestErr *ingestion.IngestionError
		if errors.As(uploadErr, &ingestErr) {
			record.Stage = ingestErr.Stage
			if ingestErr.DisplayName != "" {
				record.DisplayName = ingestErr.DisplayName
			}
		}
		switch {
		case errors.Is(uploadErr, ingestion.ErrPollTimeout):
			record.Status = "timeout"
		case errors.Is(uploadErr, ingestion.ErrOperationFailed):
			record.Status = "failed"
		}
	}

	if err := s.audit.InsertUploadRecord(context.WithoutCancel(ctx), record); err != nil {
		logger.Warn("Failed to record upload", zap.Error(err))
	}
}

func (s *Service) recordChat(ctx context.Context, storeID, message string, start time.Time, result *chat.Result) {
	if s.audit == nil {
		return
	}

	record := &models.ChatRecord{
		ID:              uuid.New().String(),
		StoreID:         storeID,
		Model:           result.Model,
		Message:         message,
		Response:        result.Text,
		Citations:       result.Citations,
		ChunkCount:      len(result.Grounding.Chunks),
		SupportCount:    len(result.Grounding.Supports),
		HasReasoning:    result.Reasoning != nil,
		Degraded:        result.Degraded,
		PromptTokens:    result.Usage.PromptTokens,
		CandidateTokens: result.Usage.CandidateTokens,
		ThoughtTokens:   result.Usage.ThoughtTokens,
		LatencyMS:       int(time.Since(start).Milliseconds()),
		CreatedAt:       time.Now(),
	}
	if result.Err != nil {
		record.ErrorText = result.Err.Error()
	}

	if err := s.audit.InsertChatRecord(context.WithoutCancel(ctx), record); err != nil {
		logger.Warn("Failed to record chat", zap.Error(err))
	}
}
