package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/storage/models"
	"github.com/Dahimi/File-Search-POC/internal/storage/sqlite"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

// SQLiteStore persists history as an append-only table keyed by store.
type SQLiteStore struct {
	db *sqlite.Client
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sqlite.Client) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Append(ctx context.Context, storeID string, turns ...chat.Turn) error {
	records := make([]models.TurnRecord, 0, len(turns))
	for _, turn := range turns {
		payload, err := json.Marshal(evidence{
			Citations: turn.Citations,
			Grounding: turn.Grounding,
			Reasoning: turn.Reasoning,
			Degraded:  turn.Degraded,
		})
		if err != nil {
			return errBackend("append", storeID, fmt.Errorf("failed to marshal evidence: %w", err))
		}

		records = append(records, models.TurnRecord{
			StoreID:   storeID,
			Role:      string(turn.Role),
			Text:      turn.Text,
			Payload:   string(payload),
			CreatedAt: turn.CreatedAt,
		})
	}

	if err := s.db.AppendTurns(ctx, records); err != nil {
		return errBackend("append", storeID, err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, storeID string) ([]chat.Turn, error) {
	records, err := s.db.ListTurns(ctx, storeID)
	if err != nil {
		return nil, errBackend("read", storeID, err)
	}

	turns := make([]chat.Turn, 0, len(records))
	for _, record := range records {
		turn := chat.Turn{
			Role:      chat.Role(record.Role),
			Text:      record.Text,
			CreatedAt: record.CreatedAt,
		}

		if record.Payload != "" {
			var ev evidence
			if err := json.Unmarshal([]byte(record.Payload), &ev); err != nil {
				logger.Warn("Invalid turn payload", zap.Int64("turn_id", record.ID), zap.Error(err))
			} else {
				turn.Citations = ev.Citations
				turn.Grounding = ev.Grounding
				turn.Reasoning = ev.Reasoning
				turn.Degraded = ev.Degraded
			}
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, storeID string) error {
	if err := s.db.DeleteTurns(ctx, storeID); err != nil {
		return errBackend("clear", storeID, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	return s.db.TurnStoreIDs(ctx)
}
