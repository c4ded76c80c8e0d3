package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/storage/models"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		payload TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_store ON conversation_turns(store_id, id);

	CREATE TABLE IF NOT EXISTS chat_records (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		model TEXT NOT NULL,
		message TEXT NOT NULL,
		response TEXT,
		citations TEXT,
		chunk_count INTEGER DEFAULT 0,
		support_count INTEGER DEFAULT 0,
		has_reasoning INTEGER DEFAULT 0,
		degraded INTEGER DEFAULT 0,
		error_text TEXT,
		prompt_tokens INTEGER DEFAULT 0,
		candidate_tokens INTEGER DEFAULT 0,
		thought_tokens INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_store ON chat_records(store_id);
	CREATE INDEX IF NOT EXISTS idx_chat_created ON chat_records(created_at);

	CREATE TABLE IF NOT EXISTS upload_records (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		mime_type TEXT,
		bytes INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		stage TEXT,
		error_text TEXT,
		polls INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_upload_store ON upload_records(store_id);

	CREATE TABLE IF NOT EXISTS store_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		store_id TEXT NOT NULL,
		action TEXT NOT NULL,
		display_name TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_store_events_store ON store_events(store_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// AppendTurns inserts the turns in order inside one transaction.
func (c *Client) AppendTurns(ctx context.Context, turns []models.TurnRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO conversation_turns (store_id, role, text, payload, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare turn insert: %w", err)
	}
	defer stmt.Close()

	for _, turn := range turns {
		_, err := stmt.ExecContext(ctx, turn.StoreID, turn.Role, turn.Text, turn.Payload, turn.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

func (c *Client) ListTurns(ctx context.Context, storeID string) ([]models.TurnRecord, error) {
	query := `SELECT id, store_id, role, text, COALESCE(payload, ''), created_at FROM conversation_turns WHERE store_id = ? ORDER BY id ASC`

	rows, err := c.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.TurnRecord
	for rows.Next() {
		var t models.TurnRecord
		var createdAt int64

		err := rows.Scan(&t.ID, &t.StoreID, &t.Role, &t.Text, &t.Payload, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.CreatedAt = time.Unix(0, createdAt)
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

func (c *Client) DeleteTurns(ctx context.Context, storeID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE store_id = ?`, storeID)
	if err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}

	logger.Debug("Turns deleted", zap.String("store_id", storeID))
	return nil
}

func (c *Client) TurnStoreIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT store_id FROM conversation_turns ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list store ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (c *Client) InsertChatRecord(ctx context.Context, record *models.ChatRecord) error {
	query := `
		INSERT INTO chat_records (id, store_id, model, message, response, citations, chunk_count, support_count,
			has_reasoning, degraded, error_text, prompt_tokens, candidate_tokens, thought_tokens, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	citationsJSON, err := json.Marshal(record.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		query,
		record.ID,
		record.StoreID,
		record.Model,
		record.Message,
		record.Response,
		string(citationsJSON),
		record.ChunkCount,
		record.SupportCount,
		boolToInt(record.HasReasoning),
		boolToInt(record.Degraded),
		record.ErrorText,
		record.PromptTokens,
		record.CandidateTokens,
		record.ThoughtTokens,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat record: %w", err)
	}

	logger.Debug("Chat recorded",
		zap.String("chat_id", record.ID),
		zap.String("store_id", record.StoreID),
		zap.Bool("degraded", record.Degraded),
	)
	return nil
}

func (c *Client) GetChatRecords(ctx context.Context, storeID string, limit int) ([]models.ChatRecord, error) {
	query := `
		SELECT id, store_id, model, message, COALESCE(response, ''), COALESCE(citations, '[]'), chunk_count,
			support_count, has_reasoning, degraded, COALESCE(error_text, ''), latency_ms, created_at
		FROM chat_records
		WHERE store_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat records: %w", err)
	}
	defer rows.Close()

	var records []models.ChatRecord
	for rows.Next() {
		var r models.ChatRecord
		var citationsJSON string
		var hasReasoning, degraded int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.StoreID, &r.Model, &r.Message, &r.Response, &citationsJSON, &r.ChunkCount,
			&r.SupportCount, &hasReasoning, &degraded, &r.ErrorText, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(citationsJSON), &r.Citations); err != nil {
			logger.Warn("Invalid citations column", zap.String("chat_id", r.ID), zap.Error(err))
		}
		r.HasReasoning = hasReasoning == 1
		r.Degraded = degraded == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) InsertUploadRecord(ctx context.Context, record *models.UploadRecord) error {
	query := `
		INSERT INTO upload_records (id, store_id, display_name, mime_type, bytes, status, stage, error_text, polls, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx,
		query,
		record.ID,
		record.StoreID,
		record.DisplayName,
		record.MimeType,
		record.Bytes,
		record.Status,
		record.Stage,
		record.ErrorText,
		record.Polls,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload record: %w", err)
	}

	logger.Debug("Upload recorded",
		zap.String("upload_id", record.ID),
		zap.String("store_id", record.StoreID),
		zap.String("status", record.Status),
	)
	return nil
}

func (c *Client) GetUploadRecords(ctx context.Context, storeID string, limit int) ([]models.UploadRecord, error) {
	query := `
		SELECT id, store_id, display_name, COALESCE(mime_type, ''), bytes, status, COALESCE(stage, ''),
			COALESCE(error_text, ''), polls, latency_ms, created_at
		FROM upload_records
		WHERE store_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get upload records: %w", err)
	}
	defer rows.Close()

	var records []models.UploadRecord
	for rows.Next() {
		var r models.UploadRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.StoreID, &r.DisplayName, &r.MimeType, &r.Bytes, &r.Status, &r.Stage,
			&r.ErrorText, &r.Polls, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) InsertStoreEvent(ctx context.Context, event *models.StoreEvent) error {
	query := `INSERT INTO store_events (store_id, action, display_name, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, event.StoreID, event.Action, event.DisplayName, event.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert store event: %w", err)
	}

	logger.Info("Store event recorded",
		zap.String("store_id", event.StoreID),
		zap.String("action", event.Action),
	)
	return nil
}

func (c *Client) GetStoreEvents(ctx context.Context, storeID string) ([]models.StoreEvent, error) {
	query := `SELECT id, store_id, action, COALESCE(display_name, ''), created_at FROM store_events WHERE store_id = ? ORDER BY id ASC`

	rows, err := c.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get store events: %w", err)
	}
	defer rows.Close()

	var events []models.StoreEvent
	for rows.Next() {
		var e models.StoreEvent
		var createdAt int64

		if err := rows.Scan(&e.ID, &e.StoreID, &e.Action, &e.DisplayName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, e)
	}

	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
