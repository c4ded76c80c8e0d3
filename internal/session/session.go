// Package session keeps per-store conversation history. Histories are
// append-only: turns are never edited, only added or cleared as a whole.
package session

import (
	"context"
	"fmt"

	"github.com/Dahimi/File-Search-POC/internal/chat"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Store interface {
	// Append adds turns to the end of the store's history, in order.
	Append(ctx context.Context, storeID string, turns ...chat.Turn) error
	// History returns the store's turns, oldest first.
	History(ctx context.Context, storeID string) ([]chat.Turn, error)
	Clear(ctx context.Context, storeID string) error
	// Keys lists the stores that currently have history.
	Keys(ctx context.Context) ([]string, error)
}

// Tail returns at most limit trailing turns. A limit of 0 or less keeps all.
func Tail(turns []chat.Turn, limit int) []chat.Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}

// evidence is the part of a turn persisted next to its role and text.
type evidence struct {
	Citations []string        `json:"citations,omitempty"`
	Grounding *chat.Grounding `json:"grounding,omitempty"`
	Reasoning *string         `json:"reasoning,omitempty"`
	Degraded  bool            `json:"degraded,omitempty"`
}

func errBackend(op, storeID string, err error) error {
	return fmt.Errorf("failed to %s history for %s: %w", op, storeID, err)
}
