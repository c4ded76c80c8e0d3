package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Dahimi/File-Search-POC/internal/cache/redis"
	"github.com/Dahimi/File-Search-POC/internal/chat"
)

// RedisStore keeps each store's history in a Redis list of JSON turns.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(storeID string) string {
	return s.client.Key("history", storeID)
}

func (s *RedisStore) Append(ctx context.Context, storeID string, turns ...chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, len(turns))
	for i := range turns {
		values[i] = turns[i]
	}
	if err := s.client.PushJSON(ctx, s.key(storeID), values...); err != nil {
		return errBackend("append", storeID, err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, storeID string) ([]chat.Turn, error) {
	raw, err := s.client.ListRaw(ctx, s.key(storeID))
	if err != nil {
		return nil, errBackend("read", storeID, err)
	}

	turns := make([]chat.Turn, 0, len(raw))
	for _, data := range raw {
		var turn chat.Turn
		if err := json.Unmarshal(data, &turn); err != nil {
			return nil, errBackend("decode", storeID, fmt.Errorf("failed to unmarshal turn: %w", err))
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) Clear(ctx context.Context, storeID string) error {
	if err := s.client.Delete(ctx, s.key(storeID)); err != nil {
		return errBackend("clear", storeID, err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	prefix := s.client.Key("history", "")
	keys, err := s.client.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list history keys: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, prefix))
	}
	return ids, nil
}
