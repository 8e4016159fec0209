package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sipeed/picoclaw/pkg/apperr"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/model"
)

// RedisStore is the durable implementation, keyed exactly as the external
// interfaces contract: conv:{id}:state and conv:{id}:history (a Redis list,
// appended rightward).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials redisURL and pings it once so startup can decide
// whether to fall back to InProcessStore.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func stateKey(id string) string   { return "conv:" + id + ":state" }
func historyKey(id string) string { return "conv:" + id + ":history" }

func (s *RedisStore) GetState(ctx context.Context, id string) (*model.ConversationState, error) {
	raw, err := s.client.Get(ctx, stateKey(id)).Result()
	if err == redis.Nil {
		return freshState(id), nil
	}
	if err != nil {
		return nil, apperr.New(apperr.KindMemoryDeserialize, "GetState", err)
	}

	var st model.ConversationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		logger.WarnCF("memory", "corrupt conversation state, returning fresh state", map[string]interface{}{
			"conversation_id": id, "error": err.Error(),
		})
		return freshState(id), nil
	}
	return &st, nil
}

func (s *RedisStore) SaveState(ctx context.Context, state *model.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(state.ConversationID), raw, 0).Err(); err != nil {
		return apperr.New(apperr.KindMemoryDeserialize, "SaveState", err)
	}
	return nil
}

func (s *RedisStore) AppendHistory(ctx context.Context, id string, item model.HistoryItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal history item: %w", err)
	}
	if err := s.client.RPush(ctx, historyKey(id), raw).Err(); err != nil {
		return apperr.New(apperr.KindMemoryDeserialize, "AppendHistory", err)
	}
	return nil
}

func (s *RedisStore) GetHistory(ctx context.Context, id string) ([]model.HistoryItem, error) {
	raws, err := s.client.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, apperr.New(apperr.KindMemoryDeserialize, "GetHistory", err)
	}

	items := make([]model.HistoryItem, 0, len(raws))
	for _, raw := range raws {
		var item model.HistoryItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			logger.WarnCF("memory", "skipping corrupt history item", map[string]interface{}{
				"conversation_id": id, "error": err.Error(),
			})
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *RedisStore) GetSummary(ctx context.Context, id string) (string, error) {
	st, err := s.GetState(ctx, id)
	if err != nil {
		return "", err
	}
	return st.Summary, nil
}

// RotationCounter returns the current key-rotation counter value, used by
// llmgw's KeyRotator when a durable backing is available.
func (s *RedisStore) RotationCounter(ctx context.Context, key string) (int64, error) {
	return s.client.Get(ctx, key).Int64()
}

// IncrRotationCounter atomically advances the counter.
func (s *RedisStore) IncrRotationCounter(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}
