package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docchat-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	conversationTTL    = 7 * 24 * time.Hour
	maxHistoryMessages = 20
)

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	GetOrCreateConversationID(ctx context.Context, ownerID string) (string, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error
	DeleteConversation(ctx context.Context, ownerID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func ownerConversationKey(ownerID string) string {
	return fmt.Sprintf("owner:%s:current_conversation", ownerID)
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

// GetOrCreateConversationID 获取或创建当前对话 ID。
func (r *redisConversationRepository) GetOrCreateConversationID(ctx context.Context, ownerID string) (string, error) {
	key := ownerConversationKey(ownerID)
	convID, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		convID = uuid.NewString()
		if err := r.redisClient.Set(ctx, key, convID, conversationTTL).Err(); err != nil {
			return "", fmt.Errorf("failed to set conversation id: %w", err)
		}
		return convID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get conversation id: %w", err)
	}
	return convID, nil
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(conversationID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// UpdateConversationHistory 在 Redis 中更新对话历史记录，只保留最近 20 条。
func (r *redisConversationRepository) UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error {
	if len(messages) > maxHistoryMessages {
		messages = messages[len(messages)-maxHistoryMessages:]
	}
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(conversationID), jsonData, conversationTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// DeleteConversation 删除用户当前的对话及其历史。
func (r *redisConversationRepository) DeleteConversation(ctx context.Context, ownerID string) error {
	key := ownerConversationKey(ownerID)
	convID, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get conversation id: %w", err)
	}
	if err := r.redisClient.Del(ctx, key, conversationKey(convID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
