// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"docchat-go/internal/model"
	"docchat-go/internal/repository"
)

// ConversationService 定义了对话历史的业务逻辑接口。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, ownerID string) ([]model.ChatMessage, error)
	AddExchange(ctx context.Context, ownerID, question, answer string) error
	ClearConversation(ctx context.Context, ownerID string) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。repo 为 nil 时历史功能关闭，读取返回空列表。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversationHistory 获取用户当前会话的完整消息历史。
func (s *conversationService) GetConversationHistory(ctx context.Context, ownerID string) ([]model.ChatMessage, error) {
	if s.repo == nil {
		return []model.ChatMessage{}, nil
	}
	conversationID, err := s.repo.GetOrCreateConversationID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetConversationHistory(ctx, conversationID)
}

// AddExchange 把一问一答追加到用户的对话历史中。
func (s *conversationService) AddExchange(ctx context.Context, ownerID, question, answer string) error {
	if s.repo == nil {
		return nil
	}
	conversationID, err := s.repo.GetOrCreateConversationID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to get or create conversation ID: %w", err)
	}
	history, err := s.repo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation history: %w", err)
	}
	history = append(history,
		model.NewChatMessage("user", question),
		model.NewChatMessage("assistant", answer),
	)
	return s.repo.UpdateConversationHistory(ctx, conversationID, history)
}

// ClearConversation 删除用户当前的对话。
func (s *conversationService) ClearConversation(ctx context.Context, ownerID string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.DeleteConversation(ctx, ownerID)
}
