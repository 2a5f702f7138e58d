package service

import (
	"context"
	"lawchat-go/internal/model"
	"lawchat-go/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ConversationService 定义了对话历史查询的接口。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, subjectID string, limit int) ([]model.Message, error)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversationHistory 按时间正序返回 subject 最近的消息。
func (s *conversationService) GetConversationHistory(ctx context.Context, subjectID string, limit int) ([]model.Message, error) {
	if subjectID == "" {
		return []model.Message{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListRecent(ctx, subjectID, limit)
}
