package repository

import (
	"context"
	"fmt"
	"lawchat-go/internal/model"

	"gorm.io/gorm"
)

// messageRepository 是 ConversationRepository 的 GORM 实现，消息存放在 chat_messages 表。
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的基于数据库的 ConversationRepository 实例。
func NewMessageRepository(db *gorm.DB) ConversationRepository {
	return &messageRepository{db: db}
}

// Append 插入一条消息。自增的 Seq 决定同一 subject 下的顺序。
func (r *messageRepository) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	msg = prepareMessage(msg)
	record := model.MessageRecord{
		ID:        msg.ID,
		SubjectID: msg.SubjectID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Metadata:  msg.Metadata,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return model.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

// ListRecent 按 Seq 倒序取最近 limit 条，再翻转为时间正序。
func (r *messageRepository) ListRecent(ctx context.Context, subjectID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	var records []model.MessageRecord
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("seq DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	messages := make([]model.Message, len(records))
	for i, rec := range records {
		messages[len(records)-1-i] = rec.ToMessage()
	}
	return messages, nil
}
