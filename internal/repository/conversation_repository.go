// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"lawchat-go/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ConversationRepository 定义了按 subject 划分的有序消息日志的操作接口。
// 同一 subject 的消息按持久化完成的先后排序，ListRecent 返回按时间正序排列的最近 limit 条。
type ConversationRepository interface {
	Append(ctx context.Context, msg model.Message) (model.Message, error)
	ListRecent(ctx context.Context, subjectID string, limit int) ([]model.Message, error)
}

// prepareMessage 分配 ID；调用方未指定时间戳时使用当前时间。
func prepareMessage(msg model.Message) model.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

type redisConversationRepository struct {
	redisClient *redis.Client
	maxHistory  int
	ttl         time.Duration
}

// NewRedisConversationRepository 创建一个基于 Redis 列表的 ConversationRepository。
// maxHistory 与 ttl 是可选的保留策略：maxHistory > 0 时每个 subject 只保留最近 maxHistory 条，
// ttl > 0 时 ttl 内无新消息则整段历史过期。两者为 0 时消息永不删除。
func NewRedisConversationRepository(redisClient *redis.Client, maxHistory int, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, maxHistory: maxHistory, ttl: ttl}
}

func conversationKey(subjectID string) string {
	return fmt.Sprintf("lawchat:conversation:%s", subjectID)
}

// Append 将消息追加到 subject 的列表尾部，并按保留策略裁剪。
func (r *redisConversationRepository) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	msg = prepareMessage(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	key := conversationKey(msg.SubjectID)
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if r.maxHistory > 0 {
			pipe.LTrim(ctx, key, int64(-r.maxHistory), -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to append conversation message: %w", err)
	}
	return msg, nil
}

// ListRecent 从 Redis 获取最近 limit 条消息。
func (r *redisConversationRepository) ListRecent(ctx context.Context, subjectID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	items, err := r.redisClient.LRange(ctx, conversationKey(subjectID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.Message, 0, len(items))
	for _, item := range items {
		var msg model.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
