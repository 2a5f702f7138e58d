// Package events defines the payloads published to Kafka after a chat message is handled.
package events

import (
	"context"
	"time"
)

// ChatEvent 描述一次已处理的聊天请求。只包含路由与结果信息，不包含消息正文。
type ChatEvent struct {
	RequestID  string    `json:"request_id"`
	SubjectID  string    `json:"subject_id"`
	MessageID  string    `json:"message_id"`
	IntentKind string    `json:"intent_kind"`
	Confidence float64   `json:"confidence"`
	FlowsUsed  []string  `json:"flows_used"`
	Failure    string    `json:"failure,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher 发布聊天事件。实现必须是非阻塞或有界阻塞的，发布失败不影响请求结果。
type Publisher interface {
	PublishChatEvent(ctx context.Context, event ChatEvent) error
}

// NopPublisher 在未配置消息队列时使用。
type NopPublisher struct{}

func (NopPublisher) PublishChatEvent(context.Context, ChatEvent) error { return nil }
