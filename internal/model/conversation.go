// Package model 包含了应用的数据模型定义。
package model

import "time"

// Role 标识消息由谁发出。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Flow 标识产生助手回复内容的生成流程。
type Flow string

const (
	FlowConsultation Flow = "consultation"
	FlowGeneration   Flow = "generation"
	FlowFollowUp     Flow = "follow_up"
	FlowFallback     Flow = "fallback"
)

// 失败类型，写入助手消息的 metadata.failureKind。
const (
	FailureProvider      = "provider_unavailable"
	FailureCircuitOpen   = "circuit_open"
	FailurePartial       = "partial"
	FailureCancelled     = "cancelled"
	FailureInternalRoute = "internal"
)

// Message 代表对话日志中的一条消息。持久化后不可修改。
type Message struct {
	ID        string           `json:"id"`
	SubjectID string           `json:"subjectId"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata 记录一条助手消息是如何产生的。
type MessageMetadata struct {
	RequestID   string           `json:"requestId,omitempty"`
	Intent      *IntentDecision  `json:"intent,omitempty"`
	FlowsUsed   []Flow           `json:"flowsUsed,omitempty"`
	FailureKind string           `json:"failureKind,omitempty"`
	Pending     *PendingDocument `json:"pending,omitempty"`
	DraftObject string           `json:"draftObject,omitempty"`
}

// PendingDocument 记录一个尚未收集齐必填字段的文书请求，供后续 info_gathering 轮次合并。
type PendingDocument struct {
	DocumentType DocumentType      `json:"documentType"`
	Fields       map[string]string `json:"fields"`
	Missing      []string          `json:"missing"`
}

// NewMessage 构造一条尚未持久化的消息，ID 与时间戳由存储层在 Append 时分配。
func NewMessage(subjectID string, role Role, content string, metadata *MessageMetadata) Message {
	return Message{
		SubjectID: subjectID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
	}
}

// MessageRecord 是 Message 在关系型数据库中的 ORM 模型。
// Seq 为自增主键，决定同一 subject 下消息的持久化顺序。
type MessageRecord struct {
	Seq       uint64           `gorm:"primaryKey;autoIncrement;index:idx_subject_seq,priority:2"`
	ID        string           `gorm:"type:varchar(36);uniqueIndex;not null"`
	SubjectID string           `gorm:"type:varchar(128);index:idx_subject_seq,priority:1;not null"`
	Role      string           `gorm:"type:varchar(16);not null"`
	Content   string           `gorm:"type:text;not null"`
	Timestamp time.Time        `gorm:"not null"`
	Metadata  *MessageMetadata `gorm:"type:json;serializer:json"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (MessageRecord) TableName() string {
	return "chat_messages"
}

// ToMessage 将 ORM 记录转换为领域消息。
func (r MessageRecord) ToMessage() Message {
	return Message{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		Role:      Role(r.Role),
		Content:   r.Content,
		Timestamp: r.Timestamp,
		Metadata:  r.Metadata,
	}
}

// ChatMessageDTO 是对话历史接口返回的消息格式。
type ChatMessageDTO struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp LocalTime        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// ToDTO 将消息转换为接口输出格式。
func (m Message) ToDTO() ChatMessageDTO {
	return ChatMessageDTO{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: LocalTime(m.Timestamp),
		Metadata:  m.Metadata,
	}
}
