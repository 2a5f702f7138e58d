package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"lawchat-go/internal/model"
	"lawchat-go/internal/repository"
)

// ContextWindowBuilder 从对话日志中组装有界的上下文窗口。
type ContextWindowBuilder struct {
	repo repository.ConversationRepository
}

// NewContextWindowBuilder 创建一个新的 ContextWindowBuilder。
func NewContextWindowBuilder(repo repository.ConversationRepository) *ContextWindowBuilder {
	return &ContextWindowBuilder{repo: repo}
}

// Build 返回一个惰性窗口：第一次调用 Recent 时按 bound 查询一次存储，之后的调用只做切片。
// exclude 为当前请求刚写入的消息 ID，不计入上下文。subjectID 为空时窗口恒为空，不访问存储。
func (b *ContextWindowBuilder) Build(subjectID string, bound int, exclude string) *ContextWindow {
	return &ContextWindow{repo: b.repo, subjectID: subjectID, bound: bound, exclude: exclude}
}

// ContextWindow 是某个 subject 最近若干条消息的只读视图，按时间正序排列。
// 单个请求内顺序使用，不支持并发调用。
type ContextWindow struct {
	repo      repository.ConversationRepository
	subjectID string
	bound     int
	exclude   string

	fetched  bool
	messages []model.Message
}

// Recent 返回最近 n 条消息（n 不超过 bound）。存储读取失败时返回错误，下一次调用会重新查询。
func (w *ContextWindow) Recent(ctx context.Context, n int) ([]model.Message, error) {
	if w == nil || w.subjectID == "" || w.bound <= 0 || n <= 0 {
		return []model.Message{}, nil
	}
	if !w.fetched {
		limit := w.bound
		if w.exclude != "" {
			limit++
		}
		msgs, err := w.repo.ListRecent(ctx, w.subjectID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load context window: %w", err)
		}
		filtered := make([]model.Message, 0, len(msgs))
		for _, m := range msgs {
			if w.exclude != "" && m.ID == w.exclude {
				continue
			}
			filtered = append(filtered, m)
		}
		if len(filtered) > w.bound {
			filtered = filtered[len(filtered)-w.bound:]
		}
		w.messages = filtered
		w.fetched = true
	}
	if n > len(w.messages) {
		n = len(w.messages)
	}
	out := make([]model.Message, n)
	copy(out, w.messages[len(w.messages)-n:])
	return out, nil
}

// WindowDigest 计算窗口内容的摘要，作为分类缓存键的一部分。
func WindowDigest(messages []model.Message) string {
	h := sha256.New()
	for _, m := range messages {
		fmt.Fprintf(h, "%d:%s|%d:%s\n", len(m.Role), m.Role, len(m.Content), m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PendingDocument 返回最近一条助手消息携带的待补全文书；最近的助手消息没有待补全信息时返回 nil。
func PendingDocument(messages []model.Message) *model.PendingDocument {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != model.RoleAssistant {
			continue
		}
		if m.Metadata == nil || m.Metadata.Pending == nil {
			return nil
		}
		return m.Metadata.Pending
	}
	return nil
}
