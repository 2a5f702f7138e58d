// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"lawchat-go/internal/model"
	"lawchat-go/internal/repository"
	"lawchat-go/pkg/events"
	"lawchat-go/pkg/llm"
	"lawchat-go/pkg/log"
	"lawchat-go/pkg/metrics"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// FallbackNotice 是生成流程不可用时返回并持久化的助手回复。
const FallbackNotice = "The legal assistant is temporarily unavailable. Please retry in a moment."

var (
	// ErrPersistence 表示对话日志无法写入，本次请求失败。
	ErrPersistence = errors.New("conversation store unavailable")
	// ErrEmptyMessage 表示消息为空。
	ErrEmptyMessage = errors.New("message must not be empty")
)

// ChatResult 是一次对话处理的结果。
type ChatResult struct {
	ResponseText string               `json:"responseText"`
	Intent       model.IntentDecision `json:"intent"`
	Timestamp    time.Time            `json:"timestamp"`
	MessageID    string               `json:"messageId"`
	RequestID    string               `json:"requestId"`
}

// ChatService 编排一条用户消息的完整处理流程。
type ChatService interface {
	Handle(ctx context.Context, subjectID, message string) (*ChatResult, error)
}

// ChatConfig 配置上下文窗口大小与持久化超时。
type ChatConfig struct {
	ClassifierWindow int
	GenerationWindow int
	PersistTimeout   time.Duration
}

type chatService struct {
	repo       repository.ConversationRepository
	windows    *ContextWindowBuilder
	classifier IntentClassifier
	router     ResponseRouter
	publisher  events.Publisher
	clock      *subjectClock
	cfg        ChatConfig
}

// NewChatService 创建一个新的 ChatService 实例。publisher 可以为 nil。
func NewChatService(repo repository.ConversationRepository, classifier IntentClassifier, router ResponseRouter, publisher events.Publisher, cfg ChatConfig) ChatService {
	if cfg.ClassifierWindow <= 0 {
		cfg.ClassifierWindow = 5
	}
	if cfg.GenerationWindow <= 0 {
		cfg.GenerationWindow = 10
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &chatService{
		repo:       repo,
		windows:    NewContextWindowBuilder(repo),
		classifier: classifier,
		router:     router,
		publisher:  publisher,
		clock:      newSubjectClock(),
		cfg:        cfg,
	}
}

// Handle 依次执行：持久化用户消息、构建上下文窗口、意图分类、路由生成、持久化助手消息。
// 用户消息写入后，即使生成失败也会写入一条带失败类型的兜底回复，保证对话日志完整。
// 同一 subject 的并发请求不做串行化，顺序以持久化完成的先后为准。
func (s *chatService) Handle(ctx context.Context, subjectID, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()
	requestID := uuid.NewString()
	ctx = ContextWithRequestID(ctx, requestID)

	// 匿名请求只在本次请求内有上下文
	storeSubject := subjectID
	if storeSubject == "" {
		storeSubject = "anonymous:" + requestID
	}
	logger := log.With("requestId", requestID, "subjectId", storeSubject)

	userMsg := model.NewMessage(storeSubject, model.RoleUser, message, &model.MessageMetadata{RequestID: requestID})
	userMsg.Timestamp = s.clock.Next(storeSubject)
	userMsg, err := s.repo.Append(ctx, userMsg)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("persistence_error").Inc()
		logger.Errorw("failed to persist user message", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	window := s.windows.Build(subjectID, max(s.cfg.ClassifierWindow, s.cfg.GenerationWindow), userMsg.ID)
	classWindow, err := window.Recent(ctx, s.cfg.ClassifierWindow)
	if err != nil {
		logger.Warnw("context window unavailable, classifying without history", "error", err)
		classWindow = nil
	}

	decision := s.classifier.Classify(ctx, message, classWindow)

	meta := &model.MessageMetadata{RequestID: requestID, Intent: &decision}
	text := FallbackNotice
	outcome := "ok"
	resp, routeErr := s.router.Route(ctx, RouteInput{
		RequestID: requestID,
		SubjectID: storeSubject,
		Message:   message,
		Decision:  decision,
		Window:    window,
	})
	if routeErr != nil {
		meta.FailureKind = failureKind(routeErr)
		meta.FlowsUsed = []model.Flow{model.FlowFallback}
		outcome = "fallback"
		logger.Warnw("routing failed, replying with fallback notice",
			"kind", decision.Kind(), "failureKind", meta.FailureKind, "error", routeErr)
	} else {
		text = resp.Text
		meta.FlowsUsed = resp.FlowsUsed
		meta.FailureKind = resp.FailureKind
		meta.Pending = resp.Pending
		meta.DraftObject = resp.DraftObject
		if resp.FailureKind == model.FailurePartial {
			outcome = "partial"
		}
	}

	// 请求取消后仍写入助手消息，避免日志中只有用户消息
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	assistantMsg := model.NewMessage(storeSubject, model.RoleAssistant, text, meta)
	assistantMsg.Timestamp = s.clock.Next(storeSubject)
	assistantMsg, err = s.repo.Append(persistCtx, assistantMsg)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("persistence_error").Inc()
		logger.Errorw("failed to persist assistant message", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.publish(persistCtx, events.ChatEvent{
		RequestID:  requestID,
		SubjectID:  storeSubject,
		MessageID:  assistantMsg.ID,
		IntentKind: string(decision.Kind()),
		Confidence: decision.Confidence(),
		FlowsUsed:  flowNames(meta.FlowsUsed),
		Failure:    meta.FailureKind,
		LatencyMs:  time.Since(start).Milliseconds(),
		OccurredAt: assistantMsg.Timestamp,
	})

	if routeErr != nil && errors.Is(routeErr, context.Canceled) && ctx.Err() != nil {
		metrics.ChatRequests.WithLabelValues("cancelled").Inc()
		return nil, ctx.Err()
	}
	metrics.ChatRequests.WithLabelValues(outcome).Inc()
	logger.Infow("chat message handled",
		"kind", decision.Kind(),
		"confidence", decision.Confidence(),
		"flows", meta.FlowsUsed,
		"outcome", outcome,
		"latencyMs", time.Since(start).Milliseconds(),
	)

	return &ChatResult{
		ResponseText: text,
		Intent:       decision,
		Timestamp:    assistantMsg.Timestamp,
		MessageID:    assistantMsg.ID,
		RequestID:    requestID,
	}, nil
}

func (s *chatService) publish(ctx context.Context, event events.ChatEvent) {
	if err := s.publisher.PublishChatEvent(ctx, event); err != nil {
		log.Warnw("failed to publish chat event", "requestId", event.RequestID, "error", err)
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return model.FailureCancelled
	case errors.Is(err, llm.ErrCircuitOpen):
		return model.FailureCircuitOpen
	case errors.Is(err, llm.ErrRetriesExhausted), errors.Is(err, llm.ErrProviderTimeout), llm.IsTransient(err):
		return model.FailureProvider
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return model.FailureProvider
	}
	return model.FailureInternalRoute
}

func flowNames(flows []model.Flow) []string {
	names := make([]string, 0, len(flows))
	for _, f := range flows {
		names = append(names, string(f))
	}
	return names
}

// subjectClock 为每个 subject 发放严格递增的时间戳，无锁实现。
type subjectClock struct {
	last sync.Map // subjectID -> *atomic.Int64 (UnixNano)
	now  func() time.Time
}

func newSubjectClock() *subjectClock {
	return &subjectClock{now: time.Now}
}

// Next 返回不早于当前时间、且严格晚于该 subject 上一次发放值的时间戳。
func (c *subjectClock) Next(subjectID string) time.Time {
	v, _ := c.last.LoadOrStore(subjectID, new(atomic.Int64))
	last := v.(*atomic.Int64)
	for {
		prev := last.Load()
		next := c.now().UnixNano()
		if next <= prev {
			next = prev + int64(time.Microsecond)
		}
		if last.CompareAndSwap(prev, next) {
			return time.Unix(0, next)
		}
	}
}
