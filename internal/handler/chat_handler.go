// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"lawchat-go/internal/middleware"
	"lawchat-go/internal/model"
	"lawchat-go/internal/service"
	"lawchat-go/pkg/log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理聊天消息请求（HTTP 与 WebSocket）。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatMessageRequest 是发送聊天消息的请求体。
type ChatMessageRequest struct {
	SubjectID string `json:"subjectId"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatMessageResponse 是聊天消息接口返回的 data 部分。
type ChatMessageResponse struct {
	ResponseText string               `json:"responseText"`
	Intent       model.IntentDecision `json:"intent"`
	Timestamp    time.Time            `json:"timestamp"`
	SessionID    string               `json:"sessionId,omitempty"`
	MessageID    string               `json:"messageId"`
	RequestID    string               `json:"requestId"`
}

// resolveSubject 按优先级确定对话 subject：token 中的用户 > 请求体 subjectId > sessionId。
// 三者都没有时生成新的 sessionId 并返回给调用方。
func resolveSubject(c *gin.Context, subjectID, sessionID string) (subject, session string) {
	if v := c.GetString(middleware.SubjectKey); v != "" {
		return v, sessionID
	}
	if s := strings.TrimSpace(subjectID); s != "" {
		return s, sessionID
	}
	if s := strings.TrimSpace(sessionID); s != "" {
		return "session:" + s, s
	}
	session = uuid.NewString()
	return "session:" + session, session
}

// SendMessage 处理 POST /api/v1/chat/messages。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体", "data": nil})
		return
	}
	subject, session := resolveSubject(c, req.SubjectID, req.SessionID)

	resp, status, msg := h.handle(c.Request.Context(), subject, session, req.Message)
	if resp == nil {
		c.JSON(status, gin.H{"code": status, "message": msg, "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}

func (h *ChatHandler) handle(ctx context.Context, subject, session, message string) (*ChatMessageResponse, int, string) {
	result, err := h.chatService.Handle(ctx, subject, message)
	switch {
	case err == nil:
		return &ChatMessageResponse{
			ResponseText: result.ResponseText,
			Intent:       result.Intent,
			Timestamp:    result.Timestamp,
			SessionID:    session,
			MessageID:    result.MessageID,
			RequestID:    result.RequestID,
		}, http.StatusOK, "success"
	case errors.Is(err, service.ErrEmptyMessage):
		return nil, http.StatusBadRequest, "消息内容不能为空"
	case errors.Is(err, service.ErrPersistence):
		return nil, http.StatusServiceUnavailable, "对话存储暂时不可用，请稍后重试"
	case errors.Is(err, context.Canceled):
		return nil, http.StatusServiceUnavailable, "请求已取消"
	default:
		log.Errorf("处理聊天消息失败: %v", err)
		return nil, http.StatusInternalServerError, "服务内部错误"
	}
}

// Handle 处理一个传入的 WebSocket 连接。每个文本帧是一条消息（纯文本或 {"message": "..."}），
// 每条消息回复一个与 HTTP 接口相同格式的 JSON 帧。
func (h *ChatHandler) Handle(c *gin.Context) {
	subject, session := resolveSubject(c, c.Query("subjectId"), c.Query("sessionId"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infow("WebSocket 连接已建立", "subjectId", subject)

	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		message := string(frame)
		if len(frame) > 0 && frame[0] == '{' {
			var req ChatMessageRequest
			if err := json.Unmarshal(frame, &req); err == nil {
				message = req.Message
			}
		}

		resp, status, msg := h.handle(c.Request.Context(), subject, session, message)
		var out gin.H
		if resp == nil {
			out = gin.H{"code": status, "message": msg, "data": nil}
		} else {
			out = gin.H{"code": http.StatusOK, "message": "success", "data": resp}
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Warnf("写入 WebSocket 响应失败: %v", err)
			return
		}
	}
}
