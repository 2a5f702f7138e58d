package handler

import (
	"lawchat-go/internal/middleware"
	"lawchat-go/internal/model"
	"lawchat-go/internal/service"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话历史相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversations 处理 GET /api/v1/chat/history 请求。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if c.GetString(middleware.SubjectKey) == "" && c.Query("subjectId") == "" && sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少 subjectId 或 sessionId", "data": nil})
		return
	}
	subject, _ := resolveSubject(c, c.Query("subjectId"), sessionID)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	history, err := h.service.GetConversationHistory(c.Request.Context(), subject, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversation history",
			"data":    nil,
		})
		return
	}

	dtos := make([]model.ChatMessageDTO, 0, len(history))
	for _, m := range history {
		dtos = append(dtos, m.ToDTO())
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    dtos,
	})
}
