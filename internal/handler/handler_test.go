package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"lawchat-go/internal/middleware"
	"lawchat-go/internal/model"
	"lawchat-go/internal/service"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatService struct {
	mu       sync.Mutex
	subjects []string
	messages []string
	err      error
}

func (f *fakeChatService) Handle(_ context.Context, subjectID, message string) (*service.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subjectID)
	f.messages = append(f.messages, message)
	if f.err != nil {
		return nil, f.err
	}
	return &service.ChatResult{
		ResponseText: "echo: " + message,
		Intent:       model.DefaultIntent(),
		Timestamp:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		MessageID:    "m-1",
		RequestID:    "r-1",
	}, nil
}

type fakeConversationService struct {
	subject string
	limit   int
	history []model.Message
}

func (f *fakeConversationService) GetConversationHistory(_ context.Context, subjectID string, limit int) ([]model.Message, error) {
	f.subject, f.limit = subjectID, limit
	return f.history, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(chat service.ChatService, conv service.ConversationService, subject string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if subject != "" {
		r.Use(func(c *gin.Context) { c.Set(middleware.SubjectKey, subject) })
	}
	r.POST("/api/v1/chat/messages", NewChatHandler(chat).SendMessage)
	r.GET("/api/v1/chat/history", NewConversationHandler(conv).GetConversations)
	r.GET("/chat/ws", NewChatHandler(chat).Handle)
	return r
}

func post(t *testing.T, r http.Handler, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestSendMessage_SubjectResolution(t *testing.T) {
	tests := []struct {
		name        string
		authSubject string
		body        string
		wantSubject string
	}{
		{"token subject wins", "user:7", `{"subjectId":"other","message":"hi"}`, "user:7"},
		{"explicit subject", "", `{"subjectId":"client-42","message":"hi"}`, "client-42"},
		{"session id", "", `{"sessionId":"abc","message":"hi"}`, "session:abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChatService{}
			w, env := post(t, newRouter(chat, &fakeConversationService{}, tt.authSubject), tt.body)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, http.StatusOK, env.Code)
			require.Len(t, chat.subjects, 1)
			assert.Equal(t, tt.wantSubject, chat.subjects[0])
		})
	}
}

func TestSendMessage_GeneratesSession(t *testing.T) {
	chat := &fakeChatService{}
	w, env := post(t, newRouter(chat, &fakeConversationService{}, ""), `{"message":"what is estafa?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var data ChatMessageResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.SessionID)
	assert.Equal(t, "session:"+data.SessionID, chat.subjects[0])
	assert.Equal(t, "echo: what is estafa?", data.ResponseText)
	assert.Equal(t, model.IntentConsultation, data.Intent.Kind())
	assert.Equal(t, "m-1", data.MessageID)
	assert.Equal(t, "r-1", data.RequestID)
}

func TestSendMessage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty message", service.ErrEmptyMessage, http.StatusBadRequest},
		{"store down", fmt.Errorf("append user message: %w", service.ErrPersistence), http.StatusServiceUnavailable},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChatService{err: tt.err}
			w, env := post(t, newRouter(chat, &fakeConversationService{}, ""), `{"sessionId":"s","message":"x"}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status, env.Code)
			assert.Equal(t, "null", string(env.Data))
		})
	}
}

func TestSendMessage_InvalidBody(t *testing.T) {
	chat := &fakeChatService{}
	w, _ := post(t, newRouter(chat, &fakeConversationService{}, ""), `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, chat.subjects)
}

func TestGetConversations(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	conv := &fakeConversationService{history: []model.Message{
		{ID: "a", SubjectID: "session:abc", Role: model.RoleUser, Content: "hi", Timestamp: ts},
		{ID: "b", SubjectID: "session:abc", Role: model.RoleAssistant, Content: "hello", Timestamp: ts.Add(time.Second)},
	}}
	r := newRouter(&fakeChatService{}, conv, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?sessionId=abc&limit=20", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var items []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0]["id"])
	assert.Equal(t, "assistant", items[1]["role"])
	assert.Equal(t, "session:abc", conv.subject)
	assert.Equal(t, 20, conv.limit)
}

func TestGetConversations_RequiresSubject(t *testing.T) {
	r := newRouter(&fakeChatService{}, &fakeConversationService{}, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSocket_TextAndJSONFrames(t *testing.T) {
	chat := &fakeChatService{}
	srv := httptest.NewServer(newRouter(chat, &fakeConversationService{}, ""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?sessionId=ws1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, frame := range []string{"plain question", `{"message":"json question"}`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		var env envelope
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, http.StatusOK, env.Code)
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Equal(t, []string{"plain question", "json question"}, chat.messages)
	assert.Equal(t, []string{"session:ws1", "session:ws1"}, chat.subjects)
}
