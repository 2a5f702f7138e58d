package service

import (
	"context"
	"errors"
	"lawchat-go/internal/model"
	"lawchat-go/pkg/llm"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errStoreDown = errors.New("store down")

// memoryRepo 是 ConversationRepository 的内存实现。
type memoryRepo struct {
	mu         sync.Mutex
	bySubject  map[string][]model.Message
	listCalls  int
	failAppend func(msg model.Message) bool
	failList   bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{bySubject: make(map[string][]model.Message)}
}

func (r *memoryRepo) Append(_ context.Context, msg model.Message) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend != nil && r.failAppend(msg) {
		return model.Message{}, errStoreDown
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	r.bySubject[msg.SubjectID] = append(r.bySubject[msg.SubjectID], msg)
	return msg, nil
}

func (r *memoryRepo) ListRecent(_ context.Context, subjectID string, limit int) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.failList {
		return nil, errStoreDown
	}
	msgs := r.bySubject[subjectID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *memoryRepo) messages(subjectID string) []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Message, len(r.bySubject[subjectID]))
	copy(out, r.bySubject[subjectID])
	return out
}

func (r *memoryRepo) ListCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

type recordedCall struct {
	op  llm.Operation
	req llm.GenerateRequest
}

// fakeCaller 按操作类型返回预设结果并记录每次调用。
type fakeCaller struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(op llm.Operation, req llm.GenerateRequest) (string, error)
}

func (f *fakeCaller) Call(ctx context.Context, op llm.Operation, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{op: op, req: req})
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := f.respond(op, req)
	if err != nil {
		return nil, err
	}
	return &llm.GenerateResult{Text: text, TokensUsed: 10}, nil
}

func (f *fakeCaller) count(op llm.Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeCaller) last(op llm.Operation) (llm.GenerateRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].op == op {
			return f.calls[i].req, true
		}
	}
	return llm.GenerateRequest{}, false
}

// scriptedClassifications 根据当前消息内容返回分类 JSON。
func scriptedClassifications(rules map[string]string) func(op llm.Operation, req llm.GenerateRequest) (string, error) {
	return func(op llm.Operation, req llm.GenerateRequest) (string, error) {
		switch op {
		case OpClassify:
			current := req.Prompt[strings.LastIndex(req.Prompt, "Current message: "):]
			for substr, resp := range rules {
				if strings.Contains(current, substr) {
					return resp, nil
				}
			}
			return `{"intent":"consultation","document_type":"none","confidence":0.9}`, nil
		case OpConsult:
			return "A demand letter is a formal written request for payment.", nil
		default:
			return "DEMAND LETTER\n\nDear Maria Santos, ...", nil
		}
	}
}
