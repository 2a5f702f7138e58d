package service

import (
	"context"
	"errors"
	"lawchat-go/internal/model"
	"lawchat-go/pkg/cache"
	"lawchat-go/pkg/events"
	"lawchat-go/pkg/llm"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ChatEvent
}

func (p *recordingPublisher) PublishChatEvent(_ context.Context, e events.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type chatFixture struct {
	repo      *memoryRepo
	caller    *fakeCaller
	publisher *recordingPublisher
	svc       ChatService
}

func newChatFixture(respond func(op llm.Operation, req llm.GenerateRequest) (string, error)) *chatFixture {
	repo := newMemoryRepo()
	caller := &fakeCaller{respond: respond}
	c := cache.NewMemoryCache()
	classifier := NewIntentClassifier(caller, c, ClassifierConfig{ModelID: "m", PromptVersion: "v1", ConfidenceFloor: 0.5, CacheTTL: time.Hour})
	router := NewResponseRouter(caller, c, nil, nil, nil, testRouterConfig())
	publisher := &recordingPublisher{}
	return &chatFixture{
		repo:      repo,
		caller:    caller,
		publisher: publisher,
		svc:       NewChatService(repo, classifier, router, publisher, ChatConfig{ClassifierWindow: 5, GenerationWindow: 10}),
	}
}

var scenarioRules = map[string]string{
	"Create a demand letter":           `{"intent":"generation","document_type":"demand_letter","confidence":0.9}`,
	"Explain demand letters and create": `{"intent":"both","document_type":"demand_letter","confidence":0.85}`,
}

func TestHandle_ScenarioA_Consultation(t *testing.T) {
	f := newChatFixture(scriptedClassifications(scenarioRules))

	res, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
	require.NoError(t, err)

	assert.Equal(t, model.IntentConsultation, res.Intent.Kind())
	assert.NotEmpty(t, res.ResponseText)
	assert.Equal(t, 0, f.caller.count(OpDraft))

	msgs := f.repo.messages("user:1")
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, res.MessageID, msgs[1].ID)
	require.NotNil(t, msgs[1].Metadata)
	assert.Equal(t, []model.Flow{model.FlowConsultation}, msgs[1].Metadata.FlowsUsed)
	assert.Equal(t, res.Intent, *msgs[1].Metadata.Intent)
}

func TestHandle_ScenarioB_GenerationFollowUp(t *testing.T) {
	f := newChatFixture(scriptedClassifications(scenarioRules))

	res, err := f.svc.Handle(context.Background(), "user:1", "Create a demand letter for 50,000")
	require.NoError(t, err)

	assert.Equal(t, model.IntentGeneration, res.Intent.Kind())
	lower := strings.ToLower(res.ResponseText)
	for _, field := range []string{"sender", "recipient", "amount"} {
		assert.Contains(t, lower, field)
	}
	assert.Equal(t, 0, f.caller.count(OpDraft))

	msgs := f.repo.messages("user:1")
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].Metadata.Pending)
	assert.Equal(t, model.DocDemandLetter, msgs[1].Metadata.Pending.DocumentType)
}

func TestHandle_ScenarioC_ContextCarriesPriorTurn(t *testing.T) {
	f := newChatFixture(scriptedClassifications(scenarioRules))

	_, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
	require.NoError(t, err)
	_, err = f.svc.Handle(context.Background(), "user:1", "When should I send one?")
	require.NoError(t, err)

	req, ok := f.caller.last(OpClassify)
	require.True(t, ok)
	assert.Contains(t, req.Prompt, "User: What is a demand letter?")
	assert.Contains(t, req.Prompt, "Assistant: A demand letter is a formal written request")
	assert.True(t, strings.HasSuffix(req.Prompt, "Current message: When should I send one?"))
	assert.Equal(t, 1, strings.Count(req.Prompt, "When should I send one?"), "current message is not part of its own context")

	consultReq, _ := f.caller.last(OpConsult)
	assert.Contains(t, consultReq.Prompt, "User: What is a demand letter?")
}

func TestHandle_ScenarioD_Both(t *testing.T) {
	f := newChatFixture(scriptedClassifications(scenarioRules))

	res, err := f.svc.Handle(context.Background(), "user:1", "Explain demand letters and create one for me")
	require.NoError(t, err)

	assert.Equal(t, model.IntentBoth, res.Intent.Kind())
	parts := strings.Split(res.ResponseText, CombinedSeparator)
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.NotEmpty(t, parts[1])
}

func TestHandle_InfoGatheringCompletesDraft(t *testing.T) {
	rules := map[string]string{
		"Create a demand letter": `{"intent":"generation","document_type":"demand_letter","confidence":0.9}`,
		"Sender:":                `{"intent":"info_gathering","document_type":"demand_letter","confidence":0.9}`,
	}
	f := newChatFixture(scriptedClassifications(rules))

	_, err := f.svc.Handle(context.Background(), "user:1", "Create a demand letter for PHP 50,000")
	require.NoError(t, err)
	res, err := f.svc.Handle(context.Background(), "user:1", "Sender: Juan Dela Cruz\nRecipient: Maria Santos")
	require.NoError(t, err)

	assert.Equal(t, model.IntentInfoGathering, res.Intent.Kind())
	assert.Contains(t, res.ResponseText, "DEMAND LETTER")
	assert.Equal(t, 1, f.caller.count(OpDraft))
}

func TestHandle_ProviderFailurePersistsFallback(t *testing.T) {
	f := newChatFixture(func(llm.Operation, llm.GenerateRequest) (string, error) {
		return "", llm.ErrCircuitOpen
	})

	res, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
	require.NoError(t, err)
	assert.Equal(t, FallbackNotice, res.ResponseText)
	assert.True(t, res.Intent.IsDefault())

	msgs := f.repo.messages("user:1")
	require.Len(t, msgs, 2)
	assert.Equal(t, FallbackNotice, msgs[1].Content)
	assert.Equal(t, model.FailureCircuitOpen, msgs[1].Metadata.FailureKind)
	assert.Equal(t, []model.Flow{model.FlowFallback}, msgs[1].Metadata.FlowsUsed)
}

func TestHandle_UserPersistenceFailure(t *testing.T) {
	f := newChatFixture(scriptedClassifications(nil))
	f.repo.failAppend = func(model.Message) bool { return true }

	_, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, f.caller.calls, "nothing is generated without a persisted user message")
}

func TestHandle_AssistantPersistenceFailure(t *testing.T) {
	f := newChatFixture(scriptedClassifications(nil))
	f.repo.failAppend = func(m model.Message) bool { return m.Role == model.RoleAssistant }

	_, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Len(t, f.repo.messages("user:1"), 1)
}

func TestHandle_StoreReadFailureTreatedAsEmptyContext(t *testing.T) {
	f := newChatFixture(scriptedClassifications(nil))
	f.repo.failList = true

	res, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ResponseText)
	req, _ := f.caller.last(OpClassify)
	assert.NotContains(t, req.Prompt, "Recent conversation context")
}

func TestHandle_EmptyMessage(t *testing.T) {
	f := newChatFixture(scriptedClassifications(nil))
	_, err := f.svc.Handle(context.Background(), "user:1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestHandle_CancelledRequestStillPersistsAssistantMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newChatFixture(func(op llm.Operation, _ llm.GenerateRequest) (string, error) {
		if op == OpClassify {
			cancel()
		}
		return "", context.Canceled
	})

	_, err := f.svc.Handle(ctx, "user:1", "What is a demand letter?")
	require.ErrorIs(t, err, context.Canceled)

	msgs := f.repo.messages("user:1")
	require.Len(t, msgs, 2)
	assert.Equal(t, model.FailureCancelled, msgs[1].Metadata.FailureKind)
}

func TestHandle_TimestampsNonDecreasingPerSubject(t *testing.T) {
	f := newChatFixture(scriptedClassifications(nil))

	var last time.Time
	for i := 0; i < 5; i++ {
		res, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
		require.NoError(t, err)
		assert.False(t, res.Timestamp.Before(last))
		last = res.Timestamp
	}

	msgs := f.repo.messages("user:1")
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp))
	}
}

func TestHandle_PublishesEventWithoutContent(t *testing.T) {
	f := newChatFixture(scriptedClassifications(nil))

	res, err := f.svc.Handle(context.Background(), "user:1", "What is a demand letter?")
	require.NoError(t, err)
	require.Len(t, f.publisher.events, 1)
	e := f.publisher.events[0]
	assert.Equal(t, res.RequestID, e.RequestID)
	assert.Equal(t, res.MessageID, e.MessageID)
	assert.Equal(t, "consultation", e.IntentKind)
	assert.Equal(t, []string{"consultation"}, e.FlowsUsed)
}

func TestHandle_AnonymousSubject(t *testing.T) {
	f := newChatFixture(scriptedClassifications(nil))

	res, err := f.svc.Handle(context.Background(), "", "What is a demand letter?")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ResponseText)
	assert.Equal(t, 0, f.repo.ListCalls())
}

func TestSubjectClock_StrictlyIncreasingUnderContention(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newSubjectClock()
	c.now = func() time.Time { return fixed }

	const workers, perWorker = 8, 100
	results := make(chan time.Time, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results <- c.Next("user:1")
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for ts := range results {
		assert.False(t, seen[ts.UnixNano()], "duplicate timestamp")
		seen[ts.UnixNano()] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.True(t, fixed.Equal(c.Next("user:2")))
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, model.FailureCircuitOpen, failureKind(llm.ErrCircuitOpen))
	assert.Equal(t, model.FailureProvider, failureKind(llm.ErrRetriesExhausted))
	assert.Equal(t, model.FailureCancelled, failureKind(context.Canceled))
	assert.Equal(t, model.FailureInternalRoute, failureKind(errors.New("bug")))
}
