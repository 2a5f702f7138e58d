package service

import (
	"context"
	"errors"
	"fmt"
	"lawchat-go/internal/model"
	"lawchat-go/pkg/cache"
	"lawchat-go/pkg/es"
	"lawchat-go/pkg/llm"
	"lawchat-go/pkg/log"
	"sort"
	"strings"
	"time"
)

// CombinedSeparator 分隔 both 意图下的咨询部分与文书部分。
const CombinedSeparator = "\n\n==================================================\nGENERATED DOCUMENT:\n\n"

// both 意图下某一部分失败时附加的提示。
const (
	ConsultationFailedNotice = "Note: the legal explanation part of your request could not be completed right now. Please try again in a moment."
	GenerationFailedNotice   = "Note: the document part of your request could not be completed right now. Please try again in a moment."
)

// ReferenceSearcher 为咨询检索参考资料，由 *es.Searcher 实现。
type ReferenceSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]es.Reference, error)
}

// DraftArchiver 归档生成的草稿，由 *storage.DraftArchive 实现。
type DraftArchiver interface {
	ArchiveDraft(ctx context.Context, subjectID, requestID, docType, content string) (string, error)
}

// PromptConfig 控制咨询系统提示中参考资料的包裹格式。
type PromptConfig struct {
	Rules        string
	RefStart     string
	RefEnd       string
	NoResultText string
}

// RouterConfig 配置路由器的生成参数与缓存策略。
type RouterConfig struct {
	ModelID          string
	ConsultTTL       time.Duration
	DraftTTL         time.Duration
	GenerationWindow int
	ReferenceTopK    int
	Temperature      float64
	MaxOutputTokens  int
	Prompt           PromptConfig
}

// RouteInput 是一次路由所需的全部输入。
type RouteInput struct {
	RequestID string
	SubjectID string
	Message   string
	Decision  model.IntentDecision
	Window    *ContextWindow
}

// CombinedResponse 是路由的结果。
type CombinedResponse struct {
	Text        string
	FlowsUsed   []model.Flow
	FailureKind string
	Pending     *model.PendingDocument
	DraftObject string
}

// ResponseRouter 根据意图调用一个或两个生成流程并合并结果。
type ResponseRouter interface {
	Route(ctx context.Context, in RouteInput) (*CombinedResponse, error)
}

type responseRouter struct {
	gen       *cachedGenerator
	extractor FieldExtractor
	refs      ReferenceSearcher
	archive   DraftArchiver
	cfg       RouterConfig
}

// NewResponseRouter 创建一个新的 ResponseRouter。refs 与 archive 可以为 nil。
func NewResponseRouter(caller ProviderCaller, c cache.Cache, extractor FieldExtractor, refs ReferenceSearcher, archive DraftArchiver, cfg RouterConfig) ResponseRouter {
	if extractor == nil {
		extractor = HeuristicExtractor{}
	}
	if cfg.GenerationWindow <= 0 {
		cfg.GenerationWindow = 10
	}
	if cfg.Prompt.RefStart == "" {
		cfg.Prompt.RefStart = "<<REF>>"
	}
	if cfg.Prompt.RefEnd == "" {
		cfg.Prompt.RefEnd = "<<END>>"
	}
	if cfg.Prompt.NoResultText == "" {
		cfg.Prompt.NoResultText = "(no reference material found for this question)"
	}
	return &responseRouter{
		gen:       &cachedGenerator{caller: caller, cache: c},
		extractor: extractor,
		refs:      refs,
		archive:   archive,
		cfg:       cfg,
	}
}

// generationResult 是文书流程的输出：要么是追问，要么是草稿。
type generationResult struct {
	text        string
	flow        model.Flow
	pending     *model.PendingDocument
	draftObject string
}

func (r *responseRouter) Route(ctx context.Context, in RouteInput) (*CombinedResponse, error) {
	switch in.Decision.Kind() {
	case model.IntentGeneration, model.IntentInfoGathering:
		g, err := r.generate(ctx, in)
		if err != nil {
			return nil, err
		}
		return &CombinedResponse{Text: g.text, FlowsUsed: []model.Flow{g.flow}, Pending: g.pending, DraftObject: g.draftObject}, nil

	case model.IntentBoth:
		return r.routeBoth(ctx, in)

	default:
		text, err := r.consult(ctx, in)
		if err != nil {
			return nil, err
		}
		return &CombinedResponse{Text: text, FlowsUsed: []model.Flow{model.FlowConsultation}}, nil
	}
}

// routeBoth 先咨询后生成。一侧失败时返回另一侧结果并附加提示，两侧都失败才返回错误。
func (r *responseRouter) routeBoth(ctx context.Context, in RouteInput) (*CombinedResponse, error) {
	consultText, consultErr := r.consult(ctx, in)
	if consultErr != nil && ctx.Err() != nil {
		return nil, consultErr
	}
	g, genErr := r.generate(ctx, in)

	switch {
	case consultErr != nil && genErr != nil:
		return nil, errors.Join(consultErr, genErr)
	case consultErr != nil:
		log.Warnw("consultation part failed, returning generation only", "requestId", in.RequestID, "error", consultErr)
		return &CombinedResponse{
			Text:        g.text + "\n\n" + ConsultationFailedNotice,
			FlowsUsed:   []model.Flow{g.flow},
			FailureKind: model.FailurePartial,
			Pending:     g.pending,
			DraftObject: g.draftObject,
		}, nil
	case genErr != nil:
		if ctx.Err() != nil {
			return nil, genErr
		}
		log.Warnw("generation part failed, returning consultation only", "requestId", in.RequestID, "error", genErr)
		return &CombinedResponse{
			Text:        consultText + "\n\n" + GenerationFailedNotice,
			FlowsUsed:   []model.Flow{model.FlowConsultation},
			FailureKind: model.FailurePartial,
		}, nil
	}
	return &CombinedResponse{
		Text:        consultText + CombinedSeparator + g.text,
		FlowsUsed:   []model.Flow{model.FlowConsultation, g.flow},
		Pending:     g.pending,
		DraftObject: g.draftObject,
	}, nil
}

func (r *responseRouter) history(ctx context.Context, in RouteInput) []model.Message {
	history, err := in.Window.Recent(ctx, r.cfg.GenerationWindow)
	if err != nil {
		log.Warnw("context window unavailable, generating without history", "requestId", in.RequestID, "error", err)
		return nil
	}
	return history
}

// consult 发起一次咨询调用，返回的文本原样输出。
func (r *responseRouter) consult(ctx context.Context, in RouteInput) (string, error) {
	history := r.history(ctx, in)

	var refs []es.Reference
	searched := false
	if r.refs != nil && r.cfg.ReferenceTopK > 0 {
		found, err := r.refs.Search(ctx, in.Message, r.cfg.ReferenceTopK)
		if err != nil {
			log.Warnw("reference search failed", "requestId", in.RequestID, "error", err)
		} else {
			refs, searched = found, true
		}
	}

	persona := buildConsultationPersona(r.cfg.Prompt, refs, searched)
	prompt := buildConsultationPrompt(in.Message, history)
	key := cache.Key(string(OpConsult), r.cfg.ModelID, ConsultPromptVersion, persona, prompt)

	return r.gen.generate(ctx, OpConsult, key, r.cfg.ConsultTTL, llm.GenerateRequest{
		SystemPersona:   persona,
		Prompt:          prompt,
		MaxOutputTokens: r.cfg.MaxOutputTokens,
		Temperature:     r.cfg.Temperature,
		IdempotencyKey:  idempotencyKey(ctx, OpConsult),
	})
}

// generate 确定文书类型并收集字段：缺少必填字段时返回追问（不调用生成服务），否则起草。
func (r *responseRouter) generate(ctx context.Context, in RouteInput) (*generationResult, error) {
	history := r.history(ctx, in)
	pending := PendingDocument(history)

	docType := in.Decision.TargetType()
	if docType == "" {
		docType = model.DetectDocumentType(in.Message)
	}
	if docType == "" && pending != nil {
		docType = pending.DocumentType
	}
	spec, ok := model.LookupDocument(docType)
	if !ok {
		return &generationResult{text: documentTypeQuestion(), flow: model.FlowFollowUp}, nil
	}

	fields := make(map[string]string)
	if pending != nil && pending.DocumentType == spec.Type {
		for k, v := range pending.Fields {
			fields[k] = v
		}
	}
	for k, v := range r.extractor.Extract(spec, in.Message) {
		fields[k] = v
	}

	if missing := spec.MissingFields(fields); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, f := range missing {
			names = append(names, f.Name)
		}
		return &generationResult{
			text:    followUpQuestion(spec, fields, missing),
			flow:    model.FlowFollowUp,
			pending: &model.PendingDocument{DocumentType: spec.Type, Fields: fields, Missing: names},
		}, nil
	}

	prompt := buildDraftPrompt(spec, in.Message, fields, history)
	key := cache.Key(string(OpDraft), r.cfg.ModelID, DraftPromptVersion, string(spec.Type), canonicalFields(fields), prompt)
	text, err := r.gen.generate(ctx, OpDraft, key, r.cfg.DraftTTL, llm.GenerateRequest{
		SystemPersona:   draftPersona,
		Prompt:          prompt,
		MaxOutputTokens: r.cfg.MaxOutputTokens,
		Temperature:     r.cfg.Temperature,
		IdempotencyKey:  idempotencyKey(ctx, OpDraft),
	})
	if err != nil {
		return nil, fmt.Errorf("draft %s: %w", spec.Type, err)
	}

	result := &generationResult{text: text, flow: model.FlowGeneration}
	if r.archive != nil {
		object, err := r.archive.ArchiveDraft(ctx, in.SubjectID, in.RequestID, string(spec.Type), text)
		if err != nil {
			log.Warnw("draft archive failed", "requestId", in.RequestID, "documentType", spec.Type, "error", err)
		} else {
			result.draftObject = object
		}
	}
	return result, nil
}

func canonicalFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, fields[k])
	}
	return b.String()
}
