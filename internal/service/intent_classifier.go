package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lawchat-go/internal/model"
	"lawchat-go/pkg/cache"
	"lawchat-go/pkg/llm"
	"lawchat-go/pkg/log"
	"lawchat-go/pkg/metrics"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// IntentClassifier 判断一条消息需要咨询、文书生成、两者兼有还是补充文书信息。
type IntentClassifier interface {
	// Classify 永不返回错误：任何失败都退化为安全默认值（consultation，置信度 0）。
	Classify(ctx context.Context, message string, window []model.Message) model.IntentDecision
}

// ClassifierConfig 配置分类器。
type ClassifierConfig struct {
	ModelID         string
	PromptVersion   string
	ConfidenceFloor float64
	CacheTTL        time.Duration
	MaxOutputTokens int
}

type intentClassifier struct {
	caller ProviderCaller
	cache  cache.Cache
	group  singleflight.Group
	cfg    ClassifierConfig
}

// NewIntentClassifier 创建一个新的 IntentClassifier。cache 可以为 nil。
func NewIntentClassifier(caller ProviderCaller, c cache.Cache, cfg ClassifierConfig) IntentClassifier {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 100
	}
	return &intentClassifier{caller: caller, cache: c, cfg: cfg}
}

var errUnparsableIntent = errors.New("unparsable intent response")

func (c *intentClassifier) Classify(ctx context.Context, message string, window []model.Message) model.IntentDecision {
	key := cache.Key(string(OpClassify), c.cfg.ModelID, c.cfg.PromptVersion, message, WindowDigest(window))

	decision, err := c.lookupOrClassify(ctx, key, message, window)
	if err != nil {
		log.Warnw("intent classification failed, using safe default", "requestId", RequestIDFromContext(ctx), "error", err)
		return c.fallback()
	}
	if decision.Confidence() < c.cfg.ConfidenceFloor {
		log.Infow("intent confidence below floor, using safe default",
			"requestId", RequestIDFromContext(ctx), "kind", decision.Kind(), "confidence", decision.Confidence())
		return c.fallback()
	}
	metrics.IntentDecisions.WithLabelValues(string(decision.Kind()), "false").Inc()
	return decision
}

func (c *intentClassifier) fallback() model.IntentDecision {
	d := model.DefaultIntent()
	metrics.IntentDecisions.WithLabelValues(string(d.Kind()), "true").Inc()
	return d
}

// lookupOrClassify 先查缓存，未命中时调用生成服务。只有通过校验的决策才会写入缓存。
func (c *intentClassifier) lookupOrClassify(ctx context.Context, key, message string, window []model.Message) (model.IntentDecision, error) {
	if c.cache != nil {
		if raw, ok := cacheGet(ctx, c.cache, OpClassify, key); ok {
			var cached model.IntentDecision
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			log.Warnw("discarding invalid cached intent", "requestId", RequestIDFromContext(ctx))
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := sharedContext(ctx)
		defer cancel()
		res, err := c.caller.Call(callCtx, OpClassify, llm.GenerateRequest{
			SystemPersona:   ClassifierPersona(),
			Prompt:          buildClassificationPrompt(message, window),
			MaxOutputTokens: c.cfg.MaxOutputTokens,
			Temperature:     0,
			IdempotencyKey:  idempotencyKey(ctx, OpClassify),
		})
		if err != nil {
			return model.IntentDecision{}, err
		}
		decision, err := ParseIntentResponse(res.Text)
		if err != nil {
			return model.IntentDecision{}, err
		}
		if c.cache != nil && c.cfg.CacheTTL > 0 {
			if raw, err := json.Marshal(decision); err == nil {
				if err := c.cache.Set(callCtx, key, raw, c.cfg.CacheTTL); err != nil {
					log.Warnw("cache write failed", "operation", OpClassify, "error", err)
				}
			}
		}
		return decision, nil
	})
	select {
	case <-ctx.Done():
		return model.IntentDecision{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.IntentDecision{}, r.Err
		}
		return r.Val.(model.IntentDecision), nil
	}
}

type intentResponse struct {
	Intent       string          `json:"intent"`
	DocumentType string          `json:"document_type"`
	Confidence   json.RawMessage `json:"confidence"`
}

// ParseIntentResponse 解析分类器输出的 JSON，允许外层包裹代码块或多余文字。
// 未知意图、缺失或越界的置信度都视为校验失败。非生成类意图携带的文书类型会被忽略。
func ParseIntentResponse(text string) (model.IntentDecision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.IntentDecision{}, errUnparsableIntent
	}
	var resp intentResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return model.IntentDecision{}, fmt.Errorf("%w: %v", errUnparsableIntent, err)
	}
	if len(resp.Confidence) == 0 {
		return model.IntentDecision{}, fmt.Errorf("%w: missing confidence", model.ErrInvalidIntent)
	}
	confidence, err := strconv.ParseFloat(strings.Trim(string(resp.Confidence), `"`), 64)
	if err != nil {
		return model.IntentDecision{}, fmt.Errorf("%w: confidence %s", model.ErrInvalidIntent, resp.Confidence)
	}

	kind := normalizeIntentKind(resp.Intent)
	var target model.DocumentType
	if kind == model.IntentGeneration || kind == model.IntentBoth || kind == model.IntentInfoGathering {
		target = model.ParseDocumentType(resp.DocumentType)
	}
	return model.NewIntentDecision(kind, target, confidence)
}

func normalizeIntentKind(raw string) model.IntentKind {
	k := strings.ToLower(strings.TrimSpace(raw))
	switch k {
	case "document_generation", "generate", "document":
		return model.IntentGeneration
	case "document_info_gathering", "info", "information_gathering":
		return model.IntentInfoGathering
	}
	return model.IntentKind(k)
}
