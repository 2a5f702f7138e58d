package service

import (
	"context"
	"lawchat-go/pkg/cache"
	"lawchat-go/pkg/llm"
	"lawchat-go/pkg/log"
	"lawchat-go/pkg/metrics"
	"time"

	"golang.org/x/sync/singleflight"
)

// ProviderCaller 是经过超时、重试与熔断保护的生成调用，由 *llm.ResilientClient 实现。
type ProviderCaller interface {
	Call(ctx context.Context, op llm.Operation, req llm.GenerateRequest) (*llm.GenerateResult, error)
}

const (
	OpClassify llm.Operation = "classify"
	OpConsult  llm.Operation = "consult"
	OpDraft    llm.Operation = "draft"
)

type requestIDKey struct{}

// ContextWithRequestID 把请求 ID 放入 ctx，用于派生幂等键与日志关联。
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext 取出请求 ID，没有时返回空字符串。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func idempotencyKey(ctx context.Context, op llm.Operation) string {
	if id := RequestIDFromContext(ctx); id != "" {
		return id + ":" + string(op)
	}
	return ""
}

// sharedCallTimeout 是合并调用的总时限。
const sharedCallTimeout = time.Minute

// sharedContext 为合并调用派生 ctx：保留请求 ID 等值，但不随发起者取消。
// 每个调用方只在自己的 ctx 上等待，取消只影响它自己。
func sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
}

// cachedGenerator 在 ProviderCaller 前加一层缓存：命中直接返回，未命中时合并相同键的并发调用。
// ttl <= 0 的操作不读不写缓存。
type cachedGenerator struct {
	caller ProviderCaller
	cache  cache.Cache
	group  singleflight.Group
}

func (g *cachedGenerator) generate(ctx context.Context, op llm.Operation, key string, ttl time.Duration, req llm.GenerateRequest) (string, error) {
	if ttl <= 0 || g.cache == nil {
		res, err := g.caller.Call(ctx, op, req)
		if err != nil {
			return "", err
		}
		return res.Text, nil
	}

	if value, ok := cacheGet(ctx, g.cache, op, key); ok {
		return string(value), nil
	}

	ch := g.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := sharedContext(ctx)
		defer cancel()
		res, err := g.caller.Call(callCtx, op, req)
		if err != nil {
			return "", err
		}
		if err := g.cache.Set(callCtx, key, []byte(res.Text), ttl); err != nil {
			log.Warnw("cache write failed", "operation", op, "error", err)
		}
		return res.Text, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// cacheGet 读取缓存，后端错误按未命中处理。
func cacheGet(ctx context.Context, c cache.Cache, op llm.Operation, key string) ([]byte, bool) {
	value, ok, err := c.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues(string(op), "error").Inc()
		log.Warnw("cache read failed", "operation", op, "error", err)
		return nil, false
	case ok:
		metrics.CacheLookups.WithLabelValues(string(op), "hit").Inc()
		return value, true
	default:
		metrics.CacheLookups.WithLabelValues(string(op), "miss").Inc()
		return nil, false
	}
}
