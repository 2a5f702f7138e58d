package llm

import (
	"context"
	"errors"
	"fmt"
	"lawchat-go/pkg/log"
	"lawchat-go/pkg/metrics"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Operation 标识一次调用所属的业务操作（classify / consult / draft），用于日志、指标与缓存键。
type Operation string

// Outcome 是单次尝试的结果。
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Attempt 是一次出站调用的临时记录，仅用于日志与熔断统计，不持久化。
type Attempt struct {
	IdempotencyKey string
	AttemptNumber  int
	StartedAt      time.Time
	Outcome        Outcome
}

// RetryConfig 控制单次调用超时与重试退避。
type RetryConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// ResilientClient 为 Provider 增加超时、重试退避、幂等键与熔断。
// 缓存不在这一层处理，由调用方按操作决定 TTL。
type ResilientClient struct {
	provider Provider
	breaker  *Breaker
	cfg      RetryConfig
	limiter  *rate.Limiter
}

// NewResilientClient creates a client. limiter may be nil to disable rate limiting.
func NewResilientClient(provider Provider, breaker *Breaker, cfg RetryConfig, limiter *rate.Limiter) *ResilientClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}
	return &ResilientClient{
		provider: provider,
		breaker:  breaker,
		cfg:      cfg,
		limiter:  limiter,
	}
}

// Call 执行一次逻辑调用：最多尝试 1+MaxRetries 次，每次重试复用同一个幂等键。
// 熔断打开时立即返回 ErrCircuitOpen；重试耗尽时返回包装了最后一次错误的 ErrRetriesExhausted；
// ctx 被取消时返回 ctx 的错误，且不计入熔断统计。
func (c *ResilientClient) Call(ctx context.Context, op Operation, req GenerateRequest) (*GenerateResult, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	var (
		attempts int
		lastErr  error
		halted   error // 不再重试的终止错误
	)
	stop := func(err error) (*GenerateResult, error) {
		halted = err
		return nil, backoff.Permanent(err)
	}

	operation := func() (*GenerateResult, error) {
		n := attempts
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return stop(fmt.Errorf("provider rate limit wait: %w", err))
			}
		}

		result, err := c.breaker.Execute(func() (*GenerateResult, error) {
			return c.attempt(ctx, op, req, n)
		})
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, ErrCircuitOpen):
			metrics.BreakerRejections.WithLabelValues(string(op)).Inc()
			if lastErr != nil {
				return stop(fmt.Errorf("%w: %s: %w", ErrCircuitOpen, op, lastErr))
			}
			return stop(fmt.Errorf("%w: %s", ErrCircuitOpen, op))
		case errors.Is(err, errCallCancelled), !IsTransient(err):
			return stop(err)
		}
		lastErr = err
		return nil, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Infow("retrying provider call",
				"operation", op,
				"idempotencyKey", req.IdempotencyKey,
				"waitMs", wait.Milliseconds(),
				"error", err)
		}),
	)
	switch {
	case err == nil:
		return result, nil
	case halted != nil:
		return nil, halted
	case ctx.Err() != nil:
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, op, attempts, err)
}

// newBackOff 返回一次逻辑调用专用的退避序列：从 BackoffBase 起按 2 倍增长，封顶 BackoffMax，
// 每次等待在当前间隔的 ±50% 内随机。
func (c *ResilientClient) newBackOff() backoff.BackOff {
	if c.cfg.BackoffBase <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffBase
	b.MaxInterval = c.cfg.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// attempt 执行单次调用。日志只记录操作、耗时、结果与 token 数，不记录提示词或回复内容。
func (c *ResilientClient) attempt(ctx context.Context, op Operation, req GenerateRequest, n int) (*GenerateResult, error) {
	rec := Attempt{IdempotencyKey: req.IdempotencyKey, AttemptNumber: n + 1, StartedAt: time.Now()}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	result, err := c.provider.Generate(attemptCtx, req)
	latency := time.Since(rec.StartedAt)

	switch {
	case err == nil:
		rec.Outcome = OutcomeSuccess
	case ctx.Err() != nil:
		rec.Outcome = OutcomeCancelled
		err = fmt.Errorf("%w: %s: %w", errCallCancelled, op, ctx.Err())
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		rec.Outcome = OutcomeTimeout
		err = fmt.Errorf("%w after %s: %w", ErrProviderTimeout, c.cfg.Timeout, err)
	default:
		rec.Outcome = OutcomeError
	}

	tokens := 0
	if result != nil {
		tokens = result.TokensUsed
	}
	metrics.ProviderCalls.WithLabelValues(string(op), string(rec.Outcome)).Inc()
	metrics.ProviderLatency.WithLabelValues(string(op)).Observe(latency.Seconds())
	if tokens > 0 {
		metrics.ProviderTokens.WithLabelValues(string(op)).Add(float64(tokens))
	}

	fields := []interface{}{
		"operation", op,
		"attempt", rec.AttemptNumber,
		"idempotencyKey", rec.IdempotencyKey,
		"latencyMs", latency.Milliseconds(),
		"outcome", rec.Outcome,
		"tokensUsed", tokens,
	}
	if err != nil {
		log.Warnw("provider call failed", append(fields, "error", err)...)
		return nil, err
	}
	log.Infow("provider call", fields...)
	return result, nil
}
