package llm

import (
	"errors"
	"lawchat-go/pkg/log"
	"lawchat-go/pkg/metrics"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State 是熔断器状态，数值与 breaker_state 指标一致。
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

func fromGoBreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	}
	return StateClosed
}

// BreakerConfig 熔断阈值。FailureThreshold 为连续失败次数；ErrorRateThreshold 在同一个
// Window 内样本数达到 MinRequests 后生效。Closed 状态下计数每隔 Window 清零一次。
type BreakerConfig struct {
	FailureThreshold   int
	ErrorRateThreshold float64
	MinRequests        int
	Window             time.Duration
	Cooldown           time.Duration
}

// Breaker 是进程内共享的三态熔断器，由构造函数注入到 ResilientClient。
// HalfOpen 状态只放行一个试探调用；被取消的调用既不算成功也不算失败。
type Breaker struct {
	cb *gobreaker.CircuitBreaker[*GenerateResult]
}

// NewBreaker 创建一个处于 Closed 状态的熔断器。
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	settings := gobreaker.Settings{
		Name:        "provider",
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold) {
				return true
			}
			if cfg.ErrorRateThreshold <= 0 || cfg.MinRequests <= 0 {
				return false
			}
			total := counts.TotalSuccesses + counts.TotalFailures
			if total < uint32(cfg.MinRequests) {
				return false
			}
			return float64(counts.TotalFailures)/float64(total) >= cfg.ErrorRateThreshold
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, errCallCancelled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(fromGoBreaker(to)))
			log.Warnw("provider circuit breaker state changed", "from", fromGoBreaker(from).String(), "to", fromGoBreaker(to).String())
		},
	}
	metrics.BreakerState.Set(float64(StateClosed))
	return &Breaker{cb: gobreaker.NewCircuitBreaker[*GenerateResult](settings)}
}

// State 返回当前状态。Open 且冷却期已过时报告 HalfOpen。
func (b *Breaker) State() State {
	return fromGoBreaker(b.cb.State())
}

// Execute 在熔断器保护下执行 fn。熔断打开或 HalfOpen 试探名额已被占用时，
// 不调用 fn，直接返回 ErrCircuitOpen。
func (b *Breaker) Execute(fn func() (*GenerateResult, error)) (*GenerateResult, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}
