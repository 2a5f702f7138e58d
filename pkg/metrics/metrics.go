// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCalls counts provider attempts by operation and outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawchat_provider_calls_total",
		Help: "Provider call attempts by operation and outcome",
	}, []string{"operation", "outcome"})

	// ProviderLatency tracks single-attempt latency.
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lawchat_provider_call_duration_seconds",
		Help:    "Provider call attempt duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"operation"})

	// ProviderTokens sums token usage reported by the provider.
	ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawchat_provider_tokens_total",
		Help: "Tokens consumed by operation",
	}, []string{"operation"})

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lawchat_provider_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	})

	// BreakerRejections counts calls failed fast by an open breaker.
	BreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawchat_provider_breaker_rejections_total",
		Help: "Calls rejected without contacting the provider",
	}, []string{"operation"})

	// CacheLookups counts cache lookups by operation and result (hit/miss/error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawchat_cache_lookups_total",
		Help: "Cache lookups by operation and result",
	}, []string{"operation", "result"})

	// IntentDecisions counts classifier outputs.
	IntentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawchat_intent_decisions_total",
		Help: "Intent decisions by kind and whether the safe default was used",
	}, []string{"kind", "fallback"})

	// ChatRequests counts orchestrated chat messages by outcome.
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawchat_chat_requests_total",
		Help: "Handled chat messages by outcome",
	}, []string{"outcome"})
)
