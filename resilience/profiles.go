package resilience

import "time"

// ServiceProfile names one of the external collaborators the chatbot core
// wraps with resilience primitives (§4.1 of the core's request orchestrator
// specification: the language-model service, the key-value store, the
// analytics write path, tool RPC, and the embedding service).
type ServiceProfile string

const (
	ServiceModel     ServiceProfile = "model"
	ServiceEmbedding ServiceProfile = "embedding"
	ServiceKV        ServiceProfile = "kv"
	ServiceToolRPC   ServiceProfile = "tool_rpc"
	ServiceAnalytics ServiceProfile = "analytics"
)

// NamedBreakerConfig builds a CircuitBreakerConfig for the given service,
// applying the analytics-specific leniency called out in §4.1: the
// analytics write path must never trip user-visible failures, so it gets
// a higher failure threshold and longer recovery timeout than every other
// collaborator.
func NamedBreakerConfig(service ServiceProfile, onStateChange func(from, to State)) CircuitBreakerConfig {
	cfg := CircuitBreakerConfig{
		MaxFailures:         5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
		SuccessThreshold:    2,
		OnStateChange:       onStateChange,
	}
	if service == ServiceAnalytics {
		cfg.MaxFailures = 12
		cfg.ResetTimeout = 60 * time.Second
	}
	return cfg
}

// NamedRetryConfig builds a RetryConfig for the given service. Analytics
// retries less aggressively since its failures are swallowed anyway; KV
// reads/writes on the user-visible path retry more since session/
// conversation continuity depends on them.
func NamedRetryConfig(service ServiceProfile, retryIf func(error) bool) RetryConfig {
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Strategy:     BackoffExponential,
		Jitter:       true,
		RetryIf:      retryIf,
	}
	switch service {
	case ServiceKV:
		cfg.MaxAttempts = 4
		cfg.MaxDelay = 2 * time.Second
	case ServiceAnalytics:
		cfg.MaxAttempts = 2
		cfg.MaxDelay = 2 * time.Second
	}
	return cfg
}
