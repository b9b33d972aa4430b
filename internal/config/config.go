// Package config loads the chatbot core's runtime configuration from a
// YAML file laid over built-in defaults; only the model API key value is
// expanded against environment variables.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kaisan-axrail/mbppchatbot-sub000/secret"
)

// RetryConfig mirrors resilience.RetryConfig's tunables for one named
// external service.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// CircuitConfig mirrors resilience.CircuitBreakerConfig's tunables for one
// named external service.
type CircuitConfig struct {
	MaxFailures      int           `yaml:"maxFailures"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
	SuccessThreshold int           `yaml:"successThreshold"`
}

// ServiceResilience bundles the retry and circuit-breaker tunables for
// one named external dependency (§4.1).
type ServiceResilience struct {
	Retry   RetryConfig   `yaml:"retry"`
	Circuit CircuitConfig `yaml:"circuit"`
}

// ModelConfig names the three endpoint tiers the model client falls back
// across (§4.2) plus generation defaults.
type ModelConfig struct {
	InferenceProfileID    string  `yaml:"inferenceProfileId"`
	CrossRegionProfileID  string  `yaml:"crossRegionProfileId"`
	DirectModelID         string  `yaml:"directModelId"`
	EmbeddingModelID      string  `yaml:"embeddingModelId"`
	MaxTokens             int     `yaml:"maxTokens"`
	Temperature           float64 `yaml:"temperature"`
	VisionMaxImageBytes   int     `yaml:"visionMaxImageBytes"`
	AnthropicAPIKeySecret string  `yaml:"anthropicApiKeySecret"`
}

// RetrievalConfig configures the RAG retrieval client (§4.3).
type RetrievalConfig struct {
	Backend              string `yaml:"backend"` // "managed" | "manual" | ""
	KnowledgeBaseID      string `yaml:"knowledgeBaseId"`
	ChunkBlobPrefix      string `yaml:"chunkBlobPrefix"`
	DefaultLimit         int    `yaml:"defaultLimit"`
	MinRelevanceScore    float64 `yaml:"minRelevanceScore"`
	ContextCharCap       int    `yaml:"contextCharCap"`
	AllowMockRetrieval   bool   `yaml:"allowMockRetrieval"`
}

// StoreConfig names the tables and bucket the KV/blob collaborators use.
type StoreConfig struct {
	Region             string `yaml:"region"`
	SessionsTable      string `yaml:"sessionsTable"`
	ConversationsTable string `yaml:"conversationsTable"`
	AnalyticsTable     string `yaml:"analyticsTable"`
	TicketsTable       string `yaml:"ticketsTable"`
	EventsTable        string `yaml:"eventsTable"`
	AttachmentsBucket  string `yaml:"attachmentsBucket"`
}

// ToolRegistryConfig locates the tool schema file and RPC transport.
type ToolRegistryConfig struct {
	SchemaPath     string        `yaml:"schemaPath"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// Config is the root configuration object.
type Config struct {
	SessionTimeout       time.Duration                `yaml:"sessionTimeout"`
	SessionTTLSafetyFactor float64                    `yaml:"sessionTTLSafetyFactor"`
	PipelineDeadline     time.Duration                `yaml:"pipelineDeadline"`
	SweepInterval        time.Duration                `yaml:"sweepInterval"`
	SweepDeadline        time.Duration                `yaml:"sweepDeadline"`
	SupportedLanguages   []string                     `yaml:"supportedLanguages"`

	Model     ModelConfig     `yaml:"model"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Store     StoreConfig     `yaml:"store"`
	Tools     ToolRegistryConfig `yaml:"tools"`

	Resilience map[string]ServiceResilience `yaml:"resilience"`

	ListenAddr string `yaml:"listenAddr"`
}

// Default returns the configuration described by spec.md §6 defaults.
func Default() *Config {
	return &Config{
		SessionTimeout:         30 * time.Minute,
		SessionTTLSafetyFactor: 2.0,
		PipelineDeadline:       30 * time.Second,
		SweepInterval:          5 * time.Minute,
		SweepDeadline:          5 * time.Minute,
		SupportedLanguages:     []string{"en", "ms", "zh", "ta"},
		Model: ModelConfig{
			MaxTokens:           1024,
			Temperature:         0.7,
			VisionMaxImageBytes: 5 * 1024 * 1024,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:      5,
			MinRelevanceScore: 0.7,
			ContextCharCap:    8000,
		},
		Store: StoreConfig{
			SessionsTable:      "mbpp_sessions",
			ConversationsTable: "mbpp_conversations",
			AnalyticsTable:     "mbpp_analytics",
			TicketsTable:       "mbpp_tickets",
			EventsTable:        "mbpp_workflow_events",
		},
		Tools: ToolRegistryConfig{
			SchemaPath:     "config/tools.yaml",
			RequestTimeout: 10 * time.Second,
		},
		Resilience: map[string]ServiceResilience{
			"model": {
				Retry:   RetryConfig{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: true},
				Circuit: CircuitConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, SuccessThreshold: 2},
			},
			"embedding": {
				Retry:   RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 3 * time.Second, Multiplier: 2, Jitter: true},
				Circuit: CircuitConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, SuccessThreshold: 2},
			},
			"kv": {
				Retry:   RetryConfig{MaxAttempts: 4, InitialDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2, Jitter: true},
				Circuit: CircuitConfig{MaxFailures: 5, ResetTimeout: 20 * time.Second, SuccessThreshold: 2},
			},
			"tool_rpc": {
				Retry:   RetryConfig{MaxAttempts: 3, InitialDelay: 150 * time.Millisecond, MaxDelay: 3 * time.Second, Multiplier: 2, Jitter: true},
				Circuit: CircuitConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, SuccessThreshold: 2},
			},
			"analytics": {
				Retry:   RetryConfig{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Multiplier: 2, Jitter: true},
				Circuit: CircuitConfig{MaxFailures: 12, ResetTimeout: 60 * time.Second, SuccessThreshold: 1},
			},
		},
		ListenAddr: ":8080",
	}
}

// Load reads a YAML file at path (if non-empty and present) over the
// defaults, then passes Model.AnthropicAPIKeySecret through
// secret.Resolver.ResolveValue (which expands ${VAR} references),
// keeping the loaded value if resolution fails. Other fields are not
// expanded.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	resolver := secret.NewResolver(false)
	if resolved, rerr := resolver.ResolveValue(context.Background(), cfg.Model.AnthropicAPIKeySecret); rerr == nil {
		cfg.Model.AnthropicAPIKeySecret = resolved
	}
	return cfg, nil
}

// ResilienceFor returns the per-service resilience tunables, falling back
// to the "model" profile's defaults when a name has no explicit entry.
func (c *Config) ResilienceFor(service string) ServiceResilience {
	if sc, ok := c.Resilience[service]; ok {
		return sc
	}
	return c.Resilience["model"]
}
