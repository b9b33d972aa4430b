package modelclient

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/config"
	coreerrors "github.com/kaisan-axrail/mbppchatbot-sub000/internal/errors"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

// Client implements Generator, orchestrating the endpoint-tier fallback
// and dialect dispatch described in spec.md §4.2.
type Client struct {
	tiers      []string
	anthropic  *anthropicDialect
	bedrock    *bedrockDialect
	defaults   config.ModelConfig
	logger     observe.Logger
	tracer     observe.Tracer

	mu        sync.Mutex
	executors map[string]*resilience.Executor

	// dispatch performs the actual wire call for one tier. Set to
	// c.dialectDispatch by New; overridable in tests to avoid a live
	// Anthropic/Bedrock dependency while still exercising the
	// tier-fallback and classification logic in full.
	dispatch func(ctx context.Context, tier string, dialect Dialect, req GenerateRequest) (string, TokenUsage, error)
}

// New constructs a Client. bedrockClient may be nil if no Bedrock tier
// is configured; the Anthropic dialect is constructed internally from
// cfg.AnthropicAPIKeySecret (already resolved by internal/config.Load),
// and is skipped if that secret is empty.
func New(cfg config.ModelConfig, bedrockClient *bedrockruntime.Client, logger observe.Logger, tracer observe.Tracer) *Client {
	c := &Client{
		defaults:  cfg,
		logger:    logger,
		tracer:    tracer,
		executors: make(map[string]*resilience.Executor),
	}
	for _, tier := range []string{cfg.InferenceProfileID, cfg.CrossRegionProfileID, cfg.DirectModelID} {
		if tier != "" {
			c.tiers = append(c.tiers, tier)
		}
	}
	if cfg.AnthropicAPIKeySecret != "" {
		c.anthropic = newAnthropicDialect(cfg.AnthropicAPIKeySecret)
	}
	if bedrockClient != nil {
		c.bedrock = newBedrockDialect(bedrockClient)
	}
	c.dispatch = c.dialectDispatch
	return c
}

// Generate implements spec.md §4.2: it tries each endpoint tier in
// priority order, demoting to the next tier on a validation-class
// error, surfacing permission- and throttling-class errors directly,
// and synthesising a fallback envelope if every tier is exhausted via
// demotion.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.defaults.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = c.defaults.Temperature
	}

	var lastErr error
	for i, tier := range c.tiers {
		dialect := DetectDialect(tier)
		text, usage, err := c.generateOnce(ctx, tier, dialect, req)
		if err == nil {
			return &GenerateResponse{Text: text, TokenUsage: usage, ModelID: tier, IsFallback: false}, nil
		}

		class := classify(dialect, err)
		lastErr = err
		if class == classValidation {
			if c.logger != nil {
				c.logger.Warn(ctx, "model tier demoted on validation error",
					observe.Field{Key: "tier", Value: tier},
					observe.Field{Key: "tier_index", Value: i},
					observe.Field{Key: "error", Value: err.Error()})
			}
			continue
		}
		// permission-class or throttling-class errors are surfaced,
		// not demoted past.
		return nil, err
	}

	if c.logger != nil {
		c.logger.Error(ctx, "all model endpoint tiers exhausted, returning fallback envelope",
			observe.Field{Key: "error", Value: errString(lastErr)})
	}
	return &GenerateResponse{Text: fallbackText, IsFallback: true}, nil
}

func (c *Client) generateOnce(ctx context.Context, tier string, dialect Dialect, req GenerateRequest) (string, TokenUsage, error) {
	var text string
	var usage TokenUsage
	executor := c.executorFor(tier, dialect)

	err := executor.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		text, usage, callErr = c.dispatch(ctx, tier, dialect, req)
		return callErr
	})
	return text, usage, err
}

func (c *Client) dialectDispatch(ctx context.Context, tier string, dialect Dialect, req GenerateRequest) (string, TokenUsage, error) {
	switch dialect {
	case DialectA:
		if c.anthropic == nil {
			return "", TokenUsage{}, coreErrNoDialectClient(dialect)
		}
		return c.anthropic.generate(ctx, tier, req)
	default:
		if c.bedrock == nil {
			return "", TokenUsage{}, coreErrNoDialectClient(dialect)
		}
		return c.bedrock.generate(ctx, tier, req)
	}
}

func (c *Client) executorFor(tier string, dialect Dialect) *resilience.Executor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exec, ok := c.executors[tier]; ok {
		return exec
	}
	breaker := resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceModel, nil))
	retry := resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceModel, isRetryable(dialect)))
	exec := resilience.NewExecutor(resilience.WithCircuitBreaker(breaker), resilience.WithRetry(retry))
	c.executors[tier] = exec
	return exec
}

func coreErrNoDialectClient(dialect Dialect) error {
	return coreerrors.New(coreerrors.KindDialect, "modelclient.generateOnce", "no client configured for "+dialect.String(), nil)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ Generator = (*Client)(nil)
