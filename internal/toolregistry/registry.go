package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	coreerrors "github.com/kaisan-axrail/mbppchatbot-sub000/internal/errors"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/cache"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

// cacheTTL is how long a tool's result is reused for an identical
// (tool, input) pair.
const cacheTTL = 2 * time.Minute

// Registry holds the loaded tool definitions and dispatches invocations
// over rpc, validating against each tool's schema and caching results
// keyed by a deterministic hash of (tool name, input).
type Registry struct {
	defs      map[string]ToolDefinition
	order     []string
	rpc       RPCClient
	executor  *resilience.Executor
	cache     cache.Cache
	keyer     cache.Keyer
	generator modelclient.Generator
	logger    observe.Logger
	tracer    observe.Tracer
}

// New builds a Registry. cache and generator may be nil: a nil cache
// disables result caching, a nil generator makes Identify always return
// an empty slice.
func New(defs []ToolDefinition, rpc RPCClient, c cache.Cache, generator modelclient.Generator, logger observe.Logger, tracer observe.Tracer) *Registry {
	byName := make(map[string]ToolDefinition, len(defs))
	order := make([]string, 0, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
		order = append(order, d.Name)
	}
	breaker := resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceToolRPC, nil))
	retry := resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceToolRPC, nil))
	return &Registry{
		defs:      byName,
		order:     order,
		rpc:       rpc,
		executor:  resilience.NewExecutor(resilience.WithCircuitBreaker(breaker), resilience.WithRetry(retry)),
		cache:     c,
		keyer:     cache.NewDefaultKeyer(),
		generator: generator,
		logger:    logger,
		tracer:    tracer,
	}
}

// Names returns every registered tool name, in schema-file order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Invoke validates input against the tool's input schema, dispatches the
// call under the tool_rpc resilience profile (serving a cached result
// when available), validates the response against the output schema, and
// returns the decoded output.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, coreerrors.ErrUnknownTool
	}
	if err := validateAgainst(def.InputSchema, input); err != nil {
		return nil, coreerrors.New(coreerrors.KindValidation, "toolregistry.Invoke", fmt.Sprintf("input for %s", name), err)
	}

	key := ""
	if r.cache != nil {
		k, err := r.keyer.Key(name, input)
		if err == nil {
			key = k
			if cached, hit := r.cache.Get(ctx, key); hit {
				var out map[string]any
				if json.Unmarshal(cached, &out) == nil {
					return out, nil
				}
			}
		}
	}

	var output map[string]any
	err := r.executor.Execute(ctx, func(ctx context.Context) error {
		out, callErr := r.rpc.Call(ctx, def, input)
		if callErr != nil {
			return coreerrors.New(coreerrors.KindToolExecution, "toolregistry.Invoke", name, callErr)
		}
		output = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := validateAgainst(def.OutputSchema, output); err != nil {
		if r.logger != nil {
			r.logger.Warn(ctx, "toolregistry: output failed schema validation", observe.Field{Key: "tool", Value: name}, observe.Field{Key: "error", Value: err.Error()})
		}
	}

	if r.cache != nil && key != "" {
		if data, merr := json.Marshal(output); merr == nil {
			_ = r.cache.Set(ctx, key, data, cacheTTL)
		}
	}
	return output, nil
}

// Identify asks the model client which registered tools (if any) the
// user's text is asking to invoke, returning zero or more tool names.
// Any model error, or a response that fails to parse, yields an empty
// slice rather than an error — a missed tool match degrades to the
// general pipeline, which is the safe failure mode (spec.md §4.6).
func (r *Registry) Identify(ctx context.Context, userText string) []string {
	if r.generator == nil || len(r.defs) == 0 {
		return nil
	}
	resp, err := r.generator.Generate(ctx, modelclient.GenerateRequest{
		SystemPrompt: identifyPrompt(r.order, r.defs),
		Messages:     []modelclient.Message{{Role: modelclient.RoleUser, Content: userText}},
	})
	if err != nil || resp == nil || resp.IsFallback {
		return nil
	}
	names := parseToolNames(resp.Text)
	valid := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := r.defs[n]; ok {
			valid = append(valid, n)
		}
	}
	return valid
}

func identifyPrompt(order []string, defs map[string]ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You identify which of the following tools (if any) a user's message is asking to invoke.\n")
	b.WriteString("Respond with ONLY a JSON array of tool names, e.g. [\"list_events\"]. Use [] if none apply.\n\n")
	b.WriteString("Tools:\n")
	for _, name := range order {
		d := defs[name]
		b.WriteString("- ")
		b.WriteString(name)
		if d.Description != "" {
			b.WriteString(": ")
			b.WriteString(d.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseToolNames extracts a JSON array of strings from raw model output,
// tolerating surrounding prose or a fenced code block.
func parseToolNames(raw string) []string {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &names); err != nil {
		return nil
	}
	return names
}
