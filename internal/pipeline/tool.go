package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/parser"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/toolregistry"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

const toolInstruction = `You were asked to perform an action using the tools below. Summarise the outcome for the user in plain language, mentioning any tool that failed apologetically rather than showing raw errors.

Tool results:
`

// toolInvoker is the subset of *toolregistry.Registry this executor
// needs, so tests can substitute a fake without a full registry.
type toolInvoker interface {
	Identify(ctx context.Context, userText string) []string
	Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error)
}

// Tool is the tool-invocation pipeline executor (spec.md §4.7.3).
type Tool struct {
	registry  toolInvoker
	generator modelclient.Generator
	general   *General
	logger    observe.Logger
}

// NewTool builds a Tool executor. general is used to answer when no
// tool applies.
func NewTool(registry toolInvoker, generator modelclient.Generator, general *General, logger observe.Logger) *Tool {
	return &Tool{registry: registry, generator: generator, general: general, logger: logger}
}

type toolRow struct {
	name    string
	success bool
	payload map[string]any
	errMsg  string
}

func (t *Tool) Run(ctx context.Context, userText string, history []modelclient.Message) *Envelope {
	start := time.Now()

	names := t.registry.Identify(ctx, userText)
	if len(names) == 0 {
		return t.general.RunWithNote(ctx, userText, history, "No matching action was identified; answer generally.")
	}

	rows := make([]toolRow, 0, len(names))
	for _, name := range names {
		out, err := t.registry.Invoke(ctx, name, map[string]any{"query": userText})
		if err != nil {
			rows = append(rows, toolRow{name: name, success: false, errMsg: err.Error()})
			if t.logger != nil {
				t.logger.Warn(ctx, "pipeline/tool: invocation failed", observe.Field{Key: "tool", Value: name}, observe.Field{Key: "error", Value: err.Error()})
			}
			continue
		}
		rows = append(rows, toolRow{name: name, success: true, payload: out})
	}

	messages := append(trimHistory(history), modelclient.Message{Role: modelclient.RoleUser, Content: userText})
	resp, err := t.generator.Generate(ctx, modelclient.GenerateRequest{
		SystemPrompt: BasePrompt(toolInstruction + formatToolResults(rows)),
		Messages:     messages,
	})
	if err != nil || resp.IsFallback {
		return fallbackEnvelope(ClassificationFallback, start)
	}

	parsed := parser.Parse(resp.Text)
	return envelopeFromParsed(parsed, ClassificationTool, nil, names, start)
}

func formatToolResults(rows []toolRow) string {
	var b strings.Builder
	for _, r := range rows {
		if r.success {
			fmt.Fprintf(&b, "- %s: succeeded, result=%v\n", r.name, r.payload)
		} else {
			fmt.Fprintf(&b, "- %s: failed, error=%s\n", r.name, r.errMsg)
		}
	}
	return b.String()
}

var _ Executor = (*Tool)(nil)
var _ toolInvoker = (*toolregistry.Registry)(nil)
