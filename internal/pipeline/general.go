package pipeline

import (
	"context"
	"time"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/parser"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

// General is the default pipeline executor: base prompt, bounded
// history, structured-output parse (spec.md §4.7.1).
type General struct {
	generator modelclient.Generator
	logger    observe.Logger
}

// NewGeneral builds a General executor.
func NewGeneral(generator modelclient.Generator, logger observe.Logger) *General {
	return &General{generator: generator, logger: logger}
}

func (g *General) Run(ctx context.Context, userText string, history []modelclient.Message) *Envelope {
	return g.RunWithNote(ctx, userText, history, "")
}

// RunWithNote runs the general pipeline with an additional system-prompt
// note appended — used when the RAG or Tool executor delegates down
// because it found nothing to work with.
func (g *General) RunWithNote(ctx context.Context, userText string, history []modelclient.Message, note string) *Envelope {
	start := time.Now()
	messages := append(trimHistory(history), modelclient.Message{Role: modelclient.RoleUser, Content: userText})

	resp, err := g.generator.Generate(ctx, modelclient.GenerateRequest{
		SystemPrompt: BasePrompt(note),
		Messages:     messages,
	})
	if err != nil {
		if g.logger != nil {
			g.logger.Error(ctx, "pipeline/general: generate failed", observe.Field{Key: "error", Value: err.Error()})
		}
		return fallbackEnvelope(ClassificationFallback, start)
	}
	if resp.IsFallback {
		return fallbackEnvelope(ClassificationFallback, start)
	}

	parsed := parser.Parse(resp.Text)
	return envelopeFromParsed(parsed, ClassificationGeneral, nil, nil, start)
}

var _ Executor = (*General)(nil)
