package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/parser"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/retrieval"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

const ragInstruction = `Answer the user's question using ONLY the context below. If the context doesn't contain the answer, say so plainly. Do not add citations, footnotes, or source markers in your reply body — sources are attached separately by the system.

Context:
`

// RAG is the retrieval-augmented pipeline executor (spec.md §4.7.2).
type RAG struct {
	retrieval      retrieval.Client
	generator      modelclient.Generator
	general        *General
	limit          int
	threshold      float64
	contextCharCap int
	logger         observe.Logger
}

// RAGConfig tunes the retrieval call and context assembly.
type RAGConfig struct {
	Limit          int
	Threshold      float64
	ContextCharCap int
}

// NewRAG builds a RAG executor. general is used to answer when
// retrieval returns nothing relevant.
func NewRAG(client retrieval.Client, generator modelclient.Generator, general *General, cfg RAGConfig, logger observe.Logger) *RAG {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.ContextCharCap <= 0 {
		cfg.ContextCharCap = 8000
	}
	return &RAG{retrieval: client, generator: generator, general: general, limit: cfg.Limit, threshold: cfg.Threshold, contextCharCap: cfg.ContextCharCap, logger: logger}
}

func (r *RAG) Run(ctx context.Context, userText string, history []modelclient.Message) *Envelope {
	start := time.Now()

	chunks, err := r.retrieval.Search(ctx, userText, r.limit, r.threshold)
	if err != nil {
		if r.logger != nil {
			r.logger.Error(ctx, "pipeline/rag: retrieval failed", observe.Field{Key: "error", Value: err.Error()})
		}
		return r.general.RunWithNote(ctx, userText, history, "No reference material could be retrieved; answer from general knowledge and say you're unsure if relevant.")
	}
	if len(chunks) == 0 {
		return r.general.RunWithNote(ctx, userText, history, "No relevant reference material was found; answer from general knowledge and say you're unsure if relevant.")
	}

	contextBlock, sources := buildContext(chunks, r.contextCharCap)
	messages := append(trimHistory(history), modelclient.Message{Role: modelclient.RoleUser, Content: userText})

	resp, err := r.generator.Generate(ctx, modelclient.GenerateRequest{
		SystemPrompt: BasePrompt(ragInstruction + contextBlock),
		Messages:     messages,
	})
	if err != nil || resp.IsFallback {
		return fallbackEnvelope(ClassificationFallback, start)
	}

	parsed := parser.Parse(resp.Text)
	return envelopeFromParsed(parsed, ClassificationRAG, sources, nil, start)
}

// buildContext renders each chunk as "[Document k — source]\ncontent\n",
// truncating once the cumulative length would exceed charCap while
// preserving rank order, and returns the distinct sources used ordered
// by each source's max score descending.
func buildContext(chunks []retrieval.DocumentChunk, charCap int) (string, []string) {
	var b strings.Builder
	bestScore := make(map[string]float64)
	used := make([]string, 0, len(chunks))
	seen := make(map[string]bool)

	for i, c := range chunks {
		block := fmt.Sprintf("[Document %d — %s]\n%s\n", i+1, c.Source, c.Content)
		if b.Len()+len(block) > charCap {
			break
		}
		b.WriteString(block)
		if !seen[c.Source] {
			seen[c.Source] = true
			used = append(used, c.Source)
		}
		if c.Score > bestScore[c.Source] {
			bestScore[c.Source] = c.Score
		}
	}

	sort.SliceStable(used, func(i, j int) bool {
		return bestScore[used[i]] > bestScore[used[j]]
	})
	return b.String(), used
}

var _ Executor = (*RAG)(nil)
