package pipeline

import (
	"time"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/parser"
)

// maxHistoryMessages is the most recent role-tagged turns prepended to a
// pipeline call (spec.md §4.7.1).
const maxHistoryMessages = 10

// trimHistory keeps at most the most recent maxHistoryMessages entries
// with non-empty content, preserving order.
func trimHistory(history []modelclient.Message) []modelclient.Message {
	filtered := make([]modelclient.Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		filtered = append(filtered, m)
	}
	if len(filtered) <= maxHistoryMessages {
		return filtered
	}
	return filtered[len(filtered)-maxHistoryMessages:]
}

// envelopeFromParsed converts a parser.Parse result into an Envelope,
// tagging it with the pipeline's classification and any sources/tools.
func envelopeFromParsed(parsed map[string]any, classification string, sources, toolsUsed []string, start time.Time) *Envelope {
	return &Envelope{
		Text:                getString(parsed, parser.KeyResponse, ""),
		Classification:      classification,
		Sources:             sources,
		ToolsUsed:           toolsUsed,
		ResponseMS:          time.Since(start).Milliseconds(),
		DetectedLanguage:    getString(parsed, parser.KeyDetectedLanguage, "en"),
		Sentiment:           getString(parsed, parser.KeyDetectedSentiment, "NEUTRAL"),
		SentimentConfidence: getFloat(parsed, parser.KeySentimentConfidence, 0.5),
		RequiresAttention:   getBool(parsed, parser.KeyRequiresAttention, false),
	}
}

// fallbackEnvelope is the deterministic reply used when a pipeline's
// model call fails outright or the deadline is exceeded.
func fallbackEnvelope(classification string, start time.Time) *Envelope {
	return &Envelope{
		Text:                "I'm having trouble reaching the assistant service right now. Please try again shortly.",
		Classification:      classification,
		ResponseMS:          time.Since(start).Milliseconds(),
		DetectedLanguage:    "en",
		Sentiment:           "NEUTRAL",
		SentimentConfidence: 0.5,
		IsFallback:          true,
	}
}

func getString(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func getFloat(m map[string]any, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func getBool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
