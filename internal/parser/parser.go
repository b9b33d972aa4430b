// Package parser implements the structured-output parser described in
// spec.md §4.9: it turns a model's raw text reply into a defaulted
// envelope map and never returns an error — a malformed reply degrades
// to a defaulted envelope carrying the raw text, not a failure.
package parser

import (
	"encoding/json"
	"strings"
	"time"
)

// Result keys, shared with internal/pipeline's envelope construction.
const (
	KeyResponse            = "response"
	KeyDetectedLanguage    = "detected_language"
	KeyDetectedSentiment   = "detected_sentiment"
	KeySentimentConfidence = "sentiment_confidence"
	KeyRequiresAttention   = "requires_attention"
	KeyResponseTone        = "response_tone"
	KeyAnalysisTimestamp   = "analysis_timestamp"
	KeyParsingError        = "parsing_error"
)

// nowFunc is overridable in tests for a deterministic analysis_timestamp.
var nowFunc = time.Now

// Parse turns raw model text into a defaulted envelope map. It never
// returns an error: any failure is captured as a parsing_error entry in
// the returned map instead.
func Parse(raw string) map[string]any {
	stripped := stripCodeFence(raw)

	var decoded map[string]any
	parseErr := json.Unmarshal([]byte(stripped), &decoded)
	if parseErr != nil || decoded == nil {
		decoded = map[string]any{}
		decoded[KeyParsingError] = parseErrMessage(parseErr, stripped)
	}

	fillDefault(decoded, KeyResponse, raw)
	fillDefault(decoded, KeyDetectedLanguage, "en")
	fillDefault(decoded, KeyDetectedSentiment, "NEUTRAL")
	fillDefault(decoded, KeySentimentConfidence, 0.5)
	fillDefault(decoded, KeyRequiresAttention, false)
	fillDefault(decoded, KeyResponseTone, "professional")
	decoded[KeyAnalysisTimestamp] = nowFunc().UTC().Format(time.RFC3339)

	return decoded
}

func fillDefault(m map[string]any, key string, def any) {
	if v, ok := m[key]; !ok || v == nil {
		m[key] = def
	}
}

func parseErrMessage(err error, stripped string) string {
	if err != nil {
		return err.Error()
	}
	if stripped == "" {
		return "empty model response"
	}
	return "model response did not decode to a JSON object"
}

// stripCodeFence removes a leading/trailing ``` or ```json fence if the
// text is wrapped in one.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
