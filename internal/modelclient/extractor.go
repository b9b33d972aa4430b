package modelclient

// ExtractText implements the dialect-agnostic text extractor spec.md
// §4.2 calls for: given a raw decoded JSON response body (as would
// arrive from a bare bedrock-runtime InvokeModel call rather than the
// typed Converse/Messages SDKs this client otherwise uses), try the
// dialect-B shapes first, then the dialect-A shape, and return "" on a
// complete miss rather than raising. Exported for any caller that
// receives a raw response body instead of the typed SDK response the
// dialect implementations parse directly.
func ExtractText(raw map[string]any) string {
	if text := extractDialectBJSON(raw); text != "" {
		return text
	}
	return extractDialectAJSON(raw)
}

// extractDialectBJSON tries, in order: output.message.content[].text
// (Converse-shaped) then content[].text (bare InvokeModel-shaped) — the
// two forms spec.md §4.2 says a dialect-B response may take.
func extractDialectBJSON(raw map[string]any) string {
	if output, ok := raw["output"].(map[string]any); ok {
		if message, ok := output["message"].(map[string]any); ok {
			if text := firstBlockText(message["content"], "text"); text != "" {
				return text
			}
		}
	}
	return firstBlockText(raw["content"], "text")
}

// extractDialectAJSON tries content[].text where each block also
// carries type:"text", the legacy Anthropic Messages API shape.
func extractDialectAJSON(raw map[string]any) string {
	blocks, ok := raw["content"].([]any)
	if !ok {
		return ""
	}
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := block["type"].(string); t != "" && t != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok && text != "" {
			return text
		}
	}
	return ""
}

func firstBlockText(value any, textKey string) string {
	blocks, ok := value.([]any)
	if !ok {
		return ""
	}
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := block[textKey].(string); ok && text != "" {
			return text
		}
	}
	return ""
}
