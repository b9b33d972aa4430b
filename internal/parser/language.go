package parser

import "strings"

// malayHints is a small set of lexical markers common in Malay text that
// uses the Latin script and so can't be distinguished by script range
// alone.
var malayHints = []string{"yang", "tidak", "saya", "anda", "dengan", "untuk", "adalah"}

// DetectLanguage is the light, model-free heuristic exposed for callers
// that need a language guess without a model round trip: script-range
// checks for Chinese and Tamil, lexical hints for Malay, otherwise
// English.
func DetectLanguage(text string) string {
	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			return "zh"
		case r >= 0x0B80 && r <= 0x0BFF:
			return "ta"
		}
	}
	lower := strings.ToLower(text)
	for _, hint := range malayHints {
		if strings.Contains(lower, hint) {
			return "ms"
		}
	}
	return "en"
}
