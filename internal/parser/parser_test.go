package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFixedNow(t *testing.T, at time.Time) {
	t.Helper()
	orig := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = orig })
}

func TestParse_WellFormedJSON(t *testing.T) {
	withFixedNow(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	raw := `{"response":"Hello!","detected_language":"en","detected_sentiment":"POSITIVE","sentiment_confidence":0.9,"requires_attention":false,"response_tone":"friendly"}`

	got := Parse(raw)
	assert.Equal(t, "Hello!", got[KeyResponse])
	assert.Equal(t, "en", got[KeyDetectedLanguage])
	assert.Equal(t, "POSITIVE", got[KeyDetectedSentiment])
	assert.Equal(t, 0.9, got[KeySentimentConfidence])
	assert.Equal(t, false, got[KeyRequiresAttention])
	assert.Equal(t, "friendly", got[KeyResponseTone])
	assert.Equal(t, "2026-01-01T00:00:00Z", got[KeyAnalysisTimestamp])
	assert.NotContains(t, got, KeyParsingError)
}

func TestParse_StripsCodeFence(t *testing.T) {
	raw := "```json\n{\"response\":\"hi\"}\n```"
	got := Parse(raw)
	assert.Equal(t, "hi", got[KeyResponse])
}

func TestParse_MissingKeysGetDefaults(t *testing.T) {
	got := Parse(`{"response":"partial"}`)
	assert.Equal(t, "partial", got[KeyResponse])
	assert.Equal(t, "en", got[KeyDetectedLanguage])
	assert.Equal(t, "NEUTRAL", got[KeyDetectedSentiment])
	assert.Equal(t, 0.5, got[KeySentimentConfidence])
	assert.Equal(t, false, got[KeyRequiresAttention])
	assert.Equal(t, "professional", got[KeyResponseTone])
}

func TestParse_MalformedJSONNeverErrors(t *testing.T) {
	raw := "this is not json at all"
	got := Parse(raw)
	require.Contains(t, got, KeyParsingError)
	assert.Equal(t, raw, got[KeyResponse])
	assert.Equal(t, "en", got[KeyDetectedLanguage])
}

func TestParse_EmptyStringNeverErrors(t *testing.T) {
	got := Parse("")
	require.Contains(t, got, KeyParsingError)
	assert.Equal(t, "", got[KeyResponse])
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name, text, want string
	}{
		{"english", "hello how are you", "en"},
		{"chinese", "你好，今天怎么样", "zh"},
		{"tamil", "வணக்கம் எப்படி இருக்கிறீர்கள்", "ta"},
		{"malay", "Apa yang anda mahu saya buat untuk anda", "ms"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, DetectLanguage(c.text))
		})
	}
}
