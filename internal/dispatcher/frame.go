// Package dispatcher implements the connection dispatcher of spec.md
// §4.12: the websocket-facing orchestration layer that allocates
// sessions, classifies and routes messages, and streams structured
// replies back on the same connection.
package dispatcher

import (
	"strings"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/pipeline"
)

// Ingress message types (spec.md §4.12, §6).
const (
	TypeUserMessage = "user_message"
	TypePing        = "ping"
	TypeSystem      = "system"
)

// Egress frame types (spec.md §4.12, §6).
const (
	TypeConnectionEstablished = "connection_established"
	TypePong                  = "pong"
	TypeAssistantMessage      = "assistant_message"
	TypeStatusResponse        = "status_response"
	TypeEscalationNotice      = "escalation_notice"
	TypeError                 = "error"
)

// IngressFrame accepts both historical ingress shapes named in spec.md
// §4.12: {action, message} and {type, content}. normalize folds the
// former into the latter.
type IngressFrame struct {
	Type      string `json:"type,omitempty"`
	Action    string `json:"action,omitempty"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	HasImage  bool   `json:"hasImage,omitempty"`
	ImageData string `json:"imageData,omitempty"`
	Command   string `json:"command,omitempty"`
}

// normalize returns the effective (type, content) pair, folding the
// historical {action, message} shape into {type, content}. The old
// shape predates ping/system frames, so any message carrying "action"
// instead of "type" is normalized to user_message.
func (f IngressFrame) normalize() (msgType, content string) {
	msgType = f.Type
	content = f.Content
	if msgType == "" && f.Action != "" {
		msgType = TypeUserMessage
	}
	if content == "" {
		content = f.Message
	}
	return msgType, content
}

func validMessageType(t string) bool {
	switch t {
	case TypeUserMessage, TypePing, TypeSystem:
		return true
	default:
		return false
	}
}

// EgressFrame is the uniform outbound shape of spec.md §6: a transport
// envelope carrying a reply-pipeline Envelope's fields alongside
// message/session bookkeeping.
type EgressFrame struct {
	Type          string         `json:"type"`
	MessageID     string         `json:"messageId,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"`
	Content       string         `json:"content,omitempty"`
	QueryType     string         `json:"query_type,omitempty"`
	Sources       []string       `json:"sources,omitempty"`
	ToolsUsed     []string       `json:"tools_used,omitempty"`
	LanguageData  *LanguageData  `json:"language_data,omitempty"`
	SentimentData *SentimentData `json:"sentiment_data,omitempty"`
	IsFallback    bool           `json:"is_fallback,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// LanguageData is the egress frame's language_data block (spec.md §6).
type LanguageData struct {
	DetectedLanguage string  `json:"detected_language"`
	LanguageName     string  `json:"language_name"`
	Confidence       float64 `json:"confidence"`
}

// SentimentData is the egress frame's sentiment_data block (spec.md §6).
type SentimentData struct {
	Sentiment         string  `json:"sentiment"`
	Confidence        float64 `json:"confidence"`
	RequiresAttention bool    `json:"requires_attention"`
}

var languageNames = map[string]string{
	"en": "English",
	"ms": "Malay",
	"zh": "Mandarin",
	"ta": "Tamil",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// assistantFrame renders a pipeline Envelope as an assistant_message
// egress frame, bound to messageID/sessionID/timestamp.
func assistantFrame(messageID, sessionID, timestamp string, env *pipeline.Envelope) EgressFrame {
	frame := EgressFrame{
		Type:       TypeAssistantMessage,
		MessageID:  messageID,
		SessionID:  sessionID,
		Timestamp:  timestamp,
		Content:    env.Text,
		QueryType:  env.Classification,
		Sources:    env.Sources,
		ToolsUsed:  env.ToolsUsed,
		IsFallback: env.IsFallback,
	}
	if env.DetectedLanguage != "" {
		frame.LanguageData = &LanguageData{
			DetectedLanguage: env.DetectedLanguage,
			LanguageName:     languageName(env.DetectedLanguage),
			Confidence:       1,
		}
	}
	if env.Sentiment != "" {
		frame.SentimentData = &SentimentData{
			Sentiment:         env.Sentiment,
			Confidence:        env.SentimentConfidence,
			RequiresAttention: env.RequiresAttention,
		}
	}
	return frame
}
