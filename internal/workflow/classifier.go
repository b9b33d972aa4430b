package workflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

// classifierPrompt fixes the closed vocabulary the classifier may emit,
// per spec.md §4.11.1.
const classifierPrompt = `You classify a citizen incident report. Read the description (and image description, if attached) and respond with ONLY a JSON object with exactly these keys:
- feedback: one of "complaint", "suggestion", "compliment"
- category: one of "JALAN" (roads), "SALIRAN" (drainage), "PERPARITAN" (sewerage), "KEBERSIHAN" (cleanliness), "LAIN" (other)
- sub_category: a short free-text sub-category, or "--" if none applies
- hazard: true if the report describes an immediate danger to public safety (exposed wiring, gas leak, structural collapse, open excavation), false otherwise`

// Classification is the classifier's structured verdict.
type Classification struct {
	Feedback    string `json:"feedback"`
	Category    string `json:"category"`
	SubCategory string `json:"sub_category"`
	Hazard      bool   `json:"hazard"`
}

func defaultClassification() Classification {
	return Classification{Feedback: "complaint", Category: "JALAN", SubCategory: "--"}
}

// Classifier calls the model client with a vision-capable prompt: text
// plus an optional image, included only when its base64 encoding is
// shorter than maxImageBytes and dropped otherwise (spec.md §4.11.1).
type Classifier struct {
	generator     modelclient.Generator
	maxImageBytes int
	logger        observe.Logger
}

// NewClassifier builds a Classifier.
func NewClassifier(generator modelclient.Generator, maxImageBytes int, logger observe.Logger) *Classifier {
	return &Classifier{generator: generator, maxImageBytes: maxImageBytes, logger: logger}
}

// Classify returns a conservative default on any model error or
// unparsable reply rather than failing the workflow step.
func (c *Classifier) Classify(ctx context.Context, text string, imageData []byte) Classification {
	content := text
	if len(imageData) > 0 {
		encoded := base64.StdEncoding.EncodeToString(imageData)
		if len(encoded) < c.maxImageBytes {
			content += "\n\n[attached image, base64-encoded]: " + encoded
		} else if c.logger != nil {
			c.logger.Warn(ctx, "workflow: staged image exceeds size bound, classifying text-only")
		}
	}

	resp, err := c.generator.Generate(ctx, modelclient.GenerateRequest{
		SystemPrompt: classifierPrompt,
		Messages:     []modelclient.Message{{Role: modelclient.RoleUser, Content: content}},
	})
	if err != nil || resp == nil || resp.IsFallback {
		return defaultClassification()
	}
	return parseClassification(resp.Text)
}

func parseClassification(raw string) Classification {
	stripped := strings.TrimSpace(raw)
	stripped = strings.TrimPrefix(stripped, "```json")
	stripped = strings.TrimPrefix(stripped, "```")
	stripped = strings.TrimSuffix(stripped, "```")
	stripped = strings.TrimSpace(stripped)

	var c Classification
	if err := json.Unmarshal([]byte(stripped), &c); err != nil || c.Feedback == "" || c.Category == "" {
		return defaultClassification()
	}
	return c
}
