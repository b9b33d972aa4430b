package dispatcher

import (
	"strings"

	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/workflow"
)

// workflowTriggers maps a lexical hint to the workflow kind it starts.
// Neither spec.md nor the teacher names the actual trigger condition, so
// this keyword list is the dispatcher's own design call: a session with
// no open workflow that mentions one of these words starts one instead
// of going through the intent router (spec.md §4.11, §8 scenario 6).
var workflowTriggers = []struct {
	keyword string
	kind    workflow.Kind
}{
	{"pothole", workflow.KindIncidentReport},
	{"report", workflow.KindIncidentReport},
	{"broken", workflow.KindIncidentReport},
	{"leak", workflow.KindIncidentReport},
	{"request", workflow.KindServiceRequest},
	{"complain", workflow.KindFeedback},
	{"complaint", workflow.KindFeedback},
	{"feedback", workflow.KindFeedback},
}

// detectWorkflowTrigger returns the workflow kind implied by text, if any.
func detectWorkflowTrigger(text string) (workflow.Kind, bool) {
	lower := strings.ToLower(text)
	for _, t := range workflowTriggers {
		if strings.Contains(lower, t.keyword) {
			return t.kind, true
		}
	}
	return "", false
}
