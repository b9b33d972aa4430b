// Package workflow implements the incident-ticket workflow engine of
// spec.md §4.11: a small in-memory state machine per workflow id taking
// a citizen report from initiated collection through classification,
// confirmation, and final ticket commit.
package workflow

// Kind distinguishes the three ticket shapes the engine drives through
// the same state machine, differing only in which accumulator fields
// are required before classification can run.
type Kind string

const (
	KindIncidentReport Kind = "incident_report"
	KindServiceRequest Kind = "service_request"
	KindFeedback       Kind = "feedback"
)

// requiredFields lists the accumulator keys that must be non-empty
// before a workflow of this kind can leave the collecting state.
func requiredFields(kind Kind) []string {
	switch kind {
	case KindIncidentReport:
		return []string{"location", "description"}
	case KindServiceRequest:
		return []string{"request_type", "description"}
	default:
		return []string{"description"}
	}
}

// State is one step of the common state machine every workflow kind
// shares (spec.md §4.11).
type State string

const (
	StateInitiated      State = "initiated"
	StateCollecting     State = "collecting"
	StateClassifying    State = "classifying"
	StateAwaitingConfirm State = "awaiting_confirm"
	StateCommitted      State = "committed"
)

// TicketPreview is the classifier's output plus a human-readable
// summary shown to the user before commit.
type TicketPreview struct {
	Feedback    string
	Category    string
	SubCategory string
	Hazard      bool
	Summary     string
}

// Workflow is one in-flight incident ticket conversation.
type Workflow struct {
	ID          string
	SessionID   string
	Kind        Kind
	State       State
	Accumulator map[string]string
	StagedImage []byte
	Preview     *TicketPreview
}

// StepResult is what the engine hands back to the dispatcher after
// processing one user reply.
type StepResult struct {
	Message      string
	Escalation   bool
	Committed    bool
	TicketNumber string
}
