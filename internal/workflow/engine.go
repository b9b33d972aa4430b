package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	coreerrors "github.com/kaisan-axrail/mbppchatbot-sub000/internal/errors"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
)

const (
	attrTicketNumber = "ticket_number"
	attrSessionID    = "session_id"
	attrFeedback     = "feedback"
	attrCategory     = "category"
	attrSubCategory  = "sub_category"
	attrCreatedAt    = "created_at"
	attrHazard       = "hazard"

	attrEventID = "event_id"
	attrEventType = "event_type"
	attrTimestamp = "timestamp"

	ticketTTL       = 90 * 24 * time.Hour
	maxTicketRetries = 5
	imagePrefix      = "incidents/"
)

var affirmativeReplies = []string{"yes", "y", "yeah", "yep", "confirm", "correct", "ok", "okay"}

// Engine holds every in-flight workflow in memory, keyed by workflow id
// (spec.md §4.11: "The engine holds each workflow in memory").
type Engine struct {
	mu         sync.Mutex
	workflows  map[string]*Workflow
	classifier *Classifier
	kv         store.KV
	blob       store.Blob
	ticketsTable string
	eventsTable  string
	logger       observe.Logger
	nowFunc      func() time.Time
}

// New builds an Engine.
func New(classifier *Classifier, kv store.KV, blob store.Blob, ticketsTable, eventsTable string, logger observe.Logger) *Engine {
	return &Engine{
		workflows:    make(map[string]*Workflow),
		classifier:   classifier,
		kv:           kv,
		blob:         blob,
		ticketsTable: ticketsTable,
		eventsTable:  eventsTable,
		logger:       logger,
		nowFunc:      time.Now,
	}
}

// Start allocates a new workflow in the collecting state and returns it
// plus the first collection prompt.
func (e *Engine) Start(sessionID string, kind Kind) (*Workflow, string) {
	wf := &Workflow{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Kind:        kind,
		State:       StateCollecting,
		Accumulator: make(map[string]string),
	}
	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.mu.Unlock()
	return wf, nextPrompt(wf)
}

// Get returns the workflow bound to id, if any.
func (e *Engine) Get(id string) (*Workflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf, ok := e.workflows[id]
	return wf, ok
}

// Step advances the workflow identified by id with one user reply.
func (e *Engine) Step(ctx context.Context, id, text string, imageData []byte) (*StepResult, error) {
	e.mu.Lock()
	wf, ok := e.workflows[id]
	e.mu.Unlock()
	if !ok {
		return nil, coreerrors.ErrWorkflowNotFound
	}

	switch wf.State {
	case StateCollecting:
		return e.stepCollecting(ctx, wf, text, imageData)
	case StateAwaitingConfirm:
		return e.stepConfirm(ctx, wf, text)
	default:
		return nil, coreerrors.New(coreerrors.KindWorkflowPrecondition, "workflow.Step", fmt.Sprintf("unexpected state %s", wf.State), nil)
	}
}

func (e *Engine) stepCollecting(ctx context.Context, wf *Workflow, text string, imageData []byte) (*StepResult, error) {
	fields := requiredFields(wf.Kind)
	for _, f := range fields {
		if wf.Accumulator[f] == "" {
			wf.Accumulator[f] = text
			break
		}
	}
	if len(imageData) > 0 {
		wf.StagedImage = imageData
	}

	if !allFieldsPresent(wf, fields) {
		return &StepResult{Message: nextPrompt(wf)}, nil
	}

	wf.State = StateClassifying
	classification := e.classifier.Classify(ctx, accumulatorText(wf), wf.StagedImage)
	wf.Preview = &TicketPreview{
		Feedback:    classification.Feedback,
		Category:    classification.Category,
		SubCategory: classification.SubCategory,
		Hazard:      classification.Hazard,
		Summary:     previewSummary(wf, classification),
	}
	wf.State = StateAwaitingConfirm

	return &StepResult{Message: wf.Preview.Summary, Escalation: classification.Hazard}, nil
}

func (e *Engine) stepConfirm(ctx context.Context, wf *Workflow, text string) (*StepResult, error) {
	if !isAffirmative(text) {
		wf.Accumulator = make(map[string]string)
		wf.StagedImage = nil
		wf.Preview = nil
		wf.State = StateCollecting
		return &StepResult{Message: "No problem, let's start over. " + nextPrompt(wf)}, nil
	}

	ticketNumber, err := e.commit(ctx, wf)
	if err != nil {
		return nil, err
	}
	wf.State = StateCommitted
	return &StepResult{
		Message:      fmt.Sprintf("Your ticket has been created: %s", ticketNumber),
		Committed:    true,
		TicketNumber: ticketNumber,
	}, nil
}

// commit uploads any staged image, writes the ticket row under a fresh
// ticket number with a conditional-put retry loop on collision, and
// appends an incident_created event (spec.md §4.11, §4.11.2).
func (e *Engine) commit(ctx context.Context, wf *Workflow) (string, error) {
	if len(wf.StagedImage) > 0 {
		key := imagePrefix + wf.ID
		if err := e.blob.Put(ctx, key, wf.StagedImage, "application/octet-stream"); err != nil {
			return "", fmt.Errorf("workflow: upload staged image: %w", err)
		}
	}

	now := e.nowFunc().UTC()
	var ticketNumber string
	var putErr error
	for attempt := 0; attempt < maxTicketRetries; attempt++ {
		ticketNumber = generateTicketNumber(now.Add(time.Duration(attempt) * time.Millisecond))
		item := store.Item{
			attrTicketNumber: ticketNumber,
			attrSessionID:    wf.SessionID,
			attrFeedback:     wf.Preview.Feedback,
			attrCategory:     wf.Preview.Category,
			attrSubCategory:  wf.Preview.SubCategory,
			attrHazard:       wf.Preview.Hazard,
			attrCreatedAt:    now.Format(time.RFC3339Nano),
		}
		putErr = e.kv.PutIfAbsent(ctx, e.ticketsTable, item, ticketTTL)
		if putErr == nil {
			break
		}
		if !errors.Is(putErr, store.ErrConditionFailed) {
			return "", fmt.Errorf("workflow: write ticket row: %w", putErr)
		}
	}
	if putErr != nil {
		return "", coreerrors.ErrTicketCollision
	}

	eventItem := store.Item{
		attrEventID:      uuid.NewString(),
		attrTicketNumber: ticketNumber,
		attrEventType:    "incident_created",
		attrTimestamp:    now.Format(time.RFC3339Nano),
	}
	if err := e.kv.Put(ctx, e.eventsTable, eventItem, 0); err != nil && e.logger != nil {
		e.logger.Error(ctx, "workflow: failed to append incident_created event", observe.Field{Key: "ticket_number", Value: ticketNumber}, observe.Field{Key: "error", Value: err.Error()})
	}

	return ticketNumber, nil
}

func allFieldsPresent(wf *Workflow, fields []string) bool {
	for _, f := range fields {
		if wf.Accumulator[f] == "" {
			return false
		}
	}
	return true
}

func nextPrompt(wf *Workflow) string {
	for _, f := range requiredFields(wf.Kind) {
		if wf.Accumulator[f] == "" {
			return promptFor(f)
		}
	}
	return "Thanks, let me review that."
}

func promptFor(field string) string {
	switch field {
	case "location":
		return "Where is this happening? Please share the location."
	case "request_type":
		return "What kind of request is this?"
	default:
		return "Please describe the issue."
	}
}

func accumulatorText(wf *Workflow) string {
	parts := make([]string, 0, len(wf.Accumulator))
	for _, f := range requiredFields(wf.Kind) {
		if v := wf.Accumulator[f]; v != "" {
			parts = append(parts, f+": "+v)
		}
	}
	return strings.Join(parts, "\n")
}

func previewSummary(wf *Workflow, c Classification) string {
	var b strings.Builder
	b.WriteString("Here's what I have:\n")
	b.WriteString(accumulatorText(wf))
	b.WriteString(fmt.Sprintf("\nCategory: %s / %s (%s)\n", c.Category, c.SubCategory, c.Feedback))
	b.WriteString("Shall I submit this ticket? (yes/no)")
	return b.String()
}

func isAffirmative(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, a := range affirmativeReplies {
		if lower == a {
			return true
		}
	}
	return false
}
