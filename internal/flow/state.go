// Package flow implements the questionnaire state machine: navigation over a
// copy-on-write catalog, early disqualification, verdict evaluation, result
// dispatch and the single-flight contact submission.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// State is the navigation and result state of one session.
type State struct {
	Cursor     int                    `json:"cursor"`
	Verdict    models.Verdict         `json:"verdict"`
	Terminated bool                   `json:"terminated"`
	Submission models.SubmissionState `json:"submission"`
	// ValidationError is the pending user-facing message for the current question.
	ValidationError string `json:"validation_error,omitempty"`
	// Advisory is set when the evaluator could not read the recorded dates.
	Advisory    string   `json:"advisory,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
	SubmitError string   `json:"submit_error,omitempty"`
	// SubmitStartedAt is set while a submission is in flight.
	SubmitStartedAt *time.Time `json:"submit_started_at,omitempty"`
	// Generation counts restarts and keys lead deduplication.
	Generation int    `json:"generation"`
	LeadID     string `json:"lead_id,omitempty"`
}

// InitialState returns the state of a fresh evaluation.
func InitialState() State {
	return State{
		Verdict:    models.VerdictUnknown,
		Submission: models.SubmissionNone,
	}
}

// Session owns one user's live catalog, answers and state. A session is not
// safe for concurrent use; callers serialise actions per session.
type Session struct {
	ID        string
	TestMode  bool
	Catalog   catalog.Catalog
	Answers   models.Answers
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Current returns the question at the cursor, if the flow is still asking.
func (s *Session) Current() (catalog.Question, bool) {
	if s.State.Terminated {
		return catalog.Question{}, false
	}
	return s.Catalog.Current(s.State.Cursor)
}

// Submission is what the lead-submission collaborator receives.
type Submission struct {
	SessionID  string             `json:"session_id"`
	Generation int                `json:"generation"`
	Answers    models.Answers     `json:"answers"`
	Contact    models.ContactInfo `json:"contact"`
	TestMode   bool               `json:"test_mode"`
	Qualified  bool               `json:"qualified"`
	Reasons    []string           `json:"reasons,omitempty"`
}

// SubmitResult is the collaborator's reply. Status is "ok" or "error".
type SubmitResult struct {
	Status  models.APIStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	LeadID  string           `json:"lead_id,omitempty"`
}

// LeadSubmitter delivers a completed evaluation with contact details.
type LeadSubmitter interface {
	Submit(ctx context.Context, sub Submission) (SubmitResult, error)
}

// LeadSubmitterFunc adapts a function to LeadSubmitter.
type LeadSubmitterFunc func(ctx context.Context, sub Submission) (SubmitResult, error)

// Submit calls f.
func (f LeadSubmitterFunc) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	return f(ctx, sub)
}

// ContactCapture collects contact details once qualification is resolved.
// Simplified asks for the reduced form offered after a disqualification.
type ContactCapture interface {
	CaptureContact(ctx context.Context, simplified bool) (models.ContactInfo, error)
}

// InputKind names a user action reported by a Display.
type InputKind string

// Input kinds.
const (
	InputAnswer  InputKind = "answer"
	InputNext    InputKind = "next"
	InputBack    InputKind = "back"
	InputSubmit  InputKind = "submit"
	InputRestart InputKind = "restart"
	InputQuit    InputKind = "quit"
)

// Input is the raw user action a Display reports back.
type Input struct {
	Kind       InputKind     `json:"kind"`
	QuestionID string        `json:"question_id,omitempty"`
	Value      models.Answer `json:"value,omitempty"`
}

// Display renders whatever the engine currently exposes and reports the
// user's next action.
type Display interface {
	Show(ctx context.Context, v View) (Input, error)
}
