package flow

import "github.com/BTreeMap/ClaimCheck/internal/models"

// ActionKind identifies which terminal view a display should render.
type ActionKind string

// Action kinds.
const (
	ActionContinue       ActionKind = "continue"
	ActionDisqualified   ActionKind = "disqualified"
	ActionContactCapture ActionKind = "contact_capture"
	ActionBusy           ActionKind = "busy"
	ActionConfirmation   ActionKind = "confirmation"
	ActionRetryableError ActionKind = "retryable_error"
)

// Result messages.
const (
	MessageQualified    = "Based on your responses, we'd like to learn more about your situation. Please provide your contact information below so we can discuss how we might be able to help."
	MessageDisqualified = "Thank you for submitting your information! We're reviewing your responses and will reach out if additional information is needed or if we have resources to assist you further."
	MessageBusy         = "Submitting your information..."
	MessageConfirmation = "Your information has been successfully received. Our legal team will reach out shortly to discuss the next steps for your case."
)

// Action is the dispatcher's decision for a terminated flow.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Message string     `json:"message,omitempty"`
	// CanSubmit reports whether contact capture should be offered.
	CanSubmit bool `json:"can_submit"`
	// Simplified selects the reduced contact form.
	Simplified bool `json:"simplified"`
	CanRestart bool `json:"can_restart"`
}

// Dispatch maps a verdict and submission state onto the view to show.
func Dispatch(verdict models.Verdict, submission models.SubmissionState) Action {
	if verdict == models.VerdictUnknown {
		return Action{Kind: ActionContinue}
	}
	simplified := verdict == models.VerdictDisqualified

	switch submission {
	case models.SubmissionSubmitting:
		return Action{Kind: ActionBusy, Message: MessageBusy, Simplified: simplified}
	case models.SubmissionSubmitted:
		return Action{Kind: ActionConfirmation, Message: MessageConfirmation, Simplified: simplified, CanRestart: true}
	case models.SubmissionFailed:
		return Action{Kind: ActionRetryableError, Message: DefaultSubmitFailureMessage, CanSubmit: true, Simplified: simplified, CanRestart: true}
	}

	if simplified {
		return Action{Kind: ActionDisqualified, Message: MessageDisqualified, CanSubmit: true, Simplified: true, CanRestart: true}
	}
	return Action{Kind: ActionContactCapture, Message: MessageQualified, CanSubmit: true}
}

// Dispatch returns the action for the session's current state.
func (s *Session) Dispatch() Action {
	if !s.State.Terminated {
		return Action{Kind: ActionContinue}
	}
	a := Dispatch(s.State.Verdict, s.State.Submission)
	if a.Kind == ActionRetryableError && s.State.SubmitError != "" {
		a.Message = s.State.SubmitError
	}
	return a
}
