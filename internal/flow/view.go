package flow

import (
	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// Button labels for the forward action.
const (
	LabelNext   = "Next"
	LabelSubmit = "Submit"
)

// View is everything a display needs to render the current step.
type View struct {
	SessionID  string                 `json:"session_id"`
	Generation int                    `json:"generation"`
	TestMode   bool                   `json:"test_mode,omitempty"`
	Question   *catalog.Question      `json:"question,omitempty"`
	Choices    []catalog.Option       `json:"choices,omitempty"`
	Answer     *models.Answer         `json:"answer,omitempty"`
	Answers    models.Answers         `json:"answers"`
	Step       int                    `json:"step"`
	Total      int                    `json:"total"`
	Progress   int                    `json:"progress"`
	NextLabel  string                 `json:"next_label,omitempty"`
	CanRetreat bool                   `json:"can_retreat"`
	Terminated bool                   `json:"terminated"`
	Verdict    models.Verdict         `json:"verdict"`
	Submission models.SubmissionState `json:"submission"`
	Action     Action                 `json:"action"`
	// Messages pending for the user.
	ValidationError string `json:"validation_error,omitempty"`
	Advisory        string `json:"advisory,omitempty"`
	LeadID          string `json:"lead_id,omitempty"`
}

// View builds the display model for s.
func (s *Session) View() View {
	v := View{
		SessionID:       s.ID,
		Generation:      s.State.Generation,
		TestMode:        s.TestMode,
		Answers:         s.Answers.Clone(),
		Total:           s.Catalog.Len(),
		Terminated:      s.State.Terminated,
		Verdict:         s.State.Verdict,
		Submission:      s.State.Submission,
		Action:          s.Dispatch(),
		ValidationError: s.State.ValidationError,
		Advisory:        s.State.Advisory,
		LeadID:          s.State.LeadID,
	}

	if q, ok := s.Current(); ok {
		v.Question = &q
		v.Choices = q.Choices()
		if a, answered := s.Answers.Get(q.ID); answered {
			v.Answer = &a
		}
		v.Step = s.State.Cursor + 1
		v.NextLabel = LabelNext
		if s.State.Cursor == s.Catalog.Len()-1 {
			v.NextLabel = LabelSubmit
		}
		v.CanRetreat = s.State.Cursor > 0
	} else {
		v.Step = v.Total
		v.CanRetreat = s.State.Submission == models.SubmissionNone || s.State.Submission == models.SubmissionFailed
	}
	if v.Total > 0 {
		v.Progress = v.Step * 100 / v.Total
	}
	return v
}
