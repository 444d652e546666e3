package flow

import (
	"errors"
	"fmt"
)

// Sentinel errors for invalid transitions.
var (
	ErrTerminated         = errors.New("questionnaire has already ended")
	ErrNotTerminated      = errors.New("questionnaire is still in progress")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrAlreadySubmitted   = errors.New("contact details have already been submitted")
	ErrUnknownQuestion    = errors.New("unknown question")
	ErrStaleSubmission    = errors.New("submission belongs to an earlier evaluation")
)

// DefaultRequiredMessage is shown when the current question has no answer.
const DefaultRequiredMessage = "Please answer this question to continue."

// DefaultSubmitFailureMessage is shown when the lead could not be delivered.
const DefaultSubmitFailureMessage = "We couldn't send your information. Please try again."

// ValidationError reports an answer that does not let the flow advance.
// It never changes session state.
type ValidationError struct {
	QuestionID string
	Message    string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow.advance: question %s: %v", e.QuestionID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SubmissionError reports a failed lead submission. The session moves to the
// failed submission state and the user may retry.
type SubmissionError struct {
	Op      string
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// UserMessage returns the message to show for err, or "" when err carries
// none.
func UserMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var serr *SubmissionError
	if errors.As(err, &serr) {
		return serr.Message
	}
	return ""
}
