package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

var testContact = models.ContactInfo{
	Name:             "Jordan Rivera",
	Phone:            "(555) 010-4477",
	Email:            "jordan@example.com",
	PreferredContact: models.ContactMethodPhone,
}

func qualifiedSession(t *testing.T, e *Engine) *Session {
	t.Helper()
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), "")
	if s.State.Verdict != models.VerdictQualified {
		t.Fatalf("setup: expected qualified, got %s", s.State.Verdict)
	}
	return s
}

// recordingSubmitter captures submissions and replies with a scripted result.
type recordingSubmitter struct {
	calls  []Submission
	result SubmitResult
	err    error
}

func (r *recordingSubmitter) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	r.calls = append(r.calls, sub)
	return r.result, r.err
}

func TestSubmitSuccess(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)
	sub := &recordingSubmitter{result: SubmitResult{Status: models.APIStatusOK, LeadID: "lead-42"}}

	if err := e.Submit(context.Background(), s, testContact, sub); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.State.Submission != models.SubmissionSubmitted || s.State.LeadID != "lead-42" {
		t.Errorf("unexpected state %+v", s.State)
	}
	if len(sub.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(sub.calls))
	}
	got := sub.calls[0]
	if !got.Qualified || got.Contact.Simplified || got.SessionID != s.ID || got.Generation != 0 {
		t.Errorf("unexpected submission %+v", got)
	}
	if !got.Answers.Has(models.QuestionInsuranceCoverage) {
		t.Error("submission should carry the answers")
	}
	if s.Dispatch().Kind != ActionConfirmation {
		t.Errorf("expected confirmation, got %s", s.Dispatch().Kind)
	}

	if err := e.Submit(context.Background(), s, testContact, sub); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmitAtMostOneInFlight(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)

	pending, err := e.BeginSubmit(s, testContact)
	if err != nil {
		t.Fatalf("BeginSubmit: %v", err)
	}
	if s.State.Submission != models.SubmissionSubmitting {
		t.Fatalf("expected submitting, got %s", s.State.Submission)
	}
	if s.Dispatch().Kind != ActionBusy {
		t.Errorf("expected busy action, got %s", s.Dispatch().Kind)
	}
	if _, err := e.BeginSubmit(s, testContact); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got %v", err)
	}

	if err := e.FinishSubmit(s, pending, SubmitResult{Status: models.APIStatusOK}, nil); err != nil {
		t.Fatalf("FinishSubmit: %v", err)
	}
	if s.State.Submission != models.SubmissionSubmitted {
		t.Errorf("expected submitted, got %s", s.State.Submission)
	}
}

func TestSubmitFailureThenRetry(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)

	failing := &recordingSubmitter{err: errors.New("connection refused")}
	err := e.Submit(context.Background(), s, testContact, failing)
	var serr *SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SubmissionError, got %v", err)
	}
	if serr.Message != DefaultSubmitFailureMessage {
		t.Errorf("unexpected message %q", serr.Message)
	}
	if s.State.Submission != models.SubmissionFailed {
		t.Fatalf("expected failed, got %s", s.State.Submission)
	}
	if a := s.Dispatch(); a.Kind != ActionRetryableError || !a.CanSubmit {
		t.Errorf("expected retryable action, got %+v", a)
	}
	if len(s.Answers) == 0 {
		t.Error("failure must preserve the answers")
	}

	ok := &recordingSubmitter{result: SubmitResult{Status: models.APIStatusOK, LeadID: "lead-7"}}
	if err := e.Submit(context.Background(), s, testContact, ok); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.State.Submission != models.SubmissionSubmitted || s.State.SubmitError != "" {
		t.Errorf("unexpected state after retry %+v", s.State)
	}
}

func TestSubmitErrorStatus(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)
	sub := &recordingSubmitter{result: SubmitResult{Status: models.APIStatusError, Message: "Intake is closed today."}}

	err := e.Submit(context.Background(), s, testContact, sub)
	if got := UserMessage(err); got != "Intake is closed today." {
		t.Errorf("expected collaborator message, got %q (err %v)", got, err)
	}
	if s.State.Submission != models.SubmissionFailed {
		t.Errorf("expected failed, got %s", s.State.Submission)
	}
	if s.Dispatch().Message != "Intake is closed today." {
		t.Errorf("dispatcher should surface the message, got %q", s.Dispatch().Message)
	}
}

func TestSubmitBeforeVerdict(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	if _, err := e.BeginSubmit(s, testContact); !errors.Is(err, ErrNotTerminated) {
		t.Errorf("expected ErrNotTerminated, got %v", err)
	}
}

func TestSubmitInvalidContact(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)
	_, err := e.BeginSubmit(s, models.ContactInfo{Name: "No Way To Reach"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !errors.Is(err, models.ErrMissingContact) {
		t.Errorf("expected wrapped ErrMissingContact, got %v", err)
	}
	if s.State.Submission != models.SubmissionNone {
		t.Errorf("invalid contact changed submission state to %s", s.State.Submission)
	}
}

func TestDisqualifiedSubmissionIsSimplified(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), models.QuestionAtFault)
	answerAndAdvance(t, e, s, models.BoolAnswer(true))

	sub := &recordingSubmitter{result: SubmitResult{Status: models.APIStatusOK}}
	if err := e.Submit(context.Background(), s, models.ContactInfo{Name: "Sam", Email: "sam@example.com"}, sub); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := sub.calls[0]
	if got.Qualified || !got.Contact.Simplified {
		t.Errorf("expected simplified unqualified submission, got %+v", got)
	}
}

func TestRestartDuringSubmissionDiscardsReply(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)

	pending, err := e.BeginSubmit(s, testContact)
	if err != nil {
		t.Fatal(err)
	}
	e.Restart(s)

	err = e.FinishSubmit(s, pending, SubmitResult{Status: models.APIStatusOK, LeadID: "late"}, nil)
	if !errors.Is(err, ErrStaleSubmission) {
		t.Fatalf("expected ErrStaleSubmission, got %v", err)
	}
	if s.State.Submission != models.SubmissionNone || s.State.LeadID != "" {
		t.Errorf("stale reply leaked into the new evaluation: %+v", s.State)
	}
}

func TestDeliverIgnoresCallerCancellation(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawErr error
	submitter := LeadSubmitterFunc(func(ctx context.Context, sub Submission) (SubmitResult, error) {
		sawErr = ctx.Err()
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected the submit timeout to set a deadline")
		}
		return SubmitResult{Status: models.APIStatusOK}, nil
	})
	if err := e.Submit(ctx, s, testContact, submitter); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sawErr != nil {
		t.Errorf("submitter saw cancelled context: %v", sawErr)
	}
}

func TestAbandonedSubmissionExpires(t *testing.T) {
	now := testNow
	e := newTestEngine(t)
	e.now = func() time.Time { return now }
	s := qualifiedSession(t, e)

	if _, err := e.BeginSubmit(s, testContact); err != nil {
		t.Fatalf("BeginSubmit: %v", err)
	}
	if s.State.SubmitStartedAt == nil || !s.State.SubmitStartedAt.Equal(testNow) {
		t.Fatalf("expected start time recorded, got %v", s.State.SubmitStartedAt)
	}

	now = testNow.Add(DefaultSubmitTimeout)
	if e.ExpireStaleSubmission(s) {
		t.Fatal("submission within the timeout must stay in flight")
	}
	if _, err := e.BeginSubmit(s, testContact); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}

	now = testNow.Add(DefaultSubmitTimeout + submitGrace + time.Second)
	if _, err := e.BeginSubmit(s, testContact); err != nil {
		t.Fatalf("BeginSubmit after expiry: %v", err)
	}
	if s.State.Submission != models.SubmissionSubmitting || !s.State.SubmitStartedAt.Equal(now) {
		t.Errorf("expected a fresh attempt, got %+v", s.State)
	}
}

func TestExpireStaleSubmissionWithoutStartTime(t *testing.T) {
	e := newTestEngine(t)
	s := qualifiedSession(t, e)
	s.State.Submission = models.SubmissionSubmitting

	if !e.ExpireStaleSubmission(s) {
		t.Fatal("submitting state without a start time should expire")
	}
	if s.State.Submission != models.SubmissionFailed || s.State.SubmitError != DefaultSubmitFailureMessage {
		t.Errorf("unexpected state %+v", s.State)
	}
	if s.State.SubmitStartedAt != nil {
		t.Error("start time should be cleared")
	}
}
