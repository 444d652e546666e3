package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/qualify"
	"github.com/BTreeMap/ClaimCheck/internal/util"
)

// DefaultSubmitTimeout bounds a single lead submission.
const DefaultSubmitTimeout = 30 * time.Second

// submitGrace covers saving the outcome after the submitter returns.
const submitGrace = 5 * time.Second

// Engine drives sessions through a base catalog. It holds no per-session
// state and is safe for concurrent use.
type Engine struct {
	base          catalog.Catalog
	rules         qualify.Rules
	now           func() time.Time
	newID         func() string
	submitTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules sets the eligibility thresholds.
func WithRules(rules qualify.Rules) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// WithClock sets the time source used for date rules.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator sets how session ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// WithSubmitTimeout bounds how long a lead submission may run.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.submitTimeout = d
		}
	}
}

// NewEngine creates an Engine over base.
func NewEngine(base catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		base:          base,
		rules:         qualify.DefaultRules(),
		now:           time.Now,
		newID:         util.NewSessionID,
		submitTimeout: DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	slog.Debug("Engine created", "questions", base.Len(), "accidentWindowDays", e.rules.AccidentWindowDays, "treatmentWindowDays", e.rules.TreatmentWindowDays)
	return e
}

// Catalog returns the base catalog every session starts from.
func (e *Engine) Catalog() catalog.Catalog {
	return e.base
}

// Rules returns the eligibility thresholds in use.
func (e *Engine) Rules() qualify.Rules {
	return e.rules
}

// NewSession starts a fresh evaluation in Asking(0).
func (e *Engine) NewSession(testMode bool) *Session {
	now := e.now()
	s := &Session{
		ID:        e.newID(),
		TestMode:  testMode,
		Catalog:   e.base,
		Answers:   models.Answers{},
		State:     InitialState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	slog.Info("Engine.NewSession: session started", "session", s.ID, "testMode", testMode)
	return s
}

// Record stores the user's raw input for a question in the live catalog.
// Checkbox input is merged into the existing coverage flags.
func (e *Engine) Record(s *Session, questionID string, value models.Answer) error {
	if s.State.Terminated {
		return ErrTerminated
	}
	q, ok := s.Catalog.Lookup(questionID)
	if !ok {
		slog.Warn("Engine.Record: unknown question", "session", s.ID, "question", questionID)
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}

	if q.Kind == catalog.KindCheckbox {
		s.Answers.MergeFlags(q.ID, value.Flags)
	} else {
		s.Answers.Set(q.ID, value)
	}
	s.State.ValidationError = ""
	s.UpdatedAt = e.now()
	slog.Debug("Engine.Record: answer stored", "session", s.ID, "question", q.ID, "kind", q.Kind)
	return nil
}

// Advance validates the current answer and moves the flow forward: it splices
// in a triggered follow-up, exits early on a disqualifying answer, evaluates
// the verdict after the last question and otherwise steps the cursor.
// A *ValidationError leaves the cursor, answers and catalog untouched.
func (e *Engine) Advance(s *Session) error {
	if s.State.Terminated {
		return ErrTerminated
	}
	q, ok := s.Catalog.Current(s.State.Cursor)
	if !ok {
		slog.Error("Engine.Advance: cursor outside catalog", "session", s.ID, "cursor", s.State.Cursor, "len", s.Catalog.Len())
		s.State.Terminated = true
		return ErrTerminated
	}

	if err := q.Check(s.Answers); err != nil {
		msg := DefaultRequiredMessage
		if errors.Is(err, catalog.ErrInvalidAnswer) && q.InvalidMessage != "" {
			msg = q.InvalidMessage
		}
		s.State.ValidationError = msg
		slog.Debug("Engine.Advance: validation failed", "session", s.ID, "question", q.ID, "error", err)
		return &ValidationError{QuestionID: q.ID, Message: msg, Err: err}
	}
	s.State.ValidationError = ""
	s.UpdatedAt = e.now()

	value, _ := s.Answers.Get(q.ID)
	if q.TriggersFollowUp(value) {
		s.Catalog = s.Catalog.InsertAfter(s.State.Cursor, q.FollowUp.Question)
	}

	if q.Disqualifies(value) {
		e.evaluate(s)
		s.State.Verdict = models.VerdictDisqualified
		s.State.Cursor = s.Catalog.Len()
		s.State.Terminated = true
		slog.Info("Engine.Advance: early exit", "session", s.ID, "question", q.ID)
		return nil
	}

	if s.State.Cursor == s.Catalog.Len()-1 {
		e.evaluate(s)
	}

	s.State.Cursor++
	if s.State.Cursor >= s.Catalog.Len() {
		s.State.Terminated = true
		slog.Info("Engine.Advance: questionnaire complete", "session", s.ID, "verdict", s.State.Verdict, "reasons", s.State.Reasons)
	}
	return nil
}

// evaluate runs the qualification rules and records the verdict. A malformed
// date degrades to an unqualified verdict with an advisory message.
func (e *Engine) evaluate(s *Session) qualify.Result {
	res, err := qualify.Evaluate(s.Answers, e.now(), e.rules)
	s.State.Verdict = res.Verdict()
	s.State.Reasons = res.Reasons
	s.State.Advisory = ""
	if err != nil {
		var evalErr *qualify.EvaluationError
		if errors.As(err, &evalErr) {
			s.State.Advisory = evalErr.UserMessage()
		} else {
			s.State.Advisory = qualify.ProcessingMessage
		}
		slog.Warn("Engine.evaluate: evaluation error", "session", s.ID, "error", err)
	}
	slog.Debug("Engine.evaluate: verdict", "session", s.ID, "qualified", res.Qualified, "reasons", res.Reasons)
	return res
}

// Retreat moves the cursor back one question. Inserted follow-ups and
// answers are kept. A terminated flow that has not been submitted re-opens
// at its last question with the verdict cleared.
func (e *Engine) Retreat(s *Session) error {
	s.State.ValidationError = ""
	e.ExpireStaleSubmission(s)
	if s.State.Terminated {
		switch s.State.Submission {
		case models.SubmissionSubmitting:
			return ErrSubmissionInFlight
		case models.SubmissionSubmitted:
			return ErrAlreadySubmitted
		}
		s.State.Terminated = false
		s.State.Verdict = models.VerdictUnknown
		s.State.Submission = models.SubmissionNone
		s.State.Reasons = nil
		s.State.Advisory = ""
		s.State.SubmitError = ""
		slog.Debug("Engine.Retreat: flow re-opened", "session", s.ID)
	}
	s.State.Cursor = max(0, min(s.State.Cursor, s.Catalog.Len())-1)
	s.UpdatedAt = e.now()
	return nil
}

// Restart resets the catalog, answers and state to a fresh evaluation in one
// step. The generation counter survives so late submission replies from the
// previous evaluation are recognised as stale.
func (e *Engine) Restart(s *Session) {
	gen := s.State.Generation + 1
	s.Catalog = e.base
	s.Answers = models.Answers{}
	s.State = InitialState()
	s.State.Generation = gen
	s.UpdatedAt = e.now()
	slog.Info("Engine.Restart: evaluation reset", "session", s.ID, "generation", gen)
}

// BeginSubmit validates contact details and moves the session into the
// submitting state. The caller hands the returned Submission to a
// LeadSubmitter and reports the outcome through FinishSubmit.
func (e *Engine) BeginSubmit(s *Session, contact models.ContactInfo) (Submission, error) {
	if !s.State.Terminated || s.State.Verdict == models.VerdictUnknown {
		return Submission{}, ErrNotTerminated
	}
	e.ExpireStaleSubmission(s)
	switch s.State.Submission {
	case models.SubmissionSubmitting:
		return Submission{}, ErrSubmissionInFlight
	case models.SubmissionSubmitted:
		return Submission{}, ErrAlreadySubmitted
	}

	qualified := s.State.Verdict == models.VerdictQualified
	if !qualified {
		contact.Simplified = true
	}
	if err := contact.Validate(); err != nil {
		slog.Debug("Engine.BeginSubmit: invalid contact", "session", s.ID, "error", err)
		return Submission{}, &ValidationError{
			QuestionID: "contact",
			Message:    "Please check your contact details: " + err.Error() + ".",
			Err:        err,
		}
	}

	started := e.now()
	s.State.Submission = models.SubmissionSubmitting
	s.State.SubmitStartedAt = &started
	s.State.SubmitError = ""
	s.State.ValidationError = ""
	s.UpdatedAt = started
	slog.Info("Engine.BeginSubmit: submission started", "session", s.ID, "generation", s.State.Generation, "qualified", qualified)
	return Submission{
		SessionID:  s.ID,
		Generation: s.State.Generation,
		Answers:    s.Answers.Clone(),
		Contact:    contact,
		TestMode:   s.TestMode,
		Qualified:  qualified,
		Reasons:    append([]string(nil), s.State.Reasons...),
	}, nil
}

// ExpireStaleSubmission fails a submission that has been in flight longer
// than the submit timeout allows. Such a state is left behind when the
// process dies mid-delivery or the outcome could not be saved; failing it
// lets the user retry. It reports whether the state changed.
func (e *Engine) ExpireStaleSubmission(s *Session) bool {
	if s.State.Submission != models.SubmissionSubmitting {
		return false
	}
	if started := s.State.SubmitStartedAt; started != nil && e.now().Sub(*started) <= e.submitTimeout+submitGrace {
		return false
	}
	slog.Warn("Engine.ExpireStaleSubmission: abandoned submission failed", "session", s.ID, "generation", s.State.Generation, "started", s.State.SubmitStartedAt)
	s.State.Submission = models.SubmissionFailed
	s.State.SubmitStartedAt = nil
	s.State.SubmitError = DefaultSubmitFailureMessage
	s.UpdatedAt = e.now()
	return true
}

// Deliver calls submitter without letting the caller's cancellation abort
// a submission that is already in flight; only the submit timeout applies.
func (e *Engine) Deliver(ctx context.Context, submitter LeadSubmitter, sub Submission) (SubmitResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.submitTimeout)
	defer cancel()
	return submitter.Submit(ctx, sub)
}

// FinishSubmit records the collaborator's outcome. An error or an "error"
// status both move the session to the failed state and return a
// *SubmissionError. A reply for an earlier generation is discarded.
func (e *Engine) FinishSubmit(s *Session, sub Submission, res SubmitResult, err error) error {
	if sub.Generation != s.State.Generation || s.State.Submission != models.SubmissionSubmitting {
		slog.Warn("Engine.FinishSubmit: stale submission reply", "session", s.ID, "generation", sub.Generation, "current", s.State.Generation)
		return ErrStaleSubmission
	}
	s.UpdatedAt = e.now()
	s.State.SubmitStartedAt = nil

	if err != nil || res.Status != models.APIStatusOK {
		msg := res.Message
		if err != nil || msg == "" {
			msg = DefaultSubmitFailureMessage
		}
		s.State.Submission = models.SubmissionFailed
		s.State.SubmitError = msg
		slog.Error("Engine.FinishSubmit: submission failed", "session", s.ID, "status", res.Status, "error", err)
		if err == nil {
			err = fmt.Errorf("lead submitter replied %q: %s", res.Status, res.Message)
		}
		return &SubmissionError{Op: "flow.submit", Message: msg, Err: err}
	}

	s.State.Submission = models.SubmissionSubmitted
	s.State.LeadID = res.LeadID
	slog.Info("Engine.FinishSubmit: submission accepted", "session", s.ID, "lead", res.LeadID)
	return nil
}

// Submit runs a whole submission for callers that drive a session from a
// single goroutine.
func (e *Engine) Submit(ctx context.Context, s *Session, contact models.ContactInfo, submitter LeadSubmitter) error {
	sub, err := e.BeginSubmit(s, contact)
	if err != nil {
		return err
	}
	res, err := e.Deliver(ctx, submitter, sub)
	return e.FinishSubmit(s, sub, res, err)
}
