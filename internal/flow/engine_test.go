package flow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/qualify"
)

var testNow = time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func daysAgo(n int) string {
	return testNow.AddDate(0, 0, -n).Format(models.DateLayout)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	env := catalog.Env{Now: testClock, Rules: qualify.DefaultRules()}
	base, err := catalog.Default(env)
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	n := 0
	return NewEngine(base,
		WithClock(testClock),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("session-%d", n)
		}),
	)
}

// favorable returns qualifying answers keyed by question id.
func favorable() map[string]models.Answer {
	return map[string]models.Answer{
		models.QuestionAccidentDate:         models.DateAnswer(daysAgo(200)),
		models.QuestionMedicalTreatment:     models.BoolAnswer(true),
		models.QuestionMedicalTreatmentDate: models.DateAnswer(daysAgo(170)),
		models.QuestionAtFault:              models.BoolAnswer(false),
		models.QuestionHasAttorney:          models.ChoiceAnswer(models.AttorneyNone),
		models.QuestionMovingViolation:      models.BoolAnswer(false),
		models.QuestionPriorSettlement:      models.BoolAnswer(false),
		models.QuestionInsuranceCoverage:    models.FlagsAnswer(map[string]bool{"liability": true}),
	}
}

// answerAndAdvance records value for the current question and advances.
func answerAndAdvance(t *testing.T, e *Engine, s *Session, value models.Answer) {
	t.Helper()
	q, ok := s.Current()
	if !ok {
		t.Fatalf("no current question (cursor %d, terminated %v)", s.State.Cursor, s.State.Terminated)
	}
	if err := e.Record(s, q.ID, value); err != nil {
		t.Fatalf("Record(%s): %v", q.ID, err)
	}
	if err := e.Advance(s); err != nil {
		t.Fatalf("Advance at %s: %v", q.ID, err)
	}
}

// driveUntil answers from answers until the current question is stopAt or
// the flow terminates.
func driveUntil(t *testing.T, e *Engine, s *Session, answers map[string]models.Answer, stopAt string) {
	t.Helper()
	for {
		q, ok := s.Current()
		if !ok || q.ID == stopAt {
			return
		}
		value, found := answers[q.ID]
		if !found {
			t.Fatalf("no scripted answer for %s", q.ID)
		}
		answerAndAdvance(t, e, s, value)
	}
}

func TestNewSessionInitialState(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)

	if s.State.Cursor != 0 || s.State.Terminated {
		t.Errorf("expected Asking(0), got cursor %d terminated %v", s.State.Cursor, s.State.Terminated)
	}
	if s.State.Verdict != models.VerdictUnknown || s.State.Submission != models.SubmissionNone {
		t.Errorf("unexpected initial verdict/submission: %s/%s", s.State.Verdict, s.State.Submission)
	}
	if q, _ := s.Current(); q.ID != models.QuestionAccidentDate {
		t.Errorf("expected first question %s, got %s", models.QuestionAccidentDate, q.ID)
	}
	if len(s.Answers) != 0 {
		t.Errorf("expected empty answers, got %v", s.Answers)
	}
}

func TestQualifiedWithTimelyTreatment(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), "")

	if !s.State.Terminated {
		t.Fatal("expected flow to terminate")
	}
	if s.State.Verdict != models.VerdictQualified {
		t.Errorf("expected qualified, got %s (reasons %v)", s.State.Verdict, s.State.Reasons)
	}
	if s.Catalog.Len() != e.Catalog().Len()+1 {
		t.Errorf("expected follow-up to be inserted, catalog has %d questions", s.Catalog.Len())
	}
	if s.State.Cursor != s.Catalog.Len() {
		t.Errorf("expected cursor at end, got %d", s.State.Cursor)
	}
	if got := s.Dispatch().Kind; got != ActionContactCapture {
		t.Errorf("expected contact capture, got %s", got)
	}
}

func TestTreatmentAfterWindowFails(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	answers := favorable()
	answers[models.QuestionMedicalTreatmentDate] = models.DateAnswer(daysAgo(110))
	driveUntil(t, e, s, answers, "")

	if s.State.Verdict != models.VerdictDisqualified {
		t.Fatalf("expected disqualified, got %s", s.State.Verdict)
	}
	if diff := cmp.Diff([]string{qualify.ReasonTreatmentUntimely}, s.State.Reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestAtFaultExitsEarly(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), models.QuestionAtFault)
	answerAndAdvance(t, e, s, models.BoolAnswer(true))

	if !s.State.Terminated || s.State.Verdict != models.VerdictDisqualified {
		t.Fatalf("expected early disqualification, got terminated=%v verdict=%s", s.State.Terminated, s.State.Verdict)
	}
	if s.State.Cursor != s.Catalog.Len() {
		t.Errorf("expected cursor %d, got %d", s.Catalog.Len(), s.State.Cursor)
	}
	for _, id := range []string{models.QuestionMovingViolation, models.QuestionPriorSettlement} {
		if s.Answers.Has(id) {
			t.Errorf("%s should not have been asked", id)
		}
	}
	if got := s.Dispatch(); got.Kind != ActionDisqualified || !got.Simplified {
		t.Errorf("expected disqualified action with simplified contact, got %+v", got)
	}
}

func TestAccidentOutsideWindowFails(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	if err := e.Record(s, models.QuestionAccidentDate, models.DateAnswer(daysAgo(400))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	err := e.Advance(s)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	q, _ := e.Catalog().Lookup(models.QuestionAccidentDate)
	if verr.Message != q.InvalidMessage {
		t.Errorf("expected field message %q, got %q", q.InvalidMessage, verr.Message)
	}
	if s.State.Cursor != 0 || s.State.Verdict != models.VerdictUnknown {
		t.Errorf("validation error changed state: %+v", s.State)
	}
	if s.State.ValidationError != q.InvalidMessage {
		t.Errorf("expected pending validation message, got %q", s.State.ValidationError)
	}
}

func TestKeepingAttorneyExitsEarly(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), models.QuestionHasAttorney)
	answerAndAdvance(t, e, s, models.ChoiceAnswer(models.AttorneyKeepExisting))

	if !s.State.Terminated || s.State.Verdict != models.VerdictDisqualified {
		t.Fatalf("expected immediate disqualification, got %+v", s.State)
	}
	if s.Answers.Has(models.QuestionMovingViolation) {
		t.Error("later questions should not have been asked")
	}
}

func TestReverseLogicQuestionsDisqualify(t *testing.T) {
	e := newTestEngine(t)
	for _, q := range e.Catalog().Questions() {
		if q.Kind != catalog.KindBoolean || !q.ReverseLogic {
			continue
		}
		t.Run(q.ID, func(t *testing.T) {
			s := e.NewSession(false)
			driveUntil(t, e, s, favorable(), q.ID)
			answerAndAdvance(t, e, s, models.BoolAnswer(true))
			if s.State.Verdict != models.VerdictDisqualified || !s.State.Terminated {
				t.Errorf("answering yes to %s: verdict %s terminated %v", q.ID, s.State.Verdict, s.State.Terminated)
			}
		})
	}
}

func TestSelectOptionsQualifying(t *testing.T) {
	e := newTestEngine(t)
	q, _ := e.Catalog().Lookup(models.QuestionHasAttorney)
	for _, opt := range q.Options {
		t.Run(opt.Value, func(t *testing.T) {
			s := e.NewSession(false)
			driveUntil(t, e, s, favorable(), q.ID)
			answerAndAdvance(t, e, s, models.ChoiceAnswer(opt.Value))
			if opt.Qualifying() {
				if s.State.Terminated {
					t.Errorf("qualifying option %s ended the flow", opt.Value)
				}
				if next, _ := s.Current(); next.ID != models.QuestionMovingViolation {
					t.Errorf("expected to continue to %s, got %s", models.QuestionMovingViolation, next.ID)
				}
			} else if s.State.Verdict != models.VerdictDisqualified {
				t.Errorf("non-qualifying option %s: verdict %s", opt.Value, s.State.Verdict)
			}
		})
	}
}

func TestAdvanceWithoutAnswer(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	err := e.Advance(s)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Message != DefaultRequiredMessage {
		t.Errorf("expected %q, got %q", DefaultRequiredMessage, verr.Message)
	}
	if !errors.Is(err, catalog.ErrNotAnswered) {
		t.Errorf("expected wrapped ErrNotAnswered, got %v", err)
	}
	if s.State.Cursor != 0 {
		t.Errorf("cursor moved to %d", s.State.Cursor)
	}

	// Recording an answer clears the pending message.
	if err := e.Record(s, models.QuestionAccidentDate, models.DateAnswer(daysAgo(10))); err != nil {
		t.Fatal(err)
	}
	if s.State.ValidationError != "" {
		t.Errorf("validation error not cleared: %q", s.State.ValidationError)
	}
}

func TestRecordErrors(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	if err := e.Record(s, "favouriteColour", models.ChoiceAnswer("blue")); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
	// The follow-up is not part of the live catalog until triggered.
	if err := e.Record(s, models.QuestionMedicalTreatmentDate, models.DateAnswer(daysAgo(5))); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion for unspliced follow-up, got %v", err)
	}

	driveUntil(t, e, s, favorable(), models.QuestionAtFault)
	answerAndAdvance(t, e, s, models.BoolAnswer(true))
	if err := e.Record(s, models.QuestionAtFault, models.BoolAnswer(false)); !errors.Is(err, ErrTerminated) {
		t.Errorf("expected ErrTerminated, got %v", err)
	}
	if err := e.Advance(s); !errors.Is(err, ErrTerminated) {
		t.Errorf("expected ErrTerminated from Advance, got %v", err)
	}
}

func TestCheckboxMergesFlags(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), models.QuestionInsuranceCoverage)

	id := models.QuestionInsuranceCoverage
	if err := e.Record(s, id, models.FlagsAnswer(map[string]bool{"liability": true})); err != nil {
		t.Fatal(err)
	}
	if err := e.Record(s, id, models.FlagsAnswer(map[string]bool{"uninsured": true})); err != nil {
		t.Fatal(err)
	}
	if err := e.Record(s, id, models.FlagsAnswer(map[string]bool{"liability": false})); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Answers.Get(id)
	want := map[string]bool{"liability": false, "uninsured": true}
	if diff := cmp.Diff(want, got.Flags); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
	if err := e.Advance(s); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if s.State.Verdict != models.VerdictQualified {
		t.Errorf("expected qualified, got %s", s.State.Verdict)
	}
}

func TestCheckboxNothingSelected(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), models.QuestionInsuranceCoverage)
	if err := e.Record(s, models.QuestionInsuranceCoverage, models.FlagsAnswer(map[string]bool{"liability": false})); err != nil {
		t.Fatal(err)
	}
	err := e.Advance(s)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Message != "Please select at least one coverage option." {
		t.Errorf("unexpected message %q", verr.Message)
	}
}

func TestBackNavigationRevisesWithoutDuplicates(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), models.QuestionAtFault)
	idsAfterInsert := s.Catalog.IDs()

	// Back to the treatment date, then back to the trigger question.
	if err := e.Retreat(s); err != nil {
		t.Fatal(err)
	}
	if err := e.Retreat(s); err != nil {
		t.Fatal(err)
	}
	if q, _ := s.Current(); q.ID != models.QuestionMedicalTreatment {
		t.Fatalf("expected to be back at %s, got %s", models.QuestionMedicalTreatment, q.ID)
	}
	if !s.Answers.Has(models.QuestionMedicalTreatmentDate) {
		t.Error("retreat must not erase answers")
	}

	answerAndAdvance(t, e, s, models.BoolAnswer(true))
	if diff := cmp.Diff(idsAfterInsert, s.Catalog.IDs()); diff != "" {
		t.Errorf("follow-up duplicated on revisit (-want +got):\n%s", diff)
	}

	// Re-answering with a different value overwrites the prior answer.
	if err := e.Retreat(s); err != nil {
		t.Fatal(err)
	}
	answerAndAdvance(t, e, s, models.BoolAnswer(false))
	got, _ := s.Answers.Get(models.QuestionMedicalTreatment)
	if !got.IsFalse() {
		t.Errorf("expected overwritten answer false, got %+v", got)
	}
	if diff := cmp.Diff(idsAfterInsert, s.Catalog.IDs()); diff != "" {
		t.Errorf("catalog changed after re-answer (-want +got):\n%s", diff)
	}
}

func TestRetreatAtStartStaysAtZero(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	s.State.ValidationError = "pending"
	if err := e.Retreat(s); err != nil {
		t.Fatal(err)
	}
	if s.State.Cursor != 0 {
		t.Errorf("expected cursor 0, got %d", s.State.Cursor)
	}
	if s.State.ValidationError != "" {
		t.Error("retreat must clear the validation error")
	}
}

func TestRetreatReopensTerminatedFlow(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)
	driveUntil(t, e, s, favorable(), "")

	if err := e.Retreat(s); err != nil {
		t.Fatal(err)
	}
	if s.State.Terminated || s.State.Verdict != models.VerdictUnknown {
		t.Fatalf("expected re-opened flow, got %+v", s.State)
	}
	if q, _ := s.Current(); q.ID != models.QuestionInsuranceCoverage {
		t.Errorf("expected last question, got %s", q.ID)
	}

	// Submitted sessions stay closed.
	if err := e.Advance(s); err != nil {
		t.Fatal(err)
	}
	s.State.Submission = models.SubmissionSubmitted
	if err := e.Retreat(s); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("expected ErrAlreadySubmitted, got %v", err)
	}
	s.State.Submission = models.SubmissionSubmitting
	if err := e.Retreat(s); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got %v", err)
	}
}

func TestRestartResetsEverything(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(true)
	driveUntil(t, e, s, favorable(), "")
	s.State.LeadID = "lead-1"

	e.Restart(s)
	want := InitialState()
	want.Generation = 1
	if diff := cmp.Diff(want, s.State); diff != "" {
		t.Errorf("state not reset (-want +got):\n%s", diff)
	}
	if len(s.Answers) != 0 {
		t.Errorf("answers not cleared: %v", s.Answers)
	}
	if diff := cmp.Diff(e.Catalog().IDs(), s.Catalog.IDs()); diff != "" {
		t.Errorf("catalog not reset (-want +got):\n%s", diff)
	}
	if !s.TestMode {
		t.Error("restart must keep the session's test mode")
	}
}

func TestMalformedDateYieldsAdvisory(t *testing.T) {
	q := catalog.Question{ID: models.QuestionAccidentDate, Prompt: "When?", Kind: catalog.KindDate}
	e := NewEngine(catalog.New(q), WithClock(testClock))
	s := e.NewSession(false)
	answerAndAdvance(t, e, s, models.DateAnswer("03/01/2026"))

	if s.State.Verdict != models.VerdictDisqualified {
		t.Errorf("expected disqualified, got %s", s.State.Verdict)
	}
	if s.State.Advisory != qualify.ProcessingMessage {
		t.Errorf("expected processing advisory, got %q", s.State.Advisory)
	}
	if s.View().Advisory == "" {
		t.Error("view should carry the advisory")
	}
}

func TestConfigurableRules(t *testing.T) {
	env := catalog.Env{Now: testClock, Rules: qualify.Rules{AccidentWindowDays: 30, TreatmentWindowDays: 60}}
	base, err := catalog.Default(env)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(base, WithClock(testClock), WithRules(env.Rules))
	s := e.NewSession(false)
	if err := e.Record(s, models.QuestionAccidentDate, models.DateAnswer(daysAgo(45))); err != nil {
		t.Fatal(err)
	}
	var verr *ValidationError
	if err := e.Advance(s); !errors.As(err, &verr) {
		t.Errorf("expected 45-day-old accident to fail a 30-day window, got %v", err)
	}
}

func TestViewProgress(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(false)

	v := s.View()
	if v.Step != 1 || v.Total != 7 || v.Progress != 14 {
		t.Errorf("unexpected progress %d/%d (%d%%)", v.Step, v.Total, v.Progress)
	}
	if v.CanRetreat || v.NextLabel != LabelNext {
		t.Errorf("first question: CanRetreat=%v NextLabel=%q", v.CanRetreat, v.NextLabel)
	}
	if v.Question == nil || v.Question.ID != models.QuestionAccidentDate {
		t.Fatalf("expected first question in view, got %+v", v.Question)
	}

	driveUntil(t, e, s, favorable(), models.QuestionInsuranceCoverage)
	v = s.View()
	if v.NextLabel != LabelSubmit {
		t.Errorf("expected %q on last question, got %q", LabelSubmit, v.NextLabel)
	}
	if v.Total != 8 {
		t.Errorf("expected total to include the follow-up, got %d", v.Total)
	}

	answerAndAdvance(t, e, s, models.FlagsAnswer(map[string]bool{"underinsured": true}))
	v = s.View()
	if v.Question != nil || v.Progress != 100 || v.Action.Kind != ActionContactCapture {
		t.Errorf("unexpected terminal view %+v", v)
	}
}
