package catalog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/qualify"
)

var testNow = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)

func testEnv() Env {
	return Env{Now: func() time.Time { return testNow }, Rules: qualify.DefaultRules()}
}

func mustDefault(t *testing.T) Catalog {
	t.Helper()
	c, err := Default(testEnv())
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	return c
}

func TestDefaultCatalogOrder(t *testing.T) {
	c := mustDefault(t)
	want := []string{
		models.QuestionAccidentDate,
		models.QuestionMedicalTreatment,
		models.QuestionAtFault,
		models.QuestionHasAttorney,
		models.QuestionMovingViolation,
		models.QuestionPriorSettlement,
		models.QuestionInsuranceCoverage,
	}
	if diff := cmp.Diff(want, c.IDs()); diff != "" {
		t.Errorf("catalog ids mismatch (-want +got):\n%s", diff)
	}

	if _, ok := c.Index()[models.QuestionMedicalTreatmentDate]; !ok {
		t.Error("follow-up question missing from index")
	}
}

func TestCurrent(t *testing.T) {
	c := mustDefault(t)
	q, ok := c.Current(0)
	if !ok || q.ID != models.QuestionAccidentDate {
		t.Errorf("Current(0) = %q, %v", q.ID, ok)
	}
	if _, ok := c.Current(c.Len()); ok {
		t.Error("Current(len) should report no question")
	}
	if _, ok := c.Current(-1); ok {
		t.Error("Current(-1) should report no question")
	}
}

func TestInsertAfterCopyOnWrite(t *testing.T) {
	c := mustDefault(t)
	parent, _ := c.Lookup(models.QuestionMedicalTreatment)
	idx := c.Position(parent.ID)

	inserted := c.InsertAfter(idx, parent.FollowUp.Question)
	if inserted.Len() != c.Len()+1 {
		t.Fatalf("expected %d questions, got %d", c.Len()+1, inserted.Len())
	}
	if got, _ := inserted.Current(idx + 1); got.ID != models.QuestionMedicalTreatmentDate {
		t.Errorf("follow-up not spliced after parent, got %q", got.ID)
	}
	if c.Position(models.QuestionMedicalTreatmentDate) != -1 {
		t.Error("original catalog was mutated")
	}
}

func TestInsertAfterIdempotent(t *testing.T) {
	c := mustDefault(t)
	parent, _ := c.Lookup(models.QuestionMedicalTreatment)
	idx := c.Position(parent.ID)

	once := c.InsertAfter(idx, parent.FollowUp.Question)
	twice := once.InsertAfter(idx, parent.FollowUp.Question)
	if diff := cmp.Diff(once.IDs(), twice.IDs()); diff != "" {
		t.Errorf("second insertion changed catalog (-once +twice):\n%s", diff)
	}

	// Inserting after a different index must not duplicate the id either.
	elsewhere := once.InsertAfter(0, parent.FollowUp.Question)
	if diff := cmp.Diff(once.IDs(), elsewhere.IDs()); diff != "" {
		t.Errorf("insertion elsewhere duplicated id (-once +elsewhere):\n%s", diff)
	}
}

func TestInsertAfterOutOfRange(t *testing.T) {
	c := New(Question{ID: "a", Kind: KindBoolean})
	got := c.InsertAfter(5, Question{ID: "b", Kind: KindBoolean})
	if got.Len() != 1 {
		t.Errorf("out of range insert changed catalog: %v", got.IDs())
	}
}

func TestRestore(t *testing.T) {
	c := mustDefault(t)
	parent, _ := c.Lookup(models.QuestionMedicalTreatment)
	live := c.InsertAfter(c.Position(parent.ID), parent.FollowUp.Question)

	restored, err := c.Restore(live.IDs())
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if diff := cmp.Diff(live.IDs(), restored.IDs()); diff != "" {
		t.Errorf("restored ids mismatch (-want +got):\n%s", diff)
	}
	q, _ := restored.Lookup(models.QuestionMedicalTreatmentDate)
	if q.Validate == nil {
		t.Error("restored follow-up lost its validator")
	}

	if _, err := c.Restore([]string{"nope"}); err == nil {
		t.Error("expected error for unknown id")
	}
	if _, err := c.Restore([]string{models.QuestionAtFault, models.QuestionAtFault}); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestQuestionCheck(t *testing.T) {
	c := mustDefault(t)
	atFault, _ := c.Lookup(models.QuestionAtFault)
	moving, _ := c.Lookup(models.QuestionMovingViolation)
	attorney, _ := c.Lookup(models.QuestionHasAttorney)
	coverage, _ := c.Lookup(models.QuestionInsuranceCoverage)
	accident, _ := c.Lookup(models.QuestionAccidentDate)

	tests := []struct {
		name    string
		q       Question
		answers models.Answers
		want    error
	}{
		{"unanswered", moving, models.Answers{}, ErrNotAnswered},
		{"unsure allowed when offered", atFault, models.Answers{models.QuestionAtFault: models.UnsureAnswer()}, nil},
		{"unsure rejected without option", moving, models.Answers{models.QuestionMovingViolation: models.UnsureAnswer()}, ErrNotAnswered},
		{"select known option", attorney, models.Answers{models.QuestionHasAttorney: models.ChoiceAnswer("no")}, nil},
		{"select unknown option", attorney, models.Answers{models.QuestionHasAttorney: models.ChoiceAnswer("maybe")}, ErrUnknownOption},
		{"checkbox none checked", coverage, models.Answers{models.QuestionInsuranceCoverage: models.FlagsAnswer(map[string]bool{"liability": false})}, ErrInvalidAnswer},
		{"checkbox unknown option", coverage, models.Answers{models.QuestionInsuranceCoverage: models.FlagsAnswer(map[string]bool{"medpay": true})}, ErrUnknownOption},
		{"checkbox one checked", coverage, models.Answers{models.QuestionInsuranceCoverage: models.FlagsAnswer(map[string]bool{"uninsured": true})}, nil},
		{"date too old", accident, models.Answers{models.QuestionAccidentDate: models.DateAnswer("2024-01-01")}, ErrInvalidAnswer},
		{"date recent", accident, models.Answers{models.QuestionAccidentDate: models.DateAnswer("2026-01-10")}, nil},
		{"date empty", accident, models.Answers{models.QuestionAccidentDate: models.DateAnswer("")}, ErrNotAnswered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.q.Check(tt.answers); !errors.Is(err, tt.want) {
				t.Errorf("Check() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTreatmentDateCrossFieldValidation(t *testing.T) {
	c := mustDefault(t)
	parent, _ := c.Lookup(models.QuestionMedicalTreatment)
	q := parent.FollowUp.Question

	answers := models.Answers{}
	answers.Set(models.QuestionAccidentDate, models.DateAnswer("2026-02-01"))
	answers.Set(q.ID, models.DateAnswer("2026-01-20"))
	if err := q.Check(answers); !errors.Is(err, ErrInvalidAnswer) {
		t.Errorf("treatment before accident: got %v", err)
	}
	answers.Set(q.ID, models.DateAnswer("2026-04-01"))
	if err := q.Check(answers); !errors.Is(err, ErrInvalidAnswer) {
		t.Errorf("treatment in future: got %v", err)
	}
	answers.Set(q.ID, models.DateAnswer("2026-02-03"))
	if err := q.Check(answers); err != nil {
		t.Errorf("valid treatment date: got %v", err)
	}
}

func TestDisqualifies(t *testing.T) {
	c := mustDefault(t)
	for _, q := range c.Questions() {
		if q.Kind == KindBoolean && q.ReverseLogic {
			if !q.Disqualifies(models.BoolAnswer(true)) {
				t.Errorf("%s: yes should disqualify", q.ID)
			}
			if q.Disqualifies(models.BoolAnswer(false)) || q.Disqualifies(models.UnsureAnswer()) {
				t.Errorf("%s: no/unsure should not disqualify", q.ID)
			}
		}
		if q.Kind == KindSelect {
			for _, o := range q.Options {
				if got := q.Disqualifies(models.ChoiceAnswer(o.Value)); got == o.Qualifying() {
					t.Errorf("%s option %s: Disqualifies = %v, qualifying = %v", q.ID, o.Value, got, o.Qualifying())
				}
			}
		}
	}

	treatment, _ := c.Lookup(models.QuestionMedicalTreatment)
	if treatment.Disqualifies(models.BoolAnswer(true)) {
		t.Error("questions without reverse logic never disqualify")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "name: x\nquestions: []\n", "no questions"},
		{"unknown kind", "questions:\n  - {id: a, prompt: A, kind: slider}\n", "unknown kind"},
		{"duplicate id", "questions:\n  - {id: a, prompt: A, kind: boolean}\n  - {id: a, prompt: B, kind: boolean}\n", "duplicate id"},
		{"select without options", "questions:\n  - {id: a, prompt: A, kind: select}\n", "needs options"},
		{"unknown validator", "questions:\n  - {id: a, prompt: A, kind: date, validator: nope}\n", "unknown validator"},
		{"reverse logic on select", "questions:\n  - id: a\n    prompt: A\n    kind: select\n    reverse_logic: true\n    options: [{value: x}]\n", "reverse_logic"},
		{"unknown field", "questions:\n  - {id: a, prompt: A, kind: boolean, colour: red}\n", "colour"},
		{"bad follow-up condition", "questions:\n  - id: a\n    prompt: A\n    kind: boolean\n    follow_up:\n      when: maybe\n      question: {id: b, prompt: B, kind: date}\n", "must be true, false or null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml), testEnv())
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadFollowUpOnSelect(t *testing.T) {
	src := `
questions:
  - id: vehicle
    prompt: What were you in?
    kind: select
    options:
      - {value: car, label: Car}
      - {value: bike, label: Bicycle}
    follow_up:
      when: bike
      question: {id: helmet, prompt: Were you wearing a helmet?, kind: boolean}
`
	c, err := Load(strings.NewReader(src), testEnv())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	q, _ := c.Lookup("vehicle")
	if !q.TriggersFollowUp(models.ChoiceAnswer("bike")) {
		t.Error("expected bike to trigger follow-up")
	}
	if q.TriggersFollowUp(models.ChoiceAnswer("car")) {
		t.Error("car should not trigger follow-up")
	}
}
