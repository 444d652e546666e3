package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/testutil"
)

// captureSubmitter records submissions and accepts them.
type captureSubmitter struct {
	subs []flow.Submission
}

func (c *captureSubmitter) Submit(ctx context.Context, sub flow.Submission) (flow.SubmitResult, error) {
	c.subs = append(c.subs, sub)
	return flow.SubmitResult{Status: models.APIStatusOK, LeadID: "lead-cli"}, nil
}

func script(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func TestRunQualifiedSessionFromScript(t *testing.T) {
	engine := testutil.NewEngine(t)
	s := engine.NewSession(false)
	var out bytes.Buffer
	display := NewTerminalDisplay(script(
		"",                    // no answer yet: hint and re-prompt
		testutil.DaysAgo(200), // accidentDate
		":back",               // at medicalTreatment, go back
		"",                    // keep the accident date
		"yes",                 // medicalTreatment splices the follow-up
		testutil.DaysAgo(170), // medicalTreatmentDate
		"no",                  // atFault
		"No",                  // hasAttorney by label
		"n",                   // movingViolation
		"2",                   // priorSettlement: option 2 is No
		"1, 3",                // insuranceCoverage
		"submit",
		"Jordan Rivera",
		"555-010-4477",
		"",
		"Phone",
		"rear-ended at a light",
		":quit",
	), &out)
	sub := &captureSubmitter{}

	if err := engine.Run(context.Background(), s, display, display, sub); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s.State.Verdict != models.VerdictQualified || s.State.Submission != models.SubmissionSubmitted {
		t.Fatalf("unexpected state %+v", s.State)
	}
	if len(sub.subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(sub.subs))
	}
	want := models.ContactInfo{
		Name:             "Jordan Rivera",
		Phone:            "555-010-4477",
		PreferredContact: models.ContactMethodPhone,
		Notes:            "rear-ended at a light",
	}
	if diff := cmp.Diff(want, sub.subs[0].Contact); diff != "" {
		t.Errorf("contact mismatch (-want +got):\n%s", diff)
	}
	coverage, _ := s.Answers.Get(models.QuestionInsuranceCoverage)
	if !coverage.Flags["liability"] || coverage.Flags["uninsured"] || !coverage.Flags["underinsured"] {
		t.Errorf("unexpected coverage flags %v", coverage.Flags)
	}

	text := out.String()
	for _, fragment := range []string{
		"enter a date as YYYY-MM-DD",
		"[2/7] Did you receive medical treatment",
		"[3/8] Approximately when",
		"current answer: " + testutil.DaysAgo(200),
		flow.MessageQualified,
		flow.MessageConfirmation,
		"Reference: lead-cli",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("output missing %q", fragment)
		}
	}
}

func TestRunShowsValidationErrorAndDisqualifies(t *testing.T) {
	engine := testutil.NewEngine(t)
	s := engine.NewSession(false)
	var out bytes.Buffer
	display := NewTerminalDisplay(script(
		testutil.DaysAgo(400), // too old
		testutil.DaysAgo(30),
		"no", // no treatment
		"yes",
	), &out)

	// Input ends at the result screen, which quits.
	if err := engine.Run(context.Background(), s, display, display, &captureSubmitter{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "within the last 12 months") {
		t.Errorf("expected the accident date message in output:\n%s", out.String())
	}
	if s.State.Verdict != models.VerdictDisqualified {
		t.Errorf("verdict = %s, want disqualified", s.State.Verdict)
	}
	if !strings.Contains(out.String(), flow.MessageDisqualified) {
		t.Error("disqualified message not shown")
	}
}

func TestCaptureContactSimplified(t *testing.T) {
	var out bytes.Buffer
	d := NewTerminalDisplay(script("Sam", "", "sam@example.com", "call after 5"), &out)
	got, err := d.CaptureContact(context.Background(), true)
	if err != nil {
		t.Fatalf("CaptureContact: %v", err)
	}
	want := models.ContactInfo{Name: "Sam", Email: "sam@example.com", Notes: "call after 5", Simplified: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("contact mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(out.String(), "Preferred contact") {
		t.Error("simplified form should not ask for a preferred contact method")
	}
}

func TestCaptureContactEOF(t *testing.T) {
	d := NewTerminalDisplay(script("Sam"), &bytes.Buffer{})
	if _, err := d.CaptureContact(context.Background(), false); err == nil {
		t.Error("expected an error when input ends mid-form")
	}
}

func writeAnswers(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answers.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEvaluateCommand(t *testing.T) {
	path := writeAnswers(t, `answers:
  accidentDate: `+testutil.DaysAgo(200)+`
  medicalTreatment: true
  medicalTreatmentDate: "`+testutil.DaysAgo(170)+`"
  atFault: null
  hasAttorney: yes-change
  movingViolation: false
  priorSettlement: false
  insuranceCoverage: [uninsured]
`)

	out, err := execute(t, "evaluate", "--answers", path, "--as-of", testutil.Now.Format(models.DateLayout), "--format", "json")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var ev Evaluation
	if err := json.Unmarshal([]byte(out), &ev); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if ev.Verdict != models.VerdictQualified || ev.StoppedAt != "" || len(ev.Answered) != 8 {
		t.Errorf("unexpected evaluation %+v", ev)
	}
}

func TestEvaluateStopsEarly(t *testing.T) {
	path := writeAnswers(t, `answers:
  accidentDate: "`+testutil.DaysAgo(10)+`"
  medicalTreatment: false
  atFault: false
  hasAttorney: "yes"
`)
	out, err := execute(t, "evaluate", "-a", path, "--as-of", testutil.Now.Format(models.DateLayout))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.Contains(out, "Verdict:   disqualified") || !strings.Contains(out, "Stopped:   at hasAttorney") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestEvaluateErrors(t *testing.T) {
	asOf := testutil.Now.Format(models.DateLayout)
	incomplete := writeAnswers(t, "answers:\n  accidentDate: \""+testutil.DaysAgo(10)+"\"\n")
	_, err := execute(t, "evaluate", "-a", incomplete, "--as-of", asOf)
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}

	invalid := writeAnswers(t, "answers:\n  accidentDate: \""+testutil.DaysAgo(500)+"\"\n")
	if _, err := execute(t, "evaluate", "-a", invalid, "--as-of", asOf); err == nil {
		t.Error("expected a validation error for a stale accident")
	}

	if _, err := execute(t, "evaluate", "-a", incomplete, "--as-of", "yesterday"); err == nil {
		t.Error("expected an error for a malformed --as-of")
	}
	if _, err := execute(t, "evaluate", "-a", incomplete, "--accident-window-days", "0"); err == nil {
		t.Error("expected an error for a zero window")
	}
	if _, err := execute(t, "evaluate"); err == nil {
		t.Error("expected an error without --answers")
	}
}

func TestCatalogCommand(t *testing.T) {
	out, err := execute(t, "catalog")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	for _, fragment := range []string{
		"1. accidentDate [date]",
		"-> medicalTreatmentDate [date]",
		"atFault [boolean, yes disqualifies]",
		"yes: Yes, and I want to keep them (disqualifies)",
	} {
		if !strings.Contains(out, fragment) {
			t.Errorf("catalog output missing %q:\n%s", fragment, out)
		}
	}
}
