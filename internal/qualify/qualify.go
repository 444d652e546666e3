// Package qualify evaluates accumulated questionnaire answers against the
// claim eligibility rules.
//
// Evaluate is pure: it reads the answer store and the supplied clock value and
// has no other inputs, so identical answers always produce identical results.
package qualify

import (
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// Default eligibility windows.
const (
	// DefaultAccidentWindowDays is how many days before now an accident may have occurred
	DefaultAccidentWindowDays = 365
	// DefaultTreatmentWindowDays is how many days after the accident treatment must have started
	DefaultTreatmentWindowDays = 60
)

// Rules holds the configurable thresholds used by the date rules.
type Rules struct {
	AccidentWindowDays  int `json:"accident_window_days"`
	TreatmentWindowDays int `json:"treatment_window_days"`
}

// DefaultRules returns the standard eligibility windows.
func DefaultRules() Rules {
	return Rules{
		AccidentWindowDays:  DefaultAccidentWindowDays,
		TreatmentWindowDays: DefaultTreatmentWindowDays,
	}
}

// Reason codes reported for each failed criterion.
const (
	ReasonAccidentMissing   = "accident_date_missing"
	ReasonAccidentFuture    = "accident_date_in_future"
	ReasonAccidentTooOld    = "accident_too_old"
	ReasonNoTreatment       = "no_medical_treatment"
	ReasonTreatmentInvalid  = "treatment_date_invalid"
	ReasonTreatmentUntimely = "treatment_not_timely"
	ReasonAtFault           = "at_fault"
	ReasonHasAttorney       = "has_attorney"
	ReasonMovingViolation   = "moving_violation"
	ReasonPriorSettlement   = "prior_settlement"
	ReasonNoCoverage        = "no_insurance_coverage"
	ReasonMalformedDate     = "malformed_date"
)

// Result is the outcome of an evaluation.
type Result struct {
	Qualified bool     `json:"qualified"`
	Reasons   []string `json:"reasons,omitempty"`
}

// Verdict maps the result onto the flow verdict.
func (r Result) Verdict() models.Verdict {
	if r.Qualified {
		return models.VerdictQualified
	}
	return models.VerdictDisqualified
}

// ProcessingMessage is shown to the user when an evaluation could not read
// the recorded dates. It differs from the per-field validation messages.
const ProcessingMessage = "We had trouble processing your answers. Please review the dates you entered and try again, or contact us directly."

// EvaluationError reports answer data the evaluator could not interpret.
// Evaluate still returns a Result (never qualified) alongside it.
type EvaluationError struct {
	Field string
	Value string
	Err   error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("qualify.evaluate: field %s value %q: %v", e.Field, e.Value, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage is the advisory shown in place of a crash.
func (e *EvaluationError) UserMessage() string {
	return ProcessingMessage
}

// Evaluate applies every eligibility criterion to answers. All criteria must
// hold for a qualified result. A malformed date makes the result unqualified
// and is reported as an *EvaluationError.
func Evaluate(answers models.Answers, now time.Time, rules Rules) (Result, error) {
	var reasons []string
	var evalErr error

	fail := func(reason string) {
		reasons = append(reasons, reason)
	}
	malformed := func(field, value string, err error) {
		fail(ReasonMalformedDate)
		if evalErr == nil {
			evalErr = &EvaluationError{Field: field, Value: value, Err: err}
		}
	}

	accident, _ := answers.Get(models.QuestionAccidentDate)
	switch err := CheckAccidentDate(accident.Date, now, rules); {
	case err == nil:
	case errors.Is(err, ErrDateMissing):
		fail(ReasonAccidentMissing)
	case errors.Is(err, ErrMalformedDate):
		malformed(models.QuestionAccidentDate, accident.Date, err)
	case errors.Is(err, ErrDateInFuture):
		fail(ReasonAccidentFuture)
	default:
		fail(ReasonAccidentTooOld)
	}

	treated, _ := answers.Get(models.QuestionMedicalTreatment)
	if !treated.IsTrue() {
		fail(ReasonNoTreatment)
	}

	if treatment, ok := answers.Get(models.QuestionMedicalTreatmentDate); ok && treatment.Date != "" {
		switch err := checkTreatmentTimely(treatment.Date, accident.Date, now, rules); {
		case err == nil:
		case errors.Is(err, ErrMalformedDate):
			// The accident date may be the malformed one; it is reported once above.
			if _, perr := ParseDate(treatment.Date); perr != nil {
				malformed(models.QuestionMedicalTreatmentDate, treatment.Date, perr)
			}
		case errors.Is(err, ErrTreatmentUntimely):
			fail(ReasonTreatmentUntimely)
		default:
			fail(ReasonTreatmentInvalid)
		}
	}

	// An unanswered or "unsure" at-fault question does not disqualify.
	if atFault, _ := answers.Get(models.QuestionAtFault); atFault.IsTrue() {
		fail(ReasonAtFault)
	}

	attorney, _ := answers.Get(models.QuestionHasAttorney)
	if attorney.Choice != models.AttorneyNone && attorney.Choice != models.AttorneyConsidering {
		fail(ReasonHasAttorney)
	}

	if v, _ := answers.Get(models.QuestionMovingViolation); !v.IsFalse() {
		fail(ReasonMovingViolation)
	}
	if v, _ := answers.Get(models.QuestionPriorSettlement); !v.IsFalse() {
		fail(ReasonPriorSettlement)
	}

	if v, _ := answers.Get(models.QuestionInsuranceCoverage); !v.AnyFlag() {
		fail(ReasonNoCoverage)
	}

	return Result{Qualified: len(reasons) == 0, Reasons: reasons}, evalErr
}
