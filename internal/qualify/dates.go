package qualify

import (
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// Errors returned by the date checks. They are shared by the catalog
// validators and the evaluator so both apply the same rules.
var (
	ErrDateMissing       = errors.New("date is missing")
	ErrMalformedDate     = errors.New("date is malformed")
	ErrDateInFuture      = errors.New("date is in the future")
	ErrAccidentTooOld    = errors.New("accident is outside the eligibility window")
	ErrTreatmentBefore   = errors.New("treatment date precedes the accident date")
	ErrTreatmentUntimely = errors.New("treatment started too long after the accident")
)

const day = 24 * time.Hour

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrDateMissing
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedDate, s, err)
	}
	return t, nil
}

// Today returns the calendar date of now as a UTC midnight, comparable with
// values returned by ParseDate.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / day)
}

// CheckAccidentDate verifies the accident date is not in the future and falls
// inside the configured window before now.
func CheckAccidentDate(date string, now time.Time, rules Rules) error {
	accident, err := ParseDate(date)
	if err != nil {
		return err
	}
	today := Today(now)
	if accident.After(today) {
		return ErrDateInFuture
	}
	if daysBetween(accident, today) > rules.AccidentWindowDays {
		return ErrAccidentTooOld
	}
	return nil
}

// CheckTreatmentDate verifies the treatment date is not in the future and not
// before the accident. Timeliness relative to the accident is a qualification
// rule and is applied by Evaluate, not here.
func CheckTreatmentDate(treatment, accident string, now time.Time) error {
	t, err := ParseDate(treatment)
	if err != nil {
		return err
	}
	if t.After(Today(now)) {
		return ErrDateInFuture
	}
	if accident == "" {
		return nil
	}
	a, err := ParseDate(accident)
	if err != nil {
		return err
	}
	if t.Before(a) {
		return ErrTreatmentBefore
	}
	return nil
}

// checkTreatmentTimely verifies the treatment began within the configured
// number of days after the accident.
func checkTreatmentTimely(treatment, accident string, now time.Time, rules Rules) error {
	if err := CheckTreatmentDate(treatment, accident, now); err != nil {
		return err
	}
	t, _ := ParseDate(treatment)
	a, err := ParseDate(accident)
	if err != nil {
		return err
	}
	if daysBetween(a, t) > rules.TreatmentWindowDays {
		return ErrTreatmentUntimely
	}
	return nil
}
