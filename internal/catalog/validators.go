package catalog

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/qualify"
)

// Env supplies what validators need beyond the answers themselves.
type Env struct {
	Now   func() time.Time
	Rules qualify.Rules
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// ValidatorFactory builds a validator bound to env.
type ValidatorFactory func(env Env) Validator

var validators = make(map[string]ValidatorFactory)

// RegisterValidator makes a validator available to catalog files by name.
func RegisterValidator(name string, factory ValidatorFactory) {
	validators[name] = factory
}

// lookupValidator builds the named validator.
func lookupValidator(name string, env Env) (Validator, error) {
	factory, ok := validators[name]
	if !ok {
		return nil, fmt.Errorf("unknown validator %q", name)
	}
	return factory(env), nil
}

// Built-in validator names.
const (
	ValidatorAccidentDate  = "accident_date"
	ValidatorTreatmentDate = "treatment_date"
	ValidatorAnyFlag       = "any_flag"
)

// Register default validators
func init() {
	RegisterValidator(ValidatorAccidentDate, func(env Env) Validator {
		return func(value models.Answer, _ models.Answers) bool {
			return qualify.CheckAccidentDate(value.Date, env.now(), env.Rules) == nil
		}
	})
	RegisterValidator(ValidatorTreatmentDate, func(env Env) Validator {
		return func(value models.Answer, answers models.Answers) bool {
			accident, _ := answers.Get(models.QuestionAccidentDate)
			return qualify.CheckTreatmentDate(value.Date, accident.Date, env.now()) == nil
		}
	})
	RegisterValidator(ValidatorAnyFlag, func(Env) Validator {
		return func(value models.Answer, _ models.Answers) bool {
			return value.AnyFlag()
		}
	})
}
