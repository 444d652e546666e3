// Package catalog defines questionnaire questions and the ordered, copy-on-write
// catalog the flow walks through.
package catalog

import (
	"errors"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// Kind selects how a question is answered and which answer field it reads.
type Kind string

// Question kinds.
const (
	KindBoolean  Kind = "boolean"
	KindDate     Kind = "date"
	KindSelect   Kind = "select"
	KindCheckbox Kind = "checkbox"
)

// IsValidKind reports whether k is a supported question kind.
func IsValidKind(k Kind) bool {
	switch k {
	case KindBoolean, KindDate, KindSelect, KindCheckbox:
		return true
	default:
		return false
	}
}

// Boolean option values. A boolean question only accepts an "unsure" answer
// when it lists an option with BoolUnsure.
const (
	BoolYes    = "true"
	BoolNo     = "false"
	BoolUnsure = "null"
)

// Errors returned by Question.Check.
var (
	ErrNotAnswered   = errors.New("question has not been answered")
	ErrInvalidAnswer = errors.New("answer failed validation")
	ErrUnknownOption = errors.New("answer does not match any option")
)

// Validator checks a single answer; answers gives access to the rest of the
// store for cross-field rules.
type Validator func(value models.Answer, answers models.Answers) bool

// Condition decides whether a follow-up applies to the answer just given.
type Condition func(value models.Answer) bool

// Option is one selectable choice. For checkbox questions Value is the
// coverage option id.
type Option struct {
	Value        string `json:"value"`
	Label        string `json:"label"`
	IsQualifying *bool  `json:"is_qualifying,omitempty"`
}

// Qualifying reports whether choosing the option keeps the user in the flow.
// Options qualify unless explicitly marked otherwise.
func (o Option) Qualifying() bool {
	return o.IsQualifying == nil || *o.IsQualifying
}

// FollowUp is a question spliced in directly after its parent when Condition
// holds for the parent's answer.
type FollowUp struct {
	Condition Condition
	Question  Question
}

// Question is an immutable question definition.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	HelpText     string   `json:"help_text,omitempty"`
	Kind         Kind     `json:"kind"`
	Options      []Option `json:"options,omitempty"`
	ReverseLogic bool     `json:"reverse_logic,omitempty"`
	// InvalidMessage is shown when an answer is present but Validate rejects it.
	InvalidMessage string    `json:"-"`
	Validate       Validator `json:"-"`
	FollowUp       *FollowUp `json:"-"`
}

// DefaultBooleanOptions are offered for boolean questions without explicit options.
var DefaultBooleanOptions = []Option{
	{Value: BoolYes, Label: "Yes"},
	{Value: BoolNo, Label: "No"},
}

// Choices returns the options a display should offer.
func (q Question) Choices() []Option {
	if q.Kind == KindBoolean && len(q.Options) == 0 {
		return DefaultBooleanOptions
	}
	return q.Options
}

// Option looks up an option by value.
func (q Question) Option(value string) (Option, bool) {
	for _, o := range q.Choices() {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// allowsUnsure reports whether a boolean question offers an explicit "unsure" choice.
func (q Question) allowsUnsure() bool {
	_, ok := q.Option(BoolUnsure)
	return ok
}

// Check validates the answer recorded for q. It returns ErrNotAnswered when
// the kind-specific answer is missing, ErrUnknownOption when a choice does not
// match the options and ErrInvalidAnswer when Validate rejects the answer.
func (q Question) Check(answers models.Answers) error {
	value, ok := answers.Get(q.ID)
	if !ok {
		return ErrNotAnswered
	}

	switch q.Kind {
	case KindBoolean:
		if value.Bool == nil && !q.allowsUnsure() {
			return ErrNotAnswered
		}
	case KindDate:
		if value.Date == "" {
			return ErrNotAnswered
		}
	case KindSelect:
		if value.Choice == "" {
			return ErrNotAnswered
		}
		if _, found := q.Option(value.Choice); !found {
			return ErrUnknownOption
		}
	case KindCheckbox:
		for id := range value.Flags {
			if _, found := q.Option(id); !found {
				return ErrUnknownOption
			}
		}
	}

	if q.Validate != nil && !q.Validate(value, answers) {
		return ErrInvalidAnswer
	}
	return nil
}

// Disqualifies reports whether value ends the questionnaire early: an
// affirmative answer to a reverse-logic boolean, or a select option marked
// as not qualifying.
func (q Question) Disqualifies(value models.Answer) bool {
	switch q.Kind {
	case KindBoolean:
		return q.ReverseLogic && value.IsTrue()
	case KindSelect:
		opt, ok := q.Option(value.Choice)
		return ok && !opt.Qualifying()
	}
	return false
}

// TriggersFollowUp reports whether q has a follow-up whose condition holds for value.
func (q Question) TriggersFollowUp(value models.Answer) bool {
	return q.FollowUp != nil && q.FollowUp.Condition != nil && q.FollowUp.Condition(value)
}

// Matches reports whether value corresponds to the option value v, using the
// boolean encoding for boolean questions.
func Matches(kind Kind, value models.Answer, v string) bool {
	switch kind {
	case KindBoolean:
		switch v {
		case BoolYes:
			return value.IsTrue()
		case BoolNo:
			return value.IsFalse()
		case BoolUnsure:
			return value.Bool == nil
		}
		return false
	case KindSelect:
		return value.Choice == v
	case KindCheckbox:
		return value.Flags[v]
	case KindDate:
		return value.Date == v
	}
	return false
}
