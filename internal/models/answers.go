package models

import "maps"

// DateLayout is the ISO calendar date format used for every date answer.
const DateLayout = "2006-01-02"

// Answer is a single recorded answer. Which field is meaningful depends on the
// kind of the question it answers:
//   - date: Date holds an ISO date string
//   - boolean: Bool holds the choice; a nil Bool is a known "unsure" answer
//   - select: Choice holds the option value
//   - checkbox: Flags maps option ids to their checked state
type Answer struct {
	Date   string          `json:"date,omitempty" yaml:"date,omitempty"`
	Bool   *bool           `json:"bool,omitempty" yaml:"bool,omitempty"`
	Choice string          `json:"choice,omitempty" yaml:"choice,omitempty"`
	Flags  map[string]bool `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// DateAnswer builds a date answer.
func DateAnswer(date string) Answer {
	return Answer{Date: date}
}

// BoolAnswer builds a yes/no answer.
func BoolAnswer(v bool) Answer {
	return Answer{Bool: &v}
}

// UnsureAnswer builds a boolean answer whose value is explicitly unknown.
func UnsureAnswer() Answer {
	return Answer{}
}

// ChoiceAnswer builds a select answer.
func ChoiceAnswer(value string) Answer {
	return Answer{Choice: value}
}

// FlagsAnswer builds a checkbox answer from option toggles.
func FlagsAnswer(flags map[string]bool) Answer {
	return Answer{Flags: maps.Clone(flags)}
}

// IsTrue reports whether the answer is an explicit affirmative boolean.
func (a Answer) IsTrue() bool {
	return a.Bool != nil && *a.Bool
}

// IsFalse reports whether the answer is an explicit negative boolean.
func (a Answer) IsFalse() bool {
	return a.Bool != nil && !*a.Bool
}

// AnyFlag reports whether at least one checkbox option is checked.
func (a Answer) AnyFlag() bool {
	for _, v := range a.Flags {
		if v {
			return true
		}
	}
	return false
}

func (a Answer) clone() Answer {
	out := Answer{Date: a.Date, Choice: a.Choice, Flags: maps.Clone(a.Flags)}
	if a.Bool != nil {
		v := *a.Bool
		out.Bool = &v
	}
	return out
}

// Answers maps question ids to the user's current answer. A key that is
// present means the question has been answered.
type Answers map[string]Answer

// Get returns the answer recorded for id.
func (a Answers) Get(id string) (Answer, bool) {
	v, ok := a[id]
	return v, ok
}

// Has reports whether id has been answered.
func (a Answers) Has(id string) bool {
	_, ok := a[id]
	return ok
}

// Set records ans for id, replacing any previous answer.
func (a Answers) Set(id string, ans Answer) {
	a[id] = ans.clone()
}

// MergeFlags overlays checkbox toggles onto the existing sub-mapping for id.
func (a Answers) MergeFlags(id string, flags map[string]bool) {
	cur := a[id]
	merged := maps.Clone(cur.Flags)
	if merged == nil {
		merged = make(map[string]bool, len(flags))
	}
	maps.Copy(merged, flags)
	a[id] = Answer{Flags: merged}
}

// Clone returns a deep copy of the answer store.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v.clone()
	}
	return out
}
