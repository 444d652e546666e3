package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// ErrMalformedInput is returned when raw input cannot be read as an answer
// to the question's kind.
var ErrMalformedInput = errors.New("malformed answer input")

// ParseText reads a typed answer. Choices may be given by value, by label
// (case-insensitive) or by 1-based position; booleans also accept yes/no and
// y/n. Checkbox input is a comma-separated list, or "none".
func (q Question) ParseText(raw string) (models.Answer, error) {
	raw = strings.TrimSpace(raw)
	switch q.Kind {
	case KindDate:
		if raw == "" {
			return models.Answer{}, fmt.Errorf("%w: empty date", ErrMalformedInput)
		}
		return models.DateAnswer(raw), nil

	case KindBoolean:
		switch strings.ToLower(raw) {
		case "y", "yes", BoolYes:
			return models.BoolAnswer(true), nil
		case "n", "no", BoolNo:
			return models.BoolAnswer(false), nil
		case "unsure", "not sure", "?", BoolUnsure:
			return models.UnsureAnswer(), nil
		}
		opt, err := q.pick(raw)
		if err != nil {
			return models.Answer{}, err
		}
		return boolOption(opt.Value)

	case KindSelect:
		opt, err := q.pick(raw)
		if err != nil {
			return models.Answer{}, err
		}
		return models.ChoiceAnswer(opt.Value), nil

	case KindCheckbox:
		flags := q.blankFlags()
		if raw == "" || strings.EqualFold(raw, "none") {
			return models.FlagsAnswer(flags), nil
		}
		for _, part := range strings.Split(raw, ",") {
			opt, err := q.pick(strings.TrimSpace(part))
			if err != nil {
				return models.Answer{}, err
			}
			flags[opt.Value] = true
		}
		return models.FlagsAnswer(flags), nil
	}
	return models.Answer{}, fmt.Errorf("%w: unsupported kind %q", ErrMalformedInput, q.Kind)
}

// DecodeJSON reads an answer sent as a JSON value: a string for dates and
// selects, true/false/null for booleans and either an object of flags or an
// array of option values for checkboxes.
func (q Question) DecodeJSON(raw json.RawMessage) (models.Answer, error) {
	switch q.Kind {
	case KindDate, KindSelect:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Answer{}, fmt.Errorf("%w: expected a string for %s question %s", ErrMalformedInput, q.Kind, q.ID)
		}
		if q.Kind == KindDate {
			return models.DateAnswer(strings.TrimSpace(s)), nil
		}
		return models.ChoiceAnswer(s), nil

	case KindBoolean:
		var b *bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return models.Answer{}, fmt.Errorf("%w: expected true, false or null for question %s", ErrMalformedInput, q.ID)
		}
		if b == nil {
			return models.UnsureAnswer(), nil
		}
		return models.BoolAnswer(*b), nil

	case KindCheckbox:
		var flags map[string]bool
		if err := json.Unmarshal(raw, &flags); err == nil {
			return models.FlagsAnswer(flags), nil
		}
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return models.Answer{}, fmt.Errorf("%w: expected an object or array for question %s", ErrMalformedInput, q.ID)
		}
		flags = q.blankFlags()
		for _, v := range values {
			flags[v] = true
		}
		return models.FlagsAnswer(flags), nil
	}
	return models.Answer{}, fmt.Errorf("%w: unsupported kind %q", ErrMalformedInput, q.Kind)
}

// pick resolves a choice by value, label or 1-based position.
func (q Question) pick(raw string) (Option, error) {
	choices := q.Choices()
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(choices) {
		return choices[n-1], nil
	}
	for _, opt := range choices {
		if opt.Value == raw || strings.EqualFold(opt.Label, raw) {
			return opt, nil
		}
	}
	return Option{}, fmt.Errorf("%w: %q is not one of the choices for %s", ErrMalformedInput, raw, q.ID)
}

func (q Question) blankFlags() map[string]bool {
	flags := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		flags[opt.Value] = false
	}
	return flags
}

func boolOption(v string) (models.Answer, error) {
	switch v {
	case BoolYes:
		return models.BoolAnswer(true), nil
	case BoolNo:
		return models.BoolAnswer(false), nil
	case BoolUnsure:
		return models.UnsureAnswer(), nil
	}
	return models.Answer{}, fmt.Errorf("%w: boolean option %q", ErrMalformedInput, v)
}
