package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// ErrInvalidCatalog classifies every catalog definition problem.
var ErrInvalidCatalog = errors.New("invalid catalog")

type yamlCatalog struct {
	Name      string         `yaml:"name"`
	Questions []yamlQuestion `yaml:"questions"`
}

type yamlQuestion struct {
	ID             string        `yaml:"id"`
	Prompt         string        `yaml:"prompt"`
	Help           string        `yaml:"help"`
	Kind           string        `yaml:"kind"`
	Validator      string        `yaml:"validator"`
	InvalidMessage string        `yaml:"invalid_message"`
	ReverseLogic   bool          `yaml:"reverse_logic"`
	Options        []yamlOption  `yaml:"options"`
	FollowUp       *yamlFollowUp `yaml:"follow_up"`
}

type yamlOption struct {
	Value      string `yaml:"value"`
	Label      string `yaml:"label"`
	Qualifying *bool  `yaml:"qualifying"`
}

type yamlFollowUp struct {
	When     string       `yaml:"when"`
	Question yamlQuestion `yaml:"question"`
}

// Default returns the built-in accident claim catalog.
func Default(env Env) (Catalog, error) {
	return Load(bytes.NewReader(defaultCatalogYAML), env)
}

// LoadFile reads a catalog definition from a YAML file.
func LoadFile(path string, env Env) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer f.Close()

	c, err := Load(f, env)
	if err != nil {
		return Catalog{}, fmt.Errorf("load catalog %s: %w", path, err)
	}
	slog.Info("Catalog loaded from file", "path", path, "questions", c.Len())
	return c, nil
}

// Load parses a YAML catalog definition, resolving validator names against
// the registry and binding them to env.
func Load(r io.Reader, env Env) (Catalog, error) {
	var yc yamlCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&yc); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if len(yc.Questions) == 0 {
		return Catalog{}, fmt.Errorf("%w: no questions defined", ErrInvalidCatalog)
	}

	seen := make(map[string]bool)
	questions := make([]Question, 0, len(yc.Questions))
	for i, yq := range yc.Questions {
		q, err := mapQuestion(yq, env, seen)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: question %d: %v", ErrInvalidCatalog, i, err)
		}
		questions = append(questions, q)
	}
	slog.Debug("Catalog parsed", "name", yc.Name, "questions", len(questions))
	return New(questions...), nil
}

func mapQuestion(yq yamlQuestion, env Env, seen map[string]bool) (Question, error) {
	id := strings.TrimSpace(yq.ID)
	if id == "" {
		return Question{}, errors.New("id is required")
	}
	if seen[id] {
		return Question{}, fmt.Errorf("duplicate id %q", id)
	}
	seen[id] = true

	kind := Kind(yq.Kind)
	if !IsValidKind(kind) {
		return Question{}, fmt.Errorf("%s: unknown kind %q", id, yq.Kind)
	}
	if strings.TrimSpace(yq.Prompt) == "" {
		return Question{}, fmt.Errorf("%s: prompt is required", id)
	}

	q := Question{
		ID:             id,
		Prompt:         yq.Prompt,
		HelpText:       yq.Help,
		Kind:           kind,
		ReverseLogic:   yq.ReverseLogic,
		InvalidMessage: yq.InvalidMessage,
	}

	for _, yo := range yq.Options {
		if yo.Value == "" {
			return Question{}, fmt.Errorf("%s: option without value", id)
		}
		q.Options = append(q.Options, Option{Value: yo.Value, Label: yo.Label, IsQualifying: yo.Qualifying})
	}
	switch kind {
	case KindSelect, KindCheckbox:
		if len(q.Options) == 0 {
			return Question{}, fmt.Errorf("%s: %s question needs options", id, kind)
		}
	case KindBoolean:
		for _, o := range q.Options {
			if o.Value != BoolYes && o.Value != BoolNo && o.Value != BoolUnsure {
				return Question{}, fmt.Errorf("%s: boolean option value %q must be true, false or null", id, o.Value)
			}
		}
	}
	if q.ReverseLogic && kind != KindBoolean {
		return Question{}, fmt.Errorf("%s: reverse_logic only applies to boolean questions", id)
	}

	if yq.Validator != "" {
		v, err := lookupValidator(yq.Validator, env)
		if err != nil {
			return Question{}, fmt.Errorf("%s: %w", id, err)
		}
		q.Validate = v
	}

	if yq.FollowUp != nil {
		child, err := mapQuestion(yq.FollowUp.Question, env, seen)
		if err != nil {
			return Question{}, fmt.Errorf("%s follow-up: %w", id, err)
		}
		cond, err := conditionFor(q, yq.FollowUp.When)
		if err != nil {
			return Question{}, fmt.Errorf("%s follow-up: %w", id, err)
		}
		q.FollowUp = &FollowUp{Condition: cond, Question: child}
	}
	return q, nil
}

// conditionFor builds a follow-up condition matching the option value when.
func conditionFor(parent Question, when string) (Condition, error) {
	if when == "" {
		return nil, errors.New("when is required")
	}
	switch parent.Kind {
	case KindSelect, KindCheckbox:
		if _, ok := parent.Option(when); !ok {
			return nil, fmt.Errorf("when %q does not match an option", when)
		}
	case KindBoolean:
		if when != BoolYes && when != BoolNo && when != BoolUnsure {
			return nil, fmt.Errorf("when %q must be true, false or null", when)
		}
	}
	kind := parent.Kind
	return func(value models.Answer) bool {
		return Matches(kind, value, when)
	}, nil
}
