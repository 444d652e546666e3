package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// answerFile is the YAML form of a set of answers keyed by question id.
// Values use the HTTP API's shapes: strings for dates and selects,
// true/false/null for booleans and a list of option values for checkboxes.
type answerFile struct {
	Answers map[string]interface{} `yaml:"answers"`
}

// Evaluation is the outcome of replaying an answer file.
type Evaluation struct {
	Verdict  models.Verdict `json:"verdict"`
	Reasons  []string       `json:"reasons,omitempty"`
	Advisory string         `json:"advisory,omitempty"`
	// StoppedAt names the question that ended the questionnaire early.
	StoppedAt string         `json:"stopped_at,omitempty"`
	Answered  []string       `json:"answered"`
	Answers   models.Answers `json:"answers"`
}

// ErrIncomplete is returned when an answer file leaves a question the flow
// reaches unanswered.
var ErrIncomplete = errors.New("answer file is incomplete")

func evaluateCmd(ef *engineFlags) *cobra.Command {
	var answersPath string
	var format string

	c := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate an answer file without asking any questions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := ef.engine()
			if err != nil {
				return err
			}
			f, err := os.Open(answersPath)
			if err != nil {
				return err
			}
			defer f.Close()

			answers, err := readAnswerFile(f)
			if err != nil {
				return fmt.Errorf("%s: %w", answersPath, err)
			}
			ev, err := Evaluate(engine, answers)
			if err != nil {
				return err
			}
			return printEvaluation(cmd.OutOrStdout(), ev, format)
		},
	}

	c.Flags().StringVarP(&answersPath, "answers", "a", "", "YAML answer file (required)")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	_ = c.MarkFlagRequired("answers")
	return c
}

// readAnswerFile decodes answers to their JSON wire form.
func readAnswerFile(r io.Reader) (map[string]json.RawMessage, error) {
	var af answerFile
	if err := yaml.NewDecoder(r).Decode(&af); err != nil {
		return nil, fmt.Errorf("decode answer file: %w", err)
	}
	out := make(map[string]json.RawMessage, len(af.Answers))
	for id, v := range af.Answers {
		if t, ok := v.(time.Time); ok {
			v = t.Format(models.DateLayout)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("answer %s: %w", id, err)
		}
		out[id] = raw
	}
	return out, nil
}

// Evaluate replays answers through a fresh session the way a user would:
// each question the flow reaches is answered from the file and advanced.
func Evaluate(engine *flow.Engine, answers map[string]json.RawMessage) (Evaluation, error) {
	s := engine.NewSession(false)
	var answered []string
	for {
		q, ok := s.Current()
		if !ok {
			break
		}
		raw, found := answers[q.ID]
		if !found {
			return Evaluation{}, fmt.Errorf("%w: no answer for %s (%q)", ErrIncomplete, q.ID, q.Prompt)
		}
		value, err := q.DecodeJSON(raw)
		if err != nil {
			return Evaluation{}, err
		}
		if err := engine.Record(s, q.ID, value); err != nil {
			return Evaluation{}, err
		}
		if err := engine.Advance(s); err != nil {
			if msg := flow.UserMessage(err); msg != "" {
				return Evaluation{}, fmt.Errorf("%s: %s: %w", q.ID, msg, err)
			}
			return Evaluation{}, err
		}
		answered = append(answered, q.ID)
	}

	ev := Evaluation{
		Verdict:  s.State.Verdict,
		Reasons:  s.State.Reasons,
		Advisory: s.State.Advisory,
		Answered: answered,
		Answers:  s.Answers,
	}
	if len(answered) < s.Catalog.Len() && len(answered) > 0 {
		ev.StoppedAt = answered[len(answered)-1]
	}
	return ev, nil
}

func printEvaluation(w io.Writer, ev Evaluation, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ev)
	case "pretty", "":
		fmt.Fprintf(w, "Verdict:   %s\n", ev.Verdict)
		if ev.StoppedAt != "" {
			fmt.Fprintf(w, "Stopped:   at %s\n", ev.StoppedAt)
		}
		fmt.Fprintf(w, "Answered:  %d question(s)\n", len(ev.Answered))
		if ev.Advisory != "" {
			fmt.Fprintf(w, "Advisory:  %s\n", ev.Advisory)
		}
		for _, r := range ev.Reasons {
			fmt.Fprintf(w, "- %s\n", r)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}
