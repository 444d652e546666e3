package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// Commands understood at any prompt.
const (
	cmdBack    = ":back"
	cmdRestart = ":restart"
	cmdQuit    = ":quit"
	cmdSubmit  = "submit"
)

// TerminalDisplay renders views as text and reads the user's replies line by
// line. It is both the flow's display and its contact capture.
type TerminalDisplay struct {
	in  *bufio.Scanner
	out io.Writer
}

var (
	_ flow.Display        = (*TerminalDisplay)(nil)
	_ flow.ContactCapture = (*TerminalDisplay)(nil)
)

// NewTerminalDisplay reads from in and writes to out.
func NewTerminalDisplay(in io.Reader, out io.Writer) *TerminalDisplay {
	return &TerminalDisplay{in: bufio.NewScanner(in), out: out}
}

// readLine returns the next trimmed line. End of input is reported as io.EOF.
func (d *TerminalDisplay) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !d.in.Scan() {
		if err := d.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(d.in.Text()), nil
}

// Show renders v and returns the user's next action. End of input quits.
func (d *TerminalDisplay) Show(ctx context.Context, v flow.View) (flow.Input, error) {
	if v.Question == nil {
		return d.showResult(ctx, v)
	}
	q := *v.Question
	d.renderQuestion(v, q)

	for {
		fmt.Fprint(d.out, "> ")
		line, err := d.readLine(ctx)
		if errors.Is(err, io.EOF) {
			return flow.Input{Kind: flow.InputQuit}, nil
		}
		if err != nil {
			return flow.Input{}, err
		}

		switch line {
		case cmdQuit:
			return flow.Input{Kind: flow.InputQuit}, nil
		case cmdBack:
			return flow.Input{Kind: flow.InputBack}, nil
		case cmdRestart:
			return flow.Input{Kind: flow.InputRestart}, nil
		case "":
			if v.Answer != nil {
				return flow.Input{Kind: flow.InputNext}, nil
			}
		}

		value, err := q.ParseText(line)
		if err != nil {
			fmt.Fprintf(d.out, "  %s\n", inputHint(q))
			continue
		}
		return flow.Input{Kind: flow.InputAnswer, QuestionID: q.ID, Value: value}, nil
	}
}

func (d *TerminalDisplay) renderQuestion(v flow.View, q catalog.Question) {
	fmt.Fprintf(d.out, "\n[%d/%d] %s\n", v.Step, v.Total, q.Prompt)
	if q.HelpText != "" {
		fmt.Fprintf(d.out, "  %s\n", q.HelpText)
	}
	for i, opt := range v.Choices {
		fmt.Fprintf(d.out, "  %d) %s\n", i+1, opt.Label)
	}
	if v.Answer != nil {
		fmt.Fprintf(d.out, "  current answer: %s (press enter to keep)\n", formatAnswer(q, *v.Answer))
	}
	if v.ValidationError != "" {
		fmt.Fprintf(d.out, "  ! %s\n", v.ValidationError)
	}
}

func (d *TerminalDisplay) showResult(ctx context.Context, v flow.View) (flow.Input, error) {
	fmt.Fprintln(d.out)
	if v.Action.Message != "" {
		fmt.Fprintln(d.out, v.Action.Message)
	}
	if v.Advisory != "" {
		fmt.Fprintf(d.out, "Note: %s\n", v.Advisory)
	}
	if v.ValidationError != "" {
		fmt.Fprintf(d.out, "  ! %s\n", v.ValidationError)
	}
	if v.LeadID != "" {
		fmt.Fprintf(d.out, "Reference: %s\n", v.LeadID)
	}

	var choices []string
	if v.Action.CanSubmit {
		choices = append(choices, cmdSubmit)
	}
	if v.CanRetreat {
		choices = append(choices, cmdBack)
	}
	if v.Action.CanRestart {
		choices = append(choices, cmdRestart)
	}
	choices = append(choices, cmdQuit)
	fmt.Fprintf(d.out, "(%s)\n", strings.Join(choices, ", "))

	for {
		fmt.Fprint(d.out, "> ")
		line, err := d.readLine(ctx)
		if errors.Is(err, io.EOF) {
			return flow.Input{Kind: flow.InputQuit}, nil
		}
		if err != nil {
			return flow.Input{}, err
		}
		switch strings.ToLower(line) {
		case cmdSubmit, ":" + cmdSubmit:
			if v.Action.CanSubmit {
				return flow.Input{Kind: flow.InputSubmit}, nil
			}
		case cmdBack:
			if v.CanRetreat {
				return flow.Input{Kind: flow.InputBack}, nil
			}
		case cmdRestart:
			return flow.Input{Kind: flow.InputRestart}, nil
		case cmdQuit, "":
			return flow.Input{Kind: flow.InputQuit}, nil
		}
		fmt.Fprintf(d.out, "  please type one of: %s\n", strings.Join(choices, ", "))
	}
}

type contactField struct {
	prompt string
	dst    *string
}

// CaptureContact asks for contact details. The simplified form skips the
// preferred contact method.
func (d *TerminalDisplay) CaptureContact(ctx context.Context, simplified bool) (models.ContactInfo, error) {
	var c models.ContactInfo
	var preferred, notes string
	fields := []contactField{
		{"Full name", &c.Name},
		{"Phone", &c.Phone},
		{"Email", &c.Email},
	}
	if !simplified {
		fields = append(fields, contactField{"Preferred contact (phone/email/text)", &preferred})
	}
	fields = append(fields, contactField{"Anything else we should know", &notes})

	fmt.Fprintln(d.out, "\nPlease share your contact details (leave blank to skip).")
	for _, f := range fields {
		fmt.Fprintf(d.out, "%s: ", f.prompt)
		line, err := d.readLine(ctx)
		if err != nil {
			return c, err
		}
		*f.dst = line
	}
	c.PreferredContact = models.ContactMethod(strings.ToLower(preferred))
	c.Notes = notes
	c.Simplified = simplified
	return c, nil
}

// inputHint tells the user what a question accepts.
func inputHint(q catalog.Question) string {
	switch q.Kind {
	case catalog.KindDate:
		return "enter a date as YYYY-MM-DD"
	case catalog.KindCheckbox:
		return "enter option numbers separated by commas, or 'none'"
	case catalog.KindBoolean:
		return "answer yes or no, or pick an option number"
	}
	return "pick an option number"
}

// formatAnswer renders a recorded answer using the question's labels.
func formatAnswer(q catalog.Question, a models.Answer) string {
	switch q.Kind {
	case catalog.KindDate:
		return a.Date
	case catalog.KindSelect:
		if opt, ok := q.Option(a.Choice); ok {
			return opt.Label
		}
		return a.Choice
	case catalog.KindBoolean:
		for _, opt := range q.Choices() {
			if catalog.Matches(q.Kind, a, opt.Value) {
				return opt.Label
			}
		}
		return "unsure"
	case catalog.KindCheckbox:
		var labels []string
		for _, opt := range q.Options {
			if a.Flags[opt.Value] {
				labels = append(labels, opt.Label)
			}
		}
		if len(labels) == 0 {
			return "none"
		}
		return strings.Join(labels, ", ")
	}
	return ""
}
