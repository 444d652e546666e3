package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Run drives s interactively: it shows each view on display, applies the
// reported input and, when the dispatcher offers contact capture, collects
// contact details from capture and submits them through submitter. Run
// returns when the display reports InputQuit or an error it cannot recover
// from. Validation and submission errors are shown and never end the run.
func (e *Engine) Run(ctx context.Context, s *Session, display Display, capture ContactCapture, submitter LeadSubmitter) error {
	slog.Debug("Engine.Run: started", "session", s.ID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, err := display.Show(ctx, s.View())
		if err != nil {
			slog.Error("Engine.Run: display error", "session", s.ID, "error", err)
			return fmt.Errorf("display: %w", err)
		}

		switch in.Kind {
		case InputQuit:
			slog.Debug("Engine.Run: quit", "session", s.ID)
			return nil
		case InputAnswer:
			err = e.Record(s, in.QuestionID, in.Value)
			if err == nil {
				err = e.Advance(s)
			}
		case InputNext:
			err = e.Advance(s)
		case InputBack:
			err = e.Retreat(s)
		case InputRestart:
			e.Restart(s)
		case InputSubmit:
			err = e.captureAndSubmit(ctx, s, capture, submitter)
		default:
			err = fmt.Errorf("unsupported input %q", in.Kind)
		}
		if err = recoverable(s, err); err != nil {
			return err
		}
	}
}

func (e *Engine) captureAndSubmit(ctx context.Context, s *Session, capture ContactCapture, submitter LeadSubmitter) error {
	action := s.Dispatch()
	if !action.CanSubmit {
		return ErrNotTerminated
	}
	contact, err := capture.CaptureContact(ctx, action.Simplified)
	if err != nil {
		return fmt.Errorf("contact capture: %w", err)
	}
	return e.Submit(ctx, s, contact, submitter)
}

// recoverable folds the errors a user can act on into session state so the
// next view shows them.
func recoverable(s *Session, err error) error {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	var serr *SubmissionError
	switch {
	case errors.As(err, &verr):
		s.State.ValidationError = verr.Message
		return nil
	case errors.As(err, &serr):
		return nil
	case errors.Is(err, ErrTerminated), errors.Is(err, ErrNotTerminated),
		errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrAlreadySubmitted),
		errors.Is(err, ErrUnknownQuestion):
		slog.Debug("Engine.Run: ignored input", "session", s.ID, "error", err)
		return nil
	}
	return err
}
