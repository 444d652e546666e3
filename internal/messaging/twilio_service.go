package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/ClaimCheck/internal/twiliowhatsapp"
)

// TwilioService implements Service over Twilio SMS or WhatsApp.
type TwilioService struct {
	client twiliowhatsapp.Sender
}

// NewTwilioService wraps a Twilio client (or its mock).
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

func (s *TwilioService) Name() string { return "twilio" }

// ValidateAndCanonicalizeRecipient returns the number in E.164 form.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	digits, err := canonicalPhone(recipient)
	if err != nil {
		return "", err
	}
	canonical := "+" + digits
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}
