// Package messaging delivers lead notifications to the intake team.
//
// A Service sends text to one recipient over one channel. The Notifier
// renders an outbox message into text and hands it to the Service; it is
// the send function the store's OutboxSender drains the outbox with.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// ErrInvalidRecipient is returned for recipients a service cannot address.
var ErrInvalidRecipient = errors.New("invalid recipient")

// MinPhoneDigits is the shortest phone number a service accepts.
const MinPhoneDigits = 6

var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// Name identifies the channel in logs.
	Name() string

	// ValidateAndCanonicalizeRecipient validates a recipient and returns the
	// form the channel sends to.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends body to a recipient.
	SendMessage(ctx context.Context, to string, body string) error
}

// canonicalPhone strips everything but digits.
func canonicalPhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("%w: %q has fewer than %d digits", ErrInvalidRecipient, recipient, MinPhoneDigits)
	}
	return canonical, nil
}

// LogService writes notifications to the log instead of sending them. It
// backs NOTIFY_CHANNEL=none so leads are still visible during development.
type LogService struct{}

func (LogService) Name() string { return "log" }

func (LogService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	return recipient, nil
}

func (LogService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Info("LogService.SendMessage: notification", "to", to, "body", body)
	return nil
}
