package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/genai"
	"github.com/BTreeMap/ClaimCheck/internal/lead"
	"github.com/BTreeMap/ClaimCheck/internal/store"
)

// DefaultSummaryTimeout bounds the optional AI summary of a lead.
const DefaultSummaryTimeout = 20 * time.Second

// Summarizer writes a case briefing for a lead.
type Summarizer interface {
	SummarizeCase(ctx context.Context, c genai.Case) (string, error)
}

// Notifier turns outbox messages into intake-team notifications.
type Notifier struct {
	service        Service
	summarizer     Summarizer
	summaryTimeout time.Duration
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithSummarizer appends an AI-written briefing to each notification.
// Summary failures fall back to the static text.
func WithSummarizer(s Summarizer) NotifierOption {
	return func(n *Notifier) {
		n.summarizer = s
	}
}

// NewNotifier creates a Notifier sending through service.
func NewNotifier(service Service, opts ...NotifierOption) *Notifier {
	n := &Notifier{service: service, summaryTimeout: DefaultSummaryTimeout}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers one outbox message. It matches store.OutboxSendFunc.
func (n *Notifier) Send(ctx context.Context, msg store.OutboxMessage) error {
	if msg.Kind != store.OutboxKindLeadNotification {
		return fmt.Errorf("messaging: unsupported outbox message kind %q", msg.Kind)
	}
	note, err := lead.DecodeNotification(msg.PayloadJSON)
	if err != nil {
		return fmt.Errorf("messaging: outbox message %s: %w", msg.ID, err)
	}
	body := n.Render(ctx, note)
	if err := n.service.SendMessage(ctx, msg.Recipient, body); err != nil {
		return fmt.Errorf("messaging: %s send to %s: %w", n.service.Name(), msg.Recipient, err)
	}
	slog.Info("Notifier.Send: lead notification delivered", "leadID", note.LeadID, "to", msg.Recipient, "channel", n.service.Name())
	return nil
}

// SendFunc adapts Send for store.NewOutboxSender.
func (n *Notifier) SendFunc() store.OutboxSendFunc {
	return n.Send
}

// Render builds the message text for a notification.
func (n *Notifier) Render(ctx context.Context, note lead.Notification) string {
	body := note.Summary()
	if n.summarizer == nil {
		return body
	}

	ctx, cancel := context.WithTimeout(ctx, n.summaryTimeout)
	defer cancel()
	summary, err := n.summarizer.SummarizeCase(ctx, genai.Case{
		Name:      note.Contact.Name,
		Contact:   contactLine(note),
		Qualified: note.Qualified,
		Reasons:   note.Reasons,
		Answers:   note.AnswerLines(),
		Notes:     note.Contact.Notes,
	})
	if err != nil || summary == "" {
		slog.Warn("Notifier.Render: summary unavailable, sending static text", "leadID", note.LeadID, "error", err)
		return body
	}
	return body + "\n\n" + summary
}

func contactLine(note lead.Notification) string {
	var parts []string
	if note.Contact.Phone != "" {
		parts = append(parts, note.Contact.Phone)
	}
	if note.Contact.Email != "" {
		parts = append(parts, note.Contact.Email)
	}
	if note.Contact.PreferredContact != "" {
		parts = append(parts, "prefers "+string(note.Contact.PreferredContact))
	}
	return strings.Join(parts, ", ")
}
