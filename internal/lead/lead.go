// Package lead turns a flow submission into a stored lead and queues the
// intake-team notifications for it.
package lead

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/store"
	"github.com/BTreeMap/ClaimCheck/internal/util"
)

// Repo is the persistence a Submitter needs.
type Repo interface {
	store.LeadRepo
	store.OutboxRepo
}

// Submitter is the store-backed flow.LeadSubmitter. A retried submission of
// the same evaluation maps onto the lead already stored, and notifications
// are deduplicated per lead and recipient.
type Submitter struct {
	repo       Repo
	recipients []string
	now        func() time.Time
	newID      func() string
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithRecipients sets who is notified about each new lead.
func WithRecipients(recipients ...string) Option {
	return func(s *Submitter) {
		s.recipients = append(s.recipients, recipients...)
	}
}

// WithClock overrides the lead timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Submitter) {
		s.now = now
	}
}

// WithIDGenerator overrides lead id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Submitter) {
		s.newID = newID
	}
}

// NewSubmitter creates a Submitter over repo.
func NewSubmitter(repo Repo, opts ...Option) *Submitter {
	s := &Submitter{
		repo:  repo,
		now:   time.Now,
		newID: util.NewLeadID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ flow.LeadSubmitter = (*Submitter)(nil)

// Submit stores the lead and enqueues one notification per recipient.
func (s *Submitter) Submit(ctx context.Context, sub flow.Submission) (flow.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return flow.SubmitResult{}, err
	}

	l := models.Lead{
		ID:         s.newID(),
		SessionID:  sub.SessionID,
		Generation: sub.Generation,
		Qualified:  sub.Qualified,
		TestMode:   sub.TestMode,
		Reasons:    sub.Reasons,
		Answers:    sub.Answers,
		Contact:    sub.Contact,
		CreatedAt:  s.now().UTC(),
	}
	stored, created, err := s.repo.SaveLead(l)
	if err != nil {
		return flow.SubmitResult{}, fmt.Errorf("lead.Submit: save lead for session %s: %w", sub.SessionID, err)
	}
	if created {
		slog.Info("Submitter.Submit: lead stored", "leadID", stored.ID, "sessionID", stored.SessionID, "qualified", stored.Qualified, "testMode", stored.TestMode)
	} else {
		slog.Info("Submitter.Submit: duplicate submission, reusing lead", "leadID", stored.ID, "sessionID", stored.SessionID)
	}

	// Enqueue even for an existing lead so a retry repairs a partial enqueue.
	// The outbox dedupes on lead and recipient across every status, so a
	// recipient already notified is not notified again.
	payload, err := NewNotification(stored).Encode()
	if err != nil {
		return flow.SubmitResult{}, fmt.Errorf("lead.Submit: %w", err)
	}
	for _, to := range s.recipients {
		if _, err := s.repo.EnqueueOutboxMessage(stored.ID, to, store.OutboxKindLeadNotification, payload, stored.ID+":"+to); err != nil {
			return flow.SubmitResult{}, fmt.Errorf("lead.Submit: enqueue notification for lead %s: %w", stored.ID, err)
		}
	}

	return flow.SubmitResult{Status: models.APIStatusOK, LeadID: stored.ID}, nil
}
