// Package util provides small helpers shared across ClaimCheck components.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes identify the record type in logs and API payloads.
const (
	SessionIDPrefix = "ses_"
	LeadIDPrefix    = "lead_"
	OutboxIDPrefix  = "outbox_"
)

// NewPrefixedID returns prefix followed by a time-ordered UUIDv7 in compact
// hex form, so ids sort by creation time.
func NewPrefixedID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + strings.ReplaceAll(id.String(), "-", "")
}

// NewSessionID generates a questionnaire session ID.
func NewSessionID() string { return NewPrefixedID(SessionIDPrefix) }

// NewLeadID generates a lead ID.
func NewLeadID() string { return NewPrefixedID(LeadIDPrefix) }

// NewOutboxID generates an outbox message ID.
func NewOutboxID() string { return NewPrefixedID(OutboxIDPrefix) }

// HasIDPrefix reports whether id carries prefix followed by a 32 character
// hex body.
func HasIDPrefix(id, prefix string) bool {
	body, ok := strings.CutPrefix(id, prefix)
	if !ok || len(body) != 32 {
		return false
	}
	_, err := uuid.Parse(body)
	return err == nil
}
