package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOutboxMessage scans an OutboxMessage in outboxColumns order.
func scanOutboxMessage(row rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.LeadID, &m.Recipient, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

const sessionColumns = `id, generation, verdict, submission, test_mode, data, created_at, updated_at`

// scanSession scans a SessionRecord in sessionColumns order.
func scanSession(row rowScanner) (models.SessionRecord, error) {
	var rec models.SessionRecord
	err := row.Scan(&rec.ID, &rec.Generation, &rec.Verdict, &rec.Submission, &rec.TestMode, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

const leadColumns = `id, session_id, generation, qualified, test_mode, reasons, answers, contact, created_at`

// leadJSON holds the JSON-encoded columns of a lead row.
type leadJSON struct {
	reasons string
	answers string
	contact string
}

func encodeLead(l models.Lead) (leadJSON, error) {
	var out leadJSON
	reasons, err := json.Marshal(l.Reasons)
	if err != nil {
		return out, fmt.Errorf("encode lead reasons: %w", err)
	}
	answers, err := json.Marshal(l.Answers)
	if err != nil {
		return out, fmt.Errorf("encode lead answers: %w", err)
	}
	contact, err := json.Marshal(l.Contact)
	if err != nil {
		return out, fmt.Errorf("encode lead contact: %w", err)
	}
	out.reasons, out.answers, out.contact = string(reasons), string(answers), string(contact)
	return out, nil
}

// scanLead scans a Lead in leadColumns order.
func scanLead(row rowScanner) (models.Lead, error) {
	var l models.Lead
	var reasons sql.NullString
	var answers, contact string
	if err := row.Scan(&l.ID, &l.SessionID, &l.Generation, &l.Qualified, &l.TestMode, &reasons, &answers, &contact, &l.CreatedAt); err != nil {
		return l, err
	}
	if reasons.Valid && reasons.String != "" && reasons.String != "null" {
		if err := json.Unmarshal([]byte(reasons.String), &l.Reasons); err != nil {
			return l, fmt.Errorf("decode lead %s reasons: %w", l.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(answers), &l.Answers); err != nil {
		return l, fmt.Errorf("decode lead %s answers: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(contact), &l.Contact); err != nil {
		return l, fmt.Errorf("decode lead %s contact: %w", l.ID, err)
	}
	return l, nil
}
