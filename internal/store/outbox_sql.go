package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/util"
)

// Compile-time checks that both SQL stores implement OutboxRepo.
var (
	_ OutboxRepo = (*SQLiteStore)(nil)
	_ OutboxRepo = (*PostgresStore)(nil)
)

const outboxColumns = `id, lead_id, recipient, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

// dialect selects placeholder style and claim strategy for outboxTable.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders as $1..$n for Postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// outboxTable implements OutboxRepo over the outbox_messages table. The SQL
// stores embed it. Timestamps are written in UTC so SQLite's text ordering
// matches time ordering.
type outboxTable struct {
	db      *sql.DB
	dialect dialect
}

func (o outboxTable) exec(query string, args ...any) (sql.Result, error) {
	return o.db.Exec(o.dialect.rebind(query), args...)
}

func (o outboxTable) EnqueueOutboxMessage(leadID, recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	id := util.NewOutboxID()
	now := time.Now().UTC()

	if dedupeKey != "" {
		var existingID string
		err := o.db.QueryRow(
			o.dialect.rebind(`SELECT id FROM outbox_messages WHERE dedupe_key = ? ORDER BY created_at LIMIT 1`),
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("outboxTable.EnqueueOutboxMessage: dedupe hit", "dialect", o.dialect, "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe check failed: %w", err)
		}
	}

	_, err := o.exec(
		`INSERT INTO outbox_messages (id, lead_id, recipient, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, leadID, recipient, kind, payloadJSON, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message for lead %s failed: %w", leadID, err)
	}
	slog.Debug("outboxTable.EnqueueOutboxMessage", "dialect", o.dialect, "id", id, "lead", leadID, "kind", kind)
	return id, nil
}

// ClaimDueOutboxMessages uses FOR UPDATE SKIP LOCKED on Postgres so several
// senders can share one database. SQLite serialises writers, so a plain
// transaction is enough there.
func (o outboxTable) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	now = now.UTC()
	if o.dialect == dialectPostgres {
		rows, err := o.db.Query(
			`UPDATE outbox_messages SET status = 'sending', locked_at = $1, updated_at = $1
			 WHERE id IN (
			   SELECT id FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
			   ORDER BY created_at ASC LIMIT $2
			   FOR UPDATE SKIP LOCKED
			 )
			 RETURNING `+outboxColumns,
			now, limit,
		)
		if err != nil {
			return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
		}
		return collectOutbox(rows)
	}

	tx, err := o.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT `+outboxColumns+`
		 FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	msgs, err := collectOutbox(rows)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if _, err := tx.Exec(`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`, now, now, msgs[i].ID); err != nil {
			return nil, fmt.Errorf("mark outbox %s sending failed: %w", msgs[i].ID, err)
		}
		msgs[i].Status = OutboxStatusSending
		msgs[i].LockedAt = &now
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim due outbox messages commit failed: %w", err)
	}
	return msgs, nil
}

func (o outboxTable) MarkOutboxMessageSent(id string) error {
	if _, err := o.exec(`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark outbox %s sent failed: %w", id, err)
	}
	return nil
}

func (o outboxTable) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	_, err := o.exec(
		`UPDATE outbox_messages SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, nextAttemptAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox %s failed: %w", id, err)
	}
	return nil
}

func (o outboxTable) CancelOutboxMessage(id string, reason string) error {
	_, err := o.exec(
		`UPDATE outbox_messages SET status = 'canceled', attempts = attempts + 1, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("cancel outbox %s failed: %w", id, err)
	}
	return nil
}

func (o outboxTable) ListOutboxMessages(leadID string) ([]OutboxMessage, error) {
	rows, err := o.db.Query(
		o.dialect.rebind(`SELECT `+outboxColumns+` FROM outbox_messages WHERE lead_id = ? ORDER BY created_at ASC`),
		leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("list outbox messages for lead %s failed: %w", leadID, err)
	}
	return collectOutbox(rows)
}

func (o outboxTable) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	result, err := o.exec(
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("outboxTable.RequeueStaleSendingMessages", "dialect", o.dialect, "requeued", n)
	}
	return int(n), nil
}

// collectOutbox scans and closes rows.
func collectOutbox(rows *sql.Rows) ([]OutboxMessage, error) {
	defer rows.Close()
	var msgs []OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox row iteration failed: %w", err)
	}
	return msgs, nil
}
