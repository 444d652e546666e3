// Package store provides storage backends for ClaimCheck.
//
// It persists questionnaire sessions, submitted leads, notification receipts
// and the durable notification outbox. An in-memory store serves tests and
// single-process use; SQLite and PostgreSQL back real deployments.
package store

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionRepo persists questionnaire sessions.
type SessionRepo interface {
	// SaveSession inserts or replaces a session record.
	SaveSession(rec models.SessionRecord) error

	// GetSession returns the session with id, or ErrNotFound.
	GetSession(id string) (*models.SessionRecord, error)

	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(id string) error

	// PurgeSessions deletes sessions last updated before updatedBefore.
	PurgeSessions(updatedBefore time.Time) (int, error)
}

// LeadRepo persists submitted leads.
type LeadRepo interface {
	// SaveLead inserts lead unless a lead with the same dedupe key exists, in
	// which case the stored lead is returned and created is false.
	SaveLead(lead models.Lead) (stored models.Lead, created bool, err error)

	// GetLead returns the lead with id, or ErrNotFound.
	GetLead(id string) (*models.Lead, error)

	// ListLeads returns up to limit leads, newest first.
	ListLeads(limit int) ([]models.Lead, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	SessionRepo
	LeadRepo
	OutboxRepo
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	Close() error
}

// Opts holds configuration for database-backed stores.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DefaultLeadListLimit caps ListLeads when the caller passes a non-positive limit.
const DefaultLeadListLimit = 100

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else, which is treated as a file path.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// key=value form, e.g. "host=localhost user=claimcheck dbname=claimcheck"
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// Open returns the store a DSN selects: in-memory when dsn is empty,
// PostgreSQL for Postgres DSNs and SQLite otherwise.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Warn("store.Open: no database configured, using in-memory store; data is lost on exit")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
