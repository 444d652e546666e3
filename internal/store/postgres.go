// Package store provides storage backends for ClaimCheck.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ClaimCheck/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	outboxTable
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{outboxTable: outboxTable{db: db, dialect: dialectPostgres}, db: db}, nil
}

func (s *PostgresStore) SaveSession(rec models.SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   generation = EXCLUDED.generation,
		   verdict = EXCLUDED.verdict,
		   submission = EXCLUDED.submission,
		   test_mode = EXCLUDED.test_mode,
		   data = EXCLUDED.data,
		   updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Generation, rec.Verdict, rec.Submission, rec.TestMode, rec.Data, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", rec.ID)
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", rec.ID, "generation", rec.Generation)
	return nil
}

func (s *PostgresStore) GetSession(id string) (*models.SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &rec, nil
}

func (s *PostgresStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) PurgeSessions(updatedBefore time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < $1`, updatedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) SaveLead(lead models.Lead) (models.Lead, bool, error) {
	enc, err := encodeLead(lead)
	if err != nil {
		return models.Lead{}, false, err
	}
	result, err := s.db.Exec(
		`INSERT INTO leads (id, dedupe_key, session_id, generation, qualified, test_mode, reasons, answers, contact, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		lead.ID, lead.DedupeKey(), lead.SessionID, lead.Generation, lead.Qualified, lead.TestMode,
		enc.reasons, enc.answers, enc.contact, lead.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveLead failed", "error", err, "sessionID", lead.SessionID)
		return models.Lead{}, false, fmt.Errorf("failed to save lead: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		slog.Debug("PostgresStore SaveLead succeeded", "leadID", lead.ID, "dedupeKey", lead.DedupeKey())
		return lead, true, nil
	}
	stored, err := scanLead(s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE dedupe_key = $1`, lead.DedupeKey()))
	if err != nil {
		return models.Lead{}, false, fmt.Errorf("failed to load existing lead %s: %w", lead.DedupeKey(), err)
	}
	slog.Debug("PostgresStore SaveLead: dedupe hit", "dedupeKey", lead.DedupeKey(), "existingID", stored.ID)
	return stored, false, nil
}

func (s *PostgresStore) GetLead(id string) (*models.Lead, error) {
	l, err := scanLead(s.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lead %s: %w", id, err)
	}
	return &l, nil
}

func (s *PostgresStore) ListLeads(limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = DefaultLeadListLimit
	}
	rows, err := s.db.Query(`SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("PostgresStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
