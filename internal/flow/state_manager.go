package flow

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// SessionStore is the persistence a SessionManager needs.
type SessionStore interface {
	SaveSession(rec models.SessionRecord) error
	GetSession(id string) (*models.SessionRecord, error)
	DeleteSession(id string) error
}

// SessionManager loads and saves sessions.
type SessionManager interface {
	Create(ctx context.Context, testMode bool) (*Session, error)
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// StoreBasedSessionManager implements SessionManager using a SessionStore backend.
type StoreBasedSessionManager struct {
	engine *Engine
	store  SessionStore
}

// NewStoreBasedSessionManager creates a new SessionManager backed by a store.
func NewStoreBasedSessionManager(engine *Engine, st SessionStore) *StoreBasedSessionManager {
	slog.Debug("Creating StoreBasedSessionManager")
	return &StoreBasedSessionManager{engine: engine, store: st}
}

// Engine returns the engine sessions are restored against.
func (sm *StoreBasedSessionManager) Engine() *Engine {
	return sm.engine
}

// Create starts and persists a new session.
func (sm *StoreBasedSessionManager) Create(ctx context.Context, testMode bool) (*Session, error) {
	s := sm.engine.NewSession(testMode)
	if err := sm.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Load retrieves a session; the store's not-found error is passed through.
func (sm *StoreBasedSessionManager) Load(ctx context.Context, id string) (*Session, error) {
	slog.Debug("SessionManager Load", "session", id)

	rec, err := sm.store.GetSession(id)
	if err != nil {
		slog.Debug("SessionManager Load error", "error", err, "session", id)
		return nil, err
	}
	s, err := sm.engine.Restore(*rec)
	if err != nil {
		slog.Error("SessionManager Load restore error", "error", err, "session", id)
		return nil, err
	}
	sm.engine.ExpireStaleSubmission(s)
	return s, nil
}

// Save persists the session's current snapshot.
func (sm *StoreBasedSessionManager) Save(ctx context.Context, s *Session) error {
	rec, err := s.Snapshot()
	if err != nil {
		slog.Error("SessionManager Save encode error", "error", err, "session", s.ID)
		return err
	}
	if err := sm.store.SaveSession(rec); err != nil {
		slog.Error("SessionManager Save error", "error", err, "session", s.ID)
		return err
	}
	slog.Debug("SessionManager Save succeeded", "session", s.ID, "cursor", s.State.Cursor, "verdict", s.State.Verdict, "submission", s.State.Submission)
	return nil
}

// Delete removes a session.
func (sm *StoreBasedSessionManager) Delete(ctx context.Context, id string) error {
	if err := sm.store.DeleteSession(id); err != nil {
		slog.Error("SessionManager Delete error", "error", err, "session", id)
		return err
	}
	slog.Debug("SessionManager Delete succeeded", "session", id)
	return nil
}
