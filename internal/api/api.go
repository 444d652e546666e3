// Package api exposes the accident-claim questionnaire over HTTP.
//
// Each session is driven through JSON endpoints that act as its display: the
// client posts answers and navigation actions and receives the session view
// back. Actions on one session are serialised; submissions release the
// session while the lead is being delivered.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/store"
)

// Server defaults.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultReadTimeout     = 15 * time.Second
)

// SessionManager loads and saves sessions for one engine.
type SessionManager interface {
	flow.SessionManager
	Engine() *flow.Engine
}

// LeadLister gives operators read access to submitted leads and the state
// of their intake-team notifications.
type LeadLister interface {
	ListLeads(limit int) ([]models.Lead, error)
	GetLead(id string) (*models.Lead, error)
	ListOutboxMessages(leadID string) ([]store.OutboxMessage, error)
}

// Opts holds server configuration.
type Opts struct {
	Addr     string
	TestMode bool
}

// Option configures the server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithTestMode marks every new session as a test session.
func WithTestMode(testMode bool) Option {
	return func(o *Opts) {
		o.TestMode = testMode
	}
}

// Server handles questionnaire requests.
type Server struct {
	sessions  SessionManager
	submitter flow.LeadSubmitter
	leads     LeadLister
	locks     *sessionLocks
	opts      Opts
}

// NewServer wires a server over its collaborators. leads may be nil, in
// which case GET /leads is not served.
func NewServer(sessions SessionManager, submitter flow.LeadSubmitter, leads LeadLister, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		sessions:  sessions,
		submitter: submitter,
		leads:     leads,
		locks:     newSessionLocks(),
		opts:      o,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /catalog", s.catalogHandler)
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/answers", s.answerHandler)
	mux.HandleFunc("POST /sessions/{id}/next", s.nextHandler)
	mux.HandleFunc("POST /sessions/{id}/back", s.backHandler)
	mux.HandleFunc("POST /sessions/{id}/submit", s.submitHandler)
	mux.HandleFunc("POST /sessions/{id}/restart", s.restartHandler)
	if s.leads != nil {
		mux.HandleFunc("GET /leads", s.leadsHandler)
		mux.HandleFunc("GET /leads/{id}", s.leadHandler)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Serve: API listening", "addr", ln.Addr().String(), "testMode", s.opts.TestMode)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// sessionLocks hands out one mutex per session id. Entries are dropped when
// no request holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the caller owns id and returns the matching unlock.
func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			sl.mu.Unlock()
			l.mu.Lock()
			sl.refs--
			if sl.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}
