package store

import (
	"context"
	"log/slog"
	"time"
)

// Janitor defaults.
const (
	DefaultSessionTTL      = 72 * time.Hour
	DefaultJanitorInterval = 10 * time.Minute
)

// SessionJanitor periodically deletes sessions that have not been touched
// for longer than the TTL.
type SessionJanitor struct {
	repo         SessionRepo
	ttl          time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// NewSessionJanitor creates a new SessionJanitor. Non-positive durations
// fall back to the defaults.
func NewSessionJanitor(repo SessionRepo, ttl, pollInterval time.Duration) *SessionJanitor {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if pollInterval <= 0 {
		pollInterval = DefaultJanitorInterval
	}
	return &SessionJanitor{
		repo:         repo,
		ttl:          ttl,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// Run starts the sweep loop. It blocks until the context is cancelled.
func (j *SessionJanitor) Run(ctx context.Context) {
	slog.Info("SessionJanitor.Run: starting session janitor", "ttl", j.ttl, "pollInterval", j.pollInterval)

	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SessionJanitor.Run: stopping")
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep purges expired sessions once and returns how many were removed.
func (j *SessionJanitor) Sweep() int {
	cutoff := j.now().Add(-j.ttl)
	n, err := j.repo.PurgeSessions(cutoff)
	if err != nil {
		slog.Error("SessionJanitor.Sweep: purge failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("SessionJanitor.Sweep: purged expired sessions", "count", n, "cutoff", cutoff)
	}
	return n
}
