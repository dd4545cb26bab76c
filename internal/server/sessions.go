// sessions.go - Server-side session store.
//
// A session is an opaque random token bound to a user id in the
// sessions table. Tokens live for 24 hours; a background sweep removes
// expired rows every 15 minutes.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	sessionTTL    = 24 * time.Hour
	sweepInterval = 15 * time.Minute
)

// SessionStore issues, resolves and revokes session tokens.
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, ttl: sessionTTL}
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create issues a fresh token for the user.
func (s *SessionStore) Create(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}

	expiresAt := time.Now().UTC().Add(s.ttl)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt,
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}

	return token, expiresAt, nil
}

// Lookup resolves a token to its user id. Unknown and expired tokens
// both fail with ErrUnauthorized.
func (s *SessionStore) Lookup(ctx context.Context, token string) (uuid.UUID, error) {
	var userID uuid.UUID
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = $1`,
		token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrUnauthorized
		}
		return uuid.Nil, fmt.Errorf("lookup session: %w", err)
	}

	if time.Now().UTC().After(expiresAt) {
		return uuid.Nil, ErrUnauthorized
	}

	return userID, nil
}

// Delete revokes a token. Deleting an unknown token is not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sweep deletes expired session rows and returns how many went away.
func (s *SessionStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return res.RowsAffected()
}

// StartSweeper runs the expiry sweep on a fixed interval until ctx is
// cancelled. Runs once immediately on start.
func (s *SessionStore) StartSweeper(ctx context.Context) {
	slog.Info("session sweeper starting", "interval", sweepInterval, "ttl", s.ttl)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	s.runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper shutting down")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *SessionStore) runSweep(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		slog.Error("session sweep failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("session sweep complete", "expired", n)
	}
}
