package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SessionStore keeps login sessions. Only the SHA-256 of a token is written to
// the database.
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

// Create starts a session for userID and returns the token to hand to the
// client, with its expiry.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, time.Time, error) {
	token := NewToken()
	now := s.now()
	expiresAt := now.Add(s.ttl)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		HashToken(token), userID, unix(now), unix(expiresAt),
	)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// GetUserID returns the owner of an unexpired session.
func (s *SessionStore) GetUserID(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE token_hash = ? AND expires_at > ?`,
		HashToken(token), unix(s.now()),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return userID, err
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, HashToken(token))
	return err
}

// DeleteAllByUserID removes every session of a user (password change).
func (s *SessionStore) DeleteAllByUserID(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// DeleteExpired removes expired sessions and reports how many were removed.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, unix(s.now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
