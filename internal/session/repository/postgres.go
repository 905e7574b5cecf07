package repository

import (
	"context"
	"time"

	"tokengate/internal/db"
)

// PostgresStore implements Store on the session_tokens table, one row per
// outstanding refresh token.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore returns a session store backed by the given pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Add inserts a token row for the user.
func (s *PostgresStore) Add(ctx context.Context, userID, token string, issuedAt time.Time) error {
	const q = `INSERT INTO session_tokens (user_id, token, issued_at) VALUES ($1, $2, $3)`
	_, err := s.pool.Exec(ctx, q, userID, token, issuedAt)
	return err
}

// Remove deletes the matching row if present.
func (s *PostgresStore) Remove(ctx context.Context, userID, token string) error {
	const q = `DELETE FROM session_tokens WHERE user_id=$1 AND token=$2`
	_, err := s.pool.Exec(ctx, q, userID, token)
	return err
}

// RemoveAll deletes every row for the user.
func (s *PostgresStore) RemoveAll(ctx context.Context, userID string) error {
	const q = `DELETE FROM session_tokens WHERE user_id=$1`
	_, err := s.pool.Exec(ctx, q, userID)
	return err
}

// Contains reports whether the exact token is outstanding for the user.
func (s *PostgresStore) Contains(ctx context.Context, userID, token string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM session_tokens WHERE user_id=$1 AND token=$2)`
	var ok bool
	if err := s.pool.QueryRow(ctx, q, userID, token).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Replace swaps oldToken for newToken in a single conditional UPDATE. Zero
// rows affected means the old token was already gone; the row-level lock on
// the matched row makes concurrent replays lose deterministically.
func (s *PostgresStore) Replace(ctx context.Context, userID, oldToken, newToken string, issuedAt time.Time) error {
	const q = `UPDATE session_tokens SET token=$3, issued_at=$4 WHERE user_id=$1 AND token=$2`
	tag, err := s.pool.Exec(ctx, q, userID, oldToken, newToken, issuedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// PruneBefore deletes entries issued before cutoff.
func (s *PostgresStore) PruneBefore(ctx context.Context, userID string, cutoff time.Time) error {
	const q = `DELETE FROM session_tokens WHERE user_id=$1 AND issued_at < $2`
	_, err := s.pool.Exec(ctx, q, userID, cutoff)
	return err
}
