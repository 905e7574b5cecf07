package repository

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned by Replace when the old token is no longer
// present: it was already rotated, revoked, or never existed. The caller must
// treat this as an invalid refresh token, never retry the rotation.
var ErrTokenNotFound = errors.New("refresh token not found")

// Store holds the outstanding refresh tokens per user. It is the revocation
// gate for refresh credentials; access tokens never touch it.
type Store interface {
	// Add appends an entry. Tokens are unique by construction, no dedup needed.
	Add(ctx context.Context, userID, token string, issuedAt time.Time) error
	// Remove deletes exactly the matching entry; removing an absent entry is a no-op.
	Remove(ctx context.Context, userID, token string) error
	// RemoveAll clears every entry for the user (logout-all, deactivation).
	RemoveAll(ctx context.Context, userID string) error
	// Contains reports whether token is currently outstanding for the user.
	Contains(ctx context.Context, userID, token string) (bool, error)
	// Replace atomically swaps oldToken for newToken. It is the rotation
	// compare-and-swap: when two refreshes race on the same token, exactly one
	// observes the swap and the other gets ErrTokenNotFound.
	Replace(ctx context.Context, userID, oldToken, newToken string, issuedAt time.Time) error
	// PruneBefore removes entries issued before cutoff. Called opportunistically
	// on login; there is no background sweep.
	PruneBefore(ctx context.Context, userID string, cutoff time.Time) error
}
