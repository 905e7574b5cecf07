// Package limiter rate-limits login attempts per (email, client IP).
package limiter

import "context"

// Limiter gates login attempts. Allow is consulted before credential
// verification; Failure records a failed attempt; Success resets the window.
type Limiter interface {
	Allow(ctx context.Context, email, ip string) (bool, error)
	Failure(ctx context.Context, email, ip string) error
	Success(ctx context.Context, email, ip string) error
}

// Noop performs no limiting; used when Redis is not configured.
type Noop struct{}

func (Noop) Allow(ctx context.Context, email, ip string) (bool, error) { return true, nil }
func (Noop) Failure(ctx context.Context, email, ip string) error       { return nil }
func (Noop) Success(ctx context.Context, email, ip string) error       { return nil }
