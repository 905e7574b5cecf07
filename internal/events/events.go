// Package events defines best-effort auth event emission. Events are
// diagnostic; no operation depends on their delivery.
package events

import (
	"context"
	"time"
)

// Event types emitted by the auth service.
const (
	TypeUserRegistered   = "user_registered"
	TypeUserLoggedIn     = "user_logged_in"
	TypeTokenRefreshed   = "token_refreshed"
	TypeUserLoggedOut    = "user_logged_out"
	TypeAllSessionsEnded = "all_sessions_ended"
	TypeUserDeactivated  = "user_deactivated"
)

// Event is one auth lifecycle occurrence.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter publishes auth events. Implementations must not block the caller
// beyond a short bounded timeout and must swallow delivery failures.
type Emitter interface {
	Emit(ctx context.Context, e Event)
	Close() error
}

// Noop discards all events; used when no broker is configured.
type Noop struct{}

func (Noop) Emit(ctx context.Context, e Event) {}
func (Noop) Close() error                      { return nil }
