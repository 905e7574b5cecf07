// Package service implements the session lifecycle: registration, login,
// refresh rotation, logout, and deactivation.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tokengate/internal/events"
	"tokengate/internal/limiter"
	"tokengate/internal/security"
	sessionrepo "tokengate/internal/session/repository"
	"tokengate/internal/user/domain"
	userrepo "tokengate/internal/user/repository"
)

// Sentinel errors for the auth service; handlers map them to HTTP statuses.
var (
	ErrEmailTaken    = errors.New("email is already registered")
	ErrUsernameTaken = errors.New("username is already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password so a
	// caller cannot tell which one failed.
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRateLimited         = errors.New("too many failed login attempts")
)

// TokenPair is an access/refresh credential pair issued together.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateLastLogin(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}

// RegisterInput carries the already-validated registration fields.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthService orchestrates the token codec and session store.
type AuthService struct {
	users      UserRepo
	sessions   sessionrepo.Store
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	refreshTTL time.Duration
	lim        limiter.Limiter
	events     events.Emitter
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	users UserRepo,
	sessions sessionrepo.Store,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	refreshTTL time.Duration,
	lim limiter.Limiter,
	emitter events.Emitter,
) *AuthService {
	if lim == nil {
		lim = limiter.Noop{}
	}
	if emitter == nil {
		emitter = events.Noop{}
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		lim:        lim,
		events:     emitter,
	}
}

// issuePair issues an access and refresh credential for the user. The jti in
// each token guarantees the refresh string is distinct from any prior one.
func (s *AuthService) issuePair(userID string) (*TokenPair, error) {
	access, accessExp, err := s.tokens.Issue(userID, security.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.Issue(userID, security.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, AccessExpiresAt: accessExp}, nil
}

// Register creates the user and logs them in: the returned pair's refresh
// token is already stored as a session entry. Fails with ErrEmailTaken or
// ErrUsernameTaken when either unique field collides.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, *TokenPair, error) {
	existing, err := s.users.GetByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil && !errors.Is(err, userrepo.ErrNotFound) {
		return nil, nil, err
	}
	if existing != nil {
		if existing.Email == in.Email {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			// insert race with a concurrent registration
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, err
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.sessions.Add(ctx, user.ID, pair.RefreshToken, now); err != nil {
		return nil, nil, err
	}

	s.events.Emit(ctx, events.Event{Type: events.TypeUserRegistered, UserID: user.ID, OccurredAt: now})
	return user.Redacted(), pair, nil
}

// Login authenticates by email and password and opens a new session. The
// unknown-email and wrong-password outcomes are deliberately identical; the
// deactivation check runs only after the identity is confirmed. Expired
// session entries for the user are pruned here, not on a timer.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*domain.User, *TokenPair, error) {
	allowed, err := s.lim.Allow(ctx, email, ip)
	if err == nil && !allowed {
		return nil, nil, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			_ = s.lim.Failure(ctx, email, ip)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDeactivated
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		_ = s.lim.Failure(ctx, email, ip)
		return nil, nil, ErrInvalidCredentials
	}
	_ = s.lim.Success(ctx, email, ip)

	now := time.Now().UTC()
	if err := s.sessions.PruneBefore(ctx, user.ID, now.Add(-s.refreshTTL)); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.sessions.Add(ctx, user.ID, pair.RefreshToken, now); err != nil {
		return nil, nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, nil, err
	}
	user.LastLoginAt = &now

	s.events.Emit(ctx, events.Event{Type: events.TypeUserLoggedIn, UserID: user.ID, OccurredAt: now})
	return user.Redacted(), pair, nil
}

// Refresh validates the presented refresh token and rotates it. The old token
// is invalid the instant the swap commits, regardless of its remaining
// embedded lifetime; a replayed token fails at the store swap.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.tokens.Verify(refreshToken, security.RefreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	ok, err := s.sessions.Contains(ctx, userID, refreshToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	pair, err := s.issuePair(userID)
	if err != nil {
		return nil, err
	}
	// Rotation CAS: a concurrent refresh of the same token loses here.
	if err := s.sessions.Replace(ctx, userID, refreshToken, pair.RefreshToken, time.Now().UTC()); err != nil {
		if errors.Is(err, sessionrepo.ErrTokenNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	s.events.Emit(ctx, events.Event{Type: events.TypeTokenRefreshed, UserID: userID, OccurredAt: time.Now().UTC()})
	return pair, nil
}

// Logout removes exactly the presented refresh session. Idempotent: removing
// a token that is already gone succeeds.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.Remove(ctx, userID, refreshToken); err != nil {
		return err
	}
	s.events.Emit(ctx, events.Event{Type: events.TypeUserLoggedOut, UserID: userID, OccurredAt: time.Now().UTC()})
	return nil
}

// LogoutAll revokes every refresh session for the user. Access tokens that
// are already issued keep working until their own expiry.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		return err
	}
	s.events.Emit(ctx, events.Event{Type: events.TypeAllSessionsEnded, UserID: userID, OccurredAt: time.Now().UTC()})
	return nil
}

// Deactivate marks the account inactive and revokes all refresh sessions as
// one logical operation.
func (s *AuthService) Deactivate(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return err
	}
	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		return err
	}
	s.events.Emit(ctx, events.Event{Type: events.TypeUserDeactivated, UserID: userID, OccurredAt: time.Now().UTC()})
	return nil
}
