package repository

import (
	"context"
	"errors"

	"tokengate/internal/user/domain"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when an insert or update violates the email or username uniqueness.
	ErrDuplicate = errors.New("email or username already taken")
)

// ListFilter narrows and paginates List results. Zero values mean "no filter".
type ListFilter struct {
	Search   string // matches username, email, first or last name, case-insensitive
	Role     string
	IsActive *bool
	Page     int // 1-based
	Limit    int
}

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByEmailOrUsername returns the first user matching either field; used
	// for the disjunctive registration conflict check.
	GetByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UsernameTaken reports whether username belongs to a user other than excludeID.
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, id, firstName, lastName, username string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
	// Deactivate clears is_active. The caller is responsible for revoking sessions.
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*domain.User, int, error)
}
