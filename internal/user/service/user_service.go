// Package service implements profile and administration operations on users.
package service

import (
	"context"
	"errors"

	"tokengate/internal/security"
	"tokengate/internal/user/domain"
	"tokengate/internal/user/repository"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username is already registered")
	ErrWrongPassword = errors.New("current password is incorrect")
	ErrInvalidRole   = errors.New("unknown role")
)

// UserService exposes read/update operations over the user repository.
type UserService struct {
	users  repository.Repository
	hasher *security.Hasher
}

func NewUserService(users repository.Repository, hasher *security.Hasher) *UserService {
	return &UserService{users: users, hasher: hasher}
}

// Get returns the redacted user by id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u.Redacted(), nil
}

// ProfileUpdate carries the updatable profile fields. Empty strings mean
// "leave unchanged".
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Username  string
}

// UpdateProfile applies the non-empty fields of in to the user. A username
// change is checked for availability first.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*domain.User, error) {
	if in.Username != "" {
		taken, err := s.users.UsernameTaken(ctx, in.Username, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrUsernameTaken
		}
	}
	u, err := s.users.UpdateProfile(ctx, id, in.FirstName, in.LastName, in.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, repository.ErrDuplicate) {
			// update race with a concurrent username change
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u.Redacted(), nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *UserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// UpdateRole sets the user's role. Admin-only at the HTTP layer.
func (s *UserService) UpdateRole(ctx context.Context, id, role string) (*domain.User, error) {
	if !domain.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	u, err := s.users.UpdateRole(ctx, id, domain.Role(role))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u.Redacted(), nil
}

// ListPage is one page of users plus pagination bookkeeping.
type ListPage struct {
	Users      []*domain.User
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// List returns a filtered, paginated page of redacted users.
func (s *UserService) List(ctx context.Context, f repository.ListFilter) (*ListPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	users, total, err := s.users.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i, u := range users {
		users[i] = u.Redacted()
	}
	pages := total / f.Limit
	if total%f.Limit != 0 {
		pages++
	}
	return &ListPage{Users: users, Total: total, Page: f.Page, Limit: f.Limit, TotalPages: pages}, nil
}
