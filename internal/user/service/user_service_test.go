package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tokengate/internal/security"
	"tokengate/internal/user/domain"
	"tokengate/internal/user/repository"
)

type memRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.User
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*domain.User{}}
}

func (r *memRepo) add(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *u
	r.byID[u.ID] = &c
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) GetByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email || u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) Create(ctx context.Context, u *domain.User) error {
	r.add(u)
	return nil
}

func (r *memRepo) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) UpdateProfile(ctx context.Context, id, firstName, lastName, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if firstName != "" {
		u.FirstName = firstName
	}
	if lastName != "" {
		u.LastName = lastName
	}
	if username != "" {
		u.Username = username
	}
	u.UpdatedAt = time.Now().UTC()
	c := *u
	return &c, nil
}

func (r *memRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *memRepo) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Role = role
	c := *u
	return &c, nil
}

func (r *memRepo) UpdateLastLogin(ctx context.Context, id string) error { return nil }

func (r *memRepo) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = false
	return nil
}

func (r *memRepo) List(ctx context.Context, f repository.ListFilter) ([]*domain.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.User
	for _, u := range r.byID {
		if f.Role != "" && string(u.Role) != f.Role {
			continue
		}
		if f.Search != "" && !strings.Contains(u.Username, f.Search) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	return out, len(out), nil
}

func seedUser(t *testing.T, r *memRepo, hasher *security.Hasher, id, username, password string) {
	t.Helper()
	hash, err := hasher.Hash([]byte(password))
	if err != nil {
		t.Fatal(err)
	}
	r.add(&domain.User{
		ID:           id,
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
	})
}

func newTestService(t *testing.T) (*UserService, *memRepo, *security.Hasher) {
	t.Helper()
	repo := newMemRepo()
	hasher := security.NewHasher(4)
	return NewUserService(repo, hasher), repo, hasher
}

func TestGet(t *testing.T) {
	svc, repo, hasher := newTestService(t)
	seedUser(t, repo, hasher, "u1", "alice", "Password1")

	u, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("Username = %q, want alice", u.Username)
	}
	if u.PasswordHash != "" {
		t.Error("Get must redact the password hash")
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, repo, hasher := newTestService(t)
	seedUser(t, repo, hasher, "u1", "alice", "Password1")
	seedUser(t, repo, hasher, "u2", "bob", "Password1")

	u, err := svc.UpdateProfile(context.Background(), "u1", ProfileUpdate{FirstName: "Alice", Username: "alice2"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.FirstName != "Alice" || u.Username != "alice2" {
		t.Errorf("profile not applied: %+v", u)
	}

	// taking another user's name is rejected
	if _, err := svc.UpdateProfile(context.Background(), "u1", ProfileUpdate{Username: "bob"}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("want ErrUsernameTaken, got %v", err)
	}

	// keeping your own name is not a conflict
	if _, err := svc.UpdateProfile(context.Background(), "u1", ProfileUpdate{Username: "alice2"}); err != nil {
		t.Errorf("re-asserting own username should pass: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, hasher := newTestService(t)
	seedUser(t, repo, hasher, "u1", "alice", "Password1")
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, "u1", "wrong", "NewPassword1"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("want ErrWrongPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, "u1", "Password1", "NewPassword1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	u, err := repo.GetByID(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if err := hasher.Compare(u.PasswordHash, []byte("NewPassword1")); err != nil {
		t.Error("stored hash does not match the new password")
	}
	if err := hasher.Compare(u.PasswordHash, []byte("Password1")); err == nil {
		t.Error("old password must stop working")
	}
}

func TestUpdateRole(t *testing.T) {
	svc, repo, hasher := newTestService(t)
	seedUser(t, repo, hasher, "u1", "alice", "Password1")
	ctx := context.Background()

	u, err := svc.UpdateRole(ctx, "u1", "moderator")
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if u.Role != domain.RoleModerator {
		t.Errorf("Role = %q, want moderator", u.Role)
	}

	if _, err := svc.UpdateRole(ctx, "u1", "superuser"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("want ErrInvalidRole, got %v", err)
	}
	if _, err := svc.UpdateRole(ctx, "missing", "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestList_PaginationDefaults(t *testing.T) {
	svc, repo, hasher := newTestService(t)
	seedUser(t, repo, hasher, "u1", "alice", "Password1")
	seedUser(t, repo, hasher, "u2", "bob", "Password1")

	page, err := svc.List(context.Background(), repository.ListFilter{Page: 0, Limit: 0})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Page != 1 || page.Limit != 20 {
		t.Errorf("defaults not applied: page=%d limit=%d", page.Page, page.Limit)
	}
	if page.Total != 2 || page.TotalPages != 1 {
		t.Errorf("total=%d pages=%d, want 2/1", page.Total, page.TotalPages)
	}
	for _, u := range page.Users {
		if u.PasswordHash != "" {
			t.Error("List must redact password hashes")
		}
	}
}
