package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tokengate/internal/db"
	"tokengate/internal/user/domain"
)

const userColumns = `id, email, username, first_name, last_name, password_hash, role, is_active, last_login_at, created_at, updated_at`

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns a user repository backed by the given pool.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Role, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID selects a user by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE id=$1`, userColumns)
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

// GetByEmail selects a user by email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE email=$1`, userColumns)
	return scanUser(r.pool.QueryRow(ctx, q, email))
}

// GetByEmailOrUsername selects the first user matching either field.
func (r *PostgresRepository) GetByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE email=$1 OR username=$2 LIMIT 1`, userColumns)
	return scanUser(r.pool.QueryRow(ctx, q, email, username))
}

// Create inserts a new user row. Returns ErrDuplicate on a unique violation,
// which covers races with a concurrent registration of the same email/username.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	const q = `
INSERT INTO users (id, email, username, first_name, last_name, password_hash, role, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, q, u.ID, u.Email, u.Username, u.FirstName, u.LastName,
		u.PasswordHash, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// UsernameTaken reports whether username belongs to a user other than excludeID.
func (r *PostgresRepository) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1 AND id <> $2)`
	var taken bool
	if err := r.pool.QueryRow(ctx, q, username, excludeID).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// UpdateProfile updates the non-empty profile fields and returns the fresh row.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, firstName, lastName, username string) (*domain.User, error) {
	q := fmt.Sprintf(`
UPDATE users
SET first_name = COALESCE(NULLIF($2, ''), first_name),
    last_name  = COALESCE(NULLIF($3, ''), last_name),
    username   = COALESCE(NULLIF($4, ''), username),
    updated_at = now()
WHERE id = $1
RETURNING %s`, userColumns)
	u, err := scanUser(r.pool.QueryRow(ctx, q, id, firstName, lastName, username))
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return u, err
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`
	tag, err := r.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRole sets the user's role and returns the fresh row.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	q := fmt.Sprintf(`UPDATE users SET role=$2, updated_at=now() WHERE id=$1 RETURNING %s`, userColumns)
	return scanUser(r.pool.QueryRow(ctx, q, id, role))
}

// UpdateLastLogin stamps last_login_at with the current time.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string) error {
	const q = `UPDATE users SET last_login_at=now() WHERE id=$1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// Deactivate clears is_active.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	const q = `UPDATE users SET is_active=false, updated_at=now() WHERE id=$1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users matching the filter plus the total count before pagination.
func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*domain.User, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf(
			"(username ILIKE %[1]s OR email ILIKE %[1]s OR first_name ILIKE %[1]s OR last_name ILIKE %[1]s)", p))
	}
	if f.Role != "" {
		conds = append(conds, "role = "+arg(f.Role))
	}
	if f.IsActive != nil {
		conds = append(conds, "is_active = "+arg(*f.IsActive))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	q := fmt.Sprintf("SELECT %s FROM users%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		userColumns, where, arg(limit), arg((page-1)*limit))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
			&u.PasswordHash, &u.Role, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &u)
	}
	return out, total, rows.Err()
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
