package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord is the persistence projection of a user. PasswordHash is nil
// for federated-only accounts.
type UserRecord struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash *string
	RoleID       int64
	Role         string
	CreatedAt    time.Time
}

// RoleRecord is a named permission bucket referenced by users.
type RoleRecord struct {
	ID   int64
	Name string
}

// AdminUserListItem is a projection for admin user listing (no password hash).
type AdminUserListItem struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRepository defines persistence operations for users.
// Find methods return (nil, nil) when no row matches.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, id int64) (*UserRecord, error)
	FindByFederated(ctx context.Context, provider, providerUserID string) (*UserRecord, error)
	Create(ctx context.Context, email, name string, passwordHash *string, roleID int64) (int64, error)
	LinkFederated(ctx context.Context, userID int64, provider, providerUserID string) error
	HasAdmin(ctx context.Context) (bool, error)
	List(ctx context.Context, page, perPage int) ([]AdminUserListItem, int, error)
}

// RoleRepository defines persistence operations for the fixed role set.
type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*RoleRecord, error)
	Ensure(ctx context.Context, name string) (int64, error)
}

// IsUniqueViolation reports whether err is a postgres unique-constraint
// violation, the write-time backstop for concurrent signups.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const userColumns = `u.id, u.email, u.name, u.password_hash, u.role_id, r.name, u.created_at`

func scanUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.RoleID, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	const q = `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.email=$1`
	return scanUser(r.db.QueryRow(ctx, q, email))
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*UserRecord, error) {
	const q = `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id=$1`
	return scanUser(r.db.QueryRow(ctx, q, id))
}

func (r *PgUserRepository) FindByFederated(ctx context.Context, provider, providerUserID string) (*UserRecord, error) {
	const q = `SELECT ` + userColumns + `
FROM federated_identities f
JOIN users u ON u.id = f.user_id
JOIN roles r ON r.id = u.role_id
WHERE f.provider=$1 AND f.provider_user_id=$2`
	return scanUser(r.db.QueryRow(ctx, q, provider, providerUserID))
}

func (r *PgUserRepository) Create(ctx context.Context, email, name string, passwordHash *string, roleID int64) (int64, error) {
	const q = `INSERT INTO users (email, name, password_hash, role_id) VALUES ($1,$2,$3,$4) RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, email, name, passwordHash, roleID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PgUserRepository) LinkFederated(ctx context.Context, userID int64, provider, providerUserID string) error {
	const q = `INSERT INTO federated_identities (user_id, provider, provider_user_id) VALUES ($1,$2,$3)
ON CONFLICT (provider, provider_user_id) DO NOTHING`
	_, err := r.db.Exec(ctx, q, userID, provider, providerUserID)
	return err
}

func (r *PgUserRepository) HasAdmin(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users u JOIN roles r ON r.id = u.role_id WHERE r.name=$1 LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q, AdminRoleName).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns paginated users without password hash.
func (r *PgUserRepository) List(ctx context.Context, page, perPage int) ([]AdminUserListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM users`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}
	const q = `SELECT u.id, u.email, u.name, r.name, u.created_at
FROM users u JOIN roles r ON r.id = u.role_id
ORDER BY u.id LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, q, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]AdminUserListItem, 0, perPage)
	for rows.Next() {
		var u AdminUserListItem
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

// PgRoleRepository implements RoleRepository using pgxpool.
type PgRoleRepository struct {
	db *pgxpool.Pool
}

func NewPgRoleRepository(db *pgxpool.Pool) *PgRoleRepository {
	return &PgRoleRepository{db: db}
}

func (r *PgRoleRepository) FindByName(ctx context.Context, name string) (*RoleRecord, error) {
	const q = `SELECT id, name FROM roles WHERE name=$1`
	var role RoleRecord
	if err := r.db.QueryRow(ctx, q, name).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// Ensure upserts a role by name and returns its id.
func (r *PgRoleRepository) Ensure(ctx context.Context, name string) (int64, error) {
	const q = `INSERT INTO roles (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
