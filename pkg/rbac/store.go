package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store handles RBAC data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// --- Users ---

// CreateUser inserts a new user. The password must already be hashed.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO users (id, name, email, password_hash, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.RoleID, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, name, email, password_hash, role_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email (used by login)
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, name, email, password_hash, role_id, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.RoleID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListUsers returns a page of users ordered by creation time, plus the
// total count.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]User, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `
		SELECT id, name, email, password_hash, role_id, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID, &user.Name, &user.Email, &user.PasswordHash,
			&user.RoleID, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, total, rows.Err()
}

// UpdateUser updates name, email, role and optionally the password hash
func (s *Store) UpdateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()

	query := `
		UPDATE users
		SET name = $2, email = $3, role_id = $4,
		    password_hash = COALESCE(NULLIF($5, ''), password_hash),
		    updated_at = $6
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.RoleID, user.PasswordHash, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user: %w", ErrNotFound)
	}

	user.UpdatedAt = now
	return nil
}

// DeleteUser removes a user by ID
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	return nil
}

// --- Roles ---

// CreateRole inserts a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO roles (id, name, code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, role.ID, role.Name, role.Code, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("role %s: %w", role.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, id string) (*Role, error) {
	query := `
		SELECT id, name, code, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	var role Role
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&role.ID, &role.Name, &role.Code, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// GetRoleByCode retrieves a role by its stable code
func (s *Store) GetRoleByCode(ctx context.Context, code string) (*Role, error) {
	query := `
		SELECT id, name, code, created_at, updated_at
		FROM roles
		WHERE code = $1
	`
	var role Role
	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&role.ID, &role.Name, &role.Code, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles returns a page of roles ordered by creation time, plus the
// total count.
func (s *Store) ListRoles(ctx context.Context, limit, offset int) ([]Role, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count roles: %w", err)
	}

	query := `
		SELECT id, name, code, created_at, updated_at
		FROM roles
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Code, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}

// UpdateRole updates a role's name and code
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	now := time.Now().UTC()

	query := `
		UPDATE roles
		SET name = $2, code = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, role.ID, role.Name, role.Code, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("role %s: %w", role.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role: %w", ErrNotFound)
	}

	role.UpdatedAt = now
	return nil
}

// DeleteRole removes a role by ID. Role-permission links are removed
// by the ON DELETE CASCADE constraint.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role: %w", ErrNotFound)
	}
	return nil
}

// --- Permissions ---

// CreatePermission inserts a new permission
func (s *Store) CreatePermission(ctx context.Context, perm *Permission) error {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO permissions (id, name, code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, perm.ID, perm.Name, perm.Code, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("permission %s: %w", perm.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}

	perm.CreatedAt = now
	perm.UpdatedAt = now
	return nil
}

// GetPermission retrieves a permission by ID
func (s *Store) GetPermission(ctx context.Context, id string) (*Permission, error) {
	query := `
		SELECT id, name, code, created_at, updated_at
		FROM permissions
		WHERE id = $1
	`
	var perm Permission
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&perm.ID, &perm.Name, &perm.Code, &perm.CreatedAt, &perm.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("permission: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &perm, nil
}

// ListPermissions returns a page of permissions ordered by code, plus
// the total count.
func (s *Store) ListPermissions(ctx context.Context, limit, offset int) ([]Permission, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM permissions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count permissions: %w", err)
	}

	query := `
		SELECT id, name, code, created_at, updated_at
		FROM permissions
		ORDER BY code
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]Permission, 0)
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Code, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	return perms, total, rows.Err()
}

// GetAllPermissions returns the full permission catalog ordered by code
func (s *Store) GetAllPermissions(ctx context.Context) ([]Permission, error) {
	query := `
		SELECT id, name, code, created_at, updated_at
		FROM permissions
		ORDER BY code
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]Permission, 0)
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Code, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// UpdatePermission updates a permission's name and code
func (s *Store) UpdatePermission(ctx context.Context, perm *Permission) error {
	now := time.Now().UTC()

	query := `
		UPDATE permissions
		SET name = $2, code = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, perm.ID, perm.Name, perm.Code, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("permission %s: %w", perm.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("permission: %w", ErrNotFound)
	}

	perm.UpdatedAt = now
	return nil
}

// DeletePermission removes a permission by ID
func (s *Store) DeletePermission(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM permissions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("permission: %w", ErrNotFound)
	}
	return nil
}

// --- Role-permission links ---

// LinkPermission grants a permission to a role
func (s *Store) LinkPermission(ctx context.Context, roleID, permissionID string) error {
	query := `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
	`
	_, err := s.db.ExecContext(ctx, query, roleID, permissionID)
	if isUniqueViolation(err) {
		return fmt.Errorf("role permission link: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to link permission: %w", err)
	}
	return nil
}

// UnlinkPermission revokes a permission from a role
func (s *Store) UnlinkPermission(ctx context.Context, roleID, permissionID string) error {
	query := `
		DELETE FROM role_permissions
		WHERE role_id = $1 AND permission_id = $2
	`
	result, err := s.db.ExecContext(ctx, query, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to unlink permission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check unlink result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role permission link: %w", ErrNotFound)
	}
	return nil
}

// GetRolePermissions returns the permission codes granted to a role,
// ordered by code.
func (s *Store) GetRolePermissions(ctx context.Context, roleID string) ([]string, error) {
	query := `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code
	`
	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	codes := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan permission code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// LoadRoleSnapshots builds the cached view of every role: role identity
// plus its permission codes from the join table.
func (s *Store) LoadRoleSnapshots(ctx context.Context) ([]RoleSnapshot, error) {
	query := `
		SELECT r.id, r.name, r.code, p.code
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		ORDER BY r.code, p.code
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load role snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []RoleSnapshot
	index := make(map[string]int)

	for rows.Next() {
		var id, name, code string
		var permCode sql.NullString
		if err := rows.Scan(&id, &name, &code, &permCode); err != nil {
			return nil, fmt.Errorf("failed to scan role snapshot: %w", err)
		}

		i, ok := index[id]
		if !ok {
			i = len(snapshots)
			index[id] = i
			snapshots = append(snapshots, RoleSnapshot{
				ID:          id,
				Name:        name,
				Code:        code,
				Permissions: make([]string, 0),
			})
		}
		if permCode.Valid {
			snapshots[i].Permissions = append(snapshots[i].Permissions, permCode.String)
		}
	}
	return snapshots, rows.Err()
}
