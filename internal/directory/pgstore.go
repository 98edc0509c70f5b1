package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docflowhq/docflow/model"
)

// PgStore is a PostgreSQL-backed directory Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL directory store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser inserts a new user.
func (s *PgStore) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, department, roles, manager_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Name, u.Email, u.Department, u.Roles, u.ManagerID, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *PgStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, department, roles, manager_id, active, created_at, updated_at
		FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Department, &u.Roles, &u.ManagerID, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", userID))
	}
	if err != nil {
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// UpdateUser replaces an existing user.
func (s *PgStore) UpdateUser(ctx context.Context, u model.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET name = $1, email = $2, department = $3, roles = $4,
			manager_id = $5, active = $6, updated_at = now()
		WHERE id = $7`,
		u.Name, u.Email, u.Department, u.Roles, u.ManagerID, u.Active, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("user %q not found", u.ID))
	}
	return nil
}

// DeleteUser removes a user.
func (s *PgStore) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("user %q not found", userID))
	}
	return nil
}

// ListUsers returns all users, optionally filtered by department.
func (s *PgStore) ListUsers(ctx context.Context, department string) ([]model.User, error) {
	query := `SELECT id, name, email, department, roles, manager_id, active, created_at, updated_at
	          FROM users`
	args := []any{}
	if department != "" {
		query += ` WHERE department = $1`
		args = append(args, department)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Department, &u.Roles, &u.ManagerID, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UsersByRole returns the IDs of active users holding the given role.
func (s *PgStore) UsersByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM users WHERE active AND $1 = ANY(roles) ORDER BY id ASC`,
		role,
	)
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// UsersByDepartment returns the IDs of active users in the department.
func (s *PgStore) UsersByDepartment(ctx context.Context, department string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM users WHERE active AND department = $1 ORDER BY id ASC`,
		department,
	)
	if err != nil {
		return nil, fmt.Errorf("query users by department: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CreateDepartment inserts a new department.
func (s *PgStore) CreateDepartment(ctx context.Context, d model.Department) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO departments (id, name, head_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.Name, d.HeadID, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

// GetDepartment retrieves a department by ID.
func (s *PgStore) GetDepartment(ctx context.Context, deptID string) (model.Department, error) {
	var d model.Department
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, head_id, created_at, updated_at FROM departments WHERE id = $1`,
		deptID,
	).Scan(&d.ID, &d.Name, &d.HeadID, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.Department{}, model.NewNotFoundError(fmt.Sprintf("department %q not found", deptID))
	}
	if err != nil {
		return model.Department{}, fmt.Errorf("query department: %w", err)
	}
	return d, nil
}

// UpdateDepartment replaces an existing department.
func (s *PgStore) UpdateDepartment(ctx context.Context, d model.Department) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE departments SET name = $1, head_id = $2, updated_at = now() WHERE id = $3`,
		d.Name, d.HeadID, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("department %q not found", d.ID))
	}
	return nil
}

// DeleteDepartment removes a department.
func (s *PgStore) DeleteDepartment(ctx context.Context, deptID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, deptID)
	if err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("department %q not found", deptID))
	}
	return nil
}

// ListDepartments returns all departments.
func (s *PgStore) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, head_id, created_at, updated_at FROM departments ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query departments: %w", err)
	}
	defer rows.Close()

	var depts []model.Department
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.HeadID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		depts = append(depts, d)
	}
	return depts, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
