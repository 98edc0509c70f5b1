// Package directory stores users and departments and answers the roster
// queries the assignment resolver needs at step-activation time.
package directory

import (
	"context"

	"github.com/docflowhq/docflow/model"
)

// Store persists users and departments.
type Store interface {
	// CreateUser persists a new user. Returns CONFLICT if the ID exists.
	CreateUser(ctx context.Context, user model.User) error

	// GetUser retrieves a user by ID. Returns NOT_FOUND if missing.
	GetUser(ctx context.Context, userID string) (model.User, error)

	// UpdateUser replaces an existing user. Returns NOT_FOUND if missing.
	UpdateUser(ctx context.Context, user model.User) error

	// DeleteUser removes a user. Returns NOT_FOUND if missing.
	DeleteUser(ctx context.Context, userID string) error

	// ListUsers returns all users, optionally filtered by department.
	ListUsers(ctx context.Context, department string) ([]model.User, error)

	// UsersByRole returns the IDs of active users holding the given role.
	UsersByRole(ctx context.Context, role string) ([]string, error)

	// UsersByDepartment returns the IDs of active users in the department.
	UsersByDepartment(ctx context.Context, department string) ([]string, error)

	// CreateDepartment persists a new department.
	CreateDepartment(ctx context.Context, dept model.Department) error

	// GetDepartment retrieves a department by ID.
	GetDepartment(ctx context.Context, deptID string) (model.Department, error)

	// UpdateDepartment replaces an existing department.
	UpdateDepartment(ctx context.Context, dept model.Department) error

	// DeleteDepartment removes a department.
	DeleteDepartment(ctx context.Context, deptID string) error

	// ListDepartments returns all departments.
	ListDepartments(ctx context.Context) ([]model.Department, error)
}
