package directory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/docflowhq/docflow/model"
)

// Service wraps the directory store with input validation and ID assignment.
type Service struct {
	store Store
}

// NewService creates a directory service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateUser validates and persists a new user, assigning an ID when absent.
func (s *Service) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	if details := validateUser(user); len(details) > 0 {
		return model.User{}, model.NewValidationError(details)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.store.CreateUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.store.GetUser(ctx, userID)
}

// UpdateUser validates and replaces an existing user.
func (s *Service) UpdateUser(ctx context.Context, user model.User) (model.User, error) {
	if details := validateUser(user); len(details) > 0 {
		return model.User{}, model.NewValidationError(details)
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return s.store.GetUser(ctx, user.ID)
}

// DeleteUser removes a user.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.store.DeleteUser(ctx, userID)
}

// ListUsers returns users, optionally scoped to a department.
func (s *Service) ListUsers(ctx context.Context, department string) ([]model.User, error) {
	return s.store.ListUsers(ctx, department)
}

// CreateDepartment validates and persists a new department.
func (s *Service) CreateDepartment(ctx context.Context, dept model.Department) (model.Department, error) {
	if dept.Name == "" {
		return model.Department{}, model.NewValidationError([]model.FieldError{
			{Field: "name", Code: "required", Message: "name is required"},
		})
	}
	if dept.ID == "" {
		dept.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	if err := s.store.CreateDepartment(ctx, dept); err != nil {
		return model.Department{}, err
	}
	return dept, nil
}

// GetDepartment retrieves a department by ID.
func (s *Service) GetDepartment(ctx context.Context, deptID string) (model.Department, error) {
	return s.store.GetDepartment(ctx, deptID)
}

// UpdateDepartment replaces an existing department.
func (s *Service) UpdateDepartment(ctx context.Context, dept model.Department) (model.Department, error) {
	if dept.Name == "" {
		return model.Department{}, model.NewValidationError([]model.FieldError{
			{Field: "name", Code: "required", Message: "name is required"},
		})
	}
	if err := s.store.UpdateDepartment(ctx, dept); err != nil {
		return model.Department{}, err
	}
	return s.store.GetDepartment(ctx, dept.ID)
}

// DeleteDepartment removes a department.
func (s *Service) DeleteDepartment(ctx context.Context, deptID string) error {
	return s.store.DeleteDepartment(ctx, deptID)
}

// ListDepartments returns all departments.
func (s *Service) ListDepartments(ctx context.Context) ([]model.Department, error) {
	return s.store.ListDepartments(ctx)
}

func validateUser(user model.User) []model.FieldError {
	var details []model.FieldError
	if user.Name == "" {
		details = append(details, model.FieldError{Field: "name", Code: "required", Message: "name is required"})
	}
	if user.Email == "" {
		details = append(details, model.FieldError{Field: "email", Code: "required", Message: "email is required"})
	}
	return details
}
