package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/docflowhq/docflow/model"
)

// MemoryStore is an in-memory Store for testing.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]model.User
	departments map[string]model.Department
}

// NewMemoryStore creates a new in-memory directory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]model.User),
		departments: make(map[string]model.Department),
	}
}

// CreateUser persists a new user.
func (s *MemoryStore) CreateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("user %q already exists", user.ID))
	}
	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *MemoryStore) GetUser(_ context.Context, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", userID))
	}
	return user, nil
}

// UpdateUser replaces an existing user.
func (s *MemoryStore) UpdateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("user %q not found", user.ID))
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = user
	return nil
}

// DeleteUser removes a user.
func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[userID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("user %q not found", userID))
	}
	delete(s.users, userID)
	return nil
}

// ListUsers returns all users, optionally filtered by department.
func (s *MemoryStore) ListUsers(_ context.Context, department string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.User
	for _, u := range s.users {
		if department != "" && u.Department != department {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UsersByRole returns the IDs of active users holding the given role.
func (s *MemoryStore) UsersByRole(_ context.Context, role string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		for _, r := range u.Roles {
			if r == role {
				ids = append(ids, u.ID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// UsersByDepartment returns the IDs of active users in the department.
func (s *MemoryStore) UsersByDepartment(_ context.Context, department string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, u := range s.users {
		if u.Active && u.Department == department {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateDepartment persists a new department.
func (s *MemoryStore) CreateDepartment(_ context.Context, dept model.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.departments[dept.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("department %q already exists", dept.ID))
	}
	s.departments[dept.ID] = dept
	return nil
}

// GetDepartment retrieves a department by ID.
func (s *MemoryStore) GetDepartment(_ context.Context, deptID string) (model.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dept, exists := s.departments[deptID]
	if !exists {
		return model.Department{}, model.NewNotFoundError(fmt.Sprintf("department %q not found", deptID))
	}
	return dept, nil
}

// UpdateDepartment replaces an existing department.
func (s *MemoryStore) UpdateDepartment(_ context.Context, dept model.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.departments[dept.ID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("department %q not found", dept.ID))
	}
	dept.UpdatedAt = time.Now().UTC()
	s.departments[dept.ID] = dept
	return nil
}

// DeleteDepartment removes a department.
func (s *MemoryStore) DeleteDepartment(_ context.Context, deptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.departments[deptID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("department %q not found", deptID))
	}
	delete(s.departments, deptID)
	return nil
}

// ListDepartments returns all departments.
func (s *MemoryStore) ListDepartments(_ context.Context) ([]model.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Department, 0, len(s.departments))
	for _, d := range s.departments {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
