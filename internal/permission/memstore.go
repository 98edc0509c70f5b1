package permission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/docflowhq/docflow/model"
)

// MemoryGrantStore is an in-memory GrantStore for testing.
type MemoryGrantStore struct {
	mu     sync.RWMutex
	grants map[string]model.PermissionGrant
}

// NewMemoryGrantStore creates a new in-memory grant store.
func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{grants: make(map[string]model.PermissionGrant)}
}

// Create persists a new grant.
func (s *MemoryGrantStore) Create(_ context.Context, grant model.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[grant.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("permission grant %q already exists", grant.ID))
	}
	s.grants[grant.ID] = grant
	return nil
}

// Get retrieves a grant by ID.
func (s *MemoryGrantStore) Get(_ context.Context, grantID string) (model.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, exists := s.grants[grantID]
	if !exists {
		return model.PermissionGrant{}, model.NewNotFoundError(fmt.Sprintf("permission grant %q not found", grantID))
	}
	return grant, nil
}

// Update replaces an existing grant.
func (s *MemoryGrantStore) Update(_ context.Context, grant model.PermissionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[grant.ID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("permission grant %q not found", grant.ID))
	}
	grant.UpdatedAt = time.Now().UTC()
	s.grants[grant.ID] = grant
	return nil
}

// Delete removes a grant.
func (s *MemoryGrantStore) Delete(_ context.Context, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[grantID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("permission grant %q not found", grantID))
	}
	delete(s.grants, grantID)
	return nil
}

// ListByTemplate returns all grants for a template, priority descending.
func (s *MemoryGrantStore) ListByTemplate(_ context.Context, templateID string) ([]model.PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PermissionGrant
	for _, g := range s.grants {
		if g.TemplateID == templateID {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
