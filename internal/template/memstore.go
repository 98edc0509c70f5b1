package template

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
	mu        sync.RWMutex
	templates map[string]model.WorkflowTemplate
}

// NewMemoryStore creates a new in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]model.WorkflowTemplate)}
}

// Create persists a new template.
func (s *MemoryStore) Create(_ context.Context, tmpl model.WorkflowTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[tmpl.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("template %q already exists", tmpl.ID))
	}
	s.templates[tmpl.ID] = tmpl
	return nil
}

// Get retrieves a template by ID.
func (s *MemoryStore) Get(_ context.Context, templateID string) (model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, exists := s.templates[templateID]
	if !exists {
		return model.WorkflowTemplate{}, model.NewTemplateNotFoundError(templateID)
	}
	return tmpl, nil
}

// Update replaces an existing template with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, tmpl model.WorkflowTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[tmpl.ID]
	if !exists {
		return model.NewTemplateNotFoundError(tmpl.ID)
	}
	if existing.Version != tmpl.Version {
		return model.NewConflictError(
			fmt.Sprintf("template %q version conflict (expected %d, got %d)", tmpl.ID, tmpl.Version, existing.Version),
		)
	}

	tmpl.Version++
	tmpl.UpdatedAt = time.Now().UTC()
	s.templates[tmpl.ID] = tmpl
	return nil
}

// Delete removes a template.
func (s *MemoryStore) Delete(_ context.Context, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[templateID]; !exists {
		return model.NewTemplateNotFoundError(templateID)
	}
	delete(s.templates, templateID)
	return nil
}

// List returns templates matching the filters, newest first.
func (s *MemoryStore) List(_ context.Context, filters model.TemplateFilters) ([]model.WorkflowTemplate, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowTemplate
	for _, t := range s.templates {
		if filters.Department != "" && t.Department != filters.Department {
			continue
		}
		if filters.Active != nil && t.Active != *filters.Active {
			continue
		}
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	total := len(result)
	result = paginate(result, filters.Page, filters.PageSize)
	return result, total, nil
}

func paginate(in []model.WorkflowTemplate, page, pageSize int) []model.WorkflowTemplate {
	if pageSize <= 0 {
		return in
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset >= len(in) {
		return []model.WorkflowTemplate{}
	}
	in = in[offset:]
	if pageSize < len(in) {
		in = in[:pageSize]
	}
	return in
}

// Len returns the number of stored templates. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.templates)
}
