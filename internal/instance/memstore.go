package instance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docflowhq/docflow/model"
)

// MemoryStore is an in-memory Store for testing.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]model.WorkflowInstance
}

// NewMemoryStore creates a new in-memory instance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]model.WorkflowInstance)}
}

// Create persists a new instance.
func (s *MemoryStore) Create(_ context.Context, inst model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("workflow instance %q already exists", inst.ID))
	}
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

// Get retrieves an instance by ID.
func (s *MemoryStore) Get(_ context.Context, instanceID string) (model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.instances[instanceID]
	if !exists {
		return model.WorkflowInstance{}, model.NewNotFoundError(fmt.Sprintf("workflow instance %q not found", instanceID))
	}
	return cloneInstance(inst), nil
}

// Update replaces an existing instance with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, inst model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.instances[inst.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("workflow instance %q not found", inst.ID))
	}
	if existing.Version != inst.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q version conflict (expected %d, got %d)", inst.ID, inst.Version, existing.Version),
		)
	}

	inst.Version++
	s.instances[inst.ID] = cloneInstance(inst)
	return nil
}

// List returns instances matching the filters, newest first.
func (s *MemoryStore) List(_ context.Context, filters model.InstanceFilters) ([]model.WorkflowInstance, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowInstance
	for _, inst := range s.instances {
		if filters.TemplateID != "" && inst.TemplateID != filters.TemplateID {
			continue
		}
		if filters.Status != "" && inst.Status != filters.Status {
			continue
		}
		if filters.Initiator != "" && inst.Initiator != filters.Initiator {
			continue
		}
		result = append(result, cloneInstance(inst))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].ID < result[j].ID
	})

	total := len(result)
	result = paginate(result, filters.Page, filters.PageSize)
	return result, total, nil
}

// FindActive returns every active instance.
func (s *MemoryStore) FindActive(_ context.Context) ([]model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowInstance
	for _, inst := range s.instances {
		if inst.Status == model.InstanceStatusActive {
			result = append(result, cloneInstance(inst))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// cloneInstance deep-copies the slices the engine mutates, so callers never
// alias stored state. A rejected operation must leave the store untouched.
func cloneInstance(inst model.WorkflowInstance) model.WorkflowInstance {
	inst.Steps = append([]model.StepSpec(nil), inst.Steps...)
	states := make([]model.StepState, len(inst.StepStates))
	for i, st := range inst.StepStates {
		st.Assignees = append([]string(nil), st.Assignees...)
		st.Decisions = append([]model.Decision(nil), st.Decisions...)
		st.Reassignments = append([]model.Reassignment(nil), st.Reassignments...)
		states[i] = st
	}
	inst.StepStates = states
	return inst
}

func paginate(in []model.WorkflowInstance, page, pageSize int) []model.WorkflowInstance {
	if pageSize <= 0 {
		return in
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset >= len(in) {
		return []model.WorkflowInstance{}
	}
	in = in[offset:]
	if pageSize < len(in) {
		in = in[:pageSize]
	}
	return in
}
