// Package instance runs workflow instances: starting them from templates,
// processing step decisions, and advancing step state until a terminal
// status.
package instance

import (
	"context"

	"github.com/docflowhq/docflow/model"
)

// Store persists workflow instances.
type Store interface {
	// Create persists a new instance. Returns CONFLICT if the ID exists.
	Create(ctx context.Context, inst model.WorkflowInstance) error

	// Get retrieves an instance by ID. Returns NOT_FOUND if missing.
	Get(ctx context.Context, instanceID string) (model.WorkflowInstance, error)

	// Update replaces an existing instance with optimistic locking on
	// Version. Returns CONFLICT on a version mismatch.
	Update(ctx context.Context, inst model.WorkflowInstance) error

	// List returns instances matching the filters, newest first, with the
	// total count before pagination.
	List(ctx context.Context, filters model.InstanceFilters) ([]model.WorkflowInstance, int, error)

	// FindActive returns every instance with status active. Used by the SLA
	// sweep.
	FindActive(ctx context.Context) ([]model.WorkflowInstance, error)
}
