// Package template persists and validates workflow template definitions.
package template

import (
	"context"

	"github.com/docflowhq/docflow/model"
)

// Store persists workflow templates.
type Store interface {
	// Create persists a new template. Returns CONFLICT if the ID exists.
	Create(ctx context.Context, tmpl model.WorkflowTemplate) error

	// Get retrieves a template by ID. Returns TEMPLATE_NOT_FOUND if missing.
	Get(ctx context.Context, templateID string) (model.WorkflowTemplate, error)

	// Update replaces an existing template with optimistic locking. The
	// version must match the stored version; returns CONFLICT otherwise.
	Update(ctx context.Context, tmpl model.WorkflowTemplate) error

	// Delete removes a template. Returns TEMPLATE_NOT_FOUND if missing.
	Delete(ctx context.Context, templateID string) error

	// List returns templates matching the filters, newest first.
	List(ctx context.Context, filters model.TemplateFilters) ([]model.WorkflowTemplate, int, error)
}
