// Package permission evaluates prioritized, condition-scoped permission
// grants into effective permission sets, and manages the grants themselves.
package permission

import (
	"context"

	"github.com/docflowhq/docflow/model"
)

// GrantStore persists permission grants.
type GrantStore interface {
	// Create persists a new grant. Returns CONFLICT if the ID exists.
	Create(ctx context.Context, grant model.PermissionGrant) error

	// Get retrieves a grant by ID. Returns NOT_FOUND if missing.
	Get(ctx context.Context, grantID string) (model.PermissionGrant, error)

	// Update replaces an existing grant. Returns NOT_FOUND if missing.
	Update(ctx context.Context, grant model.PermissionGrant) error

	// Delete removes a grant. Returns NOT_FOUND if missing.
	Delete(ctx context.Context, grantID string) error

	// ListByTemplate returns all grants for a template, priority descending.
	ListByTemplate(ctx context.Context, templateID string) ([]model.PermissionGrant, error)
}
