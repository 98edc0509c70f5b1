package permission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docflowhq/docflow/model"
)

// TemplateLookup verifies that a template exists before grants attach to it.
type TemplateLookup interface {
	Get(ctx context.Context, templateID string) (model.WorkflowTemplate, error)
}

// Service manages permission grants and keeps the evaluator cache coherent
// with grant mutations.
type Service struct {
	store     GrantStore
	templates TemplateLookup
	evaluator *Evaluator
}

// NewService creates a permission grant service.
func NewService(store GrantStore, templates TemplateLookup, evaluator *Evaluator) *Service {
	return &Service{store: store, templates: templates, evaluator: evaluator}
}

// Create validates and persists a new grant.
func (s *Service) Create(ctx context.Context, g model.PermissionGrant) (model.PermissionGrant, error) {
	if err := s.validate(ctx, g, true); err != nil {
		return model.PermissionGrant{}, err
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	if err := s.store.Create(ctx, g); err != nil {
		return model.PermissionGrant{}, err
	}
	s.evaluator.InvalidateTemplate(g.TemplateID)
	return g, nil
}

// Get retrieves a grant by ID.
func (s *Service) Get(ctx context.Context, grantID string) (model.PermissionGrant, error) {
	return s.store.Get(ctx, grantID)
}

// Update validates and replaces an existing grant. The template binding of a
// grant is immutable; move a grant by deleting and recreating it.
func (s *Service) Update(ctx context.Context, g model.PermissionGrant) (model.PermissionGrant, error) {
	existing, err := s.store.Get(ctx, g.ID)
	if err != nil {
		return model.PermissionGrant{}, err
	}
	if g.TemplateID != "" && g.TemplateID != existing.TemplateID {
		return model.PermissionGrant{}, model.NewValidationError([]model.FieldError{{
			Field:   "template_id",
			Code:    "immutable",
			Message: "a grant cannot move between templates",
		}})
	}
	g.TemplateID = existing.TemplateID
	if err := s.validate(ctx, g, false); err != nil {
		return model.PermissionGrant{}, err
	}

	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, g); err != nil {
		return model.PermissionGrant{}, err
	}
	s.evaluator.InvalidateTemplate(g.TemplateID)
	return g, nil
}

// Delete removes a grant.
func (s *Service) Delete(ctx context.Context, grantID string) error {
	g, err := s.store.Get(ctx, grantID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, grantID); err != nil {
		return err
	}
	s.evaluator.InvalidateTemplate(g.TemplateID)
	return nil
}

// ListByTemplate returns all grants on a template, priority descending.
func (s *Service) ListByTemplate(ctx context.Context, templateID string) ([]model.PermissionGrant, error) {
	return s.store.ListByTemplate(ctx, templateID)
}

// CopyGrants duplicates every grant from one template onto another. Copies
// get fresh IDs; existing grants on the destination are left alone.
func (s *Service) CopyGrants(ctx context.Context, srcTemplateID, dstTemplateID string) ([]model.PermissionGrant, error) {
	if srcTemplateID == dstTemplateID {
		return nil, model.NewValidationError([]model.FieldError{{
			Field:   "target_template_id",
			Code:    "invalid",
			Message: "source and target templates must differ",
		}})
	}
	if _, err := s.templates.Get(ctx, srcTemplateID); err != nil {
		return nil, err
	}
	if _, err := s.templates.Get(ctx, dstTemplateID); err != nil {
		return nil, err
	}

	grants, err := s.store.ListByTemplate(ctx, srcTemplateID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	copies := make([]model.PermissionGrant, 0, len(grants))
	for _, g := range grants {
		g.ID = uuid.NewString()
		g.TemplateID = dstTemplateID
		g.CreatedAt = now
		g.UpdatedAt = now
		if err := s.store.Create(ctx, g); err != nil {
			return nil, fmt.Errorf("copy grant to template %q: %w", dstTemplateID, err)
		}
		copies = append(copies, g)
	}
	s.evaluator.InvalidateTemplate(dstTemplateID)
	return copies, nil
}

func (s *Service) validate(ctx context.Context, g model.PermissionGrant, checkTemplate bool) error {
	var errs []model.FieldError

	switch g.EntityType {
	case model.GrantEntityUser, model.GrantEntityRole, model.GrantEntityDepartment:
	default:
		errs = append(errs, model.FieldError{
			Field:   "entity_type",
			Code:    "invalid",
			Message: fmt.Sprintf("unknown entity type %q", g.EntityType),
		})
	}
	if g.EntityID == "" {
		errs = append(errs, model.FieldError{Field: "entity_id", Code: "required", Message: "entity_id is required"})
	}
	if len(g.Permissions) == 0 {
		errs = append(errs, model.FieldError{Field: "permissions", Code: "required", Message: "at least one permission key is required"})
	}
	for key := range g.Permissions {
		if !validPermissionKey(key) {
			errs = append(errs, model.FieldError{
				Field:   "permissions." + key,
				Code:    "invalid",
				Message: fmt.Sprintf("unknown permission key %q", key),
			})
		}
	}
	if g.Priority < 0 {
		errs = append(errs, model.FieldError{Field: "priority", Code: "invalid", Message: "priority must not be negative"})
	}
	if len(errs) > 0 {
		return model.NewValidationError(errs)
	}

	if checkTemplate {
		if _, err := s.templates.Get(ctx, g.TemplateID); err != nil {
			return err
		}
	}
	return nil
}

func validPermissionKey(key string) bool {
	for _, k := range model.PermissionKeys {
		if k == key {
			return true
		}
	}
	return false
}
