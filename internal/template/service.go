package template

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docflowhq/docflow/internal/schema"
	"github.com/docflowhq/docflow/model"
)

// StrategyChecker reports whether a dynamic assignment strategy name is
// registered. Satisfied by the assignment strategy registry.
type StrategyChecker interface {
	Known(name string) bool
}

// Service wraps the template store with validation and ID assignment.
type Service struct {
	store      Store
	strategies StrategyChecker
}

// NewService creates a template service backed by the given store.
func NewService(store Store, strategies StrategyChecker) *Service {
	return &Service{store: store, strategies: strategies}
}

// Create validates and persists a new template.
func (s *Service) Create(ctx context.Context, tmpl model.WorkflowTemplate) (model.WorkflowTemplate, error) {
	if details := s.validate(tmpl); len(details) > 0 {
		return model.WorkflowTemplate{}, model.NewValidationError(details)
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	tmpl.Version = 1
	if err := s.store.Create(ctx, tmpl); err != nil {
		return model.WorkflowTemplate{}, err
	}
	return tmpl, nil
}

// Get retrieves a template by ID.
func (s *Service) Get(ctx context.Context, templateID string) (model.WorkflowTemplate, error) {
	return s.store.Get(ctx, templateID)
}

// Update validates and replaces an existing template. Running instances are
// unaffected: they hold a snapshot of the steps taken at start time.
func (s *Service) Update(ctx context.Context, tmpl model.WorkflowTemplate) (model.WorkflowTemplate, error) {
	if details := s.validate(tmpl); len(details) > 0 {
		return model.WorkflowTemplate{}, model.NewValidationError(details)
	}
	if err := s.store.Update(ctx, tmpl); err != nil {
		return model.WorkflowTemplate{}, err
	}
	return s.store.Get(ctx, tmpl.ID)
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, templateID string) error {
	return s.store.Delete(ctx, templateID)
}

// List returns templates matching the filters.
func (s *Service) List(ctx context.Context, filters model.TemplateFilters) ([]model.WorkflowTemplate, int, error) {
	return s.store.List(ctx, filters)
}

// validate checks template structure: step identity, types, assignment rules,
// quorum settings, dependency references and cycles, and form schemas.
func (s *Service) validate(tmpl model.WorkflowTemplate) []model.FieldError {
	var details []model.FieldError

	if tmpl.Name == "" {
		details = append(details, fieldErr("name", "required", "name is required"))
	}
	if len(tmpl.Steps) == 0 {
		details = append(details, fieldErr("steps", "required", "at least one step is required"))
		return details
	}

	stepIDs := make(map[string]bool, len(tmpl.Steps))
	for i, step := range tmpl.Steps {
		prefix := fmt.Sprintf("steps[%d]", i)

		if step.ID == "" {
			details = append(details, fieldErr(prefix+".id", "required", "step id is required"))
		} else if stepIDs[step.ID] {
			details = append(details, fieldErr(prefix+".id", "duplicate", fmt.Sprintf("duplicate step id %q", step.ID)))
		}
		stepIDs[step.ID] = true

		if !validStepType(step.Type) {
			details = append(details, fieldErr(prefix+".type", "invalid", fmt.Sprintf("unknown step type %q", step.Type)))
		}

		details = append(details, s.validateAssignment(prefix, step.Assignment)...)

		if step.DeadlineHours < 0 {
			details = append(details, fieldErr(prefix+".deadline_hours", "invalid", "deadline hours must not be negative"))
		}
		if step.RequiredApprovals < 0 {
			details = append(details, fieldErr(prefix+".required_approvals", "invalid", "required approvals must not be negative"))
		}
		if !step.Parallel && step.RequiredApprovals > 1 {
			details = append(details, fieldErr(prefix+".required_approvals", "invalid", "quorum applies only to parallel steps"))
		}

		if len(step.FormSchema) > 0 {
			if _, err := schema.Compile(step.FormSchema); err != nil {
				details = append(details, fieldErr(prefix+".form_schema", "invalid", err.Error()))
			}
		}
	}

	for i, step := range tmpl.Steps {
		prefix := fmt.Sprintf("steps[%d]", i)
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				details = append(details, fieldErr(prefix+".depends_on", "invalid", "step cannot depend on itself"))
			} else if !stepIDs[dep] {
				details = append(details, fieldErr(prefix+".depends_on", "invalid", fmt.Sprintf("unknown dependency %q", dep)))
			}
		}
	}

	if cycle := findDependencyCycle(tmpl.Steps); cycle != "" {
		details = append(details, fieldErr("steps", "cycle", fmt.Sprintf("dependency cycle through step %q", cycle)))
	}

	return details
}

func (s *Service) validateAssignment(prefix string, rule model.AssignmentRule) []model.FieldError {
	switch rule.Kind {
	case model.AssignKindUser, model.AssignKindRole, model.AssignKindDepartment:
		if rule.Value == "" {
			return []model.FieldError{fieldErr(prefix+".assignment.value", "required",
				fmt.Sprintf("%s assignment requires a value", rule.Kind))}
		}
	case model.AssignKindDynamic:
		if s.strategies == nil || !s.strategies.Known(rule.Value) {
			return []model.FieldError{fieldErr(prefix+".assignment.value", "invalid",
				fmt.Sprintf("unknown dynamic assignment strategy %q", rule.Value))}
		}
	default:
		return []model.FieldError{fieldErr(prefix+".assignment.kind", "invalid",
			fmt.Sprintf("unknown assignment kind %q", rule.Kind))}
	}
	return nil
}

func validStepType(t string) bool {
	for _, st := range model.StepTypes {
		if st == t {
			return true
		}
	}
	return false
}

// findDependencyCycle returns the ID of a step on a dependency cycle, or "".
func findDependencyCycle(steps []model.StepSpec) string {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.ID] = s.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))

	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}
		state[id] = visiting
		for _, dep := range deps[id] {
			if found := visit(dep); found != "" {
				return found
			}
		}
		state[id] = done
		return ""
	}

	for _, s := range steps {
		if found := visit(s.ID); found != "" {
			return found
		}
	}
	return ""
}

func fieldErr(field, code, msg string) model.FieldError {
	return model.FieldError{Field: field, Code: code, Message: msg}
}
