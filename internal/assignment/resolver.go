package assignment

import (
	"context"
	"fmt"
	"strings"

	"github.com/docflowhq/docflow/model"
)

// UserLookup is the slice of the directory the resolver needs.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (model.User, error)
	UsersByRole(ctx context.Context, role string) ([]string, error)
	UsersByDepartment(ctx context.Context, department string) ([]string, error)
}

// Resolver maps assignment rules to concrete user IDs. Resolution happens at
// step-activation time, never at template-author time: role and department
// rosters change over the life of a template.
type Resolver struct {
	users      UserLookup
	strategies *StrategyRegistry
}

// NewResolver creates an assignment resolver.
func NewResolver(users UserLookup, strategies *StrategyRegistry) *Resolver {
	return &Resolver{users: users, strategies: strategies}
}

// Resolve returns the user IDs the rule designates. An empty result is a
// validation error: a step nobody can act on would wedge the instance.
func (r *Resolver) Resolve(ctx context.Context, rule model.AssignmentRule, actx Context) ([]string, error) {
	var (
		ids []string
		err error
	)

	switch rule.Kind {
	case model.AssignKindUser:
		// Value is a comma-separated list of literal user IDs.
		for _, id := range strings.Split(rule.Value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	case model.AssignKindRole:
		ids, err = r.users.UsersByRole(ctx, rule.Value)
	case model.AssignKindDepartment:
		ids, err = r.users.UsersByDepartment(ctx, rule.Value)
	case model.AssignKindDynamic:
		strategy, ok := r.strategies.Get(rule.Value)
		if !ok {
			return nil, model.NewValidationError([]model.FieldError{{
				Field:   "assignment.value",
				Code:    "invalid",
				Message: fmt.Sprintf("unknown dynamic assignment strategy %q", rule.Value),
			}})
		}
		ids, err = strategy.Assignees(ctx, actx)
	default:
		return nil, model.NewValidationError([]model.FieldError{{
			Field:   "assignment.kind",
			Code:    "invalid",
			Message: fmt.Sprintf("unknown assignment kind %q", rule.Kind),
		}})
	}

	if err != nil {
		return nil, fmt.Errorf("resolve %s assignment: %w", rule.Kind, err)
	}
	if len(ids) == 0 {
		return nil, model.NewValidationError([]model.FieldError{{
			Field:   "assignment",
			Code:    "empty",
			Message: fmt.Sprintf("%s assignment %q resolved to no users", rule.Kind, rule.Value),
		}})
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
