// Package assignment resolves a step's abstract assignment rule to concrete
// user IDs at step-activation time.
package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docflowhq/docflow/model"
)

// Context carries the runtime state a dynamic strategy may inspect.
type Context struct {
	Instance  *model.WorkflowInstance
	Initiator string
}

// Strategy computes assignees for a dynamic assignment rule. Business rules
// vary per deployment, so strategies are registered by name and referenced
// from templates.
type Strategy interface {
	Assignees(ctx context.Context, actx Context) ([]string, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, actx Context) ([]string, error)

// Assignees implements Strategy.
func (f StrategyFunc) Assignees(ctx context.Context, actx Context) ([]string, error) {
	return f(ctx, actx)
}

// StrategyRegistry holds named dynamic assignment strategies.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewStrategyRegistry creates an empty strategy registry.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under the given name, replacing any previous one.
func (r *StrategyRegistry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
}

// Known reports whether a strategy is registered under the given name.
func (r *StrategyRegistry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[name]
	return ok
}

// Get returns the strategy registered under the given name.
func (r *StrategyRegistry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered strategy names, sorted.
func (r *StrategyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins installs the strategies that ship with the service:
//
//	initiator         : the user who started the instance
//	initiator_manager : the manager of the user who started the instance
func RegisterBuiltins(reg *StrategyRegistry, users UserLookup) {
	reg.Register("initiator", StrategyFunc(func(_ context.Context, actx Context) ([]string, error) {
		if actx.Initiator == "" {
			return nil, fmt.Errorf("initiator strategy: no initiator in context")
		}
		return []string{actx.Initiator}, nil
	}))

	reg.Register("initiator_manager", StrategyFunc(func(ctx context.Context, actx Context) ([]string, error) {
		if actx.Initiator == "" {
			return nil, fmt.Errorf("initiator_manager strategy: no initiator in context")
		}
		user, err := users.GetUser(ctx, actx.Initiator)
		if err != nil {
			return nil, fmt.Errorf("initiator_manager strategy: %w", err)
		}
		if user.ManagerID == "" {
			return nil, fmt.Errorf("initiator_manager strategy: user %q has no manager", actx.Initiator)
		}
		return []string{user.ManagerID}, nil
	}))
}
