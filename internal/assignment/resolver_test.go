package assignment

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/docflowhq/docflow/model"
)

// fakeDirectory is an in-memory UserLookup for tests.
type fakeDirectory struct {
	users       map[string]model.User
	roles       map[string][]string
	departments map[string][]string
}

func (f *fakeDirectory) GetUser(_ context.Context, userID string) (model.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("user %q not found", userID)
	}
	return u, nil
}

func (f *fakeDirectory) UsersByRole(_ context.Context, role string) ([]string, error) {
	return f.roles[role], nil
}

func (f *fakeDirectory) UsersByDepartment(_ context.Context, department string) ([]string, error) {
	return f.departments[department], nil
}

func newTestResolver() *Resolver {
	dir := &fakeDirectory{
		users: map[string]model.User{
			"alice": {ID: "alice", ManagerID: "bob"},
			"bob":   {ID: "bob"},
		},
		roles:       map[string][]string{"manager": {"bob", "carol"}},
		departments: map[string][]string{"finance": {"alice", "bob"}},
	}
	reg := NewStrategyRegistry()
	RegisterBuiltins(reg, dir)
	return NewResolver(dir, reg)
}

func TestResolve_userList(t *testing.T) {
	r := newTestResolver()

	cases := []struct {
		name  string
		value string
		want  []string
	}{
		{"single", "alice", []string{"alice"}},
		{"multiple", "alice,bob", []string{"alice", "bob"}},
		{"whitespace and blanks", " alice , ,bob ", []string{"alice", "bob"}},
		{"duplicates removed", "alice,alice,bob", []string{"alice", "bob"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), model.AssignmentRule{Kind: model.AssignKindUser, Value: tc.value}, Context{})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Resolve() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolve_role(t *testing.T) {
	r := newTestResolver()

	got, err := r.Resolve(context.Background(), model.AssignmentRule{Kind: model.AssignKindRole, Value: "manager"}, Context{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"bob", "carol"}) {
		t.Errorf("Resolve() = %v, want [bob carol]", got)
	}
}

func TestResolve_department(t *testing.T) {
	r := newTestResolver()

	got, err := r.Resolve(context.Background(), model.AssignmentRule{Kind: model.AssignKindDepartment, Value: "finance"}, Context{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("Resolve() = %v, want [alice bob]", got)
	}
}

func TestResolve_dynamicInitiator(t *testing.T) {
	r := newTestResolver()

	got, err := r.Resolve(context.Background(),
		model.AssignmentRule{Kind: model.AssignKindDynamic, Value: "initiator"},
		Context{Initiator: "alice"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("Resolve() = %v, want [alice]", got)
	}
}

func TestResolve_dynamicInitiatorManager(t *testing.T) {
	r := newTestResolver()

	got, err := r.Resolve(context.Background(),
		model.AssignmentRule{Kind: model.AssignKindDynamic, Value: "initiator_manager"},
		Context{Initiator: "alice"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("Resolve() = %v, want [bob]", got)
	}

	// Bob has no manager, so the strategy fails rather than returning nobody.
	if _, err := r.Resolve(context.Background(),
		model.AssignmentRule{Kind: model.AssignKindDynamic, Value: "initiator_manager"},
		Context{Initiator: "bob"}); err == nil {
		t.Error("Resolve() for a manager-less initiator should return error")
	}
}

func TestResolve_unknownStrategy(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(),
		model.AssignmentRule{Kind: model.AssignKindDynamic, Value: "coin_flip"}, Context{})
	if model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("error code = %q, want VALIDATION_ERROR", model.CodeOf(err))
	}
}

func TestResolve_unknownKind(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), model.AssignmentRule{Kind: "oracle", Value: "x"}, Context{})
	if model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("error code = %q, want VALIDATION_ERROR", model.CodeOf(err))
	}
}

func TestResolve_emptyResolution(t *testing.T) {
	r := newTestResolver()

	// An unknown role resolves to zero users, which must be an error: the
	// step would otherwise wedge with nobody able to act.
	_, err := r.Resolve(context.Background(), model.AssignmentRule{Kind: model.AssignKindRole, Value: "auditor"}, Context{})
	if model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("error code = %q, want VALIDATION_ERROR", model.CodeOf(err))
	}
}

func TestStrategyRegistry(t *testing.T) {
	reg := NewStrategyRegistry()
	if reg.Known("initiator") {
		t.Error("empty registry should not know initiator")
	}

	RegisterBuiltins(reg, &fakeDirectory{})
	if !reg.Known("initiator") || !reg.Known("initiator_manager") {
		t.Error("builtins not registered")
	}

	want := []string{"initiator", "initiator_manager"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}
