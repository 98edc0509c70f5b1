package directory

import (
	"context"
	"reflect"
	"testing"

	"github.com/docflowhq/docflow/model"
)

func newTestServiceWithUsers(t *testing.T) *Service {
	t.Helper()
	svc := NewService(NewMemoryStore())
	ctx := context.Background()
	for _, u := range []model.User{
		{ID: "alice", Name: "Alice", Email: "alice@example.com", Department: "finance", Roles: []string{"clerk"}, Active: true},
		{ID: "bob", Name: "Bob", Email: "bob@example.com", Department: "finance", Roles: []string{"manager"}, Active: true},
		{ID: "carol", Name: "Carol", Email: "carol@example.com", Department: "legal", Roles: []string{"manager"}, Active: false},
	} {
		if _, err := svc.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return svc
}

func TestService_CreateUser(t *testing.T) {
	svc := NewService(NewMemoryStore())

	created, err := svc.CreateUser(context.Background(), model.User{
		Name:  "Dan",
		Email: "dan@example.com",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if created.ID == "" {
		t.Error("CreateUser() did not assign an ID")
	}
	if created.CreatedAt.IsZero() {
		t.Error("CreateUser() did not set CreatedAt")
	}
}

func TestService_CreateUser_validation(t *testing.T) {
	svc := NewService(NewMemoryStore())

	cases := []struct {
		name string
		user model.User
	}{
		{"missing name", model.User{Email: "x@example.com"}},
		{"missing email", model.User{Name: "X"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateUser(context.Background(), tc.user)
			if model.CodeOf(err) != model.ErrValidationError {
				t.Errorf("error code = %q, want VALIDATION_ERROR", model.CodeOf(err))
			}
		})
	}
}

func TestService_CreateUser_duplicate(t *testing.T) {
	svc := newTestServiceWithUsers(t)

	_, err := svc.CreateUser(context.Background(), model.User{
		ID: "alice", Name: "Alice Again", Email: "alice2@example.com",
	})
	if model.CodeOf(err) != model.ErrConflict {
		t.Errorf("error code = %q, want CONFLICT", model.CodeOf(err))
	}
}

func TestService_UpdateUser(t *testing.T) {
	svc := newTestServiceWithUsers(t)

	updated, err := svc.UpdateUser(context.Background(), model.User{
		ID: "alice", Name: "Alice B", Email: "alice@example.com", Department: "legal", Active: true,
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.Department != "legal" {
		t.Errorf("Department = %q, want legal", updated.Department)
	}
}

func TestService_ListUsers_byDepartment(t *testing.T) {
	svc := newTestServiceWithUsers(t)

	users, err := svc.ListUsers(context.Background(), "finance")
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("finance users = %d, want 2", len(users))
	}

	all, err := svc.ListUsers(context.Background(), "")
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all users = %d, want 3", len(all))
	}
}

func TestService_DeleteUser(t *testing.T) {
	svc := newTestServiceWithUsers(t)

	if err := svc.DeleteUser(context.Background(), "carol"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := svc.GetUser(context.Background(), "carol"); model.CodeOf(err) != model.ErrNotFound {
		t.Errorf("GetUser() after delete error code = %q, want NOT_FOUND", model.CodeOf(err))
	}
}

func TestMemoryStore_rosterLookups(t *testing.T) {
	svc := newTestServiceWithUsers(t)
	store := svc.store.(*MemoryStore)

	// Inactive users never appear in assignment rosters.
	byRole, err := store.UsersByRole(context.Background(), "manager")
	if err != nil {
		t.Fatalf("UsersByRole() error = %v", err)
	}
	if !reflect.DeepEqual(byRole, []string{"bob"}) {
		t.Errorf("UsersByRole(manager) = %v, want [bob]", byRole)
	}

	byDept, err := store.UsersByDepartment(context.Background(), "finance")
	if err != nil {
		t.Fatalf("UsersByDepartment() error = %v", err)
	}
	if !reflect.DeepEqual(byDept, []string{"alice", "bob"}) {
		t.Errorf("UsersByDepartment(finance) = %v, want [alice bob]", byDept)
	}
}

func TestService_Departments(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	created, err := svc.CreateDepartment(ctx, model.Department{Name: "Finance"})
	if err != nil {
		t.Fatalf("CreateDepartment() error = %v", err)
	}
	if created.ID == "" {
		t.Error("CreateDepartment() did not assign an ID")
	}

	if _, err := svc.CreateDepartment(ctx, model.Department{}); model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("nameless department error code = %q, want VALIDATION_ERROR", model.CodeOf(err))
	}

	created.Name = "Finance & Accounting"
	updated, err := svc.UpdateDepartment(ctx, created)
	if err != nil {
		t.Fatalf("UpdateDepartment() error = %v", err)
	}
	if updated.Name != "Finance & Accounting" {
		t.Errorf("Name = %q", updated.Name)
	}

	depts, err := svc.ListDepartments(ctx)
	if err != nil {
		t.Fatalf("ListDepartments() error = %v", err)
	}
	if len(depts) != 1 {
		t.Errorf("departments = %d, want 1", len(depts))
	}

	if err := svc.DeleteDepartment(ctx, created.ID); err != nil {
		t.Fatalf("DeleteDepartment() error = %v", err)
	}
	if _, err := svc.GetDepartment(ctx, created.ID); model.CodeOf(err) != model.ErrNotFound {
		t.Errorf("GetDepartment() after delete error code = %q, want NOT_FOUND", model.CodeOf(err))
	}
}
