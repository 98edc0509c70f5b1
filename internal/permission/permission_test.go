package permission

import (
	"context"
	"testing"
	"time"

	"github.com/docflowhq/docflow/model"
)

func testRctx(roles ...string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID:  "user-1",
		Department: "finance",
		Roles:      roles,
	}
}

func grant(id, entityType, entityID string, priority int, perms map[string]bool) model.PermissionGrant {
	return model.PermissionGrant{
		ID:          id,
		TemplateID:  "tpl-1",
		EntityType:  entityType,
		EntityID:    entityID,
		Priority:    priority,
		Permissions: perms,
	}
}

func seededEvaluator(t *testing.T, grants ...model.PermissionGrant) *Evaluator {
	t.Helper()
	store := NewMemoryGrantStore()
	for _, g := range grants {
		if err := store.Create(context.Background(), g); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	return NewEvaluator(store, 5*time.Minute)
}

// --- merge tests ---

func TestEvaluator_NoMatchingGrants(t *testing.T) {
	e := seededEvaluator(t,
		grant("g1", model.GrantEntityUser, "someone-else", 10, map[string]bool{"view": true}),
	)

	perms, err := e.EffectivePermissions(context.Background(), testRctx(), "tpl-1", model.PermissionContext{})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if len(perms) != 0 {
		t.Errorf("no matching grants should yield empty set, got %v", perms)
	}
	if perms.Has("view") {
		t.Error("absent key must be denied")
	}
}

func TestEvaluator_EntityMatching(t *testing.T) {
	e := seededEvaluator(t,
		grant("g1", model.GrantEntityUser, "user-1", 10, map[string]bool{"view": true}),
		grant("g2", model.GrantEntityRole, "approver", 10, map[string]bool{"edit": true}),
		grant("g3", model.GrantEntityDepartment, "finance", 10, map[string]bool{"start": true}),
		grant("g4", model.GrantEntityRole, "admin", 10, map[string]bool{"manage": true}),
	)

	perms, err := e.EffectivePermissions(context.Background(), testRctx("approver"), "tpl-1", model.PermissionContext{})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	for _, want := range []string{"view", "edit", "start"} {
		if !perms.Has(want) {
			t.Errorf("expected %s to be granted", want)
		}
	}
	if perms.Has("manage") {
		t.Error("admin role grant should not match a non-admin")
	}
}

func TestEvaluator_HigherPriorityWinsPerKey(t *testing.T) {
	e := seededEvaluator(t,
		grant("g1", model.GrantEntityDepartment, "finance", 1, map[string]bool{"view": true, "edit": true}),
		grant("g2", model.GrantEntityUser, "user-1", 10, map[string]bool{"edit": false}),
	)

	perms, err := e.EffectivePermissions(context.Background(), testRctx(), "tpl-1", model.PermissionContext{})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if !perms.Has("view") {
		t.Error("view should survive from the lower-priority grant")
	}
	if perms.Has("edit") {
		t.Error("higher-priority deny must override lower-priority allow for edit")
	}
}

func TestEvaluator_EqualPriorityDenyWins(t *testing.T) {
	e := seededEvaluator(t,
		grant("g1", model.GrantEntityUser, "user-1", 5, map[string]bool{"cancel": true}),
		grant("g2", model.GrantEntityDepartment, "finance", 5, map[string]bool{"cancel": false}),
	)

	perms, err := e.EffectivePermissions(context.Background(), testRctx(), "tpl-1", model.PermissionContext{})
	if err != nil {
		t.Fatalf("EffectivePermissions() error = %v", err)
	}
	if perms.Has("cancel") {
		t.Error("equal-priority conflict must resolve to deny")
	}
}

func TestEvaluator_Conditions(t *testing.T) {
	g := grant("g1", model.GrantEntityUser, "user-1", 10, map[string]bool{"view": true})
	g.Conditions = model.GrantConditions{
		FileTypes:   []string{"pdf", "docx"},
		Departments: []string{"finance"},
		Metadata:    map[string]string{"region": "emea"},
	}
	e := seededEvaluator(t, g)

	match := model.PermissionContext{
		FileType:   "pdf",
		Department: "finance",
		Metadata:   map[string]string{"region": "emea"},
	}
	perms, _ := e.EffectivePermissions(context.Background(), testRctx(), "tpl-1", match)
	if !perms.Has("view") {
		t.Error("grant should match when all conditions hold")
	}

	cases := []struct {
		name string
		pctx model.PermissionContext
	}{
		{"wrong file type", model.PermissionContext{FileType: "xlsx", Department: "finance", Metadata: map[string]string{"region": "emea"}}},
		{"wrong department", model.PermissionContext{FileType: "pdf", Department: "legal", Metadata: map[string]string{"region": "emea"}}},
		{"missing metadata", model.PermissionContext{FileType: "pdf", Department: "finance"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			perms, _ := e.EffectivePermissions(context.Background(), testRctx(), "tpl-1", tc.pctx)
			if perms.Has("view") {
				t.Errorf("grant should not match with %s", tc.name)
			}
		})
	}
}

// --- cache tests ---

type countingStore struct {
	GrantStore
	listCalls int
}

func (s *countingStore) ListByTemplate(ctx context.Context, templateID string) ([]model.PermissionGrant, error) {
	s.listCalls++
	return s.GrantStore.ListByTemplate(ctx, templateID)
}

func TestEvaluator_Cache(t *testing.T) {
	mem := NewMemoryGrantStore()
	mem.Create(context.Background(), grant("g1", model.GrantEntityUser, "user-1", 1, map[string]bool{"view": true}))
	store := &countingStore{GrantStore: mem}
	e := NewEvaluator(store, 5*time.Minute)

	rctx := testRctx()
	e.EffectivePermissions(context.Background(), rctx, "tpl-1", model.PermissionContext{})
	e.EffectivePermissions(context.Background(), rctx, "tpl-1", model.PermissionContext{})
	if store.listCalls != 1 {
		t.Fatalf("listCalls = %d after cache hit, want 1", store.listCalls)
	}

	// A different permission context is a different cache entry.
	e.EffectivePermissions(context.Background(), rctx, "tpl-1", model.PermissionContext{FileType: "pdf"})
	if store.listCalls != 2 {
		t.Fatalf("listCalls = %d for new context, want 2", store.listCalls)
	}

	e.Invalidate("user-1", "tpl-1")
	e.EffectivePermissions(context.Background(), rctx, "tpl-1", model.PermissionContext{})
	if store.listCalls != 3 {
		t.Fatalf("listCalls = %d after invalidate, want 3", store.listCalls)
	}
}

func TestEvaluator_TTLExpiry(t *testing.T) {
	mem := NewMemoryGrantStore()
	store := &countingStore{GrantStore: mem}
	e := NewEvaluator(store, 1*time.Millisecond)

	rctx := testRctx()
	e.EffectivePermissions(context.Background(), rctx, "tpl-1", model.PermissionContext{})
	time.Sleep(5 * time.Millisecond)
	e.EffectivePermissions(context.Background(), rctx, "tpl-1", model.PermissionContext{})

	if store.listCalls != 2 {
		t.Fatalf("listCalls = %d, want 2 (TTL expired)", store.listCalls)
	}
}

func TestEvaluator_CacheKeysDoNotCollide(t *testing.T) {
	store := &countingStore{GrantStore: NewMemoryGrantStore()}
	e := NewEvaluator(store, 5*time.Minute)
	ctx := context.Background()
	rctx := testRctx()

	// Shifting a value across field boundaries must yield distinct entries.
	e.EffectivePermissions(ctx, rctx, "tpl-1", model.PermissionContext{FileType: "pdf:finance"})
	e.EffectivePermissions(ctx, rctx, "tpl-1", model.PermissionContext{FileType: "pdf", Department: "finance"})
	if store.listCalls != 2 {
		t.Errorf("listCalls = %d, contexts with shifted separators must not share an entry", store.listCalls)
	}

	e.EffectivePermissions(ctx, rctx, "tpl-1", model.PermissionContext{Metadata: map[string]string{"a": "b:c"}})
	e.EffectivePermissions(ctx, rctx, "tpl-1", model.PermissionContext{Metadata: map[string]string{"a:b": "c"}})
	if store.listCalls != 4 {
		t.Errorf("listCalls = %d, metadata keys and values must not blur together", store.listCalls)
	}
}

func TestEvaluator_InvalidateTemplate_scopedToTemplate(t *testing.T) {
	store := &countingStore{GrantStore: NewMemoryGrantStore()}
	e := NewEvaluator(store, 5*time.Minute)
	ctx := context.Background()

	// A subject whose ID embeds another template's ID must not be swept up
	// when that template's grants change.
	bystander := &model.RequestContext{SubjectID: "svc:tpl-1:reporter", Department: "finance"}
	e.EffectivePermissions(ctx, bystander, "tpl-2", model.PermissionContext{})

	target := testRctx()
	e.EffectivePermissions(ctx, target, "tpl-1", model.PermissionContext{})

	e.InvalidateTemplate("tpl-1")

	e.EffectivePermissions(ctx, bystander, "tpl-2", model.PermissionContext{})
	if store.listCalls != 2 {
		t.Errorf("listCalls = %d, bystander entry on tpl-2 must survive tpl-1 invalidation", store.listCalls)
	}
	e.EffectivePermissions(ctx, target, "tpl-1", model.PermissionContext{})
	if store.listCalls != 3 {
		t.Errorf("listCalls = %d, tpl-1 entry must be refetched after invalidation", store.listCalls)
	}
}

// --- service tests ---

type stubTemplates struct {
	ids map[string]bool
}

func (s *stubTemplates) Get(_ context.Context, id string) (model.WorkflowTemplate, error) {
	if !s.ids[id] {
		return model.WorkflowTemplate{}, model.NewTemplateNotFoundError(id)
	}
	return model.WorkflowTemplate{ID: id}, nil
}

func newTestService(templateIDs ...string) (*Service, *MemoryGrantStore) {
	store := NewMemoryGrantStore()
	ids := make(map[string]bool)
	for _, id := range templateIDs {
		ids[id] = true
	}
	evaluator := NewEvaluator(store, 5*time.Minute)
	return NewService(store, &stubTemplates{ids: ids}, evaluator), store
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService("tpl-1")

	cases := []struct {
		name  string
		grant model.PermissionGrant
	}{
		{"bad entity type", grant("", "group", "x", 1, map[string]bool{"view": true})},
		{"empty entity id", grant("", model.GrantEntityUser, "", 1, map[string]bool{"view": true})},
		{"no permissions", grant("", model.GrantEntityUser, "u1", 1, nil)},
		{"unknown permission key", grant("", model.GrantEntityUser, "u1", 1, map[string]bool{"fly": true})},
		{"negative priority", grant("", model.GrantEntityUser, "u1", -1, map[string]bool{"view": true})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.grant)
			if model.CodeOf(err) != model.ErrValidationError {
				t.Errorf("Create() error = %v, want VALIDATION_ERROR", err)
			}
		})
	}

	g := grant("", model.GrantEntityUser, "u1", 1, map[string]bool{"view": true})
	g.TemplateID = "tpl-missing"
	if _, err := svc.Create(context.Background(), g); model.CodeOf(err) != model.ErrTemplateNotFound {
		t.Errorf("Create() on missing template error = %v, want TEMPLATE_NOT_FOUND", err)
	}
}

func TestService_CreateAssignsID(t *testing.T) {
	svc, _ := newTestService("tpl-1")

	created, err := svc.Create(context.Background(), grant("", model.GrantEntityUser, "u1", 1, map[string]bool{"view": true}))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Error("Create() should assign an ID")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create() should stamp timestamps")
	}
}

func TestService_UpdateTemplateImmutable(t *testing.T) {
	svc, _ := newTestService("tpl-1", "tpl-2")

	created, err := svc.Create(context.Background(), grant("", model.GrantEntityUser, "u1", 1, map[string]bool{"view": true}))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	created.TemplateID = "tpl-2"
	if _, err := svc.Update(context.Background(), created); model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("Update() moving templates error = %v, want VALIDATION_ERROR", err)
	}
}

func TestService_CopyGrants(t *testing.T) {
	svc, store := newTestService("tpl-1", "tpl-2")

	for i, perms := range []map[string]bool{
		{"view": true},
		{"edit": true, "delete": false},
	} {
		g := grant("", model.GrantEntityUser, "u1", i, perms)
		if _, err := svc.Create(context.Background(), g); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	copies, err := svc.CopyGrants(context.Background(), "tpl-1", "tpl-2")
	if err != nil {
		t.Fatalf("CopyGrants() error = %v", err)
	}
	if len(copies) != 2 {
		t.Fatalf("CopyGrants() copied %d grants, want 2", len(copies))
	}

	src, _ := store.ListByTemplate(context.Background(), "tpl-1")
	dst, _ := store.ListByTemplate(context.Background(), "tpl-2")
	if len(src) != 2 || len(dst) != 2 {
		t.Fatalf("source has %d, destination has %d grants, want 2 and 2", len(src), len(dst))
	}
	for _, c := range copies {
		if c.TemplateID != "tpl-2" {
			t.Errorf("copied grant bound to %q, want tpl-2", c.TemplateID)
		}
		for _, s := range src {
			if s.ID == c.ID {
				t.Error("copied grant must get a fresh ID")
			}
		}
	}
}

func TestService_CopyGrants_SameTemplate(t *testing.T) {
	svc, _ := newTestService("tpl-1")
	if _, err := svc.CopyGrants(context.Background(), "tpl-1", "tpl-1"); model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("CopyGrants() onto itself error = %v, want VALIDATION_ERROR", err)
	}
}
