package model

import (
	"context"
	"time"
)

// Permission keys.
const (
	PermView        = "view"
	PermEdit        = "edit"
	PermDelete      = "delete"
	PermManage      = "manage"
	PermStart       = "start"
	PermAssign      = "assign"
	PermReassign    = "reassign"
	PermCancel      = "cancel"
	PermViewMetrics = "viewMetrics"
	PermExportData  = "exportData"
)

// PermissionKeys lists every valid permission key.
var PermissionKeys = []string{
	PermView, PermEdit, PermDelete, PermManage, PermStart,
	PermAssign, PermReassign, PermCancel, PermViewMetrics, PermExportData,
}

// Grant entity types.
const (
	GrantEntityUser       = "user"
	GrantEntityRole       = "role"
	GrantEntityDepartment = "department"
)

// PermissionSet maps permission keys to granted booleans. Keys absent from
// the set are denied.
type PermissionSet map[string]bool

// Has returns true if the set grants the given permission.
func (ps PermissionSet) Has(perm string) bool {
	return ps[perm]
}

// PermissionGrant assigns a set of permissions on a template to a user, role,
// or department. When several grants match an actor, a higher priority wins
// per permission key.
type PermissionGrant struct {
	ID          string          `json:"id"`
	TemplateID  string          `json:"template_id"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Permissions map[string]bool `json:"permissions"`
	Priority    int             `json:"priority"`
	Conditions  GrantConditions `json:"conditions,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// GrantConditions scope a grant to a subset of subjects. Empty fields match
// everything.
type GrantConditions struct {
	FileTypes   []string          `json:"file_types,omitempty"`
	Departments []string          `json:"departments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PermissionContext describes the subject being acted on, for condition
// matching.
type PermissionContext struct {
	FileType   string
	Department string
	Metadata   map[string]string
}

// PermissionEvaluator resolves the effective permission set for an actor on
// a template.
type PermissionEvaluator interface {
	// EffectivePermissions gathers the grants matching the actor's identity,
	// roles, and department, filters them by condition, and merges them per
	// key with highest priority winning.
	EffectivePermissions(ctx context.Context, rctx *RequestContext, templateID string, pctx PermissionContext) (PermissionSet, error)

	// Invalidate clears cached permissions for the given actor and template.
	// An empty templateID clears all templates for the actor.
	Invalidate(subjectID, templateID string)
}
