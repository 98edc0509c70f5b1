package model

import (
	"encoding/json"
	"time"
)

// Step type constants.
const (
	StepTypeApproval     = "approval"
	StepTypeReview       = "review"
	StepTypeNotification = "notification"
	StepTypeTask         = "task"
	StepTypeSign         = "sign"
	StepTypeRoute        = "route"
	StepTypeCondition    = "condition"
	StepTypeAction       = "action"
)

// StepTypes lists every valid step type.
var StepTypes = []string{
	StepTypeApproval, StepTypeReview, StepTypeNotification, StepTypeTask,
	StepTypeSign, StepTypeRoute, StepTypeCondition, StepTypeAction,
}

// Assignment rule kinds.
const (
	AssignKindUser       = "user"
	AssignKindRole       = "role"
	AssignKindDepartment = "department"
	AssignKindDynamic    = "dynamic"
)

// WorkflowTemplate is an administrator-authored definition of an approval
// workflow: an ordered sequence of step specifications plus SLA settings.
// Running instances snapshot the steps at start time, so edits to a template
// never affect in-flight work.
type WorkflowTemplate struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Department  string      `json:"department,omitempty"`
	Steps       []StepSpec  `json:"steps"`
	FileTypes   []string    `json:"file_types,omitempty"`
	SLA         SLAConfig   `json:"sla"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Version     int         `json:"version"`
}

// AllowsFileType reports whether the template accepts the given subject file
// type. An empty allow list accepts everything.
func (t *WorkflowTemplate) AllowsFileType(fileType string) bool {
	if len(t.FileTypes) == 0 {
		return true
	}
	for _, ft := range t.FileTypes {
		if ft == fileType {
			return true
		}
	}
	return false
}

// StepByID returns the step spec with the given ID, or nil.
func (t *WorkflowTemplate) StepByID(stepID string) *StepSpec {
	for i := range t.Steps {
		if t.Steps[i].ID == stepID {
			return &t.Steps[i]
		}
	}
	return nil
}

// HasDependencies reports whether any step declares dependencies. Templates
// with dependencies activate steps by dependency readiness instead of list
// order.
func (t *WorkflowTemplate) HasDependencies() bool {
	for i := range t.Steps {
		if len(t.Steps[i].DependsOn) > 0 {
			return true
		}
	}
	return false
}

// StepSpec is the template-time definition of one workflow step.
type StepSpec struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	Assignment        AssignmentRule  `json:"assignment"`
	DeadlineHours     int             `json:"deadline_hours,omitempty"`
	Parallel          bool            `json:"parallel,omitempty"`
	RequiredApprovals int             `json:"required_approvals,omitempty"`
	DependsOn         []string        `json:"depends_on,omitempty"`
	FormSchema        json.RawMessage `json:"form_schema,omitempty"`
}

// AssignmentRule declares who may act on a step. The rule is resolved to
// concrete user IDs when the step is activated, never earlier, because role
// and department rosters change over the life of a template.
type AssignmentRule struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// SLAConfig holds a template's deadline-monitoring settings.
type SLAConfig struct {
	WarningThresholdHours int      `json:"warning_threshold_hours,omitempty"`
	AutoReassign          bool     `json:"auto_reassign,omitempty"`
	BackupAssignees       []string `json:"backup_assignees,omitempty"`
}

// TemplateFilters are optional filters for listing workflow templates.
type TemplateFilters struct {
	Department string
	Active     *bool
	Page       int
	PageSize   int
}
