package model

import "time"

// Workflow instance status constants.
const (
	InstanceStatusActive    = "active"
	InstanceStatusCompleted = "completed"
	InstanceStatusRejected  = "rejected"
	InstanceStatusCancelled = "cancelled"
)

// Step state status constants.
const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
	StepStatusRejected   = "rejected"
	StepStatusSkipped    = "skipped"
)

// Decision actions.
const (
	ActionApprove        = "approve"
	ActionReject         = "reject"
	ActionReviewComplete = "review-complete"
	ActionSign           = "sign"
	ActionComplete       = "complete"
)

// SLA classification watermarks recorded on a step after notification fan-out.
const (
	SLAFlagNone     = "none"
	SLAFlagAtRisk   = "at_risk"
	SLAFlagBreached = "breached"
)

// WorkflowInstance is a running workflow started from a template against a
// subject document. The template's steps and SLA config are snapshotted into
// the instance at start time.
type WorkflowInstance struct {
	ID               string      `json:"id"`
	TemplateID       string      `json:"template_id"`
	TemplateName     string      `json:"template_name"`
	Steps            []StepSpec  `json:"steps"`
	SLA              SLAConfig   `json:"sla"`
	SubjectRef       string      `json:"subject_ref"`
	SubjectFileType  string      `json:"subject_file_type,omitempty"`
	Status           string      `json:"status"`
	CurrentStepIndex int         `json:"current_step_index"`
	Initiator        string      `json:"initiator"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	StepStates       []StepState `json:"step_states"`
	Version          int         `json:"version"`
}

// IsTerminal reports whether the instance has reached a terminal status.
func (w *WorkflowInstance) IsTerminal() bool {
	return w.Status != InstanceStatusActive
}

// StepStateByID returns the step state for the given spec ID, or nil.
func (w *WorkflowInstance) StepStateByID(stepID string) *StepState {
	for i := range w.StepStates {
		if w.StepStates[i].SpecID == stepID {
			return &w.StepStates[i]
		}
	}
	return nil
}

// SpecByID returns the snapshotted step spec for the given ID, or nil.
func (w *WorkflowInstance) SpecByID(stepID string) *StepSpec {
	for i := range w.Steps {
		if w.Steps[i].ID == stepID {
			return &w.Steps[i]
		}
	}
	return nil
}

// StepState is the instance-time runtime record of one step's progress.
type StepState struct {
	SpecID        string         `json:"spec_id"`
	Status        string         `json:"status"`
	Assignees     []string       `json:"assignees,omitempty"`
	Deadline      *time.Time     `json:"deadline,omitempty"`
	Decisions     []Decision     `json:"decisions,omitempty"`
	Reassignments []Reassignment `json:"reassignments,omitempty"`
	SLAFlag       string         `json:"sla_flag,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// HasAssignee reports whether userID is among the step's resolved assignees.
func (s *StepState) HasAssignee(userID string) bool {
	for _, a := range s.Assignees {
		if a == userID {
			return true
		}
	}
	return false
}

// ApprovalCount returns the number of distinct assignees that have recorded
// an approving decision.
func (s *StepState) ApprovalCount() int {
	seen := make(map[string]bool)
	for _, d := range s.Decisions {
		if d.Action != ActionReject {
			seen[d.UserID] = true
		}
	}
	return len(seen)
}

// Decision records one actor's action on a step.
type Decision struct {
	UserID   string         `json:"user_id"`
	Action   string         `json:"action"`
	Remarks  string         `json:"remarks,omitempty"`
	FormData map[string]any `json:"form_data,omitempty"`
	At       time.Time      `json:"at"`
}

// Reassignment is an audit entry recording an assignee change on a step.
type Reassignment struct {
	From    []string  `json:"from"`
	To      []string  `json:"to"`
	Reason  string    `json:"reason,omitempty"`
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

// InstanceSummary is a lightweight representation of a workflow instance
// used in list views.
type InstanceSummary struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"template_id"`
	TemplateName string    `json:"template_name"`
	SubjectRef   string    `json:"subject_ref"`
	Status       string    `json:"status"`
	CurrentStep  string    `json:"current_step,omitempty"`
	Initiator    string    `json:"initiator"`
	StartedAt    time.Time `json:"started_at"`
}

// InstanceFilters are optional filters for listing workflow instances.
type InstanceFilters struct {
	TemplateID string
	Status     string
	Initiator  string
	Page       int
	PageSize   int
}
