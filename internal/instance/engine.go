package instance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docflowhq/docflow/internal/assignment"
	"github.com/docflowhq/docflow/internal/schema"
	"github.com/docflowhq/docflow/model"
)

// TemplateLookup loads templates when instances start.
type TemplateLookup interface {
	Get(ctx context.Context, templateID string) (model.WorkflowTemplate, error)
}

// AssigneeResolver resolves a step's assignment rule to user IDs.
type AssigneeResolver interface {
	Resolve(ctx context.Context, rule model.AssignmentRule, actx assignment.Context) ([]string, error)
}

// Notifier receives workflow lifecycle events. Implementations must be best
// effort; the engine never checks for delivery failure.
type Notifier interface {
	StepAssigned(ctx context.Context, inst *model.WorkflowInstance, stepName string, assignees []string)
	InstanceFinished(ctx context.Context, inst *model.WorkflowInstance)
}

// Engine manages the lifecycle of workflow instances.
type Engine struct {
	templates TemplateLookup
	store     Store
	resolver  AssigneeResolver
	evaluator model.PermissionEvaluator
	notifier  Notifier
}

// NewEngine creates a new workflow instance engine.
func NewEngine(
	templates TemplateLookup,
	store Store,
	resolver AssigneeResolver,
	evaluator model.PermissionEvaluator,
	notifier Notifier,
) *Engine {
	return &Engine{
		templates: templates,
		store:     store,
		resolver:  resolver,
		evaluator: evaluator,
		notifier:  notifier,
	}
}

// activation records a step that became in_progress during an operation, so
// notifications go out only after the instance persists.
type activation struct {
	stepName  string
	assignees []string
}

// Start creates a workflow instance from a template and activates its
// initial step or steps. The template's steps and SLA config are snapshotted
// into the instance so later template edits never affect it.
func (e *Engine) Start(
	ctx context.Context,
	rctx *model.RequestContext,
	templateID, subjectRef, fileType string,
) (model.WorkflowInstance, error) {
	tmpl, err := e.templates.Get(ctx, templateID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	if !tmpl.Active {
		return model.WorkflowInstance{}, model.NewTemplateInactiveError(templateID)
	}
	if !tmpl.AllowsFileType(fileType) {
		return model.WorkflowInstance{}, model.NewValidationError([]model.FieldError{{
			Field:   "subject_file_type",
			Code:    "invalid",
			Message: fmt.Sprintf("template %q does not accept file type %q", templateID, fileType),
		}})
	}

	perms, err := e.evaluator.EffectivePermissions(ctx, rctx, templateID, model.PermissionContext{
		FileType:   fileType,
		Department: rctx.Department,
	})
	if err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("resolve permissions: %w", err)
	}
	if !perms.Has(model.PermStart) {
		return model.WorkflowInstance{}, model.NewForbiddenError(
			fmt.Sprintf("user %q may not start workflows from template %q", rctx.SubjectID, templateID),
		)
	}

	now := time.Now().UTC()
	inst := model.WorkflowInstance{
		ID:              uuid.NewString(),
		TemplateID:      tmpl.ID,
		TemplateName:    tmpl.Name,
		Steps:           tmpl.Steps,
		SLA:             tmpl.SLA,
		SubjectRef:      subjectRef,
		SubjectFileType: fileType,
		Status:          model.InstanceStatusActive,
		Initiator:       rctx.SubjectID,
		StartedAt:       now,
		StepStates:      make([]model.StepState, len(tmpl.Steps)),
		Version:         1,
	}
	for i, spec := range tmpl.Steps {
		inst.StepStates[i] = model.StepState{
			SpecID:  spec.ID,
			Status:  model.StepStatusPending,
			SLAFlag: model.SLAFlagNone,
		}
	}

	activations, err := e.activateReady(ctx, &inst, now)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	if err := e.store.Create(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}
	e.notifyActivations(ctx, &inst, activations)
	return inst, nil
}

// Process records an actor's decision on an in-progress step and advances the
// instance. Concurrent decisions on the same instance serialize through the
// store's version check; the losing call returns CONFLICT and the state it
// read is discarded unwritten.
func (e *Engine) Process(
	ctx context.Context,
	rctx *model.RequestContext,
	instanceID, stepID, action, remarks string,
	formData map[string]any,
) (model.WorkflowInstance, error) {
	inst, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	if inst.IsTerminal() {
		return model.WorkflowInstance{}, model.NewInvalidTransitionError(
			fmt.Sprintf("workflow instance %q is %s, no further actions are possible", instanceID, inst.Status),
		)
	}

	spec := inst.SpecByID(stepID)
	state := inst.StepStateByID(stepID)
	if spec == nil || state == nil {
		return model.WorkflowInstance{}, model.NewNotFoundError(
			fmt.Sprintf("step %q not found in workflow instance %q", stepID, instanceID),
		)
	}
	if state.Status != model.StepStatusInProgress {
		return model.WorkflowInstance{}, model.NewStepNotActiveError(stepID, state.Status)
	}

	if err := e.authorizeDecision(ctx, rctx, &inst, state); err != nil {
		return model.WorkflowInstance{}, err
	}
	if err := validateAction(spec, action); err != nil {
		return model.WorkflowInstance{}, err
	}
	if len(spec.FormSchema) > 0 {
		if err := schema.ValidateForm(spec.FormSchema, formData); err != nil {
			return model.WorkflowInstance{}, err
		}
	}
	for _, d := range state.Decisions {
		if d.UserID == rctx.SubjectID {
			return model.WorkflowInstance{}, model.NewConflictError(
				fmt.Sprintf("user %q has already decided on step %q", rctx.SubjectID, stepID),
			)
		}
	}

	now := time.Now().UTC()
	state.Decisions = append(state.Decisions, model.Decision{
		UserID:   rctx.SubjectID,
		Action:   action,
		Remarks:  remarks,
		FormData: formData,
		At:       now,
	})

	var activations []activation
	switch {
	case action == model.ActionReject:
		// A single reject is terminal for the whole instance. Later steps
		// stay pending, never activated.
		state.Status = model.StepStatusRejected
		state.CompletedAt = &now
		inst.Status = model.InstanceStatusRejected
		inst.CompletedAt = &now

	case spec.Parallel && spec.RequiredApprovals > 1 && state.ApprovalCount() < spec.RequiredApprovals:
		// Quorum not yet reached; the step stays in progress.

	default:
		state.Status = model.StepStatusCompleted
		state.CompletedAt = &now
		activations, err = e.advance(ctx, &inst, now)
		if err != nil {
			return model.WorkflowInstance{}, err
		}
	}

	if err := e.store.Update(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}
	inst.Version++

	e.notifyActivations(ctx, &inst, activations)
	if inst.IsTerminal() {
		e.notifier.InstanceFinished(ctx, &inst)
	}
	return inst, nil
}

// Cancel cancels an active workflow instance. Pending steps are left as they
// are; cancellation is a statement about the instance, not its steps.
func (e *Engine) Cancel(
	ctx context.Context,
	rctx *model.RequestContext,
	instanceID, reason string,
) (model.WorkflowInstance, error) {
	inst, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	if inst.Status != model.InstanceStatusActive {
		return model.WorkflowInstance{}, model.NewInvalidTransitionError(
			fmt.Sprintf("workflow instance %q is %s, cannot cancel", instanceID, inst.Status),
		)
	}

	if inst.Initiator != rctx.SubjectID {
		perms, err := e.evaluator.EffectivePermissions(ctx, rctx, inst.TemplateID, model.PermissionContext{
			FileType:   inst.SubjectFileType,
			Department: rctx.Department,
		})
		if err != nil {
			return model.WorkflowInstance{}, fmt.Errorf("resolve permissions: %w", err)
		}
		if !perms.Has(model.PermCancel) {
			return model.WorkflowInstance{}, model.NewForbiddenError(
				fmt.Sprintf("user %q may not cancel workflow instance %q", rctx.SubjectID, instanceID),
			)
		}
	}

	now := time.Now().UTC()
	inst.Status = model.InstanceStatusCancelled
	inst.CompletedAt = &now

	if err := e.store.Update(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}
	inst.Version++

	e.notifier.InstanceFinished(ctx, &inst)
	return inst, nil
}

// Get returns one workflow instance.
func (e *Engine) Get(ctx context.Context, instanceID string) (model.WorkflowInstance, error) {
	return e.store.Get(ctx, instanceID)
}

// List returns instance summaries matching the filters.
func (e *Engine) List(ctx context.Context, filters model.InstanceFilters) ([]model.InstanceSummary, int, error) {
	instances, total, err := e.store.List(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.InstanceSummary, 0, len(instances))
	for _, inst := range instances {
		summary := model.InstanceSummary{
			ID:           inst.ID,
			TemplateID:   inst.TemplateID,
			TemplateName: inst.TemplateName,
			SubjectRef:   inst.SubjectRef,
			Status:       inst.Status,
			Initiator:    inst.Initiator,
			StartedAt:    inst.StartedAt,
		}
		if inst.Status == model.InstanceStatusActive && inst.CurrentStepIndex < len(inst.Steps) {
			summary.CurrentStep = inst.Steps[inst.CurrentStepIndex].Name
		}
		summaries = append(summaries, summary)
	}
	return summaries, total, nil
}

// authorizeDecision checks that the actor is a resolved assignee of the step,
// or holds the manage permission on the template as an override path.
func (e *Engine) authorizeDecision(ctx context.Context, rctx *model.RequestContext, inst *model.WorkflowInstance, state *model.StepState) error {
	if state.HasAssignee(rctx.SubjectID) {
		return nil
	}
	perms, err := e.evaluator.EffectivePermissions(ctx, rctx, inst.TemplateID, model.PermissionContext{
		FileType:   inst.SubjectFileType,
		Department: rctx.Department,
	})
	if err != nil {
		return fmt.Errorf("resolve permissions: %w", err)
	}
	if !perms.Has(model.PermManage) {
		return model.NewNotAssigneeError(rctx.SubjectID, state.SpecID)
	}
	return nil
}

// advance activates whatever steps became ready, and completes the instance
// when no step remains to run. Assignees are resolved now, at activation
// time, because role and department rosters drift.
func (e *Engine) advance(ctx context.Context, inst *model.WorkflowInstance, now time.Time) ([]activation, error) {
	activations, err := e.activateReady(ctx, inst, now)
	if err != nil {
		return nil, err
	}

	if allSettled(inst) {
		inst.Status = model.InstanceStatusCompleted
		inst.CompletedAt = &now
	}
	return activations, nil
}

// activateReady activates the runnable steps. With dependencies declared,
// every pending step whose dependencies are all settled activates; otherwise
// steps run strictly in list order, one at a time.
func (e *Engine) activateReady(ctx context.Context, inst *model.WorkflowInstance, now time.Time) ([]activation, error) {
	var activations []activation

	if hasDependencies(inst.Steps) {
		for i := range inst.Steps {
			spec := &inst.Steps[i]
			state := inst.StepStateByID(spec.ID)
			if state.Status != model.StepStatusPending || !dependenciesSettled(inst, spec) {
				continue
			}
			a, err := e.activateStep(ctx, inst, spec, state, now)
			if err != nil {
				return nil, err
			}
			activations = append(activations, a)
		}
		return activations, nil
	}

	for i := range inst.Steps {
		state := &inst.StepStates[i]
		switch state.Status {
		case model.StepStatusInProgress:
			inst.CurrentStepIndex = i
			return activations, nil
		case model.StepStatusPending:
			a, err := e.activateStep(ctx, inst, &inst.Steps[i], state, now)
			if err != nil {
				return nil, err
			}
			inst.CurrentStepIndex = i
			return append(activations, a), nil
		}
	}
	return activations, nil
}

// activateStep resolves assignees and computes the step's absolute deadline
// from its activation time.
func (e *Engine) activateStep(ctx context.Context, inst *model.WorkflowInstance, spec *model.StepSpec, state *model.StepState, now time.Time) (activation, error) {
	assignees, err := e.resolver.Resolve(ctx, spec.Assignment, assignment.Context{
		Instance:  inst,
		Initiator: inst.Initiator,
	})
	if err != nil {
		return activation{}, fmt.Errorf("activate step %q: %w", spec.ID, err)
	}

	state.Status = model.StepStatusInProgress
	state.Assignees = assignees
	state.StartedAt = &now
	state.SLAFlag = model.SLAFlagNone
	if spec.DeadlineHours > 0 {
		deadline := now.Add(time.Duration(spec.DeadlineHours) * time.Hour)
		state.Deadline = &deadline
	}
	return activation{stepName: spec.Name, assignees: assignees}, nil
}

func (e *Engine) notifyActivations(ctx context.Context, inst *model.WorkflowInstance, activations []activation) {
	for _, a := range activations {
		e.notifier.StepAssigned(ctx, inst, a.stepName, a.assignees)
	}
}

// completingActions maps each step type to the action that completes it.
// Reject is legal on any step type and is handled separately.
var completingActions = map[string]string{
	model.StepTypeApproval:     model.ActionApprove,
	model.StepTypeReview:       model.ActionReviewComplete,
	model.StepTypeSign:         model.ActionSign,
	model.StepTypeTask:         model.ActionComplete,
	model.StepTypeAction:       model.ActionComplete,
	model.StepTypeNotification: model.ActionComplete,
	model.StepTypeRoute:        model.ActionComplete,
	model.StepTypeCondition:    model.ActionComplete,
}

func validateAction(spec *model.StepSpec, action string) error {
	if action == model.ActionReject {
		return nil
	}
	if want := completingActions[spec.Type]; action != want {
		return model.NewValidationError([]model.FieldError{{
			Field:   "action",
			Code:    "invalid",
			Message: fmt.Sprintf("action %q is not valid for a %s step (expected %q or %q)", action, spec.Type, want, model.ActionReject),
		}})
	}
	return nil
}

func hasDependencies(steps []model.StepSpec) bool {
	for i := range steps {
		if len(steps[i].DependsOn) > 0 {
			return true
		}
	}
	return false
}

func dependenciesSettled(inst *model.WorkflowInstance, spec *model.StepSpec) bool {
	for _, dep := range spec.DependsOn {
		state := inst.StepStateByID(dep)
		if state == nil {
			return false
		}
		if state.Status != model.StepStatusCompleted && state.Status != model.StepStatusSkipped {
			return false
		}
	}
	return true
}

func allSettled(inst *model.WorkflowInstance) bool {
	for i := range inst.StepStates {
		switch inst.StepStates[i].Status {
		case model.StepStatusCompleted, model.StepStatusSkipped:
		default:
			return false
		}
	}
	return true
}
