// Package sla watches in-progress step deadlines: classifying steps as at
// risk or breached, fanning out warnings, and reassigning overdue work.
package sla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docflowhq/docflow/internal/instance"
	"github.com/docflowhq/docflow/model"
)

// Notifier receives SLA events.
type Notifier interface {
	SLAWarning(ctx context.Context, inst *model.WorkflowInstance, stepName string, assignees []string, deadline time.Time)
	SLABreach(ctx context.Context, inst *model.WorkflowInstance, stepName string, assignees []string, deadline time.Time)
	StepReassigned(ctx context.Context, inst *model.WorkflowInstance, stepName string, from, to []string, reason string)
}

// Metrics counts SLA events. Implementations must be safe for concurrent
// use; a nil Metrics disables counting.
type Metrics interface {
	SLAStepAtRisk()
	SLAStepBreached()
	SLAStepReassigned()
}

// Options tune the monitor.
type Options struct {
	// LeaseTTL bounds how long a sweep may hold the cross-replica lease.
	LeaseTTL time.Duration

	// ExtendDeadlineOnReassign recomputes the step deadline from the
	// reassignment time, using the step's configured deadline hours.
	ExtendDeadlineOnReassign bool

	// UpcomingWindow is how far ahead Upcoming looks for due steps.
	UpcomingWindow time.Duration
}

// StepAlert identifies one in-progress step relative to its deadline.
type StepAlert struct {
	InstanceID   string     `json:"instance_id"`
	TemplateID   string     `json:"template_id"`
	TemplateName string     `json:"template_name"`
	SubjectRef   string     `json:"subject_ref"`
	StepID       string     `json:"step_id"`
	StepName     string     `json:"step_name"`
	Assignees    []string   `json:"assignees"`
	Deadline     time.Time  `json:"deadline"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// ScanResult is the classification of every deadline-bearing in-progress
// step at one point in time.
type ScanResult struct {
	AtRisk   []StepAlert `json:"at_risk"`
	Breached []StepAlert `json:"breached"`
}

// Stats summarizes deadline health across all active instances.
type Stats struct {
	ActiveInstances int `json:"active_instances"`
	StepsInProgress int `json:"steps_in_progress"`
	StepsOnTrack    int `json:"steps_on_track"`
	StepsAtRisk     int `json:"steps_at_risk"`
	StepsBreached   int `json:"steps_breached"`
}

// Monitor is the background deadline watcher and the reassignment entry
// point.
type Monitor struct {
	store     instance.Store
	notifier  Notifier
	lease     Lease
	evaluator model.PermissionEvaluator
	metrics   Metrics
	logger    *zap.Logger
	opts      Options
}

// NewMonitor creates an SLA monitor.
func NewMonitor(
	store instance.Store,
	notifier Notifier,
	lease Lease,
	evaluator model.PermissionEvaluator,
	metrics Metrics,
	logger *zap.Logger,
	opts Options,
) *Monitor {
	return &Monitor{
		store:     store,
		notifier:  notifier,
		lease:     lease,
		evaluator: evaluator,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
	}
}

// Scan classifies every in-progress step of the given instances against now.
// Pure function of its inputs; repeated calls over unchanged state return
// the same result.
func Scan(instances []model.WorkflowInstance, now time.Time) ScanResult {
	var result ScanResult
	for i := range instances {
		inst := &instances[i]
		if inst.Status != model.InstanceStatusActive {
			continue
		}
		forEachDueStep(inst, func(spec *model.StepSpec, state *model.StepState) {
			alert := newAlert(inst, spec, state)
			switch classify(inst, state, now) {
			case model.SLAFlagBreached:
				result.Breached = append(result.Breached, alert)
			case model.SLAFlagAtRisk:
				result.AtRisk = append(result.AtRisk, alert)
			}
		})
	}
	return result
}

// Run sweeps on the given interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				m.logger.Error("sla sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep classifies every active instance, advances per-step SLA watermarks,
// sends warning and breach notifications exactly once per watermark level,
// and auto-reassigns breached steps where the template asks for it. Sweeps
// across replicas serialize through the lease.
func (m *Monitor) Sweep(ctx context.Context) error {
	acquired, err := m.lease.TryAcquire(ctx, m.opts.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !acquired {
		m.logger.Debug("sla sweep skipped, lease held elsewhere")
		return nil
	}
	defer func() {
		if err := m.lease.Release(ctx); err != nil {
			m.logger.Warn("release sweep lease", zap.Error(err))
		}
	}()

	instances, err := m.store.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("find active instances: %w", err)
	}

	now := time.Now().UTC()
	for i := range instances {
		if err := m.sweepInstance(ctx, &instances[i], now); err != nil {
			// Per-instance failures are retried on the next tick.
			m.logger.Error("sla sweep instance failed",
				zap.String("instance_id", instances[i].ID),
				zap.Error(err))
		}
	}
	return nil
}

func (m *Monitor) sweepInstance(ctx context.Context, inst *model.WorkflowInstance, now time.Time) error {
	changed := false

	forEachDueStep(inst, func(spec *model.StepSpec, state *model.StepState) {
		level := classify(inst, state, now)
		if !watermarkBelow(state.SLAFlag, level) {
			return
		}

		// Stamp the watermark before any reassignment: extending the
		// deadline resets the flag, and that reset must survive so the
		// new deadline is monitored.
		state.SLAFlag = level
		changed = true

		switch level {
		case model.SLAFlagAtRisk:
			m.notifier.SLAWarning(ctx, inst, spec.Name, state.Assignees, *state.Deadline)
			if m.metrics != nil {
				m.metrics.SLAStepAtRisk()
			}
		case model.SLAFlagBreached:
			m.notifier.SLABreach(ctx, inst, spec.Name, state.Assignees, *state.Deadline)
			if m.metrics != nil {
				m.metrics.SLAStepBreached()
			}
			if inst.SLA.AutoReassign && len(inst.SLA.BackupAssignees) > 0 {
				m.applyReassignment(ctx, inst, spec, state, inst.SLA.BackupAssignees, "deadline breached", "system", now)
			}
		}
	})

	if !changed {
		return nil
	}
	return m.store.Update(ctx, *inst)
}

// Reassign replaces an in-progress step's assignees, keeping an audit trail.
// Whether the deadline extends is an Options policy, not per call.
func (m *Monitor) Reassign(
	ctx context.Context,
	rctx *model.RequestContext,
	instanceID, stepID string,
	newAssignees []string,
	reason string,
) (model.WorkflowInstance, error) {
	if len(newAssignees) == 0 {
		return model.WorkflowInstance{}, model.NewValidationError([]model.FieldError{{
			Field:   "assignees",
			Code:    "required",
			Message: "at least one new assignee is required",
		}})
	}

	inst, err := m.store.Get(ctx, instanceID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	if inst.IsTerminal() {
		return model.WorkflowInstance{}, model.NewInvalidTransitionError(
			fmt.Sprintf("workflow instance %q is %s, cannot reassign", instanceID, inst.Status),
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

	perms, err := m.evaluator.EffectivePermissions(ctx, rctx, inst.TemplateID, model.PermissionContext{
		FileType:   inst.SubjectFileType,
		Department: rctx.Department,
	})
	if err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("resolve permissions: %w", err)
	}
	if !perms.Has(model.PermReassign) {
		return model.WorkflowInstance{}, model.NewForbiddenError(
			fmt.Sprintf("user %q may not reassign steps on template %q", rctx.SubjectID, inst.TemplateID),
		)
	}

	now := time.Now().UTC()
	m.applyReassignment(ctx, &inst, spec, state, newAssignees, reason, rctx.SubjectID, now)

	if err := m.store.Update(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}
	inst.Version++
	return inst, nil
}

// applyReassignment mutates the step in place and notifies both sides. The
// caller persists.
func (m *Monitor) applyReassignment(
	ctx context.Context,
	inst *model.WorkflowInstance,
	spec *model.StepSpec,
	state *model.StepState,
	newAssignees []string,
	reason, actorID string,
	now time.Time,
) {
	previous := state.Assignees
	state.Reassignments = append(state.Reassignments, model.Reassignment{
		From:    previous,
		To:      newAssignees,
		Reason:  reason,
		ActorID: actorID,
		At:      now,
	})
	state.Assignees = newAssignees

	if m.opts.ExtendDeadlineOnReassign && spec.DeadlineHours > 0 {
		deadline := now.Add(time.Duration(spec.DeadlineHours) * time.Hour)
		state.Deadline = &deadline
		// A fresh deadline means fresh warnings.
		state.SLAFlag = model.SLAFlagNone
	}

	m.notifier.StepReassigned(ctx, inst, spec.Name, previous, newAssignees, reason)
	if m.metrics != nil {
		m.metrics.SLAStepReassigned()
	}
}

// Overdue returns every breached in-progress step.
func (m *Monitor) Overdue(ctx context.Context) ([]StepAlert, error) {
	instances, err := m.store.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	return Scan(instances, time.Now().UTC()).Breached, nil
}

// Upcoming returns in-progress steps due within the configured window,
// breached steps excluded.
func (m *Monitor) Upcoming(ctx context.Context) ([]StepAlert, error) {
	instances, err := m.store.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	horizon := now.Add(m.opts.UpcomingWindow)
	var due []StepAlert
	for i := range instances {
		inst := &instances[i]
		forEachDueStep(inst, func(spec *model.StepSpec, state *model.StepState) {
			if state.Deadline.After(now) && !state.Deadline.After(horizon) {
				due = append(due, newAlert(inst, spec, state))
			}
		})
	}
	return due, nil
}

// Stats summarizes deadline health across active instances.
func (m *Monitor) Stats(ctx context.Context) (Stats, error) {
	instances, err := m.store.FindActive(ctx)
	if err != nil {
		return Stats{}, err
	}

	now := time.Now().UTC()
	stats := Stats{ActiveInstances: len(instances)}
	for i := range instances {
		inst := &instances[i]
		for j := range inst.StepStates {
			state := &inst.StepStates[j]
			if state.Status != model.StepStatusInProgress {
				continue
			}
			stats.StepsInProgress++
			switch classify(inst, state, now) {
			case model.SLAFlagBreached:
				stats.StepsBreached++
			case model.SLAFlagAtRisk:
				stats.StepsAtRisk++
			default:
				stats.StepsOnTrack++
			}
		}
	}
	return stats, nil
}

// classify returns the SLA level of one in-progress step at the given time.
func classify(inst *model.WorkflowInstance, state *model.StepState, now time.Time) string {
	if state.Deadline == nil {
		return model.SLAFlagNone
	}
	if !now.Before(*state.Deadline) {
		return model.SLAFlagBreached
	}
	if inst.SLA.WarningThresholdHours > 0 {
		warnAt := state.Deadline.Add(-time.Duration(inst.SLA.WarningThresholdHours) * time.Hour)
		if !now.Before(warnAt) {
			return model.SLAFlagAtRisk
		}
	}
	return model.SLAFlagNone
}

// watermarkBelow reports whether the recorded flag is lower than the level,
// meaning the level has not been notified yet. Watermarks never move down.
func watermarkBelow(flag, level string) bool {
	rank := map[string]int{model.SLAFlagNone: 0, model.SLAFlagAtRisk: 1, model.SLAFlagBreached: 2}
	return rank[flag] < rank[level]
}

// forEachDueStep visits every in-progress step that carries a deadline.
func forEachDueStep(inst *model.WorkflowInstance, fn func(spec *model.StepSpec, state *model.StepState)) {
	for i := range inst.StepStates {
		state := &inst.StepStates[i]
		if state.Status != model.StepStatusInProgress || state.Deadline == nil {
			continue
		}
		spec := inst.SpecByID(state.SpecID)
		if spec == nil {
			continue
		}
		fn(spec, state)
	}
}

func newAlert(inst *model.WorkflowInstance, spec *model.StepSpec, state *model.StepState) StepAlert {
	return StepAlert{
		InstanceID:   inst.ID,
		TemplateID:   inst.TemplateID,
		TemplateName: inst.TemplateName,
		SubjectRef:   inst.SubjectRef,
		StepID:       spec.ID,
		StepName:     spec.Name,
		Assignees:    state.Assignees,
		Deadline:     *state.Deadline,
		StartedAt:    state.StartedAt,
	}
}
