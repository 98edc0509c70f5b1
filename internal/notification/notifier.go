package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docflowhq/docflow/model"
)

// Metrics counts delivered notifications. A nil Metrics disables counting.
type Metrics interface {
	NotificationCreated(notifType string)
}

// Notifier fans workflow events out as notifications. Delivery is best
// effort: a failed write is logged and never fails the workflow operation
// that triggered it.
type Notifier struct {
	store   Store
	logger  *zap.Logger
	metrics Metrics
}

// NewNotifier creates a notifier backed by the given store.
func NewNotifier(store Store, logger *zap.Logger) *Notifier {
	return &Notifier{store: store, logger: logger}
}

// SetMetrics attaches delivery counters. Must be called before the notifier
// is shared across goroutines.
func (n *Notifier) SetMetrics(m Metrics) {
	n.metrics = m
}

// StepAssigned notifies each assignee of a newly activated step.
func (n *Notifier) StepAssigned(ctx context.Context, inst *model.WorkflowInstance, stepName string, assignees []string) {
	n.fanOut(ctx, assignees, model.Notification{
		Type:      model.NotifyStepAssigned,
		Priority:  model.PriorityNormal,
		Title:     fmt.Sprintf("Step %q assigned to you", stepName),
		Body:      fmt.Sprintf("Workflow %q is waiting on step %q.", inst.TemplateName, stepName),
		ActionURL: "/workflows/" + inst.ID,
	})
}

// SLAWarning notifies assignees that a step is approaching its deadline.
func (n *Notifier) SLAWarning(ctx context.Context, inst *model.WorkflowInstance, stepName string, assignees []string, deadline time.Time) {
	n.fanOut(ctx, assignees, model.Notification{
		Type:      model.NotifySLAWarning,
		Priority:  model.PriorityHigh,
		Title:     fmt.Sprintf("Step %q is due soon", stepName),
		Body:      fmt.Sprintf("Step %q of workflow %q is due at %s.", stepName, inst.TemplateName, deadline.Format(time.RFC3339)),
		ActionURL: "/workflows/" + inst.ID,
	})
}

// SLABreach notifies assignees that a step has passed its deadline.
func (n *Notifier) SLABreach(ctx context.Context, inst *model.WorkflowInstance, stepName string, assignees []string, deadline time.Time) {
	n.fanOut(ctx, assignees, model.Notification{
		Type:      model.NotifySLABreach,
		Priority:  model.PriorityUrgent,
		Title:     fmt.Sprintf("Step %q is overdue", stepName),
		Body:      fmt.Sprintf("Step %q of workflow %q was due at %s.", stepName, inst.TemplateName, deadline.Format(time.RFC3339)),
		ActionURL: "/workflows/" + inst.ID,
	})
}

// StepReassigned notifies the new assignees and the previous ones.
func (n *Notifier) StepReassigned(ctx context.Context, inst *model.WorkflowInstance, stepName string, from, to []string, reason string) {
	body := fmt.Sprintf("Step %q of workflow %q has new assignees.", stepName, inst.TemplateName)
	if reason != "" {
		body += " Reason: " + reason
	}
	n.fanOut(ctx, to, model.Notification{
		Type:      model.NotifyStepReassigned,
		Priority:  model.PriorityHigh,
		Title:     fmt.Sprintf("Step %q reassigned to you", stepName),
		Body:      body,
		ActionURL: "/workflows/" + inst.ID,
	})
	n.fanOut(ctx, from, model.Notification{
		Type:      model.NotifyStepReassigned,
		Priority:  model.PriorityNormal,
		Title:     fmt.Sprintf("Step %q reassigned away from you", stepName),
		Body:      body,
		ActionURL: "/workflows/" + inst.ID,
	})
}

// InstanceFinished notifies the initiator that an instance reached a terminal
// status.
func (n *Notifier) InstanceFinished(ctx context.Context, inst *model.WorkflowInstance) {
	var notifType, title string
	priority := model.PriorityNormal
	switch inst.Status {
	case model.InstanceStatusCompleted:
		notifType = model.NotifyInstanceCompleted
		title = fmt.Sprintf("Workflow %q completed", inst.TemplateName)
	case model.InstanceStatusRejected:
		notifType = model.NotifyInstanceRejected
		title = fmt.Sprintf("Workflow %q was rejected", inst.TemplateName)
		priority = model.PriorityHigh
	case model.InstanceStatusCancelled:
		notifType = model.NotifyInstanceCancelled
		title = fmt.Sprintf("Workflow %q was cancelled", inst.TemplateName)
	default:
		n.logger.Warn("instance finished notification for non-terminal status",
			zap.String("instance_id", inst.ID),
			zap.String("status", inst.Status))
		return
	}
	n.fanOut(ctx, []string{inst.Initiator}, model.Notification{
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		ActionURL: "/workflows/" + inst.ID,
	})
}

func (n *Notifier) fanOut(ctx context.Context, recipients []string, template model.Notification) {
	now := time.Now().UTC()
	for _, recipient := range recipients {
		notif := template
		notif.ID = uuid.NewString()
		notif.Recipient = recipient
		notif.CreatedAt = now
		if err := n.store.Create(ctx, notif); err != nil {
			n.logger.Error("notification delivery failed",
				zap.String("recipient", recipient),
				zap.String("type", notif.Type),
				zap.Error(err))
			continue
		}
		if n.metrics != nil {
			n.metrics.NotificationCreated(notif.Type)
		}
	}
}
