package model

import "time"

// Notification types.
const (
	NotifyStepAssigned      = "step_assigned"
	NotifySLAWarning        = "sla_warning"
	NotifySLABreach         = "sla_breach"
	NotifyStepReassigned    = "step_reassigned"
	NotifyInstanceCompleted = "instance_completed"
	NotifyInstanceRejected  = "instance_rejected"
	NotifyInstanceCancelled = "instance_cancelled"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification is an append-only message for a user. Only the read flag
// mutates after creation.
type Notification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	ActionURL string    `json:"action_url,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationFilters are optional filters for listing notifications.
type NotificationFilters struct {
	Type     string
	Priority string
	Unread   bool
	Page     int
	PageSize int
}
