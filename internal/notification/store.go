// Package notification persists and delivers in-app workflow notifications.
package notification

import (
	"context"

	"github.com/docflowhq/docflow/model"
)

// Store persists notifications. Notifications are append-only; the only
// mutation is marking them read.
type Store interface {
	// Create persists a new notification.
	Create(ctx context.Context, n model.Notification) error

	// List returns a recipient's notifications, newest first, with the total
	// count before pagination.
	List(ctx context.Context, recipient string, filters model.NotificationFilters) ([]model.Notification, int, error)

	// MarkRead marks one notification read. Returns NOT_FOUND if the ID does
	// not exist or belongs to another recipient.
	MarkRead(ctx context.Context, recipient, notificationID string) error

	// MarkAllRead marks every unread notification for the recipient read and
	// returns how many changed.
	MarkAllRead(ctx context.Context, recipient string) (int, error)

	// UnreadCount returns the recipient's unread notification count.
	UnreadCount(ctx context.Context, recipient string) (int, error)
}
