package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docflowhq/docflow/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL notification store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create persists a new notification.
func (s *PgStore) Create(ctx context.Context, n model.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, recipient, type, priority, title, body, action_url, read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.Recipient, n.Type, n.Priority, n.Title, n.Body, n.ActionURL, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns a recipient's notifications, newest first, with the total
// count before pagination.
func (s *PgStore) List(ctx context.Context, recipient string, filters model.NotificationFilters) ([]model.Notification, int, error) {
	where := []string{"recipient = $1"}
	args := []any{recipient}

	if filters.Type != "" {
		args = append(args, filters.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filters.Priority != "" {
		args = append(args, filters.Priority)
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filters.Unread {
		where = append(where, "read = false")
	}
	clause := strings.Join(where, " AND ")

	var total int
	err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM notifications WHERE "+clause, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	query := `
		SELECT id, recipient, type, priority, title, body, action_url, read, created_at
		FROM notifications WHERE ` + clause + ` ORDER BY created_at DESC, id ASC`
	if filters.PageSize > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filters.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, (page-1)*filters.PageSize)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		err := rows.Scan(&n.ID, &n.Recipient, &n.Type, &n.Priority, &n.Title, &n.Body, &n.ActionURL, &n.Read, &n.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, total, rows.Err()
}

// MarkRead marks one notification read.
func (s *PgStore) MarkRead(ctx context.Context, recipient, notificationID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND recipient = $2`,
		notificationID, recipient,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("notification %q not found", notificationID))
	}
	return nil
}

// MarkAllRead marks every unread notification for the recipient read.
func (s *PgStore) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE recipient = $1 AND read = false`,
		recipient,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UnreadCount returns the recipient's unread notification count.
func (s *PgStore) UnreadCount(ctx context.Context, recipient string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE recipient = $1 AND read = false`,
		recipient,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
