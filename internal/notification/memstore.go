package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docflowhq/docflow/model"
)

// MemoryStore is an in-memory Store for testing.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]model.Notification
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notifications: make(map[string]model.Notification)}
}

// Create persists a new notification.
func (s *MemoryStore) Create(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("notification %q already exists", n.ID))
	}
	s.notifications[n.ID] = n
	return nil
}

// List returns a recipient's notifications, newest first.
func (s *MemoryStore) List(_ context.Context, recipient string, filters model.NotificationFilters) ([]model.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Notification
	for _, n := range s.notifications {
		if n.Recipient != recipient {
			continue
		}
		if filters.Type != "" && n.Type != filters.Type {
			continue
		}
		if filters.Priority != "" && n.Priority != filters.Priority {
			continue
		}
		if filters.Unread && n.Read {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	total := len(result)
	return paginate(result, filters.Page, filters.PageSize), total, nil
}

// MarkRead marks one notification read.
func (s *MemoryStore) MarkRead(_ context.Context, recipient, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notifications[notificationID]
	if !exists || n.Recipient != recipient {
		return model.NewNotFoundError(fmt.Sprintf("notification %q not found", notificationID))
	}
	n.Read = true
	s.notifications[notificationID] = n
	return nil
}

// MarkAllRead marks every unread notification for the recipient read.
func (s *MemoryStore) MarkAllRead(_ context.Context, recipient string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for id, n := range s.notifications {
		if n.Recipient == recipient && !n.Read {
			n.Read = true
			s.notifications[id] = n
			changed++
		}
	}
	return changed, nil
}

// UnreadCount returns the recipient's unread notification count.
func (s *MemoryStore) UnreadCount(_ context.Context, recipient string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.Recipient == recipient && !n.Read {
			count++
		}
	}
	return count, nil
}

func paginate(items []model.Notification, page, pageSize int) []model.Notification {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
