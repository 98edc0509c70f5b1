package notification

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/docflowhq/docflow/model"
)

func seedNotification(t *testing.T, s Store, id, recipient, notifType, priority string, read bool, at time.Time) {
	t.Helper()
	err := s.Create(context.Background(), model.Notification{
		ID:        id,
		Recipient: recipient,
		Type:      notifType,
		Priority:  priority,
		Title:     "t",
		Read:      read,
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestMemoryStore_ListFiltersAndOrder(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	seedNotification(t, s, "n1", "alice", model.NotifyStepAssigned, model.PriorityNormal, false, base)
	seedNotification(t, s, "n2", "alice", model.NotifySLAWarning, model.PriorityHigh, true, base.Add(time.Hour))
	seedNotification(t, s, "n3", "alice", model.NotifySLABreach, model.PriorityUrgent, false, base.Add(2*time.Hour))
	seedNotification(t, s, "n4", "bob", model.NotifyStepAssigned, model.PriorityNormal, false, base)

	all, total, err := s.List(context.Background(), "alice", model.NotificationFilters{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("List() = %d items, total %d, want 3 and 3", len(all), total)
	}
	if all[0].ID != "n3" || all[2].ID != "n1" {
		t.Errorf("List() order = %s..%s, want newest first", all[0].ID, all[2].ID)
	}

	unread, total, _ := s.List(context.Background(), "alice", model.NotificationFilters{Unread: true})
	if total != 2 || len(unread) != 2 {
		t.Errorf("Unread filter: got %d items, total %d, want 2 and 2", len(unread), total)
	}

	byType, _, _ := s.List(context.Background(), "alice", model.NotificationFilters{Type: model.NotifySLAWarning})
	if len(byType) != 1 || byType[0].ID != "n2" {
		t.Errorf("Type filter returned %v, want [n2]", byType)
	}

	byPriority, _, _ := s.List(context.Background(), "alice", model.NotificationFilters{Priority: model.PriorityUrgent})
	if len(byPriority) != 1 || byPriority[0].ID != "n3" {
		t.Errorf("Priority filter returned %v, want [n3]", byPriority)
	}
}

func TestMemoryStore_Pagination(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedNotification(t, s, string(rune('a'+i)), "alice", model.NotifyStepAssigned, model.PriorityNormal, false, base.Add(time.Duration(i)*time.Minute))
	}

	page, total, err := s.List(context.Background(), "alice", model.NotificationFilters{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}

	past, _, _ := s.List(context.Background(), "alice", model.NotificationFilters{Page: 4, PageSize: 2})
	if len(past) != 0 {
		t.Errorf("page past the end should be empty, got %d", len(past))
	}
}

func TestMemoryStore_MarkRead(t *testing.T) {
	s := NewMemoryStore()
	seedNotification(t, s, "n1", "alice", model.NotifyStepAssigned, model.PriorityNormal, false, time.Now().UTC())

	if err := s.MarkRead(context.Background(), "bob", "n1"); model.CodeOf(err) != model.ErrNotFound {
		t.Errorf("MarkRead() for wrong recipient error = %v, want NOT_FOUND", err)
	}
	if err := s.MarkRead(context.Background(), "alice", "n1"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	count, _ := s.UnreadCount(context.Background(), "alice")
	if count != 0 {
		t.Errorf("UnreadCount() = %d after MarkRead, want 0", count)
	}
}

func TestMemoryStore_MarkAllRead(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	seedNotification(t, s, "n1", "alice", model.NotifyStepAssigned, model.PriorityNormal, false, now)
	seedNotification(t, s, "n2", "alice", model.NotifySLAWarning, model.PriorityHigh, false, now)
	seedNotification(t, s, "n3", "alice", model.NotifySLABreach, model.PriorityUrgent, true, now)
	seedNotification(t, s, "n4", "bob", model.NotifyStepAssigned, model.PriorityNormal, false, now)

	changed, err := s.MarkAllRead(context.Background(), "alice")
	if err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	if changed != 2 {
		t.Errorf("MarkAllRead() changed %d, want 2", changed)
	}

	bobCount, _ := s.UnreadCount(context.Background(), "bob")
	if bobCount != 1 {
		t.Errorf("bob's unread count = %d, want 1 (untouched)", bobCount)
	}
}

func testInstance(status string) *model.WorkflowInstance {
	return &model.WorkflowInstance{
		ID:           "wf-1",
		TemplateName: "Invoice Approval",
		Initiator:    "alice",
		Status:       status,
	}
}

func TestNotifier_StepAssigned(t *testing.T) {
	s := NewMemoryStore()
	n := NewNotifier(s, zap.NewNop())

	n.StepAssigned(context.Background(), testInstance(model.InstanceStatusActive), "Manager Approval", []string{"bob", "carol"})

	for _, recipient := range []string{"bob", "carol"} {
		list, _, _ := s.List(context.Background(), recipient, model.NotificationFilters{})
		if len(list) != 1 {
			t.Fatalf("%s has %d notifications, want 1", recipient, len(list))
		}
		got := list[0]
		if got.Type != model.NotifyStepAssigned {
			t.Errorf("type = %q, want step_assigned", got.Type)
		}
		if got.ActionURL != "/workflows/wf-1" {
			t.Errorf("action_url = %q", got.ActionURL)
		}
		if got.Read {
			t.Error("new notification should be unread")
		}
	}
}

func TestNotifier_InstanceFinished(t *testing.T) {
	cases := []struct {
		status   string
		wantType string
	}{
		{model.InstanceStatusCompleted, model.NotifyInstanceCompleted},
		{model.InstanceStatusRejected, model.NotifyInstanceRejected},
		{model.InstanceStatusCancelled, model.NotifyInstanceCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			s := NewMemoryStore()
			n := NewNotifier(s, zap.NewNop())

			n.InstanceFinished(context.Background(), testInstance(tc.status))

			list, _, _ := s.List(context.Background(), "alice", model.NotificationFilters{})
			if len(list) != 1 {
				t.Fatalf("initiator has %d notifications, want 1", len(list))
			}
			if list[0].Type != tc.wantType {
				t.Errorf("type = %q, want %q", list[0].Type, tc.wantType)
			}
		})
	}
}

func TestNotifier_InstanceFinished_ActiveIsNoop(t *testing.T) {
	s := NewMemoryStore()
	n := NewNotifier(s, zap.NewNop())

	n.InstanceFinished(context.Background(), testInstance(model.InstanceStatusActive))

	list, _, _ := s.List(context.Background(), "alice", model.NotificationFilters{})
	if len(list) != 0 {
		t.Errorf("active instance should produce no notifications, got %d", len(list))
	}
}

func TestNotifier_StepReassigned(t *testing.T) {
	s := NewMemoryStore()
	n := NewNotifier(s, zap.NewNop())

	n.StepReassigned(context.Background(), testInstance(model.InstanceStatusActive), "Review", []string{"bob"}, []string{"carol"}, "overdue")

	toList, _, _ := s.List(context.Background(), "carol", model.NotificationFilters{})
	if len(toList) != 1 || toList[0].Priority != model.PriorityHigh {
		t.Errorf("new assignee should get one high-priority notification, got %v", toList)
	}
	fromList, _, _ := s.List(context.Background(), "bob", model.NotificationFilters{})
	if len(fromList) != 1 || fromList[0].Priority != model.PriorityNormal {
		t.Errorf("previous assignee should get one normal-priority notification, got %v", fromList)
	}
}
