package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewNotificationService(env.facade, zerolog.Nop())

	var ids []string
	for _, title := range []string{"Assignment reviewed", "New message"} {
		n, err := svc.Create(ctx, &models.Notification{UserID: student.ID, Title: title, Kind: models.KindReview})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, n.ID)
	}
	if _, err := svc.Create(ctx, &models.Notification{UserID: other.ID, Title: "x", Kind: models.KindMessage}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, &models.Notification{UserID: student.ID, Title: "bad", Kind: "spam"}); !models.IsValidation(err) {
		t.Errorf("Create() with unknown kind error = %v", err)
	}

	list, err := svc.List(ctx, student, student.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("List() = %+v, %v", list, err)
	}
	if n, _ := svc.Unread(ctx, student, student.ID); n != 2 {
		t.Errorf("Unread() = %d, want 2", n)
	}

	if err := svc.MarkRead(ctx, other, ids[0]); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("MarkRead() by other user error = %v", err)
	}
	if err := svc.MarkRead(ctx, student, ids[0]); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if n, _ := svc.Unread(ctx, student, student.ID); n != 1 {
		t.Errorf("Unread() after MarkRead = %d, want 1", n)
	}

	marked, err := svc.MarkAllRead(ctx, student, student.ID)
	if err != nil || marked != 1 {
		t.Errorf("MarkAllRead() = %d, %v; want 1", marked, err)
	}
	if n, _ := svc.Unread(ctx, student, student.ID); n != 0 {
		t.Errorf("Unread() after MarkAllRead = %d, want 0", n)
	}
	if n, _ := svc.Unread(ctx, other, other.ID); n != 1 {
		t.Errorf("other user's unread = %d, want 1", n)
	}

	if err := svc.MarkRead(ctx, student, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("MarkRead() missing error = %v", err)
	}
}
