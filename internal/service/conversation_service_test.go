package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/config"
	"github.com/RubachokBoss/learning-platform/internal/models"
)

func newConversationService(env *testEnv, trackCounts bool) ConversationService {
	return NewConversationService(env.facade, env.publisher, config.MessagingConfig{
		TrackUnreadCounts: trackCounts,
		HistoryLimit:      100,
	}, zerolog.Nop())
}

func TestSendMarksOtherPartyUnread(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newConversationService(env, true)

	for _, text := range []string{"hello", "are you there?"} {
		if _, err := svc.Send(ctx, student, student.ID, &models.SendMessageRequest{Text: text}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	adminUnread, err := svc.Unread(ctx, admin, student.ID)
	if err != nil {
		t.Fatalf("Unread(admin) error = %v", err)
	}
	if adminUnread != 2 {
		t.Errorf("admin unread = %d, want 2", adminUnread)
	}
	studentUnread, _ := svc.Unread(ctx, student, student.ID)
	if studentUnread != 0 {
		t.Errorf("student unread = %d, want 0", studentUnread)
	}

	conv, err := svc.History(ctx, admin, student.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(conv.Messages) != 2 || conv.Messages[1].Text != "are you there?" {
		t.Errorf("messages = %+v", conv.Messages)
	}
	if conv.Meta == nil || conv.Meta.LastText != "are you there?" || conv.Meta.Name != student.Name || !conv.Meta.UnreadForAdmin {
		t.Errorf("meta = %+v", conv.Meta)
	}

	if got := env.publisher.types(); len(got) != 2 || got[0] != models.EventMessageSent {
		t.Errorf("published = %v", got)
	}
}

func TestOpenClearsUnreadUntilOtherPartySends(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newConversationService(env, false)

	if _, err := svc.Send(ctx, admin, student.ID, &models.SendMessageRequest{Text: "feedback ready"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n, _ := svc.Unread(ctx, student, student.ID); n != 1 {
		t.Fatalf("unread before open = %d, want 1", n)
	}

	meta, err := svc.Open(ctx, student, student.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if meta.UnreadForUser || meta.UnreadCount != 0 || meta.LastSeen == "" {
		t.Errorf("meta after open = %+v", meta)
	}
	if n, _ := svc.Unread(ctx, student, student.ID); n != 0 {
		t.Errorf("unread after open = %d, want 0", n)
	}

	// The student's own message does not make the conversation unread for them.
	if _, err := svc.Send(ctx, student, student.ID, &models.SendMessageRequest{Text: "thanks"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n, _ := svc.Unread(ctx, student, student.ID); n != 0 {
		t.Errorf("unread after own message = %d, want 0", n)
	}

	if _, err := svc.Send(ctx, admin, student.ID, &models.SendMessageRequest{Text: "you're welcome"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n, _ := svc.Unread(ctx, student, student.ID); n != 1 {
		t.Errorf("unread after admin reply = %d, want 1", n)
	}
}

func TestSendWithClientIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newConversationService(env, true)

	req := &models.SendMessageRequest{Text: "submit?", ClientID: "tab-1-msg-1"}
	first, err := svc.Send(ctx, student, student.ID, req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	second, err := svc.Send(ctx, student, student.ID, req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if first.ID != second.ID || first.Timestamp != second.Timestamp {
		t.Errorf("retry produced a different message: %+v vs %+v", first, second)
	}
	if n := env.primary.count(models.MessagesCollection(student.ID)); n != 1 {
		t.Errorf("stored messages = %d, want 1", n)
	}
	if n, _ := svc.Unread(ctx, admin, student.ID); n != 1 {
		t.Errorf("admin unread = %d, want 1", n)
	}
}

func TestConversationAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newConversationService(env, false)

	if _, err := svc.Send(ctx, other, student.ID, &models.SendMessageRequest{Text: "hi"}); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("Send() by another student error = %v, want ErrForbidden", err)
	}
	if _, err := svc.ListConversations(ctx, student); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("ListConversations() by student error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Send(ctx, student, student.ID, &models.SendMessageRequest{}); !models.IsValidation(err) {
		t.Errorf("Send() with empty text error = %v, want validation error", err)
	}
}

func TestUnreadFallsBackToLocalLastSeen(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newConversationService(env, false)
	collection := models.MessagesCollection(student.ID)

	write := func(id, sender string) {
		t.Helper()
		fields := models.Fields{"sender": sender, "text": id, "timestamp": now()}
		if _, err := env.facade.Write(ctx, collection, id, fields); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	write("m1", models.SenderAdmin)
	write("m2", models.SenderStudent)
	write("m3", models.SenderAdmin)

	// No meta node and no last-seen time: every admin message counts.
	if n, err := svc.Unread(ctx, student, student.ID); err != nil || n != 2 {
		t.Fatalf("Unread() = %d, %v; want 2", n, err)
	}

	if _, err := svc.Open(ctx, student, student.ID); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := env.facade.Remove(ctx, models.ConversationsCollection, student.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	write("m4", models.SenderAdmin)

	env.primary.setDown(true)
	if n, err := svc.Unread(ctx, student, student.ID); err != nil || n != 1 {
		t.Errorf("Unread() during outage = %d, %v; want 1", n, err)
	}
}

func TestListConversationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newConversationService(env, false)

	if _, err := svc.Send(ctx, student, student.ID, &models.SendMessageRequest{Text: "first"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.Send(ctx, other, other.ID, &models.SendMessageRequest{Text: "second"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Open(ctx, admin, student.ID); err != nil {
		t.Fatal(err)
	}

	metas, err := svc.ListConversations(ctx, admin)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(metas) != 2 || metas[0].UserID != other.ID || metas[1].UserID != student.ID {
		t.Errorf("order = %+v", metas)
	}

	n, err := svc.UnreadConversations(ctx, admin)
	if err != nil || n != 1 {
		t.Errorf("UnreadConversations() = %d, %v; want 1", n, err)
	}
}

func TestBadge(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		collapsed bool
		want      models.Badge
	}{
		{"nothing unread", 0, false, models.Badge{}},
		{"expanded shows number", 3, false, models.Badge{Visible: true, Numeric: true, Count: 3}},
		{"collapsed shows dot", 3, true, models.Badge{Visible: true, Numeric: false, Count: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Badge(tt.count, tt.collapsed); got != tt.want {
				t.Errorf("Badge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStudentMessagesAreRecordedAsActivity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newConversationService(env, true)

	if _, err := svc.Send(ctx, student, student.ID, &models.SendMessageRequest{Text: "help", ClientID: "c1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	// a resubmission of the same message is not a new activity
	if _, err := svc.Send(ctx, student, student.ID, &models.SendMessageRequest{Text: "help", ClientID: "c1"}); err != nil {
		t.Fatalf("Send(retry) error = %v", err)
	}
	if _, err := svc.Send(ctx, admin, student.ID, &models.SendMessageRequest{Text: "on it"}); err != nil {
		t.Fatalf("Send(admin) error = %v", err)
	}

	records, err := env.facade.Query(ctx, models.ActivityCollection, models.Where("userId", student.ID))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 1 || records[0].Text("type") != models.ActivitySupportMessageSent {
		t.Errorf("activity = %+v", records)
	}
	if n := env.primary.count(models.ActivityCollection); n != 1 {
		t.Errorf("activity records = %d, want 1 (admin replies are not logged)", n)
	}
}
