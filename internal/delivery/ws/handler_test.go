package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/learning-platform/internal/auth"
	"github.com/RubachokBoss/learning-platform/internal/config"
	"github.com/RubachokBoss/learning-platform/internal/models"
	"github.com/RubachokBoss/learning-platform/internal/repository"
	"github.com/RubachokBoss/learning-platform/internal/store"
	"github.com/RubachokBoss/learning-platform/internal/subscription"
)

type fakeFeed struct {
	ch        chan models.ChangeEvent
	available atomic.Bool
}

func (f *fakeFeed) Changes() <-chan models.ChangeEvent { return f.ch }
func (f *fakeFeed) Available() bool                    { return f.available.Load() }

type testEnv struct {
	server  *httptest.Server
	feed    *fakeFeed
	facade  store.Facade
	manager *subscription.Manager
}

func setupTest(t *testing.T, feedAvailable bool) *testEnv {
	t.Helper()

	db, err := repository.OpenBadger("", true)
	require.NoError(t, err)
	cache := repository.NewCacheRepository(db, zerolog.Nop())
	t.Cleanup(func() { _ = cache.Close() })

	facade := store.NewFacade(nil, nil, cache, config.BreakerConfig{}, zerolog.Nop())
	feed := &fakeFeed{ch: make(chan models.ChangeEvent, 16)}
	feed.available.Store(feedAvailable)
	manager := subscription.NewManager(feed, facade, 8, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = manager.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	onError := func(w http.ResponseWriter, status int, message string) {
		http.Error(w, message, status)
	}
	handler := auth.Authenticate(auth.NewHeaderResolver(), onError)(NewHandler(manager, []string{"*"}, zerolog.Nop()))
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{server: server, feed: feed, facade: facade, manager: manager}
}

func (e *testEnv) dial(t *testing.T, userID, role string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set(auth.HeaderUserID, userID)
	header.Set(auth.HeaderUserRole, role)

	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips frames of other types, which arrive in no fixed order around the acknowledgement.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()
	for i := 0; i < 5; i++ {
		if msg := readMessage(t, conn); msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %q frame received", msgType)
	return Message{}
}

func TestSubscribeStreamsSnapshotAndChanges(t *testing.T) {
	env := setupTest(t, true)
	ctx := context.Background()

	_, err := env.facade.Write(ctx, models.NotesCollection, "n1", models.Fields{"title": "Intro", "url": "notes/intro.pdf"})
	require.NoError(t, err)

	conn := env.dial(t, "stu-1", auth.RoleStudent)
	require.NoError(t, conn.WriteJSON(Request{Type: TypeSubscribe, Path: "notes"}))

	first := readMessage(t, conn)
	second := readMessage(t, conn)
	frames := map[string]Message{first.Type: first, second.Type: second}

	ack, ok := frames[TypeSubscribed]
	require.True(t, ok)
	require.NotNil(t, ack.Live)
	assert.True(t, *ack.Live)

	snapshot, ok := frames[TypeChange]
	require.True(t, ok)
	assert.Equal(t, models.OpSnapshot, snapshot.Op)
	assert.Len(t, snapshot.Data, 1)

	_, err = env.facade.Write(ctx, models.NotesCollection, "n2", models.Fields{"title": "Loops", "url": "notes/loops.pdf"})
	require.NoError(t, err)
	env.feed.ch <- models.ChangeEvent{Collection: models.NotesCollection, ID: "n2", Op: models.OpInsert}

	change := readUntil(t, conn, TypeChange)
	assert.Equal(t, models.OpInsert, change.Op)
	assert.Equal(t, "notes", change.Path)
	assert.Len(t, change.Data, 2)
}

func TestSubscribeDeniedForOtherStudentsConversation(t *testing.T) {
	env := setupTest(t, true)

	conn := env.dial(t, "stu-1", auth.RoleStudent)
	require.NoError(t, conn.WriteJSON(Request{Type: TypeSubscribe, Path: "one_on_one/stu-2/messages"}))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "access denied", msg.Message)
	assert.Equal(t, 0, env.manager.Count())
}

func TestInvalidFrames(t *testing.T) {
	env := setupTest(t, true)
	conn := env.dial(t, "admin-1", auth.RoleAdmin)

	require.NoError(t, conn.WriteJSON(Request{Type: "watch", Path: "notes"}))
	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Message, "unknown message type")

	require.NoError(t, conn.WriteJSON(Request{Type: TypeSubscribe, Path: "a/b/c/d"}))
	msg = readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
}

func TestSubscribeWithFeedDownIsNotLive(t *testing.T) {
	env := setupTest(t, false)
	conn := env.dial(t, "admin-1", auth.RoleAdmin)

	require.NoError(t, conn.WriteJSON(Request{Type: TypeSubscribe, Path: "sessions/current"}))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSubscribed, msg.Type)
	require.NotNil(t, msg.Live)
	assert.False(t, *msg.Live)
}

func TestUnsubscribeAndDisconnectCancel(t *testing.T) {
	env := setupTest(t, true)
	conn := env.dial(t, "admin-1", auth.RoleAdmin)

	require.NoError(t, conn.WriteJSON(Request{Type: TypeSubscribe, Path: "notes"}))
	require.NoError(t, conn.WriteJSON(Request{Type: TypeSubscribe, Path: "sessions/current"}))
	readUntil(t, conn, TypeSubscribed)
	readUntil(t, conn, TypeSubscribed)
	require.Eventually(t, func() bool { return env.manager.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Request{Type: TypeUnsubscribe, Path: "notes"}))
	require.Eventually(t, func() bool { return env.manager.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.manager.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnauthenticatedUpgradeRejected(t *testing.T) {
	env := setupTest(t, true)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCanSubscribe(t *testing.T) {
	admin := &auth.Principal{ID: "admin-1", Role: auth.RoleAdmin}
	student := &auth.Principal{ID: "stu-1", Role: auth.RoleStudent}

	tests := []struct {
		name      string
		principal *auth.Principal
		path      models.Path
		want      bool
	}{
		{"admin any collection", admin, models.Path{Collection: models.NotificationsCollection}, true},
		{"student own messages", student, models.Path{Collection: models.MessagesCollection("stu-1")}, true},
		{"student other messages", student, models.Path{Collection: models.MessagesCollection("stu-2")}, false},
		{"student own meta", student, models.MetaPath("stu-1"), true},
		{"student all metas", student, models.Path{Collection: models.ConversationsCollection}, false},
		{"student own profile", student, models.DocumentPath(models.UsersCollection, "stu-1"), true},
		{"student other profile", student, models.DocumentPath(models.UsersCollection, "stu-2"), false},
		{"student shared content", student, models.Path{Collection: models.AssignmentsCollection}, true},
		{"student scores", student, models.Path{Collection: models.ScoresCollection}, false},
		{"nil principal", nil, models.Path{Collection: models.NotesCollection}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanSubscribe(tt.principal, tt.path))
		})
	}
}
