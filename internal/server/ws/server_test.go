package ws

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peertutor/tutorchat/internal/common"
	"github.com/peertutor/tutorchat/internal/cryptox"
	"github.com/peertutor/tutorchat/internal/dbx"
	"github.com/peertutor/tutorchat/internal/logging"
	"github.com/peertutor/tutorchat/internal/server/auth"
	"github.com/peertutor/tutorchat/internal/server/chat"
	"github.com/peertutor/tutorchat/internal/server/events"
	"github.com/peertutor/tutorchat/internal/server/models"
	"github.com/peertutor/tutorchat/internal/server/presence"
	"github.com/peertutor/tutorchat/internal/server/repositories/messages"
	"github.com/peertutor/tutorchat/internal/server/repositories/notifications"
	"github.com/peertutor/tutorchat/internal/server/repositories/users"
)

const testSecret = "ws-test-secret"

type fakeUsers struct {
	byID map[string]*models.User
}

func (f *fakeUsers) GetByID(ctx context.Context, userID string) (*models.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsers) SetPinCredential(ctx context.Context, userID string, hash, salt []byte) error {
	return nil
}

func (f *fakeUsers) ClearPinCredential(ctx context.Context, userID string) error {
	return nil
}

type fakeMessages struct {
	mu       sync.Mutex
	appended []*models.ChatMessage
}

func (f *fakeMessages) Append(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *msg
	stored.ID = fmt.Sprintf("m%d", len(f.appended)+1)
	stored.CreatedAt = time.Now()
	f.appended = append(f.appended, &stored)
	return &stored, nil
}

func (f *fakeMessages) Conversation(ctx context.Context, userA, userB string, limit int) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.ChatMessage
	for _, m := range f.appended {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMessages) MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error) {
	return 1, nil
}

func (f *fakeMessages) stored() []*models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.ChatMessage(nil), f.appended...)
}

type fakeNotifications struct{}

func (f *fakeNotifications) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	return n, nil
}

func (f *fakeNotifications) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	return nil, nil
}

func (f *fakeNotifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

type fakeRepoManager struct {
	users         *fakeUsers
	messages      *fakeMessages
	notifications *fakeNotifications
}

func (f *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(db dbx.DBTX) users.Repository                  { return f.users }
func (f *fakeRepoManager) Messages(db dbx.DBTX) messages.Repository            { return f.messages }
func (f *fakeRepoManager) Notifications(db dbx.DBTX) notifications.Repository {
	return f.notifications
}

type wsEnv struct {
	ts       *httptest.Server
	engine   *cryptox.Engine
	messages *fakeMessages
}

func newWSEnv(t *testing.T, known ...*models.User) *wsEnv {
	t.Helper()

	kp, err := cryptox.NewStaticKeyProvider(hex.EncodeToString(bytes.Repeat([]byte{7}, cryptox.KeySize)))
	require.NoError(t, err)
	engine, err := cryptox.NewEngine(kp)
	require.NoError(t, err)

	byID := make(map[string]*models.User)
	for _, u := range known {
		byID[u.ID] = u
	}
	m := &fakeRepoManager{
		users:         &fakeUsers{byID: byID},
		messages:      &fakeMessages{},
		notifications: &fakeNotifications{},
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	registry := presence.NewInMemory()
	chatSvc := chat.NewService(nil, m, engine, registry, logger)
	srv := NewServer(nil, m, chatSvc, registry, testSecret, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &wsEnv{ts: ts, engine: engine, messages: m.messages}
}

func (e *wsEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	token, err := auth.GenerateToken(userID, uuid.NewString(), []byte(testSecret), time.Minute)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFor reads frames until one of the wanted type arrives, skipping
// presence chatter that depends on connection timing.
func waitFor(t *testing.T, conn *websocket.Conn, eventType string) events.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", eventType)

		var frame events.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Type == eventType {
			return frame
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(events.Frame{Type: eventType, Payload: raw}))
}

func TestHandleWSRejectsMissingToken(t *testing.T) {
	env := newWSEnv(t)

	resp, err := http.Get(env.ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWSRejectsInvalidToken(t *testing.T) {
	env := newWSEnv(t)

	resp, err := http.Get(env.ts.URL + "/ws?token=not-a-token")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWSRejectsUnknownUser(t *testing.T) {
	env := newWSEnv(t)

	token, err := auth.GenerateToken("ghost", uuid.NewString(), []byte(testSecret), time.Minute)
	require.NoError(t, err)

	resp, err := http.Get(env.ts.URL + "/ws?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWSSendsOnlineUsersOnConnect(t *testing.T) {
	env := newWSEnv(t, &models.User{ID: "alice", FullName: "Alice A"})

	conn := env.dial(t, "alice")

	frame := waitFor(t, conn, events.TypeOnlineUsers)
	var online []events.OnlineUser
	require.NoError(t, json.Unmarshal(frame.Payload, &online))

	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].UserID)
	assert.Equal(t, "Alice A", online[0].FullName)
}

func TestHandleWSMessageDelivery(t *testing.T) {
	env := newWSEnv(t,
		&models.User{ID: "alice", FullName: "Alice A"},
		&models.User{ID: "bob", FullName: "Bob B"},
	)

	alice := env.dial(t, "alice")
	waitFor(t, alice, events.TypeOnlineUsers)
	bob := env.dial(t, "bob")
	waitFor(t, bob, events.TypeOnlineUsers)

	// Alice's events are processed in order on her connection, so the join
	// is in effect by the time her message is handled.
	send(t, alice, events.TypeJoinConversation, events.JoinConversation{OtherUserID: "bob"})
	send(t, alice, events.TypeSendMessage, events.SendMessage{ReceiverID: "bob", Message: "hello bob"})

	frame := waitFor(t, alice, events.TypeNewMessage)
	var msg events.NewMessage
	require.NoError(t, json.Unmarshal(frame.Payload, &msg))
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "Alice A", msg.SenderName)
	assert.Equal(t, "hello bob", msg.Message)

	frame = waitFor(t, bob, events.TypeMessageNotification)
	var notif events.MessageNotification
	require.NoError(t, json.Unmarshal(frame.Payload, &notif))
	assert.Equal(t, "alice", notif.From)
	assert.Equal(t, "hello bob", notif.Preview)

	stored := env.messages.stored()
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Encrypted)
	assert.NotEqual(t, "hello bob", stored[0].Content)

	plain, err := env.engine.Decrypt(stored[0].Content)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", plain)
}

func TestHandleWSEmptyMessageError(t *testing.T) {
	env := newWSEnv(t, &models.User{ID: "alice", FullName: "Alice A"})

	alice := env.dial(t, "alice")
	waitFor(t, alice, events.TypeOnlineUsers)

	send(t, alice, events.TypeSendMessage, events.SendMessage{ReceiverID: "bob", Message: ""})

	frame := waitFor(t, alice, events.TypeMessageError)
	var msgErr events.MessageError
	require.NoError(t, json.Unmarshal(frame.Payload, &msgErr))
	assert.Equal(t, "message cannot be empty", msgErr.Error)
}

func TestHandleWSUnknownEventDropped(t *testing.T) {
	env := newWSEnv(t, &models.User{ID: "alice", FullName: "Alice A"})

	alice := env.dial(t, "alice")
	waitFor(t, alice, events.TypeOnlineUsers)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`not json at all`)))

	// The connection survives and keeps processing valid events.
	send(t, alice, events.TypeSendMessage, events.SendMessage{ReceiverID: "bob", Message: ""})
	waitFor(t, alice, events.TypeMessageError)
}

func TestHandleWSTypingRelay(t *testing.T) {
	env := newWSEnv(t,
		&models.User{ID: "alice", FullName: "Alice A"},
		&models.User{ID: "bob", FullName: "Bob B"},
	)

	alice := env.dial(t, "alice")
	waitFor(t, alice, events.TypeOnlineUsers)
	bob := env.dial(t, "bob")
	waitFor(t, bob, events.TypeOnlineUsers)

	send(t, alice, events.TypeTypingStart, events.Typing{ReceiverID: "bob"})

	frame := waitFor(t, bob, events.TypeUserTyping)
	var typing events.UserTyping
	require.NoError(t, json.Unmarshal(frame.Payload, &typing))
	assert.Equal(t, "alice", typing.UserID)
	assert.True(t, typing.IsTyping)
}

func TestHandleWSSessionPassthrough(t *testing.T) {
	env := newWSEnv(t,
		&models.User{ID: "alice", FullName: "Alice A"},
		&models.User{ID: "bob", FullName: "Bob B"},
	)

	alice := env.dial(t, "alice")
	waitFor(t, alice, events.TypeOnlineUsers)
	bob := env.dial(t, "bob")
	waitFor(t, bob, events.TypeOnlineUsers)

	send(t, alice, events.TypeSessionConfirmed, events.SessionEvent{
		ToUserID: "bob",
		Session:  json.RawMessage(`{"id":"s1"}`),
		Message:  "see you at 4pm",
	})

	frame := waitFor(t, bob, events.TypeSessionUpdate)
	var update events.SessionUpdate
	require.NoError(t, json.Unmarshal(frame.Payload, &update))
	assert.Equal(t, events.TypeSessionConfirmed, update.Type)
	assert.Equal(t, "see you at 4pm", update.Message)
	assert.JSONEq(t, `{"id":"s1"}`, string(update.Session))
}

func TestHandleWSOfflineBroadcastOnDisconnect(t *testing.T) {
	env := newWSEnv(t,
		&models.User{ID: "alice", FullName: "Alice A"},
		&models.User{ID: "bob", FullName: "Bob B"},
	)

	alice := env.dial(t, "alice")
	waitFor(t, alice, events.TypeOnlineUsers)
	bob := env.dial(t, "bob")
	waitFor(t, bob, events.TypeOnlineUsers)

	require.NoError(t, bob.Close())

	frame := waitFor(t, alice, events.TypeUserOffline)
	var change events.PresenceChange
	require.NoError(t, json.Unmarshal(frame.Payload, &change))
	assert.Equal(t, "bob", change.UserID)
}
