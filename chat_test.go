package chatpay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay-go/types"
	"github.com/chatpay/chatpay-go/types/events"
)

type historyServer struct {
	lock     sync.Mutex
	messages map[string][]map[string]any
	blocked  map[string]chan struct{}
	entered  map[string]chan struct{}
}

func newHistoryServer() *historyServer {
	return &historyServer{
		messages: make(map[string][]map[string]any),
		blocked:  make(map[string]chan struct{}),
		entered:  make(map[string]chan struct{}),
	}
}

// block makes the next history request for the chat wait until the returned function is called.
func (hs *historyServer) block(chatID string) (entered <-chan struct{}, release func()) {
	hs.lock.Lock()
	defer hs.lock.Unlock()
	releaseCh := make(chan struct{})
	enteredCh := make(chan struct{})
	hs.blocked[chatID] = releaseCh
	hs.entered[chatID] = enteredCh
	var once sync.Once
	return enteredCh, func() {
		once.Do(func() {
			close(releaseCh)
		})
	}
}

func (hs *historyServer) handle(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	hs.lock.Lock()
	releaseCh := hs.blocked[chatID]
	enteredCh := hs.entered[chatID]
	delete(hs.blocked, chatID)
	delete(hs.entered, chatID)
	messages := hs.messages[chatID]
	hs.lock.Unlock()
	if enteredCh != nil {
		close(enteredCh)
		select {
		case <-releaseCh:
		case <-r.Context().Done():
		}
	}
	if messages == nil {
		messages = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func textMessage(id, chatID, sender string) map[string]any {
	return map[string]any{
		"id":        id,
		"chatId":    chatID,
		"senderId":  sender,
		"content":   "hello " + id,
		"type":      "text",
		"timestamp": "2025-01-01T12:00:00Z",
	}
}

func messageIDs(msgs []*types.Message) []string {
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	return ids
}

func newStartedClient(t *testing.T, hs *historyServer, extraRoutes map[string]http.HandlerFunc) (*Client, *fakeChannel, *fakeBackend) {
	routes := map[string]http.HandlerFunc{
		"POST /auth/login": authResponse("tok-1", completeUser),
		"GET /chats": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"chats": []any{
				map[string]any{"id": "A", "name": "Chat A", "participants": []string{"u1", "u2"}, "unreadCount": 2},
				map[string]any{"id": "B", "name": "Chat B", "participants": []string{"u1", "u3"}},
			}})
		},
		"GET /chats/{id}/messages": hs.handle,
	}
	for pattern, handler := range extraRoutes {
		routes[pattern] = handler
	}
	cli, channel, _, fb := newTestClient(t, routes)
	ctx := context.Background()
	_, err := cli.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	require.NoError(t, cli.Start(ctx))
	require.Len(t, cli.Chats(), 2)
	return cli, channel, fb
}

func TestStartRequiresSession(t *testing.T) {
	cli, _, _, _ := newTestClient(t, nil)
	assert.ErrorIs(t, cli.Start(context.Background()), ErrNotLoggedIn)
}

func TestStartChatsLoadFailure(t *testing.T) {
	cli, channel, _, _ := newTestClient(t, map[string]http.HandlerFunc{
		"POST /auth/login": authResponse("tok-1", completeUser),
		"GET /chats": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "database unavailable"})
		},
	})
	var rec eventRecorder
	cli.AddEventHandler(rec.handle)
	ctx := context.Background()
	_, err := cli.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	require.NoError(t, cli.Start(ctx))
	assert.True(t, channel.IsConnected())
	assert.Empty(t, cli.Chats())
	failed := recordedOf[*events.ChatsLoadFailed](&rec)
	require.Len(t, failed, 1)
	assert.ErrorContains(t, failed[0].Err, "database unavailable")
	assert.True(t, cli.IsAuthenticated())
}

func TestStartConnectFailure(t *testing.T) {
	cli, channel, _, _ := newTestClient(t, map[string]http.HandlerFunc{
		"POST /auth/login": authResponse("tok-1", completeUser),
	})
	channel.connectErr = errors.New("connection refused")
	_, err := cli.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)
	assert.ErrorContains(t, cli.Start(context.Background()), "connection refused")
}

func TestSelectChat(t *testing.T) {
	hs := newHistoryServer()
	hs.messages["A"] = []map[string]any{textMessage("a1", "A", "u2"), textMessage("a2", "A", "u1")}
	cli, channel, fb := newStartedClient(t, hs, nil)
	var rec eventRecorder
	cli.AddEventHandler(rec.handle)
	ctx := context.Background()

	chat, ok := cli.Chat("A")
	require.True(t, ok)
	assert.Equal(t, 2, chat.UnreadCount)

	require.NoError(t, cli.SelectChat(ctx, "A"))
	assert.Equal(t, "A", cli.SelectedChat())
	assert.Equal(t, []string{"a1", "a2"}, messageIDs(cli.Messages()))
	chat, _ = cli.Chat("A")
	assert.Equal(t, 0, chat.UnreadCount)
	assert.Equal(t, []string{"A"}, channel.joined)
	assert.Len(t, fb.requests("/chats/A/messages"), 1)

	require.NoError(t, cli.SelectChat(ctx, "B"))
	assert.Empty(t, cli.Messages())
	assert.Equal(t, []string{"A", "B"}, channel.joined)
	assert.Equal(t, []string{"A"}, channel.left)

	unread := recordedOf[*events.UnreadChanged](&rec)
	require.Len(t, unread, 1)
	assert.Equal(t, "A", unread[0].ChatID)
	assert.Len(t, recordedOf[*events.MessagesLoaded](&rec), 2)
}

func TestStaleHistoryIsDiscarded(t *testing.T) {
	hs := newHistoryServer()
	hs.messages["A"] = []map[string]any{textMessage("a1", "A", "u2")}
	hs.messages["B"] = []map[string]any{textMessage("b1", "B", "u3")}
	cli, _, _ := newStartedClient(t, hs, nil)
	ctx := context.Background()

	entered, release := hs.block("A")
	defer release()
	errCh := make(chan error, 1)
	go func() {
		errCh <- cli.SelectChat(ctx, "A")
	}()
	<-entered

	require.NoError(t, cli.SelectChat(ctx, "B"))
	assert.Equal(t, []string{"b1"}, messageIDs(cli.Messages()))

	release()
	require.NoError(t, <-errCh)
	assert.Equal(t, "B", cli.SelectedChat())
	assert.Equal(t, []string{"b1"}, messageIDs(cli.Messages()))
}

func TestHistoryFailureLeavesChatSelected(t *testing.T) {
	hs := newHistoryServer()
	cli, _, _ := newStartedClient(t, hs, map[string]http.HandlerFunc{
		"GET /chats/B/messages": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
		},
	})
	var rec eventRecorder
	cli.AddEventHandler(rec.handle)

	err := cli.SelectChat(context.Background(), "B")
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, "B", cli.SelectedChat())
	assert.Empty(t, cli.Messages())
	failed := recordedOf[*events.MessagesLoadFailed](&rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "B", failed[0].ChatID)
}

func TestPushedMessagesMergeWithHistory(t *testing.T) {
	hs := newHistoryServer()
	hs.messages["A"] = []map[string]any{textMessage("a1", "A", "u2"), textMessage("a2", "A", "u2")}
	cli, channel, _ := newStartedClient(t, hs, nil)
	ctx := context.Background()

	entered, release := hs.block("A")
	errCh := make(chan error, 1)
	go func() {
		errCh <- cli.SelectChat(ctx, "A")
	}()
	<-entered
	channel.emit(&events.Message{Message: &types.Message{ID: "a2", ChatID: "A", SenderID: "u2"}})
	channel.emit(&events.Message{Message: &types.Message{ID: "a3", ChatID: "A", SenderID: "u2"}})
	release()
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"a1", "a2", "a3"}, messageIDs(cli.Messages()))
}

func TestUnreadCounting(t *testing.T) {
	hs := newHistoryServer()
	cli, channel, _ := newStartedClient(t, hs, nil)
	var rec eventRecorder
	cli.AddEventHandler(rec.handle)
	require.NoError(t, cli.SelectChat(context.Background(), "A"))

	channel.emit(&events.Message{Message: &types.Message{ID: "a1", ChatID: "A", SenderID: "u2"}})
	channel.emit(&events.Message{Message: &types.Message{ID: "a2", ChatID: "A", SenderID: "u2"}})
	chat, _ := cli.Chat("A")
	assert.Equal(t, 0, chat.UnreadCount)
	assert.Equal(t, []string{"a1", "a2"}, messageIDs(cli.Messages()))

	for i, id := range []string{"b1", "b2", "b3"} {
		channel.emit(&events.Message{Message: &types.Message{ID: id, ChatID: "B", SenderID: "u3"}})
		chat, _ = cli.Chat("B")
		assert.Equal(t, i+1, chat.UnreadCount)
	}
	assert.Equal(t, "b3", chat.LastMessage.ID)

	channel.emit(&events.Message{Message: &types.Message{ID: "b4", ChatID: "B", SenderID: "u1"}})
	chat, _ = cli.Chat("B")
	assert.Equal(t, 4, chat.UnreadCount, "every message in an unselected chat counts as unread")

	channel.emit(&events.Message{Message: &types.Message{ID: "c1", ChatID: "C", SenderID: "u4"}})
	chat, ok := cli.Chat("C")
	require.True(t, ok)
	assert.Equal(t, 1, chat.UnreadCount)
	assert.Equal(t, "C", cli.Chats()[0].ID)

	// Realtime events are forwarded to the client's handlers too.
	assert.Len(t, recordedOf[*events.Message](&rec), 7)
}

func TestPaymentNotificationUpdatesStatus(t *testing.T) {
	hs := newHistoryServer()
	hs.messages["A"] = []map[string]any{{
		"id":       "a1",
		"chatId":   "A",
		"senderId": "u2",
		"type":     "payment",
		"payment":  map[string]any{"id": "p1", "type": "request", "amount": 10, "status": "unverified"},
	}}
	cli, channel, _ := newStartedClient(t, hs, nil)
	require.NoError(t, cli.SelectChat(context.Background(), "A"))
	before := cli.Messages()

	channel.emit(&events.PaymentNotification{Payment: &types.Payment{ID: "p1", Status: types.PaymentStatusVerified, TxHash: "0xdigest"}})
	msgs := cli.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.PaymentStatusVerified, msgs[0].Payment.Status)
	assert.Equal(t, "0xdigest", msgs[0].Payment.TxHash)
	assert.Equal(t, types.PaymentStatusUnverified, before[0].Payment.Status)
}

func TestSendMessage(t *testing.T) {
	hs := newHistoryServer()
	cli, channel, fb := newStartedClient(t, hs, map[string]http.HandlerFunc{
		"POST /chats/{id}/messages": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"message": textMessage("m1", r.PathValue("id"), "u1")})
		},
	})
	ctx := context.Background()
	_, err := cli.SendMessage(ctx, "hi")
	assert.ErrorIs(t, err, ErrNoChatSelected)
	assert.ErrorIs(t, cli.StartTyping(ctx), ErrNoChatSelected)

	require.NoError(t, cli.SelectChat(ctx, "A"))
	_, err = cli.SendMessage(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	msg, err := cli.SendMessage(ctx, " hi ")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hi", fb.body("/chats/A/messages")["content"])
	assert.Empty(t, cli.Messages(), "sent messages are only added when pushed back")

	require.NoError(t, cli.StartTyping(ctx))
	require.NoError(t, cli.StopTyping(ctx))
	assert.Equal(t, []string{"A"}, channel.typing)
}

func TestCreateChat(t *testing.T) {
	hs := newHistoryServer()
	cli, _, fb := newStartedClient(t, hs, map[string]http.HandlerFunc{
		"POST /chats": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"chat": map[string]any{"id": "N", "name": "New", "participants": []string{"u1", "u9"}}})
		},
	})
	chat, err := cli.CreateChat(context.Background(), []string{"u9"}, types.ChatTypeDirect)
	require.NoError(t, err)
	assert.Equal(t, "N", chat.ID)
	assert.Equal(t, "N", cli.Chats()[0].ID)
	assert.Len(t, cli.Chats(), 3)
	assert.Equal(t, "direct", fb.body("/chats")["type"])
}

func TestStopClearsChatState(t *testing.T) {
	hs := newHistoryServer()
	cli, channel, _ := newStartedClient(t, hs, nil)
	require.NoError(t, cli.SelectChat(context.Background(), "A"))
	cli.Stop()
	assert.Empty(t, cli.Chats())
	assert.Empty(t, cli.SelectedChat())
	assert.False(t, channel.IsConnected())

	channel.emit(&events.Message{Message: &types.Message{ID: "x", ChatID: "A"}})
	assert.Empty(t, cli.Chats(), "events after Stop shouldn't be applied")
}
