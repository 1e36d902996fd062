package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay-go/types/events"
)

type fakeSocket struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (fs *fakeSocket) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-fs.in:
		return data, nil
	case <-fs.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (fs *fakeSocket) Write(ctx context.Context, data []byte) error {
	select {
	case <-fs.closed:
		return io.ErrClosedPipe
	default:
	}
	fs.out <- data
	return nil
}

func (fs *fakeSocket) Close() error {
	fs.closeOnce.Do(func() { close(fs.closed) })
	return nil
}

func (fs *fakeSocket) push(t *testing.T, eventType string, payload any) {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(&Envelope{Type: eventType, Payload: data})
	require.NoError(t, err)
	fs.in <- frame
}

func (fs *fakeSocket) nextWrite(t *testing.T) Envelope {
	select {
	case data := <-fs.out:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return Envelope{}
	}
}

func (fs *fakeSocket) assertNoWrite(t *testing.T) {
	select {
	case data := <-fs.out:
		t.Fatalf("unexpected write %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeTransport struct {
	dials   atomic.Int32
	lock    sync.Mutex
	sockets []*fakeSocket
	// next decides the result of each dial, by 1-based dial number.
	next func(n int) (*fakeSocket, error)

	lastURL    string
	lastHeader http.Header
}

func (ft *fakeTransport) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	n := int(ft.dials.Add(1))
	ft.lock.Lock()
	ft.lastURL = url
	ft.lastHeader = header
	ft.lock.Unlock()
	sock, err := ft.next(n)
	if err != nil {
		return nil, err
	}
	ft.lock.Lock()
	ft.sockets = append(ft.sockets, sock)
	ft.lock.Unlock()
	return sock, nil
}

func (ft *fakeTransport) socket(i int) *fakeSocket {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	return ft.sockets[i]
}

func newTestConn(ft *fakeTransport, policy ReconnectPolicy) (*Conn, chan any) {
	conn := NewConn("ws://chatpay.test/ws", nil)
	conn.Transport = ft
	conn.Policy = policy
	evts := make(chan any, 64)
	conn.AddEventHandler(func(evt any) {
		evts <- evt
	})
	return conn, evts
}

func nextEvent[T any](t *testing.T, evts chan any) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-evts:
			if typed, ok := evt.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

var errDialRefused = errors.New("connection refused")

func TestConnectAndReceive(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) { return newFakeSocket(), nil }}
	conn, evts := newTestConn(ft, ReconnectPolicy{})
	ctx := context.Background()

	require.NoError(t, conn.Connect(ctx, "tok en"))
	defer conn.Disconnect()
	assert.True(t, conn.IsConnected())
	assert.Equal(t, "ws://chatpay.test/ws?token=tok+en", ft.lastURL)
	assert.Equal(t, "Bearer tok en", ft.lastHeader.Get("Authorization"))
	nextEvent[*events.Connected](t, evts)
	assert.ErrorIs(t, conn.Connect(ctx, "tok"), ErrAlreadyConnected)

	sock := ft.socket(0)
	require.NoError(t, conn.JoinChat(ctx, "c1"))
	env := sock.nextWrite(t)
	assert.Equal(t, EventJoinChat, env.Type)
	assert.JSONEq(t, `{"chatId":"c1"}`, string(env.Payload))
	assert.Equal(t, []string{"c1"}, conn.JoinedChats())

	sock.push(t, EventNewMessage, map[string]any{"id": "m1", "chatId": "c1", "senderId": "u2", "content": "hi", "type": "text"})
	msgEvt := nextEvent[*events.Message](t, evts)
	assert.Equal(t, "m1", msgEvt.Message.ID)

	sock.push(t, EventPaymentNotification, map[string]any{"payment": map[string]any{"id": "p1", "type": "request", "amount": 5, "status": "verified"}})
	payEvt := nextEvent[*events.PaymentNotification](t, evts)
	assert.Equal(t, "p1", payEvt.Payment.ID)
	assert.Equal(t, "verified", string(payEvt.Payment.Status))

	sock.push(t, EventUserTyping, map[string]any{"chatId": "c1", "userId": "u2"})
	typingEvt := nextEvent[*events.UserTyping](t, evts)
	assert.Equal(t, "u2", typingEvt.UserID)

	require.NoError(t, conn.LeaveChat(ctx, "c1"))
	assert.Equal(t, EventLeaveChat, sock.nextWrite(t).Type)
	assert.Empty(t, conn.JoinedChats())
}

func TestSendWhileDisconnected(t *testing.T) {
	conn := NewConn("", nil)
	ctx := context.Background()
	assert.ErrorIs(t, conn.Send(ctx, "anything", nil), ErrNotConnected)
	assert.ErrorIs(t, conn.JoinChat(ctx, "c1"), ErrNotConnected)
	assert.Empty(t, conn.JoinedChats())
	assert.ErrorIs(t, conn.Connect(ctx, ""), ErrNoToken)
}

func TestReconnectGivesUp(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) {
		if n == 1 {
			return newFakeSocket(), nil
		}
		return nil, errDialRefused
	}}
	conn, evts := newTestConn(ft, ReconnectPolicy{MaxAttempts: 3, Delay: 5 * time.Millisecond, Backoff: BackoffFixed})
	require.NoError(t, conn.Connect(context.Background(), "tok"))
	defer conn.Disconnect()
	nextEvent[*events.Connected](t, evts)

	ft.socket(0).Close()
	disconnected := nextEvent[*events.Disconnected](t, evts)
	assert.ErrorIs(t, disconnected.Err, io.EOF)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, nextEvent[*events.Reconnecting](t, evts).Attempt)
	}
	failed := nextEvent[*events.ReconnectFailed](t, evts)
	assert.Equal(t, 3, failed.Attempts)
	assert.ErrorIs(t, failed.Err, errDialRefused)
	assert.False(t, conn.IsConnected())
	assert.EqualValues(t, 4, ft.dials.Load())
}

func TestReconnectWithJitteredBackoff(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) {
		if n == 1 || n == 3 {
			return newFakeSocket(), nil
		}
		return nil, errDialRefused
	}}
	conn, evts := newTestConn(ft, ReconnectPolicy{
		MaxAttempts:  4,
		Delay:        2 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Backoff:      BackoffExponential,
		JitterFactor: 0.5,
	})
	require.NoError(t, conn.Connect(context.Background(), "tok"))
	defer conn.Disconnect()
	nextEvent[*events.Connected](t, evts)

	ft.socket(0).Close()
	nextEvent[*events.Disconnected](t, evts)
	assert.Equal(t, 1, nextEvent[*events.Reconnecting](t, evts).Attempt)
	assert.Equal(t, 2, nextEvent[*events.Reconnecting](t, evts).Attempt)
	nextEvent[*events.Connected](t, evts)
	assert.True(t, conn.IsConnected())
	assert.EqualValues(t, 3, ft.dials.Load())
}

func TestReconnectRejoinsRooms(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) {
		if n == 2 {
			return nil, errDialRefused
		}
		return newFakeSocket(), nil
	}}
	conn, evts := newTestConn(ft, ReconnectPolicy{
		MaxAttempts: 5,
		Delay:       5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		Backoff:     BackoffExponential,
	})
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx, "tok"))
	defer conn.Disconnect()
	nextEvent[*events.Connected](t, evts)
	require.NoError(t, conn.JoinChat(ctx, "c1"))
	ft.socket(0).nextWrite(t)

	ft.socket(0).Close()
	nextEvent[*events.Disconnected](t, evts)
	assert.Equal(t, 1, nextEvent[*events.Reconnecting](t, evts).Attempt)
	assert.Equal(t, 2, nextEvent[*events.Reconnecting](t, evts).Attempt)
	nextEvent[*events.Connected](t, evts)
	assert.True(t, conn.IsConnected())

	env := ft.socket(1).nextWrite(t)
	assert.Equal(t, EventJoinChat, env.Type)
	assert.JSONEq(t, `{"chatId":"c1"}`, string(env.Payload))
}

func TestManualDisconnectDoesNotReconnect(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) { return newFakeSocket(), nil }}
	conn, evts := newTestConn(ft, ReconnectPolicy{MaxAttempts: 3, Delay: time.Millisecond})
	require.NoError(t, conn.Connect(context.Background(), "tok"))
	nextEvent[*events.Connected](t, evts)

	conn.Disconnect()
	assert.False(t, conn.IsConnected())
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, ft.dials.Load())
	for len(evts) > 0 {
		evt := <-evts
		_, isDisconnect := evt.(*events.Disconnected)
		_, isReconnect := evt.(*events.Reconnecting)
		assert.False(t, isDisconnect || isReconnect, "unexpected %T after manual disconnect", evt)
	}
}

func TestTypingIsRateLimited(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) { return newFakeSocket(), nil }}
	conn, _ := newTestConn(ft, ReconnectPolicy{})
	conn.TypingInterval = time.Hour
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx, "tok"))
	defer conn.Disconnect()
	sock := ft.socket(0)

	require.NoError(t, conn.StartTyping(ctx, "c1"))
	assert.Equal(t, EventTyping, sock.nextWrite(t).Type)
	require.NoError(t, conn.StartTyping(ctx, "c1"))
	sock.assertNoWrite(t)

	require.NoError(t, conn.StartTyping(ctx, "c2"))
	assert.Equal(t, EventTyping, sock.nextWrite(t).Type)

	require.NoError(t, conn.StopTyping(ctx, "c1"))
	assert.Equal(t, EventStopTyping, sock.nextWrite(t).Type)
	require.NoError(t, conn.StartTyping(ctx, "c1"))
	assert.Equal(t, EventTyping, sock.nextWrite(t).Type)
}

func TestRemoveEventHandler(t *testing.T) {
	conn := NewConn("", nil)
	var first, second int
	id1 := conn.AddEventHandler(func(evt any) { first++ })
	conn.AddEventHandler(func(evt any) { second++ })
	conn.AddEventHandler(func(evt any) { panic("handler panics are recovered") })

	conn.dispatchEvent(&events.Connected{})
	assert.True(t, conn.RemoveEventHandler(id1))
	assert.False(t, conn.RemoveEventHandler(id1))
	conn.dispatchEvent(&events.Connected{})
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestUnknownAndMalformedFrames(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) { return newFakeSocket(), nil }}
	conn, evts := newTestConn(ft, ReconnectPolicy{})
	require.NoError(t, conn.Connect(context.Background(), "tok"))
	defer conn.Disconnect()
	nextEvent[*events.Connected](t, evts)
	sock := ft.socket(0)

	sock.in <- []byte("not json")
	sock.push(t, "something-else", map[string]any{})
	sock.push(t, EventUserStopTyping, map[string]any{"chatId": "c9", "userId": "u3"})
	evt := nextEvent[*events.UserStopTyping](t, evts)
	assert.Equal(t, "c9", evt.ChatID)
	assert.True(t, conn.IsConnected())
}

func TestWebSocketTransport(t *testing.T) {
	received := make(chan Envelope, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		_, data, err := ws.Read(r.Context())
		if err != nil {
			return
		}
		var env Envelope
		_ = json.Unmarshal(data, &env)
		received <- env
		_ = ws.Write(r.Context(), websocket.MessageText, []byte(`{"type":"user-typing","payload":{"chatId":"c1","userId":"u2"}}`))
		_, _, _ = ws.Read(r.Context())
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := NewConn(wsURL, nil)
	conn.Policy = ReconnectPolicy{}
	typing := make(chan *events.UserTyping, 1)
	conn.AddEventHandler(func(evt any) {
		if typed, ok := evt.(*events.UserTyping); ok {
			typing <- typed
		}
	})
	ctx := context.Background()

	err := conn.Connect(ctx, "wrong")
	var statusErr ErrWithStatusCode
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	require.NoError(t, conn.Connect(ctx, "tok"))
	defer conn.Disconnect()
	require.NoError(t, conn.JoinChat(ctx, "c1"))
	select {
	case env := <-received:
		assert.Equal(t, EventJoinChat, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("server didn't receive join")
	}
	select {
	case evt := <-typing:
		assert.Equal(t, "c1", evt.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("didn't receive typing event")
	}
}

func TestTypedHandlers(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) { return newFakeSocket(), nil }}
	conn, evts := newTestConn(ft, ReconnectPolicy{})
	require.NoError(t, conn.Connect(context.Background(), "tok"))
	defer conn.Disconnect()
	nextEvent[*events.Connected](t, evts)
	sock := ft.socket(0)

	var lock sync.Mutex
	var got []string
	record := func(name string) {
		lock.Lock()
		got = append(got, name)
		lock.Unlock()
	}
	msgID := conn.OnMessage(func(evt *events.Message) { record("message:" + evt.Message.ID) })
	conn.OnUserTyping(func(evt *events.UserTyping) { record("typing:" + evt.UserID) })
	conn.OnUserStopTyping(func(evt *events.UserStopTyping) { record("stop:" + evt.UserID) })
	conn.OnPaymentNotification(func(evt *events.PaymentNotification) { record("payment:" + evt.Payment.ID) })

	sock.push(t, EventNewMessage, map[string]any{"id": "m1", "chatId": "c1", "senderId": "u2", "content": "hi", "type": "text"})
	nextEvent[*events.Message](t, evts)
	sock.push(t, EventUserTyping, map[string]any{"chatId": "c1", "userId": "u2"})
	nextEvent[*events.UserTyping](t, evts)
	sock.push(t, EventUserStopTyping, map[string]any{"chatId": "c1", "userId": "u3"})
	nextEvent[*events.UserStopTyping](t, evts)
	sock.push(t, EventPaymentNotification, map[string]any{"id": "p1", "type": "request", "amount": 1, "status": "verified"})
	nextEvent[*events.PaymentNotification](t, evts)

	assert.True(t, conn.RemoveEventHandler(msgID))
	sock.push(t, EventNewMessage, map[string]any{"id": "m2", "chatId": "c1", "senderId": "u2", "content": "again", "type": "text"})
	nextEvent[*events.Message](t, evts)

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, []string{"message:m1", "typing:u2", "stop:u3", "payment:p1"}, got)
}

func TestConcurrentTypingSendsOnce(t *testing.T) {
	ft := &fakeTransport{next: func(n int) (*fakeSocket, error) { return newFakeSocket(), nil }}
	conn, _ := newTestConn(ft, ReconnectPolicy{})
	conn.TypingInterval = time.Hour
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx, "tok"))
	defer conn.Disconnect()
	sock := ft.socket(0)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.StartTyping(ctx, "c1"))
		}()
	}
	wg.Wait()
	assert.Equal(t, EventTyping, sock.nextWrite(t).Type)
	sock.assertNoWrite(t)
}

// blockingTransport holds every dial until release is closed. If honorCtx is set, a cancelled
// dial context also ends the dial.
type blockingTransport struct {
	entered  chan struct{}
	release  chan struct{}
	honorCtx bool

	lock    sync.Mutex
	sockets []*fakeSocket
}

func newBlockingTransport(honorCtx bool) *blockingTransport {
	return &blockingTransport{
		entered:  make(chan struct{}, 4),
		release:  make(chan struct{}),
		honorCtx: honorCtx,
	}
}

func (bt *blockingTransport) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	bt.entered <- struct{}{}
	done := ctx.Done()
	if !bt.honorCtx {
		done = nil
	}
	select {
	case <-bt.release:
	case <-done:
		return nil, ctx.Err()
	}
	sock := newFakeSocket()
	bt.lock.Lock()
	bt.sockets = append(bt.sockets, sock)
	bt.lock.Unlock()
	return sock, nil
}

func connectAsync(conn *Conn) chan error {
	result := make(chan error, 1)
	go func() {
		result <- conn.Connect(context.Background(), "tok")
	}()
	return result
}

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case val := <-ch:
		return val
	case <-time.After(2 * time.Second):
		var zero T
		t.Fatalf("timed out waiting for %T", zero)
		return zero
	}
}

func TestDisconnectAbortsPendingConnect(t *testing.T) {
	bt := newBlockingTransport(true)
	conn := NewConn("ws://chatpay.test/ws", nil)
	conn.Transport = bt
	conn.Policy = ReconnectPolicy{}
	ctx := context.Background()

	result := connectAsync(conn)
	waitFor(t, bt.entered)

	start := time.Now()
	assert.False(t, conn.IsConnected())
	assert.ErrorIs(t, conn.Send(ctx, EventTyping, nil), ErrNotConnected)
	assert.ErrorIs(t, conn.Connect(ctx, "tok"), ErrAlreadyConnected)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	conn.Disconnect()
	assert.ErrorIs(t, waitFor(t, result), ErrConnectAborted)
	assert.False(t, conn.IsConnected())

	close(bt.release)
	require.NoError(t, conn.Connect(ctx, "tok"))
	defer conn.Disconnect()
	assert.True(t, conn.IsConnected())
}

func TestLateHandshakeAfterDisconnectIsClosed(t *testing.T) {
	bt := newBlockingTransport(false)
	conn := NewConn("ws://chatpay.test/ws", nil)
	conn.Transport = bt
	conn.Policy = ReconnectPolicy{}

	result := connectAsync(conn)
	waitFor(t, bt.entered)
	conn.Disconnect()
	close(bt.release)

	assert.ErrorIs(t, waitFor(t, result), ErrConnectAborted)
	assert.False(t, conn.IsConnected())
	bt.lock.Lock()
	require.Len(t, bt.sockets, 1)
	sock := bt.sockets[0]
	bt.lock.Unlock()
	select {
	case <-sock.closed:
	default:
		t.Fatal("socket from the aborted handshake was left open")
	}
}
