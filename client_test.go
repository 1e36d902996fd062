package chatpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay-go/config"
	"github.com/chatpay/chatpay-go/realtime"
	"github.com/chatpay/chatpay-go/store"
	"github.com/chatpay/chatpay-go/types/events"
)

type fakeChannel struct {
	lock      sync.Mutex
	connected bool
	token     string
	joined    []string
	left      []string
	typing    []string
	handlers  map[uint32]realtime.EventHandler
	nextID    uint32

	connectErr error
}

var _ realtime.Channel = (*fakeChannel)(nil)

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[uint32]realtime.EventHandler)}
}

func (fc *fakeChannel) Connect(_ context.Context, token string) error {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	if fc.connectErr != nil {
		return fc.connectErr
	} else if fc.connected {
		return realtime.ErrAlreadyConnected
	}
	fc.connected = true
	fc.token = token
	return nil
}

func (fc *fakeChannel) Disconnect() {
	fc.lock.Lock()
	fc.connected = false
	fc.lock.Unlock()
}

func (fc *fakeChannel) IsConnected() bool {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return fc.connected
}

func (fc *fakeChannel) JoinChat(_ context.Context, chatID string) error {
	fc.lock.Lock()
	fc.joined = append(fc.joined, chatID)
	fc.lock.Unlock()
	return nil
}

func (fc *fakeChannel) LeaveChat(_ context.Context, chatID string) error {
	fc.lock.Lock()
	fc.left = append(fc.left, chatID)
	fc.lock.Unlock()
	return nil
}

func (fc *fakeChannel) Send(_ context.Context, _ string, _ any) error {
	return nil
}

func (fc *fakeChannel) StartTyping(_ context.Context, chatID string) error {
	fc.lock.Lock()
	fc.typing = append(fc.typing, chatID)
	fc.lock.Unlock()
	return nil
}

func (fc *fakeChannel) StopTyping(_ context.Context, _ string) error {
	return nil
}

func (fc *fakeChannel) AddEventHandler(handler realtime.EventHandler) uint32 {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	fc.nextID++
	fc.handlers[fc.nextID] = handler
	return fc.nextID
}

func (fc *fakeChannel) RemoveEventHandler(id uint32) bool {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	_, ok := fc.handlers[id]
	delete(fc.handlers, id)
	return ok
}

func (fc *fakeChannel) OnMessage(fn func(*events.Message)) uint32 {
	return fc.AddEventHandler(func(evt any) {
		if typed, ok := evt.(*events.Message); ok {
			fn(typed)
		}
	})
}

func (fc *fakeChannel) OnUserTyping(fn func(*events.UserTyping)) uint32 {
	return fc.AddEventHandler(func(evt any) {
		if typed, ok := evt.(*events.UserTyping); ok {
			fn(typed)
		}
	})
}

func (fc *fakeChannel) OnUserStopTyping(fn func(*events.UserStopTyping)) uint32 {
	return fc.AddEventHandler(func(evt any) {
		if typed, ok := evt.(*events.UserStopTyping); ok {
			fn(typed)
		}
	})
}

func (fc *fakeChannel) OnPaymentNotification(fn func(*events.PaymentNotification)) uint32 {
	return fc.AddEventHandler(func(evt any) {
		if typed, ok := evt.(*events.PaymentNotification); ok {
			fn(typed)
		}
	})
}

func (fc *fakeChannel) emit(evt any) {
	fc.lock.Lock()
	handlers := make([]realtime.EventHandler, 0, len(fc.handlers))
	for _, handler := range fc.handlers {
		handlers = append(handlers, handler)
	}
	fc.lock.Unlock()
	for _, handler := range handlers {
		handler(evt)
	}
}

type fakeBackend struct {
	*httptest.Server

	lock        sync.Mutex
	authHeaders map[string][]string
	bodies      map[string]map[string]any
}

func newFakeBackend(t *testing.T, routes map[string]http.HandlerFunc) *fakeBackend {
	fb := &fakeBackend{
		authHeaders: make(map[string][]string),
		bodies:      make(map[string]map[string]any),
	}
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			fb.lock.Lock()
			fb.authHeaders[r.URL.Path] = append(fb.authHeaders[r.URL.Path], r.Header.Get("Authorization"))
			if r.Body != nil && r.ContentLength != 0 {
				raw, _ := io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(raw))
				var body map[string]any
				_ = json.Unmarshal(raw, &body)
				fb.bodies[r.URL.Path] = body
			}
			fb.lock.Unlock()
			handler(w, r)
		})
	}
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func (fb *fakeBackend) requests(path string) []string {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return append([]string(nil), fb.authHeaders[path]...)
}

func (fb *fakeBackend) body(path string) map[string]any {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return fb.bodies[path]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func authResponse(token string, user map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   token,
			"user":    user,
		})
	}
}

var completeUser = map[string]any{
	"_id":         "u1",
	"username":    "alice",
	"email":       "a@x.com",
	"displayName": "Alice",
	"isVerified":  true,
}

type eventRecorder struct {
	lock   sync.Mutex
	events []any
}

func (er *eventRecorder) handle(evt any) {
	er.lock.Lock()
	er.events = append(er.events, evt)
	er.lock.Unlock()
}

func recordedOf[T any](er *eventRecorder) []T {
	er.lock.Lock()
	defer er.lock.Unlock()
	var out []T
	for _, evt := range er.events {
		if typed, ok := evt.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

func newTestClient(t *testing.T, routes map[string]http.HandlerFunc) (*Client, *fakeChannel, *store.MemoryStore, *fakeBackend) {
	fb := newFakeBackend(t, routes)
	sessionStore := store.NewMemoryStore()
	cli := NewClient(&config.Config{APIURL: fb.URL}, sessionStore, nil)
	channel := newFakeChannel()
	cli.Realtime = channel
	return cli, channel, sessionStore, fb
}

func TestNewClientDefaults(t *testing.T) {
	cli := NewClient(nil, nil, nil)
	require.NotNil(t, cli.Store)
	assert.IsType(t, &realtime.Conn{}, cli.Realtime)
	assert.Empty(t, cli.Fiat)
	assert.Nil(t, cli.Signer())
	assert.False(t, cli.IsAuthenticated())
	assert.False(t, cli.IsConnected())

	cli = NewClient(&config.Config{
		FlutterwaveKey:    "FLWSECK_TEST",
		PaystackKey:       "sk_test",
		PackageID:         "0xpkg",
		GasBudget:         5,
		ReconnectAttempts: 2,
	}, nil, nil)
	require.Len(t, cli.Fiat, 2)
	assert.Equal(t, "Flutterwave", cli.Fiat[0].Name())
	assert.Equal(t, "0xpkg", cli.Wallet.PackageID)
	assert.Equal(t, uint64(5), cli.Wallet.GasBudget)
	assert.Equal(t, 2, cli.Realtime.(*realtime.Conn).Policy.MaxAttempts)
}

func TestEventHandlerPanicIsRecovered(t *testing.T) {
	cli := NewClient(nil, nil, nil)
	var rec eventRecorder
	cli.AddEventHandler(func(evt any) {
		panic(errors.New("boom"))
	})
	id := cli.AddEventHandler(rec.handle)
	assert.NotPanics(t, func() {
		cli.dispatchEvent(&events.Connected{})
	})
	assert.True(t, cli.RemoveEventHandler(id))
	assert.False(t, cli.RemoveEventHandler(id))
	cli.RemoveEventHandlers()
	assert.NotPanics(t, func() {
		cli.dispatchEvent(&events.Connected{})
	})
}

func TestSetProxyAddress(t *testing.T) {
	cli := NewClient(nil, nil, nil)

	require.NoError(t, cli.SetProxyAddress("http://127.0.0.1:8080"))
	transport, ok := cli.API.HTTP.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.Proxy)
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	proxyURL, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", proxyURL.Host)

	require.NoError(t, cli.SetProxyAddress("socks5://127.0.0.1:1080"))
	transport, ok = cli.API.HTTP.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, transport.Proxy)
	assert.True(t, transport.DialContext != nil || transport.Dial != nil)

	err = cli.SetProxyAddress("ftp://127.0.0.1")
	assert.ErrorIs(t, err, ErrUnsupportedProxy)
}
