// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package realtime implements the push channel used for live messages, typing notifications
// and payment status updates.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/util/exsync"
	"golang.org/x/time/rate"

	"github.com/chatpay/chatpay-go/metrics"
	"github.com/chatpay/chatpay-go/types/events"
	cpLog "github.com/chatpay/chatpay-go/util/log"
)

// DefaultURL is the realtime endpoint used when no other URL is configured.
const DefaultURL = "ws://localhost:3001"

// DefaultTypingInterval is the minimum time between two typing signals for the same chat.
const DefaultTypingInterval = 2 * time.Second

// EventHandler is a function that can handle realtime events. The events are the connection
// and push types in the types/events package.
type EventHandler func(evt any)

// Channel is the capability set of a realtime channel client.
type Channel interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	IsConnected() bool

	JoinChat(ctx context.Context, chatID string) error
	LeaveChat(ctx context.Context, chatID string) error
	Send(ctx context.Context, eventType string, payload any) error
	StartTyping(ctx context.Context, chatID string) error
	StopTyping(ctx context.Context, chatID string) error

	AddEventHandler(handler EventHandler) uint32
	RemoveEventHandler(id uint32) bool

	OnMessage(fn func(*events.Message)) uint32
	OnUserTyping(fn func(*events.UserTyping)) uint32
	OnUserStopTyping(fn func(*events.UserStopTyping)) uint32
	OnPaymentNotification(fn func(*events.PaymentNotification)) uint32
}

var nextHandlerID atomic.Uint32

type wrappedEventHandler struct {
	fn EventHandler
	id uint32
}

// Conn is the websocket implementation of Channel. Messages are JSON envelopes of the form
// {"type": "<event>", "payload": ...}.
type Conn struct {
	URL            string
	Transport      Transport
	Policy         ReconnectPolicy
	TypingInterval time.Duration

	log cpLog.Logger

	lock   sync.Mutex
	sock   Socket
	token  string
	cancel context.CancelFunc
	rooms  map[string]struct{}
	// dialCancel is set while Connect is waiting for the handshake.
	dialCancel context.CancelFunc
	dialGen    uint64

	typingLimiters *exsync.Map[string, *rate.Limiter]

	eventHandlers     []wrappedEventHandler
	eventHandlersLock sync.RWMutex
}

var _ Channel = (*Conn)(nil)

// NewConn creates a realtime client for the given websocket URL. The logger may be nil.
func NewConn(wsURL string, log cpLog.Logger) *Conn {
	if log == nil {
		log = cpLog.Noop
	}
	if wsURL == "" {
		wsURL = DefaultURL
	}
	return &Conn{
		URL:            wsURL,
		Transport:      &WebSocketTransport{},
		Policy:         DefaultReconnectPolicy,
		TypingInterval: DefaultTypingInterval,
		log:            log,
		rooms:          make(map[string]struct{}),
		typingLimiters: exsync.NewMap[string, *rate.Limiter](),
	}
}

// SetHTTPClient sets the HTTP client used for the websocket handshake, e.g. to go through a proxy.
// It only has an effect when the default websocket transport is used.
func (c *Conn) SetHTTPClient(client *http.Client) {
	if wst, ok := c.Transport.(*WebSocketTransport); ok {
		wst.HTTPClient = client
	}
}

// AddEventHandler registers a new function to receive all realtime events.
//
// The handler is called synchronously on the read loop, so it should return quickly. The
// returned ID can be passed to RemoveEventHandler.
func (c *Conn) AddEventHandler(handler EventHandler) uint32 {
	id := nextHandlerID.Add(1)
	c.eventHandlersLock.Lock()
	c.eventHandlers = append(c.eventHandlers, wrappedEventHandler{handler, id})
	c.eventHandlersLock.Unlock()
	return id
}

// RemoveEventHandler removes a previously registered event handler function.
// Returns true if the handler was found and removed.
func (c *Conn) RemoveEventHandler(id uint32) bool {
	c.eventHandlersLock.Lock()
	defer c.eventHandlersLock.Unlock()
	for index := range c.eventHandlers {
		if c.eventHandlers[index].id == id {
			if index == 0 {
				c.eventHandlers[0].fn = nil
				c.eventHandlers = c.eventHandlers[1:]
				return true
			} else if index < len(c.eventHandlers)-1 {
				copy(c.eventHandlers[index:], c.eventHandlers[index+1:])
			}
			c.eventHandlers[len(c.eventHandlers)-1].fn = nil
			c.eventHandlers = c.eventHandlers[:len(c.eventHandlers)-1]
			return true
		}
	}
	return false
}

// OnMessage registers a handler for new-message events only. The returned ID can be passed
// to RemoveEventHandler.
func (c *Conn) OnMessage(fn func(*events.Message)) uint32 {
	return c.AddEventHandler(func(rawEvt any) {
		if evt, ok := rawEvt.(*events.Message); ok {
			fn(evt)
		}
	})
}

// OnUserTyping registers a handler for user-typing events only.
func (c *Conn) OnUserTyping(fn func(*events.UserTyping)) uint32 {
	return c.AddEventHandler(func(rawEvt any) {
		if evt, ok := rawEvt.(*events.UserTyping); ok {
			fn(evt)
		}
	})
}

// OnUserStopTyping registers a handler for user-stop-typing events only.
func (c *Conn) OnUserStopTyping(fn func(*events.UserStopTyping)) uint32 {
	return c.AddEventHandler(func(rawEvt any) {
		if evt, ok := rawEvt.(*events.UserStopTyping); ok {
			fn(evt)
		}
	})
}

// OnPaymentNotification registers a handler for payment-notification events only.
func (c *Conn) OnPaymentNotification(fn func(*events.PaymentNotification)) uint32 {
	return c.AddEventHandler(func(rawEvt any) {
		if evt, ok := rawEvt.(*events.PaymentNotification); ok {
			fn(evt)
		}
	})
}

// RemoveEventHandlers removes all event handlers.
func (c *Conn) RemoveEventHandlers() {
	c.eventHandlersLock.Lock()
	c.eventHandlers = make([]wrappedEventHandler, 0, 1)
	c.eventHandlersLock.Unlock()
}

func (c *Conn) dispatchEvent(evt any) {
	c.eventHandlersLock.RLock()
	handlers := make([]wrappedEventHandler, len(c.eventHandlers))
	copy(handlers, c.eventHandlers)
	c.eventHandlersLock.RUnlock()
	for _, handler := range handlers {
		c.callHandler(handler.fn, evt)
	}
}

func (c *Conn) callHandler(fn EventHandler, evt any) {
	defer func() {
		if err := recover(); err != nil {
			c.log.Errorf("Realtime event handler panicked while handling a %T: %v", evt, err)
		}
	}()
	fn(evt)
}

// IsConnected returns true if the websocket is currently open.
func (c *Conn) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sock != nil
}

func (c *Conn) dial(ctx context.Context, token string) (Socket, error) {
	target, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime URL: %w", err)
	}
	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()
	header := http.Header{"Authorization": {"Bearer " + token}}
	c.log.Debugf("Dialing %s", c.URL)
	sock, err := c.Transport.Dial(ctx, target.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime websocket: %w", err)
	}
	return sock, nil
}

// Connect opens the websocket using the given token. It returns once the handshake has
// completed or failed. If the connection drops later, it is reopened according to Policy.
//
// The lock is not held during the handshake: a concurrent Disconnect aborts the dial and
// makes Connect return ErrConnectAborted.
func (c *Conn) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	c.lock.Lock()
	if c.sock != nil || c.dialCancel != nil {
		c.lock.Unlock()
		return ErrAlreadyConnected
	}
	if c.cancel != nil {
		// Stop a reconnect loop that may still be running.
		c.cancel()
		c.cancel = nil
	}
	dialCtx, dialCancel := context.WithCancel(ctx)
	defer dialCancel()
	c.dialCancel = dialCancel
	c.dialGen++
	gen := c.dialGen
	c.lock.Unlock()

	sock, err := c.dial(dialCtx, token)

	c.lock.Lock()
	if c.dialGen != gen {
		c.lock.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		c.log.Debugf("Realtime connect aborted by disconnect")
		return ErrConnectAborted
	}
	c.dialCancel = nil
	if err != nil {
		c.lock.Unlock()
		return err
	}
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.token = token
	c.cancel = cancel
	c.sock = sock
	c.lock.Unlock()

	c.log.Infof("Realtime channel connected")
	metrics.SetRealtimeConnected(true)
	go c.readPump(sessionCtx, sock)
	c.dispatchEvent(&events.Connected{})
	return nil
}

// Disconnect closes the websocket and stops any pending connect or reconnection. It does not
// emit a Disconnected event. Joined rooms are forgotten.
func (c *Conn) Disconnect() {
	c.lock.Lock()
	cancel := c.cancel
	dialCancel := c.dialCancel
	sock := c.sock
	c.cancel = nil
	c.sock = nil
	c.token = ""
	if dialCancel != nil {
		c.dialCancel = nil
		c.dialGen++
	}
	clear(c.rooms)
	c.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	if dialCancel != nil {
		dialCancel()
	}
	if sock != nil {
		if err := sock.Close(); err != nil {
			c.log.Debugf("Error closing realtime websocket: %v", err)
		}
		metrics.SetRealtimeConnected(false)
		c.log.Infof("Realtime channel disconnected")
	}
}

func (c *Conn) readPump(ctx context.Context, sock Socket) {
	c.log.Debugf("Realtime read pump starting")
	defer c.log.Debugf("Realtime read pump exiting")
	for {
		data, err := sock.Read(ctx)
		if err != nil {
			c.handleReadError(ctx, sock, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleReadError(ctx context.Context, sock Socket, err error) {
	c.lock.Lock()
	if c.sock != sock {
		// Disconnect already took care of it
		c.lock.Unlock()
		return
	}
	c.sock = nil
	c.lock.Unlock()
	_ = sock.Close()
	metrics.SetRealtimeConnected(false)
	if ctx.Err() != nil {
		return
	}
	c.log.Warnf("Realtime channel dropped: %v", err)
	c.dispatchEvent(&events.Disconnected{Err: err})
	go c.reconnectLoop(ctx)
}

func (c *Conn) handleFrame(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warnf("Failed to parse realtime message: %v", err)
		return
	}
	metrics.RecordRealtimeEvent("in", env.Type)
	evt, err := decodeEvent(&env)
	if err != nil {
		c.log.Warnf("Failed to decode %s payload: %v", env.Type, err)
	} else if evt == nil {
		c.log.Debugf("Ignoring unknown realtime event %q", env.Type)
	} else {
		c.dispatchEvent(evt)
	}
}

// Send writes an event to the websocket.
func (c *Conn) Send(ctx context.Context, eventType string, payload any) error {
	c.lock.Lock()
	sock := c.sock
	c.lock.Unlock()
	if sock == nil {
		return ErrNotConnected
	}
	env := Envelope{Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		env.Payload = data
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err = sock.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	metrics.RecordRealtimeEvent("out", eventType)
	return nil
}

type chatPayload struct {
	ChatID string `json:"chatId"`
}

// JoinChat subscribes to the room of a chat. Joined rooms are rejoined automatically after
// a reconnection.
func (c *Conn) JoinChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrEmptyChatID
	}
	err := c.Send(ctx, EventJoinChat, chatPayload{ChatID: chatID})
	if err != nil {
		return err
	}
	c.lock.Lock()
	c.rooms[chatID] = struct{}{}
	c.lock.Unlock()
	return nil
}

// LeaveChat unsubscribes from the room of a chat. The room is forgotten even if sending fails.
func (c *Conn) LeaveChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrEmptyChatID
	}
	c.lock.Lock()
	delete(c.rooms, chatID)
	c.lock.Unlock()
	return c.Send(ctx, EventLeaveChat, chatPayload{ChatID: chatID})
}

// JoinedChats returns the rooms that will be rejoined after a reconnection.
func (c *Conn) JoinedChats() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// StartTyping tells the other participants that the user is typing. Calls more frequent than
// TypingInterval for the same chat are dropped silently.
func (c *Conn) StartTyping(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrEmptyChatID
	}
	limiter, _ := c.typingLimiters.GetOrSet(chatID, rate.NewLimiter(rate.Every(c.TypingInterval), 1))
	if !limiter.Allow() {
		return nil
	}
	return c.Send(ctx, EventTyping, chatPayload{ChatID: chatID})
}

// StopTyping tells the other participants that the user stopped typing.
func (c *Conn) StopTyping(ctx context.Context, chatID string) error {
	if chatID == "" {
		return ErrEmptyChatID
	}
	// The next keystroke should signal typing again right away.
	c.typingLimiters.Delete(chatID)
	return c.Send(ctx, EventStopTyping, chatPayload{ChatID: chatID})
}
