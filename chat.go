// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatpay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chatpay/chatpay-go/api"
	"github.com/chatpay/chatpay-go/realtime"
	"github.com/chatpay/chatpay-go/types"
	"github.com/chatpay/chatpay-go/types/events"
)

// Start connects the realtime channel using the stored token and loads the chat list.
//
// Failing to load the chat list is not fatal: the list is left empty and a ChatsLoadFailed
// event is dispatched.
func (cli *Client) Start(ctx context.Context) error {
	if !cli.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	cli.chatLock.Lock()
	if cli.realtimeHandle == 0 {
		cli.realtimeHandle = cli.Realtime.AddEventHandler(cli.handleRealtimeEvent)
	}
	cli.chatLock.Unlock()
	err := cli.Realtime.Connect(ctx, cli.API.Token())
	if err != nil && !errors.Is(err, realtime.ErrAlreadyConnected) {
		return fmt.Errorf("failed to connect realtime channel: %w", err)
	}
	_, _ = cli.LoadChats(ctx)
	return nil
}

// Stop disconnects the realtime channel and forgets all chat state.
func (cli *Client) Stop() {
	cli.chatLock.Lock()
	handle := cli.realtimeHandle
	cli.realtimeHandle = 0
	if cli.fetchCancel != nil {
		cli.fetchCancel()
		cli.fetchCancel = nil
	}
	cli.fetchSeq++
	cli.chats = nil
	cli.chatsByID = make(map[string]*types.Chat)
	cli.selectedChat = ""
	cli.messages = nil
	cli.drawerOpen = false
	cli.drawerKind = ""
	cli.chatLock.Unlock()
	if handle != 0 {
		cli.Realtime.RemoveEventHandler(handle)
	}
	cli.Realtime.Disconnect()
}

// LoadChats fetches the chat list from the backend and replaces the local one.
func (cli *Client) LoadChats(ctx context.Context) ([]*types.Chat, error) {
	chats, err := cli.API.GetChats(ctx)
	if err != nil {
		cli.Log.Errorf("Failed to load chats: %v", err)
		cli.chatLock.Lock()
		cli.chats = nil
		cli.chatsByID = make(map[string]*types.Chat)
		cli.chatLock.Unlock()
		cli.dispatchEvent(&events.ChatsLoadFailed{Err: err})
		return nil, err
	}
	cli.chatLock.Lock()
	cli.chats = make([]*types.Chat, 0, len(chats))
	cli.chatsByID = make(map[string]*types.Chat, len(chats))
	for _, chat := range chats {
		if chat == nil || chat.ID == "" {
			continue
		}
		if chat.ID == cli.selectedChat {
			chat.UnreadCount = 0
		}
		cli.chats = append(cli.chats, chat)
		cli.chatsByID[chat.ID] = chat
	}
	loaded := cli.copyChatsLocked()
	cli.chatLock.Unlock()
	cli.Log.Debugf("Loaded %d chats", len(loaded))
	cli.dispatchEvent(&events.ChatsLoaded{Chats: loaded})
	return loaded, nil
}

func (cli *Client) copyChatsLocked() []*types.Chat {
	out := make([]*types.Chat, len(cli.chats))
	for i, chat := range cli.chats {
		chatCopy := *chat
		out[i] = &chatCopy
	}
	return out
}

// Chats returns a copy of the local chat list.
func (cli *Client) Chats() []*types.Chat {
	cli.chatLock.Lock()
	defer cli.chatLock.Unlock()
	return cli.copyChatsLocked()
}

// Chat returns a copy of a single chat from the local chat list.
func (cli *Client) Chat(chatID string) (*types.Chat, bool) {
	cli.chatLock.Lock()
	defer cli.chatLock.Unlock()
	chat, ok := cli.chatsByID[chatID]
	if !ok {
		return nil, false
	}
	chatCopy := *chat
	return &chatCopy, true
}

// SelectedChat returns the ID of the selected chat, or an empty string.
func (cli *Client) SelectedChat() string {
	cli.chatLock.Lock()
	defer cli.chatLock.Unlock()
	return cli.selectedChat
}

// Messages returns the messages of the selected chat in arrival order.
func (cli *Client) Messages() []*types.Message {
	cli.chatLock.Lock()
	defer cli.chatLock.Unlock()
	return slices.Clone(cli.messages)
}

// SelectChat focuses a chat: it leaves the previous room, joins the new one, resets the unread
// counter and fetches the message history.
//
// If another chat is selected while the history is still being fetched, the fetch is cancelled
// and its result is discarded. A failed fetch leaves the chat selected with no history and
// dispatches a MessagesLoadFailed event.
func (cli *Client) SelectChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return realtime.ErrEmptyChatID
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cli.chatLock.Lock()
	prev := cli.selectedChat
	if cli.fetchCancel != nil {
		cli.fetchCancel()
	}
	cli.fetchSeq++
	seq := cli.fetchSeq
	cli.fetchCancel = cancel
	cli.selectedChat = chatID
	if prev != chatID {
		cli.messages = nil
		cli.drawerOpen = false
		cli.drawerKind = ""
	}
	var unreadEvt *events.UnreadChanged
	if chat, ok := cli.chatsByID[chatID]; ok && chat.UnreadCount != 0 {
		chat.UnreadCount = 0
		unreadEvt = &events.UnreadChanged{ChatID: chatID}
	}
	cli.chatLock.Unlock()

	if unreadEvt != nil {
		cli.dispatchEvent(unreadEvt)
	}
	if prev != "" && prev != chatID {
		if err := cli.Realtime.LeaveChat(ctx, prev); err != nil {
			cli.Log.Warnf("Failed to leave chat %s: %v", prev, err)
		}
	}
	if err := cli.Realtime.JoinChat(ctx, chatID); err != nil {
		cli.Log.Warnf("Failed to join chat %s: %v", chatID, err)
	}

	history, err := cli.API.GetChatMessages(fetchCtx, chatID, api.DefaultHistoryLimit, 0)
	return cli.applyHistory(chatID, seq, history, err)
}

func (cli *Client) applyHistory(chatID string, seq uint64, history []*types.Message, fetchErr error) error {
	cli.chatLock.Lock()
	if seq != cli.fetchSeq || cli.selectedChat != chatID {
		cli.chatLock.Unlock()
		cli.Log.Debugf("Discarding stale history for %s (request #%d)", chatID, seq)
		return nil
	}
	cli.fetchCancel = nil
	if fetchErr != nil {
		cli.chatLock.Unlock()
		cli.Log.Errorf("Failed to load messages of %s: %v", chatID, fetchErr)
		cli.dispatchEvent(&events.MessagesLoadFailed{ChatID: chatID, Err: fetchErr})
		return fetchErr
	}
	// Messages pushed while the fetch was in flight are kept after the history.
	live := cli.messages
	merged := make([]*types.Message, 0, len(history)+len(live))
	seen := make(map[string]struct{}, len(history)+len(live))
	for _, msg := range slices.Concat(history, live) {
		if msg == nil {
			continue
		}
		if msg.ID != "" {
			if _, dup := seen[msg.ID]; dup {
				continue
			}
			seen[msg.ID] = struct{}{}
		}
		merged = append(merged, msg)
	}
	cli.messages = merged
	loaded := slices.Clone(merged)
	cli.chatLock.Unlock()
	cli.dispatchEvent(&events.MessagesLoaded{ChatID: chatID, Messages: loaded})
	return nil
}

func (cli *Client) handleRealtimeEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		cli.handleIncomingMessage(evt.Message)
	case *events.PaymentNotification:
		cli.handlePaymentNotification(evt.Payment)
	}
	cli.dispatchEvent(rawEvt)
}

func (cli *Client) handleIncomingMessage(msg *types.Message) {
	if msg == nil || msg.ChatID == "" {
		return
	}
	cli.chatLock.Lock()
	chat, ok := cli.chatsByID[msg.ChatID]
	if !ok {
		chat = &types.Chat{ID: msg.ChatID}
		cli.chats = append([]*types.Chat{chat}, cli.chats...)
		cli.chatsByID[msg.ChatID] = chat
	}
	chat.LastMessage = msg
	var unreadEvt *events.UnreadChanged
	if msg.ChatID == cli.selectedChat {
		if msg.ID == "" || !slices.ContainsFunc(cli.messages, func(existing *types.Message) bool {
			return existing.ID == msg.ID
		}) {
			cli.messages = append(cli.messages, msg)
		}
	} else {
		chat.UnreadCount++
		unreadEvt = &events.UnreadChanged{ChatID: chat.ID, UnreadCount: chat.UnreadCount}
	}
	cli.chatLock.Unlock()
	if unreadEvt != nil {
		cli.dispatchEvent(unreadEvt)
	}
}

func (cli *Client) handlePaymentNotification(payment *types.Payment) {
	if payment == nil || payment.ID == "" {
		return
	}
	cli.chatLock.Lock()
	defer cli.chatLock.Unlock()
	updated := func(msg *types.Message) (*types.Message, bool) {
		if msg == nil || msg.Payment == nil || msg.Payment.ID != payment.ID {
			return msg, false
		}
		paymentCopy := *msg.Payment
		paymentCopy.Status = payment.Status
		if payment.TxHash != "" {
			paymentCopy.TxHash = payment.TxHash
		}
		msgCopy := *msg
		msgCopy.Payment = &paymentCopy
		return &msgCopy, true
	}
	for i, msg := range cli.messages {
		if newMsg, ok := updated(msg); ok {
			cli.messages[i] = newMsg
		}
	}
	for _, chat := range cli.chats {
		if newMsg, ok := updated(chat.LastMessage); ok {
			chat.LastMessage = newMsg
		}
	}
}

// SendMessage sends a text message to the selected chat. The message isn't added to the local
// list until the backend pushes it back through the realtime channel.
func (cli *Client) SendMessage(ctx context.Context, content string) (*types.Message, error) {
	chatID := cli.SelectedChat()
	if chatID == "" {
		return nil, ErrNoChatSelected
	}
	return cli.SendMessageTo(ctx, chatID, content)
}

// SendMessageTo sends a text message to any chat.
func (cli *Client) SendMessageTo(ctx context.Context, chatID, content string) (*types.Message, error) {
	if !cli.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	return cli.API.SendMessage(ctx, chatID, content, types.MessageTypeText)
}

// StartTyping tells the other participants of the selected chat that the user is typing.
func (cli *Client) StartTyping(ctx context.Context) error {
	chatID := cli.SelectedChat()
	if chatID == "" {
		return ErrNoChatSelected
	}
	return cli.Realtime.StartTyping(ctx, chatID)
}

// StopTyping tells the other participants of the selected chat that the user stopped typing.
func (cli *Client) StopTyping(ctx context.Context) error {
	chatID := cli.SelectedChat()
	if chatID == "" {
		return ErrNoChatSelected
	}
	return cli.Realtime.StopTyping(ctx, chatID)
}

// CreateChat creates a new chat and adds it to the top of the local chat list.
func (cli *Client) CreateChat(ctx context.Context, participants []string, chatType types.ChatType) (*types.Chat, error) {
	if !cli.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	chat, err := cli.API.CreateChat(ctx, participants, chatType)
	if err != nil {
		return nil, err
	}
	cli.chatLock.Lock()
	if _, exists := cli.chatsByID[chat.ID]; !exists {
		chatCopy := *chat
		cli.chats = append([]*types.Chat{&chatCopy}, cli.chats...)
		cli.chatsByID[chat.ID] = &chatCopy
	}
	cli.chatLock.Unlock()
	return chat, nil
}

// Contacts fetches the user's contact list.
func (cli *Client) Contacts(ctx context.Context) ([]*types.Contact, error) {
	if !cli.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	return cli.API.GetContacts(ctx)
}

// AddContact adds a user to the contact list.
func (cli *Client) AddContact(ctx context.Context, userID string) (*types.Contact, error) {
	if !cli.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	return cli.API.AddContact(ctx, userID)
}

// PaymentHistory fetches the payments the user has sent or received.
func (cli *Client) PaymentHistory(ctx context.Context) ([]*types.PaymentRecord, error) {
	if !cli.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	return cli.API.GetPaymentHistory(ctx)
}
