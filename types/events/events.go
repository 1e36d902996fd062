// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package events contains all the events that chatpay.Client emits to functions registered with AddEventHandler.
package events

import (
	"github.com/chatpay/chatpay-go/types"
)

// Connected is emitted when the realtime channel has been opened, including after an automatic
// reconnection.
type Connected struct{}

// Disconnected is emitted when the realtime channel was closed by the remote side or by a
// network error. It is not emitted after Client.Disconnect.
type Disconnected struct {
	Err error
}

// Reconnecting is emitted before every automatic reconnection attempt.
type Reconnecting struct {
	Attempt int
}

// ReconnectFailed is emitted when automatic reconnection has given up. The channel stays
// disconnected until Connect is called again.
type ReconnectFailed struct {
	Attempts int
	Err      error
}

// Message is emitted when a new message is pushed through the realtime channel.
type Message struct {
	Message *types.Message
}

// UserTyping is emitted when another user starts typing in a chat.
type UserTyping struct {
	types.TypingState
}

// UserStopTyping is emitted when another user stops typing in a chat.
type UserStopTyping struct {
	types.TypingState
}

// PaymentNotification is emitted when the backend reports a payment status change.
type PaymentNotification struct {
	Payment *types.Payment
}

// LoggedOut is emitted when the session ends. OnInvalidToken is true if the backend rejected the
// token (HTTP 401) rather than the user logging out.
type LoggedOut struct {
	OnInvalidToken bool
}

// SessionChanged is emitted whenever the session user is set, replaced or cleared.
type SessionChanged struct {
	User *types.User
}

// ViewChanged is emitted when the onboarding state machine moves to another view.
type ViewChanged struct {
	From types.OnboardingView
	To   types.OnboardingView
}

// ChatsLoaded is emitted after the chat list was fetched.
type ChatsLoaded struct {
	Chats []*types.Chat
}

// ChatsLoadFailed is emitted when the chat list could not be fetched. The list is left empty.
type ChatsLoadFailed struct {
	Err error
}

// MessagesLoaded is emitted when the history of the selected chat has been applied.
type MessagesLoaded struct {
	ChatID   string
	Messages []*types.Message
}

// MessagesLoadFailed is emitted when the history fetch of the selected chat failed. The chat
// stays selected with an empty message list.
type MessagesLoadFailed struct {
	ChatID string
	Err    error
}

// UnreadChanged is emitted when the unread counter of a chat changes.
type UnreadChanged struct {
	ChatID      string
	UnreadCount int
}

// PaymentSubmitted is emitted after the payment drawer succeeded and the local payment message
// was appended.
type PaymentSubmitted struct {
	Message *types.Message
	// TransactionID is the chain digest or fiat reference, if any.
	TransactionID string
}
