// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"fmt"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypePayment MessageType = "payment"
)

// Message is a single chat message.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payment   *Payment    `json:"payment,omitempty"`
}

// String returns a log-friendly representation of the message.
func (msg *Message) String() string {
	if msg.Payment != nil {
		return fmt.Sprintf("%s in %s from %s (payment %s)", msg.ID, msg.ChatID, msg.SenderID, msg.Payment.ID)
	}
	return fmt.Sprintf("%s in %s from %s", msg.ID, msg.ChatID, msg.SenderID)
}

// ChatType distinguishes direct chats from group chats.
type ChatType string

const (
	ChatTypeDirect ChatType = "direct"
	ChatTypeGroup  ChatType = "group"
)

// Chat is a conversation the user participates in.
type Chat struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         ChatType `json:"type,omitempty"`
	Participants []string `json:"participants"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
	UnreadCount  int      `json:"unreadCount"`
}

// TypingState is who is typing in which chat.
type TypingState struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}
