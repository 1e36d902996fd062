// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chatpay/chatpay-go/types"
)

// DefaultHistoryLimit is the page size used when fetching chat history.
const DefaultHistoryLimit = 50

// GetChats returns the chats the user participates in.
func (c *Client) GetChats(ctx context.Context) ([]*types.Chat, error) {
	var resp struct {
		Chats []*types.Chat `json:"chats"`
	}
	err := c.Request(ctx, http.MethodGet, "/chats", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// GetChatMessages returns a page of the history of a chat.
func (c *Client) GetChatMessages(ctx context.Context, chatID string, limit, skip int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := url.Values{
		"limit": {strconv.Itoa(limit)},
		"skip":  {strconv.Itoa(skip)},
	}
	var resp struct {
		Messages []*types.Message `json:"messages"`
	}
	err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/chats/%s/messages?%s", url.PathEscape(chatID), query.Encode()), nil, &resp)
	if err != nil {
		return nil, err
	}
	for _, msg := range resp.Messages {
		if msg.ChatID == "" {
			msg.ChatID = chatID
		}
	}
	return resp.Messages, nil
}

// SendMessage posts a message to a chat. The backend echoes it back over the realtime channel,
// the returned message may be nil if the backend didn't include it in the response.
func (c *Client) SendMessage(ctx context.Context, chatID, content string, msgType types.MessageType) (*types.Message, error) {
	if msgType == "" {
		msgType = types.MessageTypeText
	}
	var resp struct {
		Message *types.Message `json:"message"`
	}
	err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID)), map[string]any{
		"content": content,
		"type":    msgType,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// CreateChat creates a new chat with the given participants.
func (c *Client) CreateChat(ctx context.Context, participants []string, chatType types.ChatType) (*types.Chat, error) {
	if chatType == "" {
		chatType = types.ChatTypeDirect
	}
	var resp struct {
		Chat *types.Chat `json:"chat"`
	}
	err := c.Request(ctx, http.MethodPost, "/chats", map[string]any{
		"participants": participants,
		"type":         chatType,
	}, &resp)
	if err != nil {
		return nil, err
	} else if resp.Chat == nil {
		return nil, fmt.Errorf("%w: create chat response has no chat", ErrUnexpectedResponse)
	}
	return resp.Chat, nil
}

// GetContacts returns the contact list.
func (c *Client) GetContacts(ctx context.Context) ([]*types.Contact, error) {
	var resp struct {
		Contacts []*types.Contact `json:"contacts"`
	}
	err := c.Request(ctx, http.MethodGet, "/contacts", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

// AddContact adds a user to the contact list.
func (c *Client) AddContact(ctx context.Context, userID string) (*types.Contact, error) {
	var resp struct {
		Contact *types.Contact `json:"contact"`
	}
	err := c.Request(ctx, http.MethodPost, "/contacts", map[string]string{"userId": userID}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Contact, nil
}
