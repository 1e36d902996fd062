// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package realtime

import (
	"encoding/json"

	"github.com/chatpay/chatpay-go/types"
	"github.com/chatpay/chatpay-go/types/events"
)

// Outbound event names.
const (
	EventJoinChat   = "join-chat"
	EventLeaveChat  = "leave-chat"
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"
)

// Inbound event names.
const (
	EventNewMessage          = "new-message"
	EventUserTyping          = "user-typing"
	EventUserStopTyping      = "user-stop-typing"
	EventPaymentNotification = "payment-notification"
)

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// decodeEvent converts an inbound envelope into one of the types/events structs. Unknown
// event types return nil without an error.
func decodeEvent(env *Envelope) (any, error) {
	switch env.Type {
	case EventNewMessage:
		var msg types.Message
		if err := unmarshalWrapped(env.Payload, "message", &msg); err != nil {
			return nil, err
		}
		return &events.Message{Message: &msg}, nil
	case EventUserTyping:
		var state types.TypingState
		if err := json.Unmarshal(env.Payload, &state); err != nil {
			return nil, err
		}
		return &events.UserTyping{TypingState: state}, nil
	case EventUserStopTyping:
		var state types.TypingState
		if err := json.Unmarshal(env.Payload, &state); err != nil {
			return nil, err
		}
		return &events.UserStopTyping{TypingState: state}, nil
	case EventPaymentNotification:
		var payment types.Payment
		if err := unmarshalWrapped(env.Payload, "payment", &payment); err != nil {
			return nil, err
		}
		return &events.PaymentNotification{Payment: &payment}, nil
	default:
		return nil, nil
	}
}

// unmarshalWrapped accepts both a bare object and one wrapped as {"<key>": {...}}.
func unmarshalWrapped(data json.RawMessage, key string, into any) error {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if inner, ok := wrapper[key]; ok && len(wrapper) == 1 {
		data = inner
	}
	return json.Unmarshal(data, into)
}
