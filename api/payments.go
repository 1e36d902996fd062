// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay-go/types"
)

// PaymentOrder is the body of a backend payment request or send.
type PaymentOrder struct {
	ChatID         string
	Amount         decimal.Decimal
	ReceiverWallet string
}

// MarshalJSON sends the amount as a JSON number rather than the quoted string decimal uses.
func (po PaymentOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChatID         string      `json:"chatId"`
		Amount         json.Number `json:"amount"`
		ReceiverWallet string      `json:"receiverWallet"`
	}{po.ChatID, json.Number(po.Amount.String()), po.ReceiverWallet})
}

// PaymentResponse is what the backend returns for payment requests and sends.
type PaymentResponse struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message,omitempty"`
	TransactionID string         `json:"transactionId,omitempty"`
	Payment       *types.Payment `json:"payment,omitempty"`
}

// RequestPayment asks the backend to create a payment request in a chat.
func (c *Client) RequestPayment(ctx context.Context, order PaymentOrder) (*PaymentResponse, error) {
	var resp PaymentResponse
	err := c.Request(ctx, http.MethodPost, "/payments/request", order, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendPayment asks the backend to send a payment in a chat.
func (c *Client) SendPayment(ctx context.Context, order PaymentOrder) (*PaymentResponse, error) {
	var resp PaymentResponse
	err := c.Request(ctx, http.MethodPost, "/payments/send", order, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPaymentHistory returns the payment history of the user.
func (c *Client) GetPaymentHistory(ctx context.Context) ([]*types.PaymentRecord, error) {
	var resp struct {
		Payments []*types.PaymentRecord `json:"payments"`
	}
	err := c.Request(ctx, http.MethodGet, "/payments/history", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Payments, nil
}
