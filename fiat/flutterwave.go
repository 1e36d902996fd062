// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fiat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chatpay/chatpay-go/types"
)

const FlutterwaveBaseURL = "https://api.flutterwave.com/v3"

// Flutterwave creates hosted-checkout payments through the Flutterwave v3 API.
type Flutterwave struct {
	httpProvider
}

var _ Provider = (*Flutterwave)(nil)

// NewFlutterwave creates a Flutterwave client with the given secret key.
func NewFlutterwave(apiKey string) *Flutterwave {
	return &Flutterwave{httpProvider{
		BaseURL:     FlutterwaveBaseURL,
		APIKey:      apiKey,
		RedirectURL: DefaultRedirectURL,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}}
}

func (fw *Flutterwave) Name() string {
	return "Flutterwave"
}

func (fw *Flutterwave) SupportedCurrencies() []types.Currency {
	return []types.Currency{types.CurrencyNGN}
}

type flutterwaveResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID     json.Number `json:"id"`
		TxRef  string      `json:"tx_ref"`
		Link   string      `json:"link"`
		Status string      `json:"status"`
	} `json:"data"`
}

func (fw *Flutterwave) CreatePayment(ctx context.Context, req *PaymentRequest) (*Result, error) {
	ref := req.Reference
	if ref == "" {
		ref = newReference(time.Now())
	}
	email := req.CustomerEmail
	if email == "" {
		email = "customer@example.com"
	}
	name := req.CustomerName
	if name == "" {
		name = "Customer Name"
	}
	description := req.Description
	if description == "" {
		description = "Payment request from chat"
	}
	var resp flutterwaveResponse
	err := fw.do(ctx, http.MethodPost, "/payments", map[string]any{
		"tx_ref":       ref,
		"amount":       req.Amount.String(),
		"currency":     req.Currency,
		"redirect_url": fw.RedirectURL,
		"customer": map[string]string{
			"email": email,
			"name":  name,
		},
		"customizations": map[string]string{
			"title":       "ChatPay Payment",
			"description": description,
		},
	}, &resp)
	if err != nil {
		return nil, err
	} else if resp.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailed, resp.Message)
	}
	txRef := resp.Data.TxRef
	if txRef == "" {
		txRef = ref
	}
	return &Result{PaymentID: resp.Data.ID.String(), Reference: txRef, CheckoutURL: resp.Data.Link}, nil
}

func (fw *Flutterwave) VerifyPayment(ctx context.Context, paymentID string) (*Result, error) {
	var resp flutterwaveResponse
	err := fw.do(ctx, http.MethodGet, fmt.Sprintf("/transactions/%s/verify", url.PathEscape(paymentID)), nil, &resp)
	if err != nil {
		return nil, err
	} else if resp.Status != "success" || resp.Data.Status != "successful" {
		return nil, fmt.Errorf("%w: status %q", ErrVerificationFailed, resp.Data.Status)
	}
	return &Result{PaymentID: paymentID, Reference: resp.Data.TxRef}, nil
}
