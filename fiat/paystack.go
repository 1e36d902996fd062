// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fiat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chatpay/chatpay-go/types"
)

const PaystackBaseURL = "https://api.paystack.co"

// Paystack initializes transactions through the Paystack API. Amounts are sent in kobo.
type Paystack struct {
	httpProvider
}

var _ Provider = (*Paystack)(nil)

// NewPaystack creates a Paystack client with the given secret key.
func NewPaystack(apiKey string) *Paystack {
	return &Paystack{httpProvider{
		BaseURL:     PaystackBaseURL,
		APIKey:      apiKey,
		RedirectURL: DefaultRedirectURL,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}}
}

func (ps *Paystack) Name() string {
	return "Paystack"
}

func (ps *Paystack) SupportedCurrencies() []types.Currency {
	return []types.Currency{types.CurrencyNGN}
}

type paystackResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
		Status           string `json:"status"`
	} `json:"data"`
}

func (ps *Paystack) CreatePayment(ctx context.Context, req *PaymentRequest) (*Result, error) {
	ref := req.Reference
	if ref == "" {
		ref = newReference(time.Now())
	}
	var resp paystackResponse
	err := ps.do(ctx, http.MethodPost, "/transaction/initialize", map[string]any{
		"email":        req.CustomerEmail,
		"amount":       req.Amount.Shift(2).Floor().String(),
		"currency":     req.Currency,
		"reference":    ref,
		"callback_url": ps.RedirectURL,
	}, &resp)
	if err != nil {
		return nil, err
	} else if !resp.Status {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailed, resp.Message)
	}
	return &Result{PaymentID: resp.Data.Reference, Reference: resp.Data.Reference, CheckoutURL: resp.Data.AuthorizationURL}, nil
}

func (ps *Paystack) VerifyPayment(ctx context.Context, paymentID string) (*Result, error) {
	var resp paystackResponse
	err := ps.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(paymentID), nil, &resp)
	if err != nil {
		return nil, err
	} else if !resp.Status || resp.Data.Status != "success" {
		return nil, fmt.Errorf("%w: status %q", ErrVerificationFailed, resp.Data.Status)
	}
	return &Result{PaymentID: paymentID, Reference: resp.Data.Reference}, nil
}
