// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fiat contains clients for the fiat payment providers used for bank payments.
package fiat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay-go/types"
)

var (
	ErrNoProvider         = errors.New("no fiat payment provider available")
	ErrMissingKey         = errors.New("payment provider API key is not configured")
	ErrProviderFailed     = errors.New("payment provider rejected the request")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrNetwork            = errors.New("network error")
)

// DefaultRedirectURL is where the hosted checkout sends the customer afterwards.
const DefaultRedirectURL = "http://localhost:3000/payment/callback"

// PaymentRequest is the input of Provider.CreatePayment.
type PaymentRequest struct {
	Amount        decimal.Decimal
	Currency      types.Currency
	CustomerEmail string
	CustomerName  string
	Description   string
	// Reference is generated if empty.
	Reference string
}

// Result describes a created or verified payment.
type Result struct {
	// PaymentID is the provider-side ID used for verification.
	PaymentID string
	Reference string
	// CheckoutURL is the hosted payment page, if the provider returned one.
	CheckoutURL string
}

// Provider is a fiat payment gateway.
type Provider interface {
	Name() string
	SupportedCurrencies() []types.Currency
	CreatePayment(ctx context.Context, req *PaymentRequest) (*Result, error)
	VerifyPayment(ctx context.Context, paymentID string) (*Result, error)
}

// Providers is an ordered list of providers. The first configured provider that supports a
// currency wins.
type Providers []Provider

// For returns the provider to use for a currency.
func (ps Providers) For(currency types.Currency) (Provider, error) {
	for _, p := range ps {
		if slices.Contains(p.SupportedCurrencies(), currency) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoProvider, currency)
}

// ByName returns the provider with the given name.
func (ps Providers) ByName(name string) (Provider, error) {
	for _, p := range ps {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProvider, name)
}

func newReference(now time.Time) string {
	return "chatpay_" + strconv.FormatInt(now.UnixMilli(), 10)
}

type httpProvider struct {
	BaseURL     string
	APIKey      string
	RedirectURL string
	HTTP        *http.Client
}

func (hp *httpProvider) do(ctx context.Context, method, path string, body, out any) error {
	if hp.APIKey == "" {
		return ErrMissingKey
	}
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, hp.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to prepare request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+hp.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := hp.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response (HTTP %d): %w", ErrProviderFailed, resp.StatusCode, err)
	}
	return nil
}
