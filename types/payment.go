// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType is the kind of payment embedded in a message.
type PaymentType string

const (
	PaymentTypeRequest PaymentType = "request"
	PaymentTypeManual  PaymentType = "manual"
)

// PaymentStatus is the verification marker on a payment. It is only ever set by the backend or
// the chain, never computed locally.
type PaymentStatus string

const (
	PaymentStatusNone       PaymentStatus = ""
	PaymentStatusVerified   PaymentStatus = "verified"
	PaymentStatusUnverified PaymentStatus = "unverified"
)

// Currency is a currency code accepted by the payment flows.
type Currency string

const (
	CurrencySUI  Currency = "SUI"
	CurrencyUSDC Currency = "USDC"
	CurrencyNGN  Currency = "NGN"
	CurrencyUSD  Currency = "USD"
	CurrencyEUR  Currency = "EUR"
)

// IsCrypto returns true for currencies settled on chain.
func (c Currency) IsCrypto() bool {
	return c == CurrencySUI || c == CurrencyUSDC
}

// ParseCurrency normalizes a currency code.
func ParseCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

// PaymentMethod is how a payment is settled.
type PaymentMethod string

const (
	PaymentMethodCrypto PaymentMethod = "crypto"
	PaymentMethodSui    PaymentMethod = "sui"
	PaymentMethodBank   PaymentMethod = "bank"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPayPal PaymentMethod = "paypal"
)

// IsOnChain returns true if the method goes through the wallet bridge.
func (pm PaymentMethod) IsOnChain() bool {
	return pm == PaymentMethodCrypto || pm == PaymentMethodSui
}

// Payment is the payment attached to a payment message.
type Payment struct {
	ID             string          `json:"id"`
	Type           PaymentType     `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       Currency        `json:"currency,omitempty"`
	ReceiverWallet string          `json:"receiverWallet,omitempty"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod,omitempty"`
	ReferenceID    string          `json:"referenceId,omitempty"`
	Status         PaymentStatus   `json:"status"`
	TxHash         string          `json:"txHash,omitempty"`
}

// PaymentRecord is an entry of the payment history.
type PaymentRecord struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Description string          `json:"description,omitempty"`
}
