// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wallet

import (
	"errors"
	"fmt"
)

// Errors that the bridge functions can return. Use errors.Is to check for them, and
// UserMessage to turn them into something presentable.
var (
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrUserRejected        = errors.New("user rejected the transaction")
	ErrNetwork             = errors.New("network error")
	ErrCallFailed          = errors.New("on-chain call failed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnsupportedCurrency = errors.New("currency is not supported on chain")
	ErrInvalidKey          = errors.New("invalid private key")
)

// RPCError is an error object returned by the fullnode.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (re *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", re.Code, re.Message)
}

// UserMessage maps a bridge error to a human-readable message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWalletNotConnected):
		return "Wallet not connected. Please connect your Sui wallet first."
	case errors.Is(err, ErrUserRejected):
		return "The transaction was rejected in your wallet."
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnsupportedCurrency):
		return err.Error()
	case errors.Is(err, ErrNetwork):
		return "Could not reach the Sui network. Please check your connection and try again."
	case errors.Is(err, ErrCallFailed):
		return "The payment contract call failed. No funds were moved."
	default:
		return fmt.Sprintf("Payment failed: %v", err)
	}
}
